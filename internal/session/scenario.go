package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tOgg1/hangview/internal/hp"
	"github.com/tOgg1/hangview/internal/models"
)

// ErrInvalidScenario is returned for scenario files that cannot be replayed.
var ErrInvalidScenario = errors.New("invalid scenario")

// Scenario is a scripted viewing session: a study, optional protocol
// definitions and toolbar, and the commands to replay against them.
type Scenario struct {
	StudyUID    string              `yaml:"study"`
	DisplaySets []models.DisplaySet `yaml:"display_sets"`
	Protocols   []models.Protocol   `yaml:"protocols,omitempty"`
	Toolbar     []hp.Button         `yaml:"toolbar,omitempty"`
	Steps       []Step              `yaml:"steps"`
}

// Step is one command. Exactly one action field is set.
type Step struct {
	Name     string        `yaml:"name,omitempty"`
	Apply    *ProtocolStep `yaml:"apply,omitempty"`
	Toggle   *ProtocolStep `yaml:"toggle,omitempty"`
	Stage    int           `yaml:"stage,omitempty"`
	Layout   *LayoutStep   `yaml:"layout,omitempty"`
	Activate *int          `yaml:"activate,omitempty"`
	Remove   []string      `yaml:"remove,omitempty"`
	Press    string        `yaml:"press,omitempty"`
}

// ProtocolStep names a protocol stage.
type ProtocolStep struct {
	Protocol   string `yaml:"protocol,omitempty"`
	StageID    string `yaml:"stage_id,omitempty"`
	StageIndex *int   `yaml:"stage_index,omitempty"`
}

// LayoutStep is a grid shape.
type LayoutStep struct {
	Rows int `yaml:"rows"`
	Cols int `yaml:"cols"`
}

// Kind returns the action the step performs.
func (s Step) Kind() string {
	switch {
	case s.Apply != nil:
		return "apply"
	case s.Toggle != nil:
		return "toggle"
	case s.Stage != 0:
		return "stage"
	case s.Layout != nil:
		return "layout"
	case s.Activate != nil:
		return "activate"
	case len(s.Remove) > 0:
		return "remove"
	case s.Press != "":
		return "press"
	}
	return ""
}

func (s Step) actions() int {
	n := 0
	for _, set := range []bool{s.Apply != nil, s.Toggle != nil, s.Stage != 0, s.Layout != nil,
		s.Activate != nil, len(s.Remove) > 0, s.Press != ""} {
		if set {
			n++
		}
	}
	return n
}

// Validate checks the scenario is replayable.
func (sc Scenario) Validate() error {
	var errs models.Problems
	if sc.StudyUID == "" {
		errs.Addf("study", "is required")
	}
	for i, ds := range sc.DisplaySets {
		if ds.UID == "" {
			errs.Addf(models.Indexed("display_sets", i)+".uid", "is required")
		}
	}
	for i, st := range sc.Steps {
		if st.actions() != 1 {
			errs.Addf(models.Indexed("steps", i), "must set exactly one action")
		}
		if st.Stage != 0 && st.Stage != 1 && st.Stage != -1 {
			errs.Addf(models.Indexed("steps", i)+".stage", "must be 1 or -1")
		}
	}
	if err := errs.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}
	return nil
}

// DecodeScenario parses a YAML scenario.
func DecodeScenario(data []byte) (Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return Scenario{}, fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}
	if err := sc.Validate(); err != nil {
		return Scenario{}, err
	}
	return sc, nil
}

// LoadScenario reads a scenario file.
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario: %w", err)
	}
	return DecodeScenario(data)
}

// StepResult is the outcome of one replayed step.
type StepResult struct {
	Index    int
	Step     Step
	OK       bool
	Err      error
	Protocol models.ProtocolState
	Grid     models.GridState
}

// Replay loads the scenario's study into s and runs its steps in order,
// calling onStep after each. A step that the engine rejects is reported and
// replay continues.
func (s *Session) Replay(ctx context.Context, sc Scenario, onStep func(StepResult)) error {
	if err := s.LoadStudy(ctx, sc.StudyUID, sc.DisplaySets); err != nil {
		return err
	}
	for i, st := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := s.runStep(ctx, sc.StudyUID, st)
		if onStep != nil {
			onStep(StepResult{
				Index:    i,
				Step:     st,
				OK:       ok && err == nil,
				Err:      err,
				Protocol: s.Protocols.State(),
				Grid:     s.Grid.State(),
			})
		}
	}
	return nil
}

func (s *Session) runStep(ctx context.Context, studyUID string, st Step) (bool, error) {
	c := s.Controller
	switch st.Kind() {
	case "apply":
		return c.ApplyProtocol(ctx, hp.Params{
			ProtocolID: st.Apply.Protocol,
			StageID:    st.Apply.StageID,
			StageIndex: st.Apply.StageIndex,
		}), nil
	case "toggle":
		return c.ToggleProtocol(ctx, st.Toggle.Protocol, st.Toggle.StageIndex), nil
	case "stage":
		return c.DeltaStage(ctx, st.Stage), nil
	case "layout":
		if err := c.SetLayoutShape(ctx, st.Layout.Rows, st.Layout.Cols); err != nil {
			return false, err
		}
		return true, nil
	case "activate":
		return s.Grid.SetActivePane(ctx, *st.Activate), nil
	case "remove":
		removed := s.Catalog.Remove(ctx, st.Remove...)
		return len(removed) > 0, nil
	case "press":
		return c.PressButton(ctx, st.Press), nil
	}
	return false, fmt.Errorf("%w: step for study %s has no action", ErrInvalidScenario, studyUID)
}
