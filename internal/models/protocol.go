package models

import "strings"

// DefaultProtocolID is the baseline protocol toggles fall back to.
const DefaultProtocolID = "default"

// StageStatus marks whether a stage may be navigated to.
type StageStatus string

const (
	StageStatusEnabled  StageStatus = "enabled"
	StageStatusDisabled StageStatus = "disabled"
)

// Command is a named host command with options, run through a Runner.
type Command struct {
	Name    string         `json:"name" yaml:"name"`
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// Callbacks are the side-effect hooks a protocol declares.
type Callbacks struct {
	OnProtocolEnter []Command `json:"on_protocol_enter,omitempty" yaml:"on_protocol_enter,omitempty"`
	OnProtocolExit  []Command `json:"on_protocol_exit,omitempty" yaml:"on_protocol_exit,omitempty"`
	OnLayoutChange  []Command `json:"on_layout_change,omitempty" yaml:"on_layout_change,omitempty"`
}

// MatchRule scores a display set attribute.
type MatchRule struct {
	Attribute string `json:"attribute" yaml:"attribute"`
	Equals    string `json:"equals,omitempty" yaml:"equals,omitempty"`
	Contains  string `json:"contains,omitempty" yaml:"contains,omitempty"`
	Weight    int    `json:"weight,omitempty" yaml:"weight,omitempty"`
	Required  bool   `json:"required,omitempty" yaml:"required,omitempty"`
}

// DisplaySetSelector chooses display sets by rule.
type DisplaySetSelector struct {
	Rules []MatchRule `json:"rules" yaml:"rules"`
}

// DisplaySetRef binds a selector match into a viewport.
type DisplaySetRef struct {
	SelectorID   string         `json:"id" yaml:"id"`
	MatchedIndex int            `json:"matched_index,omitempty" yaml:"matched_index,omitempty"`
	Required     bool           `json:"required,omitempty" yaml:"required,omitempty"`
	Options      map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// ViewportSpec describes one pane of a stage.
type ViewportSpec struct {
	ViewportOptions map[string]any  `json:"viewport_options,omitempty" yaml:"viewport_options,omitempty"`
	DisplaySets     []DisplaySetRef `json:"display_sets,omitempty" yaml:"display_sets,omitempty"`
}

// LayoutOption is an explicit cell geometry.
type LayoutOption struct {
	PositionID string  `json:"position_id,omitempty" yaml:"position_id,omitempty"`
	X          float64 `json:"x" yaml:"x"`
	Y          float64 `json:"y" yaml:"y"`
	Width      float64 `json:"width" yaml:"width"`
	Height     float64 `json:"height" yaml:"height"`
}

// Position converts the option to a pane position.
func (o LayoutOption) Position() Position {
	return Position{X: o.X, Y: o.Y, Width: o.Width, Height: o.Height}
}

// StageLayout is the structure a stage requests.
type StageLayout struct {
	Rows          int            `json:"rows" yaml:"rows"`
	Cols          int            `json:"cols" yaml:"cols"`
	LayoutType    LayoutType     `json:"layout_type,omitempty" yaml:"layout_type,omitempty"`
	LayoutOptions []LayoutOption `json:"layout_options,omitempty" yaml:"layout_options,omitempty"`
}

// Stage is one concrete pane arrangement.
type Stage struct {
	ID        string         `json:"id" yaml:"id"`
	Name      string         `json:"name,omitempty" yaml:"name,omitempty"`
	Status    StageStatus    `json:"status,omitempty" yaml:"status,omitempty"`
	Layout    StageLayout    `json:"layout" yaml:"layout"`
	Viewports []ViewportSpec `json:"viewports" yaml:"viewports"`

	// DefaultViewport fills cells beyond the declared viewports.
	DefaultViewport *ViewportSpec `json:"default_viewport,omitempty" yaml:"default_viewport,omitempty"`
}

// Enabled reports whether the stage can be navigated to.
func (s Stage) Enabled() bool {
	return s.Status != StageStatusDisabled
}

// Protocol is a hanging protocol: selectors plus ordered stages.
type Protocol struct {
	ID                  string                        `json:"id" yaml:"id"`
	Name                string                        `json:"name,omitempty" yaml:"name,omitempty"`
	Callbacks           Callbacks                     `json:"callbacks,omitempty" yaml:"callbacks,omitempty"`
	DisplaySetSelectors map[string]DisplaySetSelector `json:"display_set_selectors,omitempty" yaml:"display_set_selectors,omitempty"`
	Stages              []Stage                       `json:"stages" yaml:"stages"`
}

// StageIndexByID returns the index of the stage with the given id.
func (p Protocol) StageIndexByID(id string) (int, bool) {
	for i, s := range p.Stages {
		if s.ID == id {
			return i, true
		}
	}
	return -1, false
}

// Validate checks the protocol definition.
func (p Protocol) Validate() error {
	var errs Problems
	if strings.TrimSpace(p.ID) == "" {
		errs.Addf("id", "is required")
	}
	if len(p.Stages) == 0 {
		errs.Addf("stages", "at least one stage is required")
	}
	for i, stage := range p.Stages {
		field := Indexed("stages", i)
		switch stage.Status {
		case "", StageStatusEnabled, StageStatusDisabled:
		default:
			errs.Addf(field+".status", "unknown status %q", stage.Status)
		}
		if len(stage.Layout.LayoutOptions) == 0 && stage.Layout.Rows*stage.Layout.Cols <= 0 {
			errs.Addf(field+".layout", "rows and cols must be positive")
		}
		for j, opt := range stage.Layout.LayoutOptions {
			if err := opt.Position().Validate(); err != nil {
				errs.Nest(Indexed(field+".layout.layout_options", j), err)
			}
		}
		for j, vp := range stage.Viewports {
			for k, ref := range vp.DisplaySets {
				if _, ok := p.DisplaySetSelectors[ref.SelectorID]; !ok {
					path := Indexed(Indexed(field+".viewports", j)+".display_sets", k)
					errs.Addf(path, "unknown selector %q", ref.SelectorID)
				}
			}
		}
	}
	return errs.Err()
}

// ProtocolState is the read-only view of what the protocol service has active.
type ProtocolState struct {
	ProtocolID     string `json:"protocol_id"`
	StageIndex     int    `json:"stage_index"`
	ActiveStudyUID string `json:"active_study_uid"`
}
