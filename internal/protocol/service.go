// Package protocol holds hanging protocol definitions and applies their
// stages to the viewport grid.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tOgg1/hangview/internal/events"
	"github.com/tOgg1/hangview/internal/grid"
	"github.com/tOgg1/hangview/internal/logging"
	"github.com/tOgg1/hangview/internal/models"
)

var (
	// ErrProtocolNotFound is returned for an unregistered protocol id.
	ErrProtocolNotFound = errors.New("protocol not found")

	// ErrStageNotFound is returned for an unknown stage id.
	ErrStageNotFound = errors.New("stage not found")

	// ErrInvalidStageIndex is returned for a stage index outside the protocol.
	ErrInvalidStageIndex = errors.New("invalid stage index")

	// ErrStageNotApplicable is returned when applying a disabled stage.
	ErrStageNotApplicable = errors.New("stage not applicable")
)

// Catalog is the content the service matches against.
type Catalog interface {
	ActiveDisplaySets() []models.DisplaySet
}

// GridWriter is the part of the grid store the service commits to.
type GridWriter interface {
	State() models.GridState
	SetLayout(ctx context.Context, req grid.LayoutRequest) bool
}

// StageRef names a stage by id or index. Both empty means unspecified.
type StageRef struct {
	StageID    string
	StageIndex *int
}

// SetOptions configures SetProtocol.
type SetOptions struct {
	// StageIndex defaults to 0.
	StageIndex *int

	// DisplaySetSelectorMap carries display set choices from an earlier view,
	// keyed by SelectorMapKey.
	DisplaySetSelectorMap map[string]string

	// Restore activates the stage without replanning the grid. The caller
	// restores a remembered grid itself.
	Restore bool
}

// Active describes the protocol currently applied.
type Active struct {
	Protocol   models.Protocol
	Stage      models.Stage
	StageIndex int
	StudyUID   string
}

// Service owns protocol definitions and the active protocol state.
type Service struct {
	mu        sync.RWMutex
	protocols map[string]models.Protocol
	order     []string
	state     models.ProtocolState

	catalog   Catalog
	grid      GridWriter
	registry  *Registry
	publisher events.Publisher
	logger    zerolog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithRegistry sets the viewport type registry.
func WithRegistry(r *Registry) ServiceOption {
	return func(s *Service) {
		s.registry = r
	}
}

// WithPublisher announces definition changes on p.
func WithPublisher(p events.Publisher) ServiceOption {
	return func(s *Service) {
		s.publisher = p
	}
}

// NewService creates a service with the default protocol registered and
// active at stage 0.
func NewService(catalog Catalog, gridWriter GridWriter, opts ...ServiceOption) *Service {
	s := &Service{
		protocols: make(map[string]models.Protocol),
		catalog:   catalog,
		grid:      gridWriter,
		logger:    logging.Component("protocol"),
		state:     models.ProtocolState{ProtocolID: models.DefaultProtocolID},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = DefaultRegistry()
	}
	s.put(DefaultProtocol())
	return s
}

// Registry returns the viewport type registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

func (s *Service) put(p models.Protocol) {
	if _, ok := s.protocols[p.ID]; !ok {
		s.order = append(s.order, p.ID)
	}
	s.protocols[p.ID] = p
}

// Register validates and adds or replaces definitions.
func (s *Service) Register(ctx context.Context, protocols ...models.Protocol) error {
	for _, p := range protocols {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("register protocol %q: %w", p.ID, err)
		}
	}
	s.mu.Lock()
	for _, p := range protocols {
		s.put(p)
	}
	s.mu.Unlock()
	s.announce(ctx, protocols)
	return nil
}

// Reload replaces all loaded definitions with protocols. The default
// protocol is kept unless protocols redefines it.
func (s *Service) Reload(ctx context.Context, protocols []models.Protocol) error {
	for _, p := range protocols {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("reload protocol %q: %w", p.ID, err)
		}
	}
	s.mu.Lock()
	s.protocols = make(map[string]models.Protocol, len(protocols)+1)
	s.order = nil
	s.put(DefaultProtocol())
	for _, p := range protocols {
		s.put(p)
	}
	s.mu.Unlock()
	s.announce(ctx, protocols)
	return nil
}

func (s *Service) announce(ctx context.Context, protocols []models.Protocol) {
	ids := make([]string, len(protocols))
	for i, p := range protocols {
		ids[i] = p.ID
	}
	s.logger.Info().Strs("protocols", ids).Msg("protocols loaded")
	if s.publisher != nil {
		s.publisher.Publish(ctx, events.NewEvent(models.EventTypeProtocolsLoaded, models.EntityTypeProtocol, "", ids))
	}
}

// Protocol returns a definition by id.
func (s *Service) Protocol(id string) (models.Protocol, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.protocols[id]
	return p, ok
}

// Protocols lists definitions in registration order.
func (s *Service) Protocols() []models.Protocol {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Protocol, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.protocols[id])
	}
	return out
}

// State returns the active protocol state.
func (s *Service) State() models.ProtocolState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// ActiveProtocol returns the active protocol and stage.
func (s *Service) ActiveProtocol() (Active, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.protocols[s.state.ProtocolID]
	if !ok || s.state.StageIndex < 0 || s.state.StageIndex >= len(p.Stages) {
		return Active{}, false
	}
	return Active{
		Protocol:   p,
		Stage:      p.Stages[s.state.StageIndex],
		StageIndex: s.state.StageIndex,
		StudyUID:   s.state.ActiveStudyUID,
	}, true
}

// StageIndex resolves ref within a protocol. An unspecified ref yields -1.
func (s *Service) StageIndex(protocolID string, ref StageRef) (int, error) {
	p, ok := s.Protocol(protocolID)
	if !ok {
		return -1, fmt.Errorf("%w: %q", ErrProtocolNotFound, protocolID)
	}
	if ref.StageID != "" {
		idx, ok := p.StageIndexByID(ref.StageID)
		if !ok {
			return -1, fmt.Errorf("%w: %q in %q", ErrStageNotFound, ref.StageID, protocolID)
		}
		return idx, nil
	}
	if ref.StageIndex != nil {
		if *ref.StageIndex < 0 || *ref.StageIndex >= len(p.Stages) {
			return -1, fmt.Errorf("%w: %d not in [0,%d)", ErrInvalidStageIndex, *ref.StageIndex, len(p.Stages))
		}
		return *ref.StageIndex, nil
	}
	return -1, nil
}

// SetActiveStudyUID sets the study protocol rules are matched against.
func (s *Service) SetActiveStudyUID(uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ActiveStudyUID = uid
}

// SetProtocol applies a stage of protocol id to the grid. All panes are
// computed before the grid is touched, so a failure leaves the grid and the
// active state unchanged.
func (s *Service) SetProtocol(ctx context.Context, id string, opts SetOptions) error {
	p, ok := s.Protocol(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrProtocolNotFound, id)
	}
	stageIndex := 0
	if opts.StageIndex != nil {
		stageIndex = *opts.StageIndex
	}
	if stageIndex < 0 || stageIndex >= len(p.Stages) {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrInvalidStageIndex, stageIndex, len(p.Stages))
	}
	stage := p.Stages[stageIndex]
	if !stage.Enabled() {
		return fmt.Errorf("%w: %s stage %d is disabled", ErrStageNotApplicable, id, stageIndex)
	}

	studyUID := s.studyUID()
	if opts.Restore {
		s.activate(id, stageIndex, studyUID)
		s.logger.Debug().Str("protocol_id", id).Int("stage_index", stageIndex).Msg("stage restored")
		return nil
	}

	layout := effectiveLayout(stage.Layout)
	panes, err := s.planStage(p, stage, layout, studyUID, opts.DisplaySetSelectorMap)
	if err != nil {
		return fmt.Errorf("apply %s stage %d: %w", id, stageIndex, err)
	}

	req := grid.LayoutRequest{
		Rows:          layout.Rows,
		Cols:          layout.Cols,
		LayoutType:    layout.LayoutType,
		LayoutOptions: layout.LayoutOptions,
		FindOrCreate: func(pos int, _ string, scratch *grid.Scratch) *models.Pane {
			pane, ok := panes[pos]
			if !ok {
				return nil
			}
			scratch.MarkPlaced(pane.ContentRefs...)
			return &pane
		},
	}
	if !s.grid.SetLayout(ctx, req) {
		return fmt.Errorf("apply %s stage %d: %w", id, stageIndex, grid.ErrInvalidLayout)
	}

	s.activate(id, stageIndex, studyUID)
	logger := logging.WithProtocol(logging.WithStudy(s.logger, studyUID), id, stageIndex)
	logger.Debug().Int("panes", len(panes)).Msg("stage applied")
	return nil
}

func (s *Service) activate(id string, stageIndex int, studyUID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = models.ProtocolState{ProtocolID: id, StageIndex: stageIndex, ActiveStudyUID: studyUID}
}

// studyUID returns the active study, defaulting to the first study present.
func (s *Service) studyUID() string {
	s.mu.RLock()
	uid := s.state.ActiveStudyUID
	s.mu.RUnlock()
	if uid != "" {
		return uid
	}
	if sets := s.catalog.ActiveDisplaySets(); len(sets) > 0 {
		return sets[0].StudyUID
	}
	return ""
}

func (s *Service) studySets(studyUID string) []models.DisplaySet {
	all := s.catalog.ActiveDisplaySets()
	if studyUID == "" {
		return all
	}
	return slices.DeleteFunc(all, func(ds models.DisplaySet) bool { return ds.StudyUID != studyUID })
}

// effectiveLayout widens a layout whose explicit positions outnumber its cells.
func effectiveLayout(l models.StageLayout) models.StageLayout {
	if n := len(l.LayoutOptions); n > 0 && l.Rows*l.Cols < n {
		l.Rows, l.Cols = 1, n
	}
	if l.LayoutType == "" {
		l.LayoutType = models.LayoutTypeGrid
		if len(l.LayoutOptions) > 0 {
			l.LayoutType = models.LayoutTypeCustom
		}
	}
	return l
}

func cellCount(l models.StageLayout) int {
	cells := l.Rows * l.Cols
	if len(l.LayoutOptions) > 0 {
		cells = min(cells, len(l.LayoutOptions))
	}
	return cells
}

// PlannedLayout returns the layout a stage is planned with and the number of
// panes it produces.
func PlannedLayout(stage models.Stage) (models.StageLayout, int) {
	l := effectiveLayout(stage.Layout)
	return l, cellCount(l)
}

// planStage builds the pane for every cell of the stage, keyed by cell index.
func (s *Service) planStage(p models.Protocol, stage models.Stage, layout models.StageLayout, studyUID string, selectorMap map[string]string) (map[int]models.Pane, error) {
	matcher := NewMatcher(p, studyUID, s.studySets(studyUID), selectorMap)
	cells := cellCount(layout)

	panes := make(map[int]models.Pane, cells)
	for pos := range cells {
		var spec models.ViewportSpec
		switch {
		case pos < len(stage.Viewports):
			spec = stage.Viewports[pos]
		case stage.DefaultViewport != nil:
			spec = *stage.DefaultViewport
		}
		pane, err := s.buildPane(matcher, spec)
		if err != nil {
			return nil, fmt.Errorf("viewport %d: %w", pos, err)
		}
		panes[pos] = pane
	}
	return panes, nil
}

// buildPane resolves a viewport spec into pane content and options.
func (s *Service) buildPane(matcher *Matcher, spec models.ViewportSpec) (models.Pane, error) {
	opts, err := s.registry.PaneOptions(spec)
	if err != nil {
		return models.Pane{}, err
	}
	pane := models.Pane{PaneOptions: opts, ContentRefs: []string{}}
	for _, ref := range spec.DisplaySets {
		ds, ok, err := matcher.Resolve(ref)
		if err != nil {
			return models.Pane{}, err
		}
		if !ok || slices.Contains(pane.ContentRefs, ds.UID) {
			continue
		}
		contentOpts := models.CloneOptions(ref.Options)
		if contentOpts == nil {
			contentOpts = make(map[string]any, 2)
		}
		contentOpts[models.ContentOptionSelectorID] = ref.SelectorID
		contentOpts[models.ContentOptionMatchedIndex] = ref.MatchedIndex
		pane.ContentRefs = append(pane.ContentRefs, ds.UID)
		pane.ContentOptions = append(pane.ContentOptions, contentOpts)
		pane.ContentSelectors = append(pane.ContentSelectors, ref.SelectorID)
	}
	return pane, nil
}

// MissingPane builds a pane for content of the active study not listed in
// inDisplay, using the stage's default viewport. It returns nil when all
// matching content is already shown.
func (s *Service) MissingPane(protocolID string, stageIndex int, inDisplay []string) (*models.Pane, error) {
	p, ok := s.Protocol(protocolID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProtocolNotFound, protocolID)
	}
	if stageIndex < 0 || stageIndex >= len(p.Stages) {
		return nil, fmt.Errorf("%w: %d not in [0,%d)", ErrInvalidStageIndex, stageIndex, len(p.Stages))
	}
	spec := models.ViewportSpec{}
	if dv := p.Stages[stageIndex].DefaultViewport; dv != nil {
		spec = *dv
	}
	opts, err := s.registry.PaneOptions(spec)
	if err != nil {
		return nil, err
	}

	studyUID := s.studyUID()
	matcher := NewMatcher(p, studyUID, s.studySets(studyUID), nil)
	candidates := s.studySets(studyUID)
	selectorID := ""
	if len(spec.DisplaySets) > 0 {
		selectorID = spec.DisplaySets[0].SelectorID
		candidates = matcher.Candidates(selectorID)
	}
	for _, ds := range candidates {
		if slices.Contains(inDisplay, ds.UID) {
			continue
		}
		contentOpts := map[string]any{}
		if selectorID != "" {
			contentOpts[models.ContentOptionSelectorID] = selectorID
		}
		return &models.Pane{
			ContentRefs:    []string{ds.UID},
			ContentOptions: []map[string]any{contentOpts},
			PaneOptions:    opts,
		}, nil
	}
	return nil, nil
}
