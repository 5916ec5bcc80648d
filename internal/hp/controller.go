package hp

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tOgg1/hangview/internal/events"
	"github.com/tOgg1/hangview/internal/grid"
	"github.com/tOgg1/hangview/internal/logging"
	"github.com/tOgg1/hangview/internal/memory"
	"github.com/tOgg1/hangview/internal/models"
	"github.com/tOgg1/hangview/internal/protocol"
)

// ReapplyMode decides what applying the already active stage does when no
// study change is requested.
type ReapplyMode string

const (
	// ReapplyReset replans the stage without carried selectors, dropping
	// transient pane changes.
	ReapplyReset ReapplyMode = "reset"
	// ReapplyKeep leaves the grid as it is.
	ReapplyKeep ReapplyMode = "keep"
)

// Controller runs hanging protocol commands. Commands are serialized: one
// issued while another runs is rejected with ErrCommandInFlight. Layout
// changes requested meanwhile are deferred until the running command and its
// callbacks finish.
type Controller struct {
	protocols ProtocolService
	grid      GridStore
	memory    *memory.Memory
	resolver  StageResolver
	runner    Runner
	notifier  Notifier
	toolbar   *Toolbar
	publisher events.Publisher
	logger    zerolog.Logger

	reapply         ReapplyMode
	defaultProtocol string

	mu       sync.Mutex
	running  bool
	deferred []deferredWork
}

type deferredWork struct {
	ctx context.Context
	fn  func(context.Context)
}

// Option configures a Controller.
type Option func(*Controller)

// WithMemory sets the navigation memory.
func WithMemory(m *memory.Memory) Option {
	return func(c *Controller) {
		c.memory = m
	}
}

// WithRunner sets the protocol callback runner.
func WithRunner(r Runner) Option {
	return func(c *Controller) {
		c.runner = r
	}
}

// WithNotifier sets the notification sink.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) {
		c.notifier = n
	}
}

// WithToolbar sets the toolbar kept in sync with the active stage.
func WithToolbar(t *Toolbar) Option {
	return func(c *Controller) {
		c.toolbar = t
	}
}

// WithPublisher publishes command outcomes on p.
func WithPublisher(p events.Publisher) Option {
	return func(c *Controller) {
		c.publisher = p
	}
}

// WithReapplyMode sets how the active stage is reapplied.
func WithReapplyMode(mode ReapplyMode) Option {
	return func(c *Controller) {
		c.reapply = mode
	}
}

// WithDefaultProtocol sets the protocol a toggle falls back to.
func WithDefaultProtocol(id string) Option {
	return func(c *Controller) {
		c.defaultProtocol = id
	}
}

// NewController creates a controller over protocols and the grid.
func NewController(protocols ProtocolService, gridStore GridStore, opts ...Option) *Controller {
	c := &Controller{
		protocols:       protocols,
		grid:            gridStore,
		resolver:        NewStageResolver(protocols),
		logger:          logging.Component("hp"),
		reapply:         ReapplyReset,
		defaultProtocol: models.DefaultProtocolID,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.memory == nil {
		c.memory = memory.New()
	}
	if c.runner == nil {
		c.runner = NewHandlerRunner()
	}
	if c.notifier == nil {
		c.notifier = NotifierFunc(func(n Notification) {
			c.logger.Warn().Str("title", n.Title).Str("severity", string(n.Severity)).Msg(n.Message)
		})
	}
	if c.toolbar == nil {
		c.toolbar = NewToolbar()
	}
	return c
}

// Memory returns the navigation memory.
func (c *Controller) Memory() *memory.Memory {
	return c.memory
}

// Toolbar returns the toolbar.
func (c *Controller) Toolbar() *Toolbar {
	return c.toolbar
}

// ApplyProtocol applies a protocol stage. It restores a remembered grid for
// the stage when there is one and otherwise replans the grid from the stage
// rules. On failure nothing is committed, the user is notified and false is
// returned.
func (c *Controller) ApplyProtocol(ctx context.Context, p Params) bool {
	return c.command("apply_protocol", func() bool {
		return c.applyAndReport(ctx, p, nil)
	})
}

// ToggleProtocol switches to a protocol stage, or back to where the previous
// toggle came from when that stage is already active.
func (c *Controller) ToggleProtocol(ctx context.Context, protocolID string, stageIndex *int) bool {
	return c.command("toggle_protocol", func() bool {
		return c.toggle(ctx, protocolID, stageIndex)
	})
}

// DeltaStage moves to the next enabled stage in direction (+1 or -1). It
// never wraps; running out of stages is notified and changes nothing.
func (c *Controller) DeltaStage(ctx context.Context, direction int) bool {
	return c.command("delta_stage", func() bool {
		return c.deltaStage(ctx, direction)
	})
}

// PressButton issues the protocol command bound to a toolbar button.
func (c *Controller) PressButton(ctx context.Context, id string) bool {
	b, ok := c.toolbar.Find(id)
	if !ok {
		c.logger.Warn().Str("button", id).Msg("unknown toolbar button")
		return false
	}
	switch b.Action {
	case ActionApplyProtocol:
		return c.ApplyProtocol(ctx, b.Params())
	case ActionToggleProtocol:
		return c.ToggleProtocol(ctx, b.ProtocolID, b.StageIndex)
	default:
		c.logger.Warn().Str("button", id).Msg("toolbar button has no protocol action")
		return false
	}
}

// SetLayoutShape changes the grid to rows x cols, keeping panes at their
// positions where possible. The active stage's layout change callbacks may
// veto the change with ErrLayoutRejected. While another command runs the
// change is deferred until that command finishes.
func (c *Controller) SetLayoutShape(ctx context.Context, rows, cols int) error {
	if rows <= 0 || cols <= 0 {
		c.logger.Warn().Int("rows", rows).Int("cols", cols).Msg("invalid layout shape ignored")
		return fmt.Errorf("%w: %dx%d", grid.ErrInvalidLayout, rows, cols)
	}

	if active, ok := c.protocols.ActiveProtocol(); ok {
		if callbacks := active.Protocol.Callbacks.OnLayoutChange; len(callbacks) > 0 {
			cmds := commandsFor(KindLayoutChange, active.Protocol.ID, callbacks)
			result, err := c.runner.Run(ctx, cmds, map[string]any{"rows": rows, "cols": cols})
			if Vetoed(result, err) {
				c.logger.Info().Int("rows", rows).Int("cols", cols).Str("protocol_id", active.Protocol.ID).Msg("layout change vetoed")
				c.publish(ctx, models.EventTypeLayoutRejected, models.EntityTypeProtocol, active.Protocol.ID, layoutPayload(rows, cols))
				return ErrLayoutRejected
			}
			if err != nil {
				c.logger.Warn().Err(err).Msg("layout change callback failed")
			}
		}
	}

	work := func(ctx context.Context) { c.completeLayout(ctx, rows, cols) }

	c.mu.Lock()
	if c.running {
		c.deferred = append(c.deferred, deferredWork{ctx: context.WithoutCancel(ctx), fn: work})
		c.mu.Unlock()
		c.logger.Debug().Int("rows", rows).Int("cols", cols).Msg("layout change deferred")
		c.publish(ctx, models.EventTypeLayoutDeferred, models.EntityTypeGrid, "grid", layoutPayload(rows, cols))
		return nil
	}
	c.running = true
	c.mu.Unlock()

	defer c.end()
	work(ctx)
	return nil
}

func layoutPayload(rows, cols int) map[string]int {
	return map[string]int{"rows": rows, "cols": cols}
}

// command runs fn unless another command is in flight, then drains
// deferred work.
func (c *Controller) command(name string, fn func() bool) bool {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		c.logger.Warn().Err(ErrCommandInFlight).Str("command", name).Msg("command rejected")
		return false
	}
	c.running = true
	c.mu.Unlock()

	defer c.end()
	return fn()
}

// end drains deferred work, including work queued while draining, and then
// accepts commands again.
func (c *Controller) end() {
	for {
		c.mu.Lock()
		if len(c.deferred) == 0 {
			c.running = false
			c.mu.Unlock()
			return
		}
		work := c.deferred[0]
		c.deferred = c.deferred[1:]
		c.mu.Unlock()
		work.fn(work.ctx)
	}
}

// applyAndReport applies p and reports failures to the user. A non-nil
// snapshot is restored as the grid of the target stage.
func (c *Controller) applyAndReport(ctx context.Context, p Params, snapshot *models.GridState) bool {
	target, err := c.apply(ctx, p, snapshot)
	if err != nil {
		c.logger.Error().Err(err).
			Str("protocol_id", p.ProtocolID).
			Str("stage_id", p.StageID).
			Msg("hanging protocol not applied")
		c.notifier.Notify(Notification{Title: TitleApplyFailed, Message: messageApplyFailed, Severity: SeverityError})
		protocolID := cmp.Or(target.ProtocolID, p.ProtocolID)
		c.publish(ctx, models.EventTypeProtocolFailed, models.EntityTypeProtocol, protocolID, models.ProtocolAppliedPayload{
			ProtocolID: protocolID,
			StageIndex: target.StageIndex,
			StudyUID:   p.ActiveStudyUID,
			Error:      err.Error(),
		})
		return false
	}
	return true
}

func (c *Controller) apply(ctx context.Context, p Params, snapshot *models.GridState) (Target, error) {
	before := c.protocols.State()
	oldActive, hadActive := c.protocols.ActiveProtocol()
	carry := captureView(c.grid.State(), oldActive, hadActive, c.memory)

	target, err := c.resolver.Resolve(p, before, carry.stage(c.memory))
	if err != nil {
		c.syncToolbar()
		return Target{ProtocolID: p.ProtocolID}, err
	}

	if p.ActiveStudyUID != "" {
		c.protocols.SetActiveStudyUID(p.ActiveStudyUID)
	}
	study := c.protocols.State().ActiveStudyUID
	key := memory.StorageKey(study, target.ProtocolID, target.StageIndex)
	remembered, restore := carry.grid(c.memory, key)
	if snapshot != nil {
		remembered, restore = snapshot.Clone(), true
	}
	stageIndex := target.StageIndex
	reapply := target.ProtocolID == before.ProtocolID && target.StageIndex == before.StageIndex && p.ActiveStudyUID == ""
	logger := logging.WithProtocol(logging.WithStudy(c.logger, study), target.ProtocolID, target.StageIndex)

	switch {
	case reapply && c.reapply == ReapplyKeep:
		logger.Debug().Msg("stage already active, grid kept")
	case reapply:
		err = c.protocols.SetProtocol(ctx, target.ProtocolID, protocol.SetOptions{StageIndex: &stageIndex})
	default:
		err = c.protocols.SetProtocol(ctx, target.ProtocolID, protocol.SetOptions{
			StageIndex:            &stageIndex,
			DisplaySetSelectorMap: carry.selectors,
			Restore:               restore,
		})
		if err == nil && restore && !c.grid.Replace(ctx, grid.PartialFromState(remembered)) {
			err = fmt.Errorf("%w: %s", ErrGridRejected, key)
		}
	}
	if err != nil {
		c.rollback(ctx, before)
		return target, err
	}

	c.memory.Store(ctx, carry.update)
	active, ok := c.protocols.ActiveProtocol()
	c.toolbar.Sync(active, ok)
	if target.ProtocolID != before.ProtocolID {
		if err := c.transition(ctx, oldActive, hadActive, active, ok); err != nil {
			logger.Warn().Err(err).Msg("protocol callbacks failed")
		}
	}

	logger.Info().Bool("restored", restore).Bool("reapplied", reapply).Msg("hanging protocol applied")
	c.publish(ctx, models.EventTypeProtocolApplied, models.EntityTypeProtocol, target.ProtocolID, models.ProtocolAppliedPayload{
		ProtocolID: target.ProtocolID,
		StageIndex: target.StageIndex,
		StudyUID:   study,
		Restored:   restore,
	})
	return target, nil
}

// rollback restores the active protocol state captured before a failed
// application and resyncs the toolbar.
func (c *Controller) rollback(ctx context.Context, before models.ProtocolState) {
	if c.protocols.State() != before {
		// The study is set first so the restored stage activates under it.
		c.protocols.SetActiveStudyUID(before.ActiveStudyUID)
		idx := before.StageIndex
		if err := c.protocols.SetProtocol(ctx, before.ProtocolID, protocol.SetOptions{StageIndex: &idx, Restore: true}); err != nil {
			c.logger.Error().Err(err).Str("protocol_id", before.ProtocolID).Msg("rollback failed")
		}
		c.protocols.SetActiveStudyUID(before.ActiveStudyUID)
	}
	c.syncToolbar()
}

func (c *Controller) syncToolbar() {
	active, ok := c.protocols.ActiveProtocol()
	c.toolbar.Sync(active, ok)
}

// transition runs the old protocol's exit callbacks and then the new one's
// enter callbacks. Both run even if the first fails.
func (c *Controller) transition(ctx context.Context, from protocol.Active, hadFrom bool, to protocol.Active, hasTo bool) error {
	var errs []error
	if hadFrom && len(from.Protocol.Callbacks.OnProtocolExit) > 0 {
		cmds := commandsFor(KindProtocolExit, from.Protocol.ID, from.Protocol.Callbacks.OnProtocolExit)
		if _, err := c.runner.Run(ctx, cmds, map[string]any{"protocol_id": from.Protocol.ID}); err != nil {
			errs = append(errs, err)
		}
	}
	if hasTo && len(to.Protocol.Callbacks.OnProtocolEnter) > 0 {
		cmds := commandsFor(KindProtocolEnter, to.Protocol.ID, to.Protocol.Callbacks.OnProtocolEnter)
		if _, err := c.runner.Run(ctx, cmds, map[string]any{"protocol_id": to.Protocol.ID}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Controller) toggle(ctx context.Context, protocolID string, stageIndex *int) bool {
	active, ok := c.protocols.ActiveProtocol()
	idx := 0
	if stageIndex != nil {
		idx = *stageIndex
	}
	key := memory.StorageKey(active.StudyUID, protocolID, idx)

	if ok && active.Protocol.ID == protocolID && (stageIndex == nil || *stageIndex == active.StageIndex) {
		src, found := c.memory.Toggle(key)
		if !found {
			src = memory.ToggleSource{ProtocolID: c.defaultProtocol}
		}
		return c.applyAndReport(ctx, Params{ProtocolID: src.ProtocolID, StageIndex: src.StageIndex}, src.Grid)
	}

	if ok {
		current := active.StageIndex
		snapshot := c.grid.State().Clone()
		c.memory.Store(ctx, memory.Update{Toggles: map[string]memory.ToggleSource{
			key: {ProtocolID: active.Protocol.ID, StageIndex: &current, Grid: &snapshot},
		}})
	}
	return c.applyAndReport(ctx, Params{ProtocolID: protocolID, StageIndex: stageIndex}, nil)
}

func (c *Controller) deltaStage(ctx context.Context, direction int) bool {
	if direction != 1 && direction != -1 {
		c.logger.Warn().Int("direction", direction).Msg("stage direction must be +1 or -1")
		return false
	}
	state := c.protocols.State()
	p, ok := c.protocols.Protocol(state.ProtocolID)
	if !ok {
		c.logger.Warn().Str("protocol_id", state.ProtocolID).Msg("no active protocol")
		return false
	}
	for idx := state.StageIndex + direction; idx >= 0 && idx < len(p.Stages); idx += direction {
		if p.Stages[idx].Enabled() {
			return c.applyAndReport(ctx, Params{ProtocolID: p.ID, StageIndex: &idx}, nil)
		}
	}

	c.logger.Info().Err(ErrNoApplicableStage).Str("protocol_id", p.ID).Int("stage_index", state.StageIndex).Int("direction", direction).Msg("stage navigation exhausted")
	c.notifier.Notify(Notification{Title: TitleChangeStage, Message: messageNoStages, Severity: SeverityError})
	c.publish(ctx, models.EventTypeStageExhausted, models.EntityTypeProtocol, p.ID, models.ProtocolAppliedPayload{ProtocolID: p.ID, StageIndex: state.StageIndex})
	return false
}

// completeLayout replans the grid to rows x cols from the panes known by
// position and records the positions in memory.
func (c *Controller) completeLayout(ctx context.Context, rows, cols int) {
	state := c.grid.State()
	remembered, _ := c.memory.Positions()
	byPosition, inDisplay := panesByPosition(state, remembered, rows, cols)

	var missing MissingFunc
	if ps := c.protocols.State(); ps.ProtocolID != "" {
		missing = func(shown []string) *models.Pane {
			pane, err := c.protocols.MissingPane(ps.ProtocolID, ps.StageIndex, shown)
			if err != nil {
				c.logger.Warn().Err(err).Msg("no pane for missing content")
				return nil
			}
			return pane
		}
	}
	strategy := newPositionStrategy(state, byPosition, inDisplay, rows, cols, missing, c.logger)

	if !c.grid.SetLayout(ctx, grid.LayoutRequest{
		Rows:         rows,
		Cols:         cols,
		LayoutType:   models.LayoutTypeGrid,
		FindOrCreate: strategy.FindOrCreate,
	}) {
		c.logger.Warn().Int("rows", rows).Int("cols", cols).Msg("layout change not applied")
		return
	}
	c.memory.Store(ctx, positionUpdate(byPosition, inDisplay))
	c.logger.Debug().Int("rows", rows).Int("cols", cols).Msg("layout changed")
}

func (c *Controller) publish(ctx context.Context, eventType models.EventType, entityType models.EntityType, entityID string, payload any) {
	if c.publisher == nil {
		return
	}
	c.publisher.Publish(ctx, events.NewEvent(eventType, entityType, entityID, payload))
}
