package grid

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tOgg1/hangview/internal/events"
	"github.com/tOgg1/hangview/internal/logging"
	"github.com/tOgg1/hangview/internal/models"
)

// Change reasons carried on grid events.
const (
	ReasonActivePane     = "active_pane"
	ReasonContent        = "content"
	ReasonLayout         = "layout"
	ReasonReset          = "reset"
	ReasonReplace        = "replace"
	ReasonContentRemoved = "content_removed"
)

// Store holds the current grid state. Reads are concurrent; writes are
// serialized and each commits one whole state.
type Store struct {
	mu    sync.RWMutex
	state models.GridState

	// writeMu serializes transitions without blocking readers while a
	// find-or-create strategy runs.
	writeMu sync.Mutex

	reducer   *Reducer
	ids       *IDGenerator
	publisher events.Publisher
	logger    zerolog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithIDGenerator sets the pane id generator.
func WithIDGenerator(ids *IDGenerator) StoreOption {
	return func(s *Store) {
		s.ids = ids
	}
}

// WithPublisher publishes grid events on every commit.
func WithPublisher(p events.Publisher) StoreOption {
	return func(s *Store) {
		s.publisher = p
	}
}

// WithLogger overrides the store logger.
func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a store holding the initial state.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		logger: logging.Component("grid"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ids == nil {
		s.ids = NewIDGenerator(DefaultIDStart, DefaultIDWrap)
	}
	s.reducer = NewReducer(s.ids)
	s.state = s.reducer.Reset()
	return s
}

// State returns a copy of the current state.
func (s *Store) State() models.GridState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// IDs returns the store's id generator.
func (s *Store) IDs() *IDGenerator {
	return s.ids
}

// SetActivePane makes the pane at index active. Out of range is a logged no-op.
func (s *Store) SetActivePane(ctx context.Context, index int) bool {
	return s.transition(ctx, ReasonActivePane, func(cur models.GridState) (models.GridState, error) {
		return s.reducer.SetActivePane(cur, index)
	})
}

// SetContentForPanes applies a batch of pane content updates.
func (s *Store) SetContentForPanes(ctx context.Context, updates []PaneUpdate) bool {
	return s.transition(ctx, ReasonContent, func(cur models.GridState) (models.GridState, error) {
		return s.reducer.SetContentForPanes(cur, updates)
	})
}

// SetLayout replans the grid. The request's strategy runs without the read
// lock held, so it may call State, but it must not write to the store.
func (s *Store) SetLayout(ctx context.Context, req LayoutRequest) bool {
	return s.transition(ctx, ReasonLayout, func(cur models.GridState) (models.GridState, error) {
		return s.reducer.SetLayout(cur, req)
	})
}

// Reset returns the grid to its initial state.
func (s *Store) Reset(ctx context.Context) {
	s.transition(ctx, ReasonReset, func(models.GridState) (models.GridState, error) {
		return s.reducer.Reset(), nil
	})
}

// Replace merges a partial state without identity resolution.
func (s *Store) Replace(ctx context.Context, p Partial) bool {
	return s.transition(ctx, ReasonReplace, func(cur models.GridState) (models.GridState, error) {
		return s.reducer.Replace(cur, p)
	})
}

// RemoveContent drops content refs from all panes, clearing panes left empty.
func (s *Store) RemoveContent(ctx context.Context, uids []string) bool {
	return s.transition(ctx, ReasonContentRemoved, func(cur models.GridState) (models.GridState, error) {
		out, changed, err := s.reducer.RemoveContent(cur, uids)
		if err != nil {
			return cur, err
		}
		if !changed {
			return cur, errUnchanged
		}
		return out, nil
	})
}

// WatchContentRemoval subscribes the store to content.removed events on pub.
// The returned function cancels the subscription.
func (s *Store) WatchContentRemoval(pub events.Publisher) (func(), error) {
	id := "grid-content-removal-" + uuid.NewString()
	filter := events.Filter{EventTypes: []models.EventType{models.EventTypeContentRemoved}}
	err := pub.Subscribe(id, filter, func(event *models.Event) {
		payload, ok := event.Payload.(models.ContentRemovedPayload)
		if !ok {
			s.logger.Warn().Str("event_id", event.ID).Msg("content.removed event without payload")
			return
		}
		s.RemoveContent(context.Background(), payload.DisplaySetUIDs)
	})
	if err != nil {
		return nil, err
	}
	return func() { _ = pub.Unsubscribe(id) }, nil
}

// errUnchanged marks a transition that had nothing to do.
var errUnchanged = errors.New("grid unchanged")

func (s *Store) transition(ctx context.Context, reason string, fn func(models.GridState) (models.GridState, error)) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.State()
	next, err := fn(cur)
	if errors.Is(err, errUnchanged) {
		return false
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("reason", reason).Msg("grid transition ignored")
		return false
	}

	s.mu.Lock()
	s.state = next
	s.mu.Unlock()

	s.logger.Debug().
		Str("reason", reason).
		Str("layout", next.Layout.Label()).
		Int("panes", len(next.Panes)).
		Int("active", next.ActivePaneIndex).
		Msg("grid committed")

	s.publish(ctx, reason, next)
	return true
}

func (s *Store) publish(ctx context.Context, reason string, state models.GridState) {
	if s.publisher == nil {
		return
	}
	eventType := models.EventTypeGridChanged
	switch reason {
	case ReasonLayout:
		eventType = models.EventTypeGridLayoutChanged
	case ReasonReset:
		eventType = models.EventTypeGridReset
	}
	s.publisher.Publish(ctx, events.NewEvent(eventType, models.EntityTypeGrid, "grid",
		models.GridChangedPayload{State: state.Clone(), Reason: reason}))
}
