// Package session wires configuration, storage and the protocol engine into
// one viewer session.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tOgg1/hangview/internal/catalog"
	"github.com/tOgg1/hangview/internal/config"
	"github.com/tOgg1/hangview/internal/db"
	"github.com/tOgg1/hangview/internal/events"
	"github.com/tOgg1/hangview/internal/grid"
	"github.com/tOgg1/hangview/internal/hp"
	"github.com/tOgg1/hangview/internal/logging"
	"github.com/tOgg1/hangview/internal/memory"
	"github.com/tOgg1/hangview/internal/metrics"
	"github.com/tOgg1/hangview/internal/models"
	"github.com/tOgg1/hangview/internal/protocol"
)

// maxNotifications bounds the notifications kept for display.
const maxNotifications = 50

// Session is a running viewer: catalog, grid, protocols and the command
// controller sharing one event bus.
type Session struct {
	cfg *config.Config

	Publisher  *events.InMemoryPublisher
	Catalog    *catalog.Catalog
	Grid       *grid.Store
	Protocols  *protocol.Service
	Runner     *hp.HandlerRunner
	Controller *hp.Controller
	Metrics    *metrics.Recorder
	History    *db.EventRepository

	database *db.DB
	closers  []func()
	logger   zerolog.Logger

	mu            sync.Mutex
	notifications []hp.Notification
}

// Option configures Open.
type Option func(*options)

type options struct {
	toolbar   []hp.Button
	protocols []models.Protocol
}

// WithToolbar sets the toolbar buttons. Without it every loaded protocol
// gets a toggle button.
func WithToolbar(buttons ...hp.Button) Option {
	return func(o *options) {
		o.toolbar = buttons
	}
}

// WithProtocols registers extra definitions after the protocols directory.
func WithProtocols(protocols ...models.Protocol) Option {
	return func(o *options) {
		o.protocols = append(o.protocols, protocols...)
	}
}

// Open builds a session from cfg. Close releases it.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (_ *Session, retErr error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{
		cfg:       cfg,
		Publisher: events.NewInMemoryPublisher(),
		Runner:    hp.NewHandlerRunner(),
		logger:    logging.FromContext(ctx).With().Str("component", "session").Logger(),
	}
	defer func() {
		if retErr != nil {
			_ = s.Close()
		}
	}()

	s.Catalog = catalog.New(catalog.WithPublisher(s.Publisher))
	s.Grid = grid.NewStore(
		grid.WithIDGenerator(grid.NewIDGenerator(cfg.Grid.IDStart, cfg.Grid.IDWrap)),
		grid.WithPublisher(s.Publisher),
	)
	unwatch, err := s.Grid.WatchContentRemoval(s.Publisher)
	if err != nil {
		return nil, fmt.Errorf("watch content removal: %w", err)
	}
	s.closers = append(s.closers, unwatch)

	s.Protocols = protocol.NewService(s.Catalog, s.Grid, protocol.WithPublisher(s.Publisher))
	loaded, err := protocol.LoadDir(cfg.ProtocolsDir())
	if err != nil {
		return nil, err
	}
	if err := s.Protocols.Register(ctx, append(loaded, o.protocols...)...); err != nil {
		return nil, err
	}

	if cfg.Metrics.Enabled {
		s.Metrics = metrics.New()
		detach, err := s.Metrics.Attach(s.Publisher)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, detach)
	}

	mem, err := s.openStorage(ctx)
	if err != nil {
		return nil, err
	}

	buttons := o.toolbar
	if buttons == nil {
		buttons = DefaultToolbar(s.Protocols.Protocols())
	}
	s.Controller = hp.NewController(s.Protocols, s.Grid,
		hp.WithMemory(mem),
		hp.WithRunner(s.Runner),
		hp.WithNotifier(hp.NotifierFunc(s.notify)),
		hp.WithToolbar(hp.NewToolbar(buttons...)),
		hp.WithPublisher(s.Publisher),
		hp.WithReapplyMode(hp.ReapplyMode(cfg.Engine.ReapplyMode)),
		hp.WithDefaultProtocol(cfg.Protocols.DefaultProtocol),
	)
	return s, nil
}

// openStorage opens the database when a feature needs it and returns the
// stage navigation memory.
func (s *Session) openStorage(ctx context.Context) (*memory.Memory, error) {
	if !s.cfg.UsesDatabase() {
		return memory.New(), nil
	}

	database, err := db.Open(ctx, db.Config{Path: s.cfg.DatabasePath(), BusyTimeoutMs: s.cfg.Database.BusyTimeoutMs})
	if err != nil {
		return nil, err
	}
	s.database = database

	if limit := s.cfg.Engine.HistoryLimit; limit > 0 {
		s.History = db.NewEventRepository(database)
		stop, err := s.History.Record(s.Publisher, limit)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, stop)
	}

	if !s.cfg.Engine.PersistMemory {
		return memory.New(), nil
	}
	mem := memory.New(memory.WithBackend(memory.NewSQLiteBackend(db.NewMemoryRepository(database))))
	if err := mem.Load(ctx); err != nil {
		return nil, fmt.Errorf("load stage memory: %w", err)
	}
	return mem, nil
}

// DefaultToolbar returns one toggle button per protocol, skipping the
// default protocol that toggles fall back to.
func DefaultToolbar(protocols []models.Protocol) []hp.Button {
	var out []hp.Button
	for _, p := range protocols {
		if p.ID == models.DefaultProtocolID {
			continue
		}
		out = append(out, hp.Button{
			ID:         "hp-" + p.ID,
			Label:      buttonLabel(p),
			Action:     hp.ActionToggleProtocol,
			ProtocolID: p.ID,
		})
	}
	return out
}

func buttonLabel(p models.Protocol) string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

// LoadStudy adds display sets to the catalog and applies the default
// protocol for studyUID.
func (s *Session) LoadStudy(ctx context.Context, studyUID string, sets []models.DisplaySet) error {
	if err := s.Catalog.Add(ctx, sets...); err != nil {
		return err
	}
	logger := logging.WithStudy(s.logger, studyUID)
	logger.Info().Int("display_sets", len(sets)).Msg("study loaded")
	if !s.Controller.ApplyProtocol(ctx, hp.Params{ProtocolID: s.cfg.Protocols.DefaultProtocol, ActiveStudyUID: studyUID}) {
		return fmt.Errorf("apply %q to study %s: %w", s.cfg.Protocols.DefaultProtocol, studyUID, hp.ErrNoApplicableStage)
	}
	return nil
}

// Run starts the background workers (protocol reloads and the metrics
// endpoint) and blocks until ctx is done or one of them fails.
func (s *Session) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if s.cfg.Protocols.Watch {
		w := protocol.NewWatcher(s.cfg.ProtocolsDir(), 0, s.Protocols.Reload)
		g.Go(func() error { return w.Run(ctx) })
	}
	if s.Metrics != nil && s.cfg.Metrics.ListenAddr != "" {
		g.Go(func() error { return s.Metrics.Serve(ctx, s.cfg.Metrics.ListenAddr) })
	}
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	return g.Wait()
}

// Notifications returns the notifications raised so far, oldest first.
func (s *Session) Notifications() []hp.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]hp.Notification, len(s.notifications))
	copy(out, s.notifications)
	return out
}

func (s *Session) notify(n hp.Notification) {
	s.logger.Info().Str("severity", string(n.Severity)).Str("title", n.Title).Msg(n.Message)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
	if over := len(s.notifications) - maxNotifications; over > 0 {
		s.notifications = s.notifications[over:]
	}
}

// SaveContext records the active study and protocol stage in store.
func (s *Session) SaveContext(store *config.ContextStore) error {
	state := s.Protocols.State()
	saved := &config.Context{}
	if state.ActiveStudyUID != "" {
		saved.SetStudy(state.ActiveStudyUID)
	}
	if state.ProtocolID != "" {
		saved.SetProtocol(state.ProtocolID, state.StageIndex)
	}
	return store.Save(saved)
}

// RestoreContext re-applies the protocol stage saved in store when it
// belongs to studyUID. It reports whether anything was applied.
func (s *Session) RestoreContext(ctx context.Context, store *config.ContextStore, studyUID string) (bool, error) {
	saved, err := store.Load()
	if err != nil {
		return false, err
	}
	if !saved.HasProtocol() || saved.StudyUID != studyUID {
		return false, nil
	}
	if _, ok := s.Protocols.Protocol(saved.ProtocolID); !ok {
		s.logger.Warn().Str("protocol_id", saved.ProtocolID).Msg("saved protocol no longer loaded")
		return false, nil
	}
	return s.Controller.ApplyProtocol(ctx, hp.Params{
		ProtocolID:     saved.ProtocolID,
		StageIndex:     saved.StageIndex,
		ActiveStudyUID: studyUID,
	}), nil
}

// Database returns the open database, or nil.
func (s *Session) Database() *db.DB {
	return s.database
}

// Close stops subscriptions and closes the database.
func (s *Session) Close() error {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
	if s.database == nil {
		return nil
	}
	err := s.database.Close()
	s.database = nil
	if err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
