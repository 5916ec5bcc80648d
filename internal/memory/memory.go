// Package memory remembers protocol navigation per study: the last stage used
// for each protocol, custom grids to restore, toggle sources, and the panes
// shown at each grid position.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tOgg1/hangview/internal/logging"
	"github.com/tOgg1/hangview/internal/models"
)

// Bucket names used when persisting.
const (
	BucketGrids     = "grids"
	BucketStages    = "stages"
	BucketSelectors = "selectors"
	BucketToggles   = "toggles"
	BucketPositions = "positions"
	BucketInDisplay = "in_display"
)

// StorageKey is the key of a remembered grid or toggle source.
func StorageKey(studyUID, protocolID string, stageIndex int) string {
	return fmt.Sprintf("%s:%s:%d", studyUID, protocolID, stageIndex)
}

// StageKey is the key of the last stage used for a protocol in a study.
func StageKey(studyUID, protocolID string) string {
	return studyUID + ":" + protocolID
}

// StageRecord is the last stage used for a protocol.
type StageRecord struct {
	StudyUID   string `json:"study_uid"`
	ProtocolID string `json:"protocol_id"`
	StageIndex int    `json:"stage_index"`
}

// ToggleSource is the protocol stage a toggle returns to, with the grid that
// was on screen when the toggle left it.
type ToggleSource struct {
	ProtocolID string            `json:"protocol_id"`
	StageIndex *int              `json:"stage_index,omitempty"`
	Grid       *models.GridState `json:"grid,omitempty"`
}

// Snapshot is the full memory content.
type Snapshot struct {
	Grids     map[string]models.GridState `json:"grids"`
	Stages    map[string]StageRecord      `json:"stages"`
	Selectors map[string]string           `json:"selectors"`
	Toggles   map[string]ToggleSource     `json:"toggles"`
	Positions map[string]models.Pane      `json:"positions"`
	InDisplay []string                    `json:"in_display"`
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() Snapshot {
	return Snapshot{
		Grids:     make(map[string]models.GridState),
		Stages:    make(map[string]StageRecord),
		Selectors: make(map[string]string),
		Toggles:   make(map[string]ToggleSource),
		Positions: make(map[string]models.Pane),
	}
}

func (s Snapshot) clone() Snapshot {
	out := Snapshot{
		Grids:     make(map[string]models.GridState, len(s.Grids)),
		Stages:    maps.Clone(s.Stages),
		Selectors: maps.Clone(s.Selectors),
		Toggles:   make(map[string]ToggleSource, len(s.Toggles)),
		Positions: make(map[string]models.Pane, len(s.Positions)),
		InDisplay: slices.Clone(s.InDisplay),
	}
	for k, g := range s.Grids {
		out.Grids[k] = g.Clone()
	}
	for k, t := range s.Toggles {
		out.Toggles[k] = t.clone()
	}
	for k, p := range s.Positions {
		out.Positions[k] = p.Clone()
	}
	if out.Stages == nil {
		out.Stages = make(map[string]StageRecord)
	}
	if out.Selectors == nil {
		out.Selectors = make(map[string]string)
	}
	return out
}

func (t ToggleSource) clone() ToggleSource {
	if t.StageIndex != nil {
		idx := *t.StageIndex
		t.StageIndex = &idx
	}
	if t.Grid != nil {
		g := t.Grid.Clone()
		t.Grid = &g
	}
	return t
}

// Update is a batch of changes. Grids, Stages, Selectors and Toggles are
// merged entry by entry. Positions and InDisplay replace the stored values
// when Positions is non-nil.
type Update struct {
	Grids     map[string]models.GridState
	Stages    map[string]StageRecord
	Selectors map[string]string
	Toggles   map[string]ToggleSource
	Positions map[string]models.Pane
	InDisplay []string
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return len(u.Grids) == 0 && len(u.Stages) == 0 && len(u.Selectors) == 0 &&
		len(u.Toggles) == 0 && u.Positions == nil
}

// Backend persists memory between runs.
type Backend interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot, buckets []string) error
}

// Memory is the process-lifetime navigation memory. Entries are never
// evicted.
type Memory struct {
	mu      sync.RWMutex
	snap    Snapshot
	backend Backend
	logger  zerolog.Logger
}

// Option configures a Memory.
type Option func(*Memory)

// WithBackend persists every update to b.
func WithBackend(b Backend) Option {
	return func(m *Memory) {
		m.backend = b
	}
}

// New creates an empty memory.
func New(opts ...Option) *Memory {
	m := &Memory{snap: NewSnapshot(), logger: logging.Component("memory")}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load replaces the memory content with what the backend holds.
func (m *Memory) Load(ctx context.Context) error {
	if m.backend == nil {
		return nil
	}
	snap, err := m.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("load memory: %w", err)
	}
	m.mu.Lock()
	m.snap = snap.clone()
	m.mu.Unlock()
	m.logger.Debug().Int("grids", len(snap.Grids)).Int("stages", len(snap.Stages)).Msg("memory loaded")
	return nil
}

// Snapshot returns a copy of the memory content.
func (m *Memory) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.clone()
}

// Grid returns the remembered grid for a storage key.
func (m *Memory) Grid(key string) (models.GridState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.snap.Grids[key]
	if !ok {
		return models.GridState{}, false
	}
	return g.Clone(), true
}

// Stage returns the last stage record for a stage key.
func (m *Memory) Stage(key string) (StageRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.snap.Stages[key]
	return r, ok
}

// Toggle returns the toggle source for a storage key.
func (m *Memory) Toggle(key string) (ToggleSource, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.snap.Toggles[key]
	return t.clone(), ok
}

// Selectors returns a copy of the display set selector map.
func (m *Memory) Selectors() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.snap.Selectors)
}

// Positions returns the panes last shown by position id and the content
// that was on screen.
func (m *Memory) Positions() (map[string]models.Pane, []string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]models.Pane, len(m.snap.Positions))
	for k, p := range m.snap.Positions {
		out[k] = p.Clone()
	}
	return out, slices.Clone(m.snap.InDisplay)
}

// Store applies u. Persistence failures are logged; the in-process memory
// stays authoritative.
func (m *Memory) Store(ctx context.Context, u Update) {
	if u.Empty() {
		return
	}

	m.mu.Lock()
	var buckets []string
	if len(u.Grids) > 0 {
		for k, g := range u.Grids {
			m.snap.Grids[k] = g.Clone()
		}
		buckets = append(buckets, BucketGrids)
	}
	if len(u.Stages) > 0 {
		maps.Copy(m.snap.Stages, u.Stages)
		buckets = append(buckets, BucketStages)
	}
	if len(u.Selectors) > 0 {
		maps.Copy(m.snap.Selectors, u.Selectors)
		buckets = append(buckets, BucketSelectors)
	}
	if len(u.Toggles) > 0 {
		for k, t := range u.Toggles {
			m.snap.Toggles[k] = t.clone()
		}
		buckets = append(buckets, BucketToggles)
	}
	if u.Positions != nil {
		m.snap.Positions = make(map[string]models.Pane, len(u.Positions))
		for k, p := range u.Positions {
			m.snap.Positions[k] = p.Clone()
		}
		m.snap.InDisplay = slices.Clone(u.InDisplay)
		buckets = append(buckets, BucketPositions, BucketInDisplay)
	}
	snap := m.snap.clone()
	m.mu.Unlock()

	if m.backend == nil {
		return
	}
	if err := m.backend.Save(ctx, snap, buckets); err != nil {
		m.logger.Warn().Err(err).Strs("buckets", buckets).Msg("failed to persist memory")
	}
}

// Clear forgets everything, including the persisted copy.
func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.snap = NewSnapshot()
	snap := m.snap.clone()
	m.mu.Unlock()
	if m.backend == nil {
		return nil
	}
	return m.backend.Save(ctx, snap, []string{
		BucketGrids, BucketStages, BucketSelectors, BucketToggles, BucketPositions, BucketInDisplay,
	})
}
