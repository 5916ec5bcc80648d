package protocol

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/tOgg1/hangview/internal/models"
)

var (
	// ErrUnknownViewportType is returned when no factory is registered for a type.
	ErrUnknownViewportType = errors.New("unknown viewport type")

	// ErrViewportTypeExists is returned when registering a type twice.
	ErrViewportTypeExists = errors.New("viewport type already registered")
)

// DefaultViewportType is used when a viewport spec names no type.
const DefaultViewportType = "stack"

// ViewportFactory produces the default pane options for a viewport type.
// Options from the protocol are layered over the result.
type ViewportFactory func(spec models.ViewportSpec) map[string]any

// Registry maps viewport type keys to factories. The engine only relies on
// the lookup contract, so hosts can add their own types.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ViewportFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ViewportFactory)}
}

// DefaultRegistry returns a registry with the built-in viewport types.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register("stack", toolGroup("default"))
	_ = r.Register("volume", func(spec models.ViewportSpec) map[string]any {
		opts := toolGroup("mpr")(spec)
		opts["orientation"] = "axial"
		return opts
	})
	_ = r.Register("sr", toolGroup("SRToolGroup"))
	_ = r.Register("ecg", toolGroup("ecg"))
	_ = r.Register("video", toolGroup("default"))
	return r
}

func toolGroup(id string) ViewportFactory {
	return func(models.ViewportSpec) map[string]any {
		return map[string]any{models.OptionToolGroupID: id}
	}
}

// Register adds a factory under key.
func (r *Registry) Register(key string, factory ViewportFactory) error {
	if key == "" || factory == nil {
		return fmt.Errorf("register viewport type %q: key and factory are required", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[key]; ok {
		return fmt.Errorf("%w: %s", ErrViewportTypeExists, key)
	}
	r.factories[key] = factory
	return nil
}

// Lookup returns the factory for key.
func (r *Registry) Lookup(key string) (ViewportFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownViewportType, key)
	}
	return f, nil
}

// Keys lists registered types, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}

// PaneOptions builds the pane options for spec: factory defaults, then the
// spec's own viewport options, with the resolved type recorded.
func (r *Registry) PaneOptions(spec models.ViewportSpec) (map[string]any, error) {
	viewportType := DefaultViewportType
	if v, ok := spec.ViewportOptions[models.OptionViewportType].(string); ok && v != "" {
		viewportType = v
	}
	factory, err := r.Lookup(viewportType)
	if err != nil {
		return nil, err
	}
	opts := models.MergeOptions(factory(spec), spec.ViewportOptions)
	opts[models.OptionViewportType] = viewportType
	return opts, nil
}
