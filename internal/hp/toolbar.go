package hp

import (
	"slices"
	"sync"

	"github.com/tOgg1/hangview/internal/protocol"
)

// ButtonAction is the protocol command a toolbar button issues.
type ButtonAction string

const (
	ActionApplyProtocol  ButtonAction = "apply_protocol"
	ActionToggleProtocol ButtonAction = "toggle_protocol"
)

// Button is a toolbar button, possibly grouping nested items.
type Button struct {
	ID         string       `yaml:"id"`
	Label      string       `yaml:"label,omitempty"`
	Action     ButtonAction `yaml:"action,omitempty"`
	ProtocolID string       `yaml:"protocol,omitempty"`
	StageID    string       `yaml:"stage_id,omitempty"`
	StageIndex *int         `yaml:"stage_index,omitempty"`
	Items      []Button     `yaml:"items,omitempty"`
}

// Params returns the command parameters the button applies.
func (b Button) Params() Params {
	return Params{ProtocolID: b.ProtocolID, StageID: b.StageID, StageIndex: b.StageIndex}
}

// matches reports whether the button's protocol command targets the active
// stage. Unset fields match anything.
func (b Button) matches(active protocol.Active) bool {
	return (b.ProtocolID == "" || b.ProtocolID == active.Protocol.ID) &&
		(b.StageIndex == nil || *b.StageIndex == active.StageIndex) &&
		(b.StageID == "" || b.StageID == active.Stage.ID)
}

// Toolbar tracks which protocol buttons are lit.
type Toolbar struct {
	mu      sync.RWMutex
	buttons []Button
	active  map[string]bool
}

// NewToolbar creates a toolbar holding buttons.
func NewToolbar(buttons ...Button) *Toolbar {
	return &Toolbar{buttons: buttons, active: make(map[string]bool)}
}

// Buttons returns the top-level buttons.
func (t *Toolbar) Buttons() []Button {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.buttons)
}

// Find returns the button with id at any depth.
func (t *Toolbar) Find(id string) (Button, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return findButton(t.buttons, id)
}

func findButton(buttons []Button, id string) (Button, bool) {
	for _, b := range buttons {
		if b.ID == id {
			return b, true
		}
		if found, ok := findButton(b.Items, id); ok {
			return found, true
		}
	}
	return Button{}, false
}

// IsActive reports whether the button with id is lit.
func (t *Toolbar) IsActive(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active[id]
}

// ActiveIDs returns the lit button ids, sorted.
func (t *Toolbar) ActiveIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []string
	for id, on := range t.active {
		if on {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// Sync lights every protocol button that targets the active stage and
// dims the rest. Buttons without an id or a protocol action are left alone.
func (t *Toolbar) Sync(active protocol.Active, hasActive bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var walk func([]Button)
	walk = func(buttons []Button) {
		for _, b := range buttons {
			if b.ID == "" {
				continue
			}
			walk(b.Items)
			if b.Action != ActionApplyProtocol && b.Action != ActionToggleProtocol {
				continue
			}
			t.active[b.ID] = hasActive && b.matches(active)
		}
	}
	walk(t.buttons)
}
