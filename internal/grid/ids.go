package grid

import (
	"fmt"
	"sync"
)

// Default pane id counter bounds.
const (
	DefaultIDStart = 5000
	DefaultIDWrap  = 100000
)

// PaneIDPrefix prefixes every minted pane id.
const PaneIDPrefix = "viewport-"

// IDGenerator mints pane ids from a counter that wraps at a fixed modulus.
// Each Store owns one; it is safe for concurrent use.
type IDGenerator struct {
	mu   sync.Mutex
	next int
	wrap int
}

// NewIDGenerator creates a generator starting at start and wrapping modulo wrap.
// Non-positive wrap falls back to DefaultIDWrap.
func NewIDGenerator(start, wrap int) *IDGenerator {
	if wrap <= 0 {
		wrap = DefaultIDWrap
	}
	if start < 0 {
		start = 0
	}
	return &IDGenerator{next: start % wrap, wrap: wrap}
}

// Next returns the next id and advances the counter.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := fmt.Sprintf("%s%d", PaneIDPrefix, g.next)
	g.next = (g.next + 1) % g.wrap
	return id
}

// Peek returns the counter value the next id will use.
func (g *IDGenerator) Peek() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.next
}
