package models

import (
	"fmt"
	"maps"
	"slices"
)

// LayoutType describes how pane geometry was produced.
type LayoutType string

const (
	LayoutTypeGrid   LayoutType = "grid"
	LayoutTypeCustom LayoutType = "custom"
)

// Pane option keys the engine maintains itself.
const (
	OptionViewportID     = "viewportId"
	OptionPresentationID = "presentationId"
	OptionViewportType   = "viewportType"
	OptionToolGroupID    = "toolGroupId"
)

// Content option keys used to carry selector provenance.
const (
	ContentOptionSelectorID   = "id"
	ContentOptionMatchedIndex = "matchedDisplaySetsIndex"
)

// Layout is the declared shape of the grid.
type Layout struct {
	Rows       int        `json:"rows" yaml:"rows"`
	Cols       int        `json:"cols" yaml:"cols"`
	LayoutType LayoutType `json:"layout_type" yaml:"layout_type"`
}

// Capacity returns rows*cols, or zero for a degenerate layout.
func (l Layout) Capacity() int {
	if l.Rows <= 0 || l.Cols <= 0 {
		return 0
	}
	return l.Rows * l.Cols
}

// Label renders the layout as "RxC".
func (l Layout) Label() string {
	return fmt.Sprintf("%dx%d", l.Rows, l.Cols)
}

// Position is a fractional rectangle inside the display area.
type Position struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Center returns the midpoint of the rectangle.
func (p Position) Center() (float64, float64) {
	return p.X + p.Width/2, p.Y + p.Height/2
}

// Pane is one rectangular region of the grid.
type Pane struct {
	// ID is stable across transitions while content and size are unchanged.
	ID string `json:"id"`

	// ContentRefs are the display set UIDs bound to the pane, in order.
	ContentRefs []string `json:"content_refs"`

	// PaneOptions holds rendering and tool configuration.
	PaneOptions map[string]any `json:"pane_options,omitempty"`

	// ContentOptions is index-aligned with ContentRefs.
	ContentOptions []map[string]any `json:"content_options,omitempty"`

	// ContentSelectors records which protocol selectors produced the content.
	ContentSelectors []string `json:"content_selectors,omitempty"`

	Position   Position `json:"position"`
	PositionID string   `json:"position_id,omitempty"`

	// Label is derived from the pane index.
	Label string `json:"label,omitempty"`
}

// Option returns a string pane option, or "".
func (p Pane) Option(key string) string {
	if p.PaneOptions == nil {
		return ""
	}
	if v, ok := p.PaneOptions[key].(string); ok {
		return v
	}
	return ""
}

// PresentationID returns the presentation id recorded in the pane options.
func (p Pane) PresentationID() string {
	return p.Option(OptionPresentationID)
}

// IsEmpty reports whether no content is bound to the pane.
func (p Pane) IsEmpty() bool {
	return len(p.ContentRefs) == 0
}

// Clone returns a deep copy of the pane.
func (p Pane) Clone() Pane {
	out := p
	out.ContentRefs = slices.Clone(p.ContentRefs)
	out.ContentSelectors = slices.Clone(p.ContentSelectors)
	out.PaneOptions = CloneOptions(p.PaneOptions)
	if p.ContentOptions != nil {
		out.ContentOptions = make([]map[string]any, len(p.ContentOptions))
		for i, opts := range p.ContentOptions {
			out.ContentOptions[i] = CloneOptions(opts)
		}
	}
	return out
}

// GridState is the complete state of the viewport grid.
type GridState struct {
	ActivePaneIndex int    `json:"active_pane_index"`
	Layout          Layout `json:"layout"`
	Panes           []Pane `json:"panes"`
}

// Clone returns a deep copy of the state.
func (s GridState) Clone() GridState {
	out := s
	if s.Panes != nil {
		out.Panes = make([]Pane, len(s.Panes))
		for i, p := range s.Panes {
			out.Panes[i] = p.Clone()
		}
	}
	return out
}

// ActivePane returns the active pane when one exists.
func (s GridState) ActivePane() (Pane, bool) {
	if s.ActivePaneIndex < 0 || s.ActivePaneIndex >= len(s.Panes) {
		return Pane{}, false
	}
	return s.Panes[s.ActivePaneIndex], true
}

// PaneByID finds a pane and its index.
func (s GridState) PaneByID(id string) (Pane, int, bool) {
	for i, p := range s.Panes {
		if p.ID == id {
			return p, i, true
		}
	}
	return Pane{}, -1, false
}

// NumPanes is the number of panes that fit the declared layout.
func (s GridState) NumPanes() int {
	capacity := s.Layout.Capacity()
	if s.Layout.LayoutType == LayoutTypeCustom || capacity == 0 {
		return len(s.Panes)
	}
	return min(len(s.Panes), capacity)
}

// PaneIDs lists the pane ids in order.
func (s GridState) PaneIDs() []string {
	ids := make([]string, len(s.Panes))
	for i, p := range s.Panes {
		ids[i] = p.ID
	}
	return ids
}

// ContentRefs returns every content reference shown in the grid.
func (s GridState) ContentRefs() []string {
	var out []string
	for _, p := range s.Panes {
		out = append(out, p.ContentRefs...)
	}
	return out
}

// Validate checks the structural invariants of the state.
func (s GridState) Validate() error {
	var errs Problems
	if len(s.Panes) > 0 && (s.ActivePaneIndex < 0 || s.ActivePaneIndex >= len(s.Panes)) {
		errs.Addf("active_pane_index", "%d out of range [0,%d)", s.ActivePaneIndex, len(s.Panes))
	}
	seen := make(map[string]int, len(s.Panes))
	for i, p := range s.Panes {
		field := Indexed("panes", i)
		if p.ID != "" {
			if prev, ok := seen[p.ID]; ok {
				errs.Addf(field+".id", "duplicate of panes[%d]", prev)
			}
			seen[p.ID] = i
		}
		if err := p.Position.Validate(); err != nil {
			errs.Nest(field+".position", err)
		}
		if len(p.ContentOptions) > len(p.ContentRefs) && len(p.ContentRefs) > 0 {
			errs.Addf(field+".content_options", "more options than content refs")
		}
	}
	return errs.Err()
}

const positionEpsilon = 1e-9

// Validate checks that the rectangle lies inside the unit square.
func (p Position) Validate() error {
	var errs Problems
	if p.X < -positionEpsilon || p.Y < -positionEpsilon {
		errs.Addf("", "origin must be non-negative")
	}
	if p.Width < 0 || p.Height < 0 {
		errs.Addf("", "size must be non-negative")
	}
	if p.X+p.Width > 1+positionEpsilon {
		errs.Addf("width", "x+width exceeds 1")
	}
	if p.Y+p.Height > 1+positionEpsilon {
		errs.Addf("height", "y+height exceeds 1")
	}
	return errs.Err()
}

// CloneOptions copies an option map one level deep.
func CloneOptions(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	return maps.Clone(src)
}

// MergeOptions layers overrides on top of defaults into a new map.
func MergeOptions(defaults, overrides map[string]any) map[string]any {
	out := make(map[string]any, len(defaults)+len(overrides))
	maps.Copy(out, defaults)
	maps.Copy(out, overrides)
	return out
}
