// Package grid holds the viewport grid state and its transitions.
//
// Transitions are computed by a Reducer as functions of the previous state
// and never modify their input. The Store wraps a Reducer, keeps the one
// current state and announces commits on the event bus.
package grid

import (
	"errors"
	"fmt"
	"slices"

	"github.com/tOgg1/hangview/internal/models"
)

var (
	// ErrPaneIndexOutOfRange is returned for an index outside the pane list.
	ErrPaneIndexOutOfRange = errors.New("pane index out of range")

	// ErrInvalidLayout is returned for a malformed layout request.
	ErrInvalidLayout = errors.New("invalid layout")

	// ErrInvalidState is returned when a transition would break grid invariants.
	ErrInvalidState = errors.New("invalid grid state")
)

// PaneUpdate sets the content of one pane.
type PaneUpdate struct {
	PaneIndex   int
	ContentRefs []string

	// ContentOptions replaces the per-content options when non-nil;
	// nil keeps the previous ones.
	ContentOptions []map[string]any

	// PaneOptions replaces the pane options when non-nil; nil keeps the
	// previous ones.
	PaneOptions map[string]any

	// ContentSelectors replaces the selector provenance when non-nil.
	ContentSelectors []string
}

// Partial is a shallow patch applied by Replace. Nil fields are left alone.
type Partial struct {
	ActivePaneIndex *int
	Layout          *models.Layout
	Panes           []models.Pane
}

// PartialFromState builds a patch that replaces every field.
func PartialFromState(s models.GridState) Partial {
	active := s.ActivePaneIndex
	layout := s.Layout
	panes := s.Clone().Panes
	if panes == nil {
		panes = []models.Pane{}
	}
	return Partial{ActivePaneIndex: &active, Layout: &layout, Panes: panes}
}

// InitialState is the one-empty-pane state the grid starts in.
func InitialState() models.GridState {
	return models.GridState{
		ActivePaneIndex: 0,
		Layout:          models.Layout{Rows: 1, Cols: 1, LayoutType: models.LayoutTypeGrid},
		Panes: []models.Pane{{
			ContentRefs:    []string{},
			PaneOptions:    map[string]any{},
			ContentOptions: []map[string]any{{}},
			Position:       models.Position{Width: 1, Height: 1},
			PositionID:     PositionID(0, 0),
			Label:          PaneLabel(0),
		}},
	}
}

// Reducer computes grid transitions. The only state it carries is the
// identity resolver and its id counter.
type Reducer struct {
	identity *IdentityResolver
}

// NewReducer creates a reducer minting ids from ids.
func NewReducer(ids *IDGenerator) *Reducer {
	return &Reducer{identity: NewIdentityResolver(ids)}
}

// SetActivePane returns s with the active pane moved to index.
func (r *Reducer) SetActivePane(s models.GridState, index int) (models.GridState, error) {
	if index < 0 || index >= len(s.Panes) {
		return s, fmt.Errorf("%w: %d not in [0,%d)", ErrPaneIndexOutOfRange, index, len(s.Panes))
	}
	out := s.Clone()
	out.ActivePaneIndex = index
	return out, nil
}

// SetContentForPanes applies a batch of content updates. Every updated pane
// gets a fresh presentation id and has its identity resolved against the
// previous panes, excluding ids held by panes outside the batch and ids
// already handed out within it. A pane whose content and size are unchanged
// keeps its id regardless of batch order.
func (r *Reducer) SetContentForPanes(s models.GridState, updates []PaneUpdate) (models.GridState, error) {
	updated := make(map[int]bool, len(updates))
	for _, u := range updates {
		if u.PaneIndex < 0 || u.PaneIndex >= len(s.Panes) {
			return s, fmt.Errorf("%w: %d not in [0,%d)", ErrPaneIndexOutOfRange, u.PaneIndex, len(s.Panes))
		}
		updated[u.PaneIndex] = true
	}

	out := s.Clone()
	claimed := make(Claims, len(s.Panes))
	for i, p := range s.Panes {
		if !updated[i] {
			claimed.Claim(p.ID)
		}
	}

	for _, u := range updates {
		prev := out.Panes[u.PaneIndex]
		next := prev.Clone()
		next.ContentRefs = slices.Clone(u.ContentRefs)
		if next.ContentRefs == nil {
			next.ContentRefs = []string{}
		}
		if u.PaneOptions != nil {
			next.PaneOptions = models.CloneOptions(u.PaneOptions)
		}
		if u.ContentOptions != nil {
			next.ContentOptions = cloneContentOptions(u.ContentOptions)
		} else {
			next.ContentOptions = alignContentOptions(prev.ContentOptions, len(next.ContentRefs))
		}
		if u.ContentSelectors != nil {
			next.ContentSelectors = slices.Clone(u.ContentSelectors)
		} else if !slices.Equal(prev.ContentRefs, next.ContentRefs) {
			next.ContentSelectors = nil
		}
		next.Label = PaneLabel(u.PaneIndex)

		// The presentation id is recomputed, not inherited.
		delete(next.PaneOptions, models.OptionPresentationID)
		out.Panes[u.PaneIndex] = next
		out.Panes[u.PaneIndex] = withPresentationID(out.Panes, u.PaneIndex)
	}

	// Panes that keep their own previous id settle before any pane may take
	// an id from a neighbour.
	order := make([]int, 0, len(updated))
	seen := make(map[int]bool, len(updated))
	for _, u := range updates {
		if !seen[u.PaneIndex] {
			seen[u.PaneIndex] = true
			order = append(order, u.PaneIndex)
		}
	}
	var pending []int
	for _, i := range order {
		kept, ok := r.identity.Keep(claimed, out.Panes[i], s.Panes)
		if !ok {
			pending = append(pending, i)
			continue
		}
		out.Panes[i] = kept
	}
	for _, i := range pending {
		out.Panes[i] = r.identity.Resolve(claimed, out.Panes[i], s.Panes)
	}

	if err := out.Validate(); err != nil {
		return s, fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	return out, nil
}

// SetLayout plans a new pane sequence for req and resolves identities over
// the whole sequence.
func (r *Reducer) SetLayout(s models.GridState, req LayoutRequest) (models.GridState, error) {
	if err := req.Validate(); err != nil {
		return s, err
	}

	plan := PlanLayout(s, req)
	panes := r.identity.ResolveAll(plan.Panes, s.Panes)
	for i := range panes {
		panes[i].Label = PaneLabel(i)
	}
	ensurePresentationIDs(panes)

	layoutType := req.LayoutType
	if layoutType == "" {
		layoutType = models.LayoutTypeGrid
	}
	out := models.GridState{
		ActivePaneIndex: plan.ActivePaneIndex,
		Layout:          models.Layout{Rows: req.Rows, Cols: req.Cols, LayoutType: layoutType},
		Panes:           panes,
	}
	if err := out.Validate(); err != nil {
		return s, fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	return out, nil
}

// Reset returns the initial state with its pane given an identity.
func (r *Reducer) Reset() models.GridState {
	s := InitialState()
	s.Panes = r.identity.ResolveAll(s.Panes, nil)
	ensurePresentationIDs(s.Panes)
	return s
}

// Replace shallow-merges p over s. Identities in p are trusted as-is.
func (r *Reducer) Replace(s models.GridState, p Partial) (models.GridState, error) {
	out := s.Clone()
	if p.Layout != nil {
		out.Layout = *p.Layout
	}
	if p.Panes != nil {
		out.Panes = models.GridState{Panes: p.Panes}.Clone().Panes
	}
	if p.ActivePaneIndex != nil {
		out.ActivePaneIndex = *p.ActivePaneIndex
	}
	if err := out.Validate(); err != nil {
		return s, fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	return out, nil
}

// RemoveContent drops uids from every pane showing them. The boolean is
// false when no pane referenced any of them.
func (r *Reducer) RemoveContent(s models.GridState, uids []string) (models.GridState, bool, error) {
	if len(uids) == 0 {
		return s, false, nil
	}
	var updates []PaneUpdate
	for i, p := range s.Panes {
		if !slices.ContainsFunc(p.ContentRefs, func(ref string) bool { return slices.Contains(uids, ref) }) {
			continue
		}
		u := PaneUpdate{PaneIndex: i, ContentRefs: []string{}, ContentOptions: []map[string]any{}}
		alignedSelectors := len(p.ContentSelectors) == len(p.ContentRefs)
		if alignedSelectors {
			u.ContentSelectors = []string{}
		}
		for j, ref := range p.ContentRefs {
			if slices.Contains(uids, ref) {
				continue
			}
			u.ContentRefs = append(u.ContentRefs, ref)
			if j < len(p.ContentOptions) {
				u.ContentOptions = append(u.ContentOptions, models.CloneOptions(p.ContentOptions[j]))
			}
			if alignedSelectors {
				u.ContentSelectors = append(u.ContentSelectors, p.ContentSelectors[j])
			}
		}
		if len(u.ContentRefs) == 0 {
			u.ContentSelectors = []string{}
		}
		updates = append(updates, u)
	}
	if len(updates) == 0 {
		return s, false, nil
	}
	out, err := r.SetContentForPanes(s, updates)
	if err != nil {
		return s, false, err
	}
	return out, true, nil
}

func cloneContentOptions(src []map[string]any) []map[string]any {
	out := make([]map[string]any, len(src))
	for i, opts := range src {
		out[i] = models.CloneOptions(opts)
	}
	return out
}

// alignContentOptions keeps previous options for the leading refs.
func alignContentOptions(prev []map[string]any, n int) []map[string]any {
	if n == 0 {
		return nil
	}
	return cloneContentOptions(prev[:min(len(prev), n)])
}
