package grid

import (
	"slices"

	"github.com/tOgg1/hangview/internal/models"
)

// Claims is the set of pane ids already taken during one resolution pass.
type Claims map[string]struct{}

// Claim marks id as taken.
func (c Claims) Claim(id string) {
	if id != "" {
		c[id] = struct{}{}
	}
}

// Has reports whether id is taken.
func (c Claims) Has(id string) bool {
	_, ok := c[id]
	return ok
}

// Reusable reports whether a previous pane's identity can carry over to next:
// the content sequence must match in order and the size must be unchanged.
func Reusable(prev, next models.Pane) bool {
	return slices.Equal(prev.ContentRefs, next.ContentRefs) &&
		prev.Position.Width == next.Position.Width &&
		prev.Position.Height == next.Position.Height
}

// IdentityResolver assigns pane ids, reusing previous ones where possible.
type IdentityResolver struct {
	ids *IDGenerator
}

// NewIdentityResolver creates a resolver minting from ids.
func NewIdentityResolver(ids *IDGenerator) *IdentityResolver {
	if ids == nil {
		ids = NewIDGenerator(DefaultIDStart, DefaultIDWrap)
	}
	return &IdentityResolver{ids: ids}
}

// Resolve returns next with an identity. An unclaimed reusable pane in
// previous donates its id and acts as defaults for next's pane options;
// otherwise a fresh id is minted. The pane's own previous occupant, matched
// by id or position, is tried before any other candidate. The chosen id is
// added to claimed.
func (r *IdentityResolver) Resolve(claimed Claims, next models.Pane, previous []models.Pane) models.Pane {
	if out, ok := r.Keep(claimed, next, previous); ok {
		return out
	}
	for _, prev := range previous {
		if prev.ID == "" || claimed.Has(prev.ID) || !Reusable(prev, next) {
			continue
		}
		return reuse(claimed, prev, next)
	}

	out := next.Clone()
	out.ID = r.mint(claimed, previous)
	out.PaneOptions = models.MergeOptions(nil, next.PaneOptions)
	out.PaneOptions[models.OptionViewportID] = out.ID
	claimed.Claim(out.ID)
	return out
}

// Keep gives next the id of its own previous occupant when that pane is
// unclaimed and reusable. It never mints.
func (r *IdentityResolver) Keep(claimed Claims, next models.Pane, previous []models.Pane) (models.Pane, bool) {
	for _, prev := range previous {
		if prev.ID == "" || claimed.Has(prev.ID) || !occupant(prev, next) || !Reusable(prev, next) {
			continue
		}
		return reuse(claimed, prev, next), true
	}
	return next, false
}

// occupant reports whether prev held next's slot: same id, or same cell.
func occupant(prev, next models.Pane) bool {
	if next.ID != "" && prev.ID == next.ID {
		return true
	}
	return next.PositionID != "" && prev.PositionID == next.PositionID
}

func reuse(claimed Claims, prev, next models.Pane) models.Pane {
	out := next.Clone()
	out.ID = prev.ID
	// The presentation id follows content and position, never identity.
	defaults := models.CloneOptions(prev.PaneOptions)
	delete(defaults, models.OptionPresentationID)
	out.PaneOptions = models.MergeOptions(defaults, next.PaneOptions)
	out.PaneOptions[models.OptionViewportID] = prev.ID
	if out.ContentOptions == nil {
		out.ContentOptions = prev.Clone().ContentOptions
	}
	claimed.Claim(out.ID)
	return out
}

// mint draws ids until one is free of both the claims and the previous
// panes. Collisions only happen after the counter wraps.
func (r *IdentityResolver) mint(claimed Claims, previous []models.Pane) string {
	for {
		id := r.ids.Next()
		if claimed.Has(id) {
			continue
		}
		if slices.ContainsFunc(previous, func(p models.Pane) bool { return p.ID == id }) {
			continue
		}
		return id
	}
}

// ResolveAll assigns identities to a whole pane sequence, so no two resulting
// panes share an id. Panes whose own previous occupant is reusable are
// settled first; the rest resolve in order.
func (r *IdentityResolver) ResolveAll(panes, previous []models.Pane) []models.Pane {
	claimed := make(Claims, len(panes))
	out := make([]models.Pane, len(panes))
	kept := make([]bool, len(panes))
	for i, p := range panes {
		out[i], kept[i] = r.Keep(claimed, p, previous)
	}
	for i, p := range panes {
		if !kept[i] {
			out[i] = r.Resolve(claimed, p, previous)
		}
	}
	return out
}
