package grid

import (
	"fmt"
	"slices"

	"github.com/tOgg1/hangview/internal/models"
)

// Scratch is shared across the cells of one planning pass so a strategy can
// remember what it already placed.
type Scratch struct {
	// InDisplay lists content refs placed so far, in placement order.
	InDisplay []string

	// Values holds strategy-specific bookkeeping.
	Values map[string]any
}

// NewScratch returns an empty scratch bag.
func NewScratch() *Scratch {
	return &Scratch{Values: make(map[string]any)}
}

// Placed reports whether uid has been placed in this pass.
func (s *Scratch) Placed(uid string) bool {
	return slices.Contains(s.InDisplay, uid)
}

// MarkPlaced records content refs as placed.
func (s *Scratch) MarkPlaced(uids ...string) {
	for _, uid := range uids {
		if !s.Placed(uid) {
			s.InDisplay = append(s.InDisplay, uid)
		}
	}
}

// FindOrCreateFunc supplies the pane for one grid cell, or nil to leave the
// cell empty. Geometry, position id and identity are filled in afterwards.
type FindOrCreateFunc func(positionIndex int, positionID string, scratch *Scratch) *models.Pane

// LayoutRequest describes a SetLayout transition.
type LayoutRequest struct {
	Rows       int
	Cols       int
	LayoutType models.LayoutType

	// LayoutOptions gives explicit cell geometry; cells beyond its length are skipped.
	LayoutOptions []models.LayoutOption

	// ActivePaneIndex, when set, selects the active pane of the result.
	ActivePaneIndex *int

	FindOrCreate FindOrCreateFunc
}

// Validate checks the request is plannable.
func (r LayoutRequest) Validate() error {
	if r.Rows <= 0 || r.Cols <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidLayout, r.Rows, r.Cols)
	}
	if r.FindOrCreate == nil {
		return fmt.Errorf("%w: find-or-create strategy is required", ErrInvalidLayout)
	}
	return nil
}

// PositionID returns the default position id of a grid cell.
func PositionID(col, row int) string {
	return fmt.Sprintf("%d-%d", col, row)
}

// Plan is the output of PlanLayout before identities are resolved.
type Plan struct {
	Panes           []models.Pane
	ActivePaneIndex int
}

// PlanLayout walks the cells of req row-major, asking the strategy for each
// cell's pane and assigning geometry. prev is the state being replaced and
// is only read to keep the active position stable.
func PlanLayout(prev models.GridState, req LayoutRequest) Plan {
	plan := Plan{}
	if req.Rows <= 0 || req.Cols <= 0 || req.FindOrCreate == nil {
		return plan
	}

	hasOptions := len(req.LayoutOptions) > 0
	scratch := NewScratch()

	for row := range req.Rows {
		for col := range req.Cols {
			pos := col + row*req.Cols
			if hasOptions && pos >= len(req.LayoutOptions) {
				continue
			}

			positionID := PositionID(col, row)
			if hasOptions && req.LayoutOptions[pos].PositionID != "" {
				positionID = req.LayoutOptions[pos].PositionID
			}

			found := req.FindOrCreate(pos, positionID, scratch)
			if found == nil {
				continue
			}
			pane := found.Clone()
			pane.PositionID = positionID
			if hasOptions {
				pane.Position = req.LayoutOptions[pos].Position()
			} else {
				w := 1 / float64(req.Cols)
				h := 1 / float64(req.Rows)
				pane.Position = models.Position{X: float64(col) * w, Y: float64(row) * h, Width: w, Height: h}
			}
			plan.Panes = append(plan.Panes, pane)
		}
	}

	plan.ActivePaneIndex = activeIndex(prev, plan.Panes, req.ActivePaneIndex)
	return plan
}

// activeIndex picks the explicit hint, else the planned pane at the position
// that was active before, else 0.
func activeIndex(prev models.GridState, panes []models.Pane, hint *int) int {
	if hint != nil && *hint >= 0 && *hint < len(panes) {
		return *hint
	}
	if active, ok := prev.ActivePane(); ok && active.PositionID != "" {
		for i, p := range panes {
			if p.PositionID == active.PositionID {
				return i
			}
		}
	}
	return 0
}
