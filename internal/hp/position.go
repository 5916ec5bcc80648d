package hp

import (
	"math"
	"slices"

	"github.com/rs/zerolog"

	"github.com/tOgg1/hangview/internal/grid"
	"github.com/tOgg1/hangview/internal/memory"
	"github.com/tOgg1/hangview/internal/models"
)

// panesByPosition merges the current panes into the remembered ones by
// position id and lists the content remembered inside a rows x cols grid.
func panesByPosition(state models.GridState, remembered map[string]models.Pane, rows, cols int) (map[string]models.Pane, []string) {
	out := make(map[string]models.Pane, len(remembered)+len(state.Panes))
	for id, p := range remembered {
		out[id] = p.Clone()
	}
	for _, p := range state.Panes {
		if p.PositionID != "" {
			out[p.PositionID] = p.Clone()
		}
	}

	var inDisplay []string
	for row := range rows {
		for col := range cols {
			if p, ok := out[grid.PositionID(col, row)]; ok {
				inDisplay = append(inDisplay, p.ContentRefs...)
			}
		}
	}
	return out, inDisplay
}

// MissingFunc supplies a pane for content not yet on screen, or nil.
type MissingFunc func(inDisplay []string) *models.Pane

// positionStrategy fills a new grid shape from the panes already known:
// first the pane last shown at the same position, then the nearest current
// pane that fell outside the new grid, then content not yet on screen.
type positionStrategy struct {
	rows, cols int
	byPosition map[string]models.Pane
	inDisplay  []string
	orphans    []models.Pane
	missing    MissingFunc
	logger     zerolog.Logger
}

func newPositionStrategy(state models.GridState, byPosition map[string]models.Pane, inDisplay []string, rows, cols int, missing MissingFunc, logger zerolog.Logger) *positionStrategy {
	inGrid := make(map[string]bool, rows*cols)
	for row := range rows {
		for col := range cols {
			inGrid[grid.PositionID(col, row)] = true
		}
	}
	var orphans []models.Pane
	for _, p := range state.Panes {
		if !inGrid[p.PositionID] && !p.IsEmpty() {
			orphans = append(orphans, p.Clone())
		}
	}
	return &positionStrategy{
		rows:       rows,
		cols:       cols,
		byPosition: byPosition,
		inDisplay:  inDisplay,
		orphans:    orphans,
		missing:    missing,
		logger:     logger,
	}
}

// FindOrCreate implements grid.FindOrCreateFunc.
func (s *positionStrategy) FindOrCreate(pos int, positionID string, scratch *grid.Scratch) *models.Pane {
	if p, ok := s.byPosition[positionID]; ok {
		scratch.MarkPlaced(p.ContentRefs...)
		return paneTemplate(p)
	}

	if i := s.nearestOrphan(pos, scratch); i >= 0 {
		p := s.orphans[i]
		s.orphans = slices.Delete(s.orphans, i, i+1)
		scratch.MarkPlaced(p.ContentRefs...)
		s.logger.Debug().Str("pane_id", p.ID).Str("position_id", positionID).Msg("pane moved to nearest cell")
		return paneTemplate(p)
	}

	if s.missing != nil {
		shown := slices.Concat(s.inDisplay, scratch.InDisplay)
		if p := s.missing(shown); p != nil {
			scratch.MarkPlaced(p.ContentRefs...)
			return p
		}
	}
	return &models.Pane{ContentRefs: []string{}}
}

// nearestOrphan returns the index of the orphan whose previous centre is
// closest to the centre of cell pos, skipping content already placed.
func (s *positionStrategy) nearestOrphan(pos int, scratch *grid.Scratch) int {
	col, row := pos%s.cols, pos/s.cols
	cx := (float64(col) + 0.5) / float64(s.cols)
	cy := (float64(row) + 0.5) / float64(s.rows)

	best, bestDist := -1, math.Inf(1)
	for i, p := range s.orphans {
		if slices.ContainsFunc(p.ContentRefs, scratch.Placed) {
			continue
		}
		px, py := p.Position.Center()
		if d := math.Hypot(px-cx, py-cy); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// paneTemplate strips the placement of a known pane so the planner can give
// it new geometry. Identity and presentation id are recomputed by the grid.
func paneTemplate(p models.Pane) *models.Pane {
	out := p.Clone()
	out.ID = ""
	out.Label = ""
	out.Position = models.Position{}
	out.PositionID = ""
	delete(out.PaneOptions, models.OptionPresentationID)
	return &out
}

// positionUpdate is the memory update recording a layout change.
func positionUpdate(byPosition map[string]models.Pane, inDisplay []string) memory.Update {
	return memory.Update{Positions: byPosition, InDisplay: inDisplay}
}
