package hp

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/hangview/internal/grid"
	"github.com/tOgg1/hangview/internal/models"
)

func rowOfFour() models.GridState {
	state := models.GridState{Layout: models.Layout{Rows: 1, Cols: 4, LayoutType: models.LayoutTypeGrid}}
	for i, uid := range []string{"a", "b", "c", "d"} {
		state.Panes = append(state.Panes, models.Pane{
			ID:          "viewport-" + uid,
			ContentRefs: []string{uid},
			Position:    models.Position{X: float64(i) * 0.25, Width: 0.25, Height: 1},
			PositionID:  grid.PositionID(i, 0),
		})
	}
	return state
}

func TestPanesByPosition(t *testing.T) {
	remembered := map[string]models.Pane{
		"0-1": {ContentRefs: []string{"old"}},
		"0-0": {ContentRefs: []string{"stale"}},
	}
	byPosition, inDisplay := panesByPosition(rowOfFour(), remembered, 2, 2)

	require.Len(t, byPosition, 5)
	require.Equal(t, []string{"a"}, byPosition["0-0"].ContentRefs)
	require.Equal(t, []string{"a", "b", "old"}, inDisplay)
}

func TestPositionStrategyNearestOrphan(t *testing.T) {
	state := rowOfFour()
	byPosition, inDisplay := panesByPosition(state, nil, 2, 2)
	var missingCalls [][]string
	missing := func(shown []string) *models.Pane {
		missingCalls = append(missingCalls, shown)
		return nil
	}
	s := newPositionStrategy(state, byPosition, inDisplay, 2, 2, missing, zerolog.Nop())

	plan := grid.PlanLayout(state, grid.LayoutRequest{Rows: 2, Cols: 2, FindOrCreate: s.FindOrCreate})
	require.Len(t, plan.Panes, 4)
	var got [][]string
	for _, p := range plan.Panes {
		got = append(got, p.ContentRefs)
	}
	// c sits nearer the lower left cell than d does.
	require.Equal(t, [][]string{{"a"}, {"b"}, {"c"}, {"d"}}, got)
	require.Empty(t, missingCalls)
	require.Empty(t, plan.Panes[2].ID)
}

func TestPositionStrategyFallsBackToMissingThenEmpty(t *testing.T) {
	state := models.GridState{
		Layout: models.Layout{Rows: 1, Cols: 1, LayoutType: models.LayoutTypeGrid},
		Panes:  []models.Pane{{ID: "viewport-1", ContentRefs: []string{"a"}, Position: models.Position{Width: 1, Height: 1}, PositionID: "0-0"}},
	}
	byPosition, inDisplay := panesByPosition(state, nil, 1, 3)
	served := false
	missing := func(shown []string) *models.Pane {
		require.Contains(t, shown, "a")
		if served {
			return nil
		}
		served = true
		return &models.Pane{ContentRefs: []string{"b"}}
	}
	s := newPositionStrategy(state, byPosition, inDisplay, 1, 3, missing, zerolog.Nop())

	plan := grid.PlanLayout(state, grid.LayoutRequest{Rows: 1, Cols: 3, FindOrCreate: s.FindOrCreate})
	require.Len(t, plan.Panes, 3)
	require.Equal(t, []string{"a"}, plan.Panes[0].ContentRefs)
	require.Equal(t, []string{"b"}, plan.Panes[1].ContentRefs)
	require.Empty(t, plan.Panes[2].ContentRefs)
}

func TestPositionStrategyRecomputesPresentationID(t *testing.T) {
	state := rowOfFour()
	for i := range state.Panes {
		p := &state.Panes[i]
		p.PaneOptions = map[string]any{models.OptionPresentationID: p.ContentRefs[0] + "&" + p.PositionID}
	}
	byPosition, inDisplay := panesByPosition(state, nil, 2, 2)
	s := newPositionStrategy(state, byPosition, inDisplay, 2, 2, nil, zerolog.Nop())

	plan := grid.PlanLayout(state, grid.LayoutRequest{Rows: 2, Cols: 2, FindOrCreate: s.FindOrCreate})
	require.Empty(t, plan.Panes[2].PresentationID())

	s = newPositionStrategy(state, byPosition, inDisplay, 2, 2, nil, zerolog.Nop())
	out, err := grid.NewReducer(nil).SetLayout(state, grid.LayoutRequest{Rows: 2, Cols: 2, FindOrCreate: s.FindOrCreate})
	require.NoError(t, err)
	require.Equal(t, "0-1", out.Panes[2].PositionID)
	require.Equal(t, "c&0-1", out.Panes[2].PresentationID())
	require.Equal(t, "a&0-0", out.Panes[0].PresentationID())
}
