package grid

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/hangview/internal/models"
)

func TestResetHasOneEmptyPane(t *testing.T) {
	r := NewReducer(NewIDGenerator(1, 10))
	s := r.Reset()
	require.Len(t, s.Panes, 1)
	require.True(t, s.Panes[0].IsEmpty())
	require.Equal(t, "viewport-1", s.Panes[0].ID)
	require.Equal(t, 0, s.ActivePaneIndex)
	requireInvariants(t, s)
}

func TestTwoByTwoScenario(t *testing.T) {
	r := NewReducer(NewIDGenerator(DefaultIDStart, DefaultIDWrap))
	s := layout2x2(t, r)

	require.Len(t, s.Panes, 4)
	wantPositions := []models.Position{
		{X: 0, Y: 0, Width: .5, Height: .5},
		{X: .5, Y: 0, Width: .5, Height: .5},
		{X: 0, Y: .5, Width: .5, Height: .5},
		{X: .5, Y: .5, Width: .5, Height: .5},
	}
	for i, p := range s.Panes {
		require.Equal(t, wantPositions[i], p.Position, "pane %d", i)
	}
	require.Equal(t, []string{"0-0", "1-0", "0-1", "1-1"},
		[]string{s.Panes[0].PositionID, s.Panes[1].PositionID, s.Panes[2].PositionID, s.Panes[3].PositionID})
	require.Equal(t, []string{"A", "B", "C", "D"},
		[]string{s.Panes[0].Label, s.Panes[1].Label, s.Panes[2].Label, s.Panes[3].Label})
	requireInvariants(t, s)

	before := s.Panes[0].ID
	next, err := r.SetContentForPanes(s, []PaneUpdate{{PaneIndex: 0, ContentRefs: refs("A")}})
	require.NoError(t, err)
	require.Equal(t, before, next.Panes[0].ID)
	require.Equal(t, s.PaneIDs(), next.PaneIDs())
	requireInvariants(t, next)
}

func TestSetLayoutCellCount(t *testing.T) {
	r := NewReducer(nil)
	always := func(pos int, _ string, _ *Scratch) *models.Pane {
		return &models.Pane{ContentRefs: []string{string(rune('a' + pos))}}
	}
	for rows := 1; rows <= 4; rows++ {
		for cols := 1; cols <= 4; cols++ {
			s, err := r.SetLayout(InitialState(), LayoutRequest{Rows: rows, Cols: cols, FindOrCreate: always})
			require.NoError(t, err)
			require.Len(t, s.Panes, rows*cols)
			require.Equal(t, rows*cols, s.NumPanes())
			requireInvariants(t, s)
		}
	}
}

func TestSetLayoutKeepsIdentitiesForSameShape(t *testing.T) {
	r := NewReducer(nil)
	s := layout2x2(t, r)

	again, err := r.SetLayout(s, LayoutRequest{
		Rows:         2,
		Cols:         2,
		FindOrCreate: fill(refs("A"), refs("B"), refs("C"), refs("D")),
	})
	require.NoError(t, err)
	require.Equal(t, s.PaneIDs(), again.PaneIDs())

	// Same content in a different size gets fresh ids.
	wide, err := r.SetLayout(again, LayoutRequest{Rows: 1, Cols: 2, FindOrCreate: fill(refs("A"), refs("B"))})
	require.NoError(t, err)
	require.Len(t, wide.Panes, 2)
	require.NotContains(t, s.PaneIDs(), wide.Panes[0].ID)
	require.NotContains(t, s.PaneIDs(), wide.Panes[1].ID)
}

func TestSetLayoutMovesIdentityWithContent(t *testing.T) {
	r := NewReducer(nil)
	s := layout2x2(t, r)

	swapped, err := r.SetLayout(s, LayoutRequest{
		Rows:         2,
		Cols:         2,
		FindOrCreate: fill(refs("D"), refs("C"), refs("B"), refs("A")),
	})
	require.NoError(t, err)
	require.Equal(t, s.Panes[3].ID, swapped.Panes[0].ID)
	require.Equal(t, s.Panes[0].ID, swapped.Panes[3].ID)
	requireInvariants(t, swapped)
}

func TestSetLayoutSkipsEmptyCells(t *testing.T) {
	r := NewReducer(nil)
	s, err := r.SetLayout(InitialState(), LayoutRequest{
		Rows:         2,
		Cols:         2,
		FindOrCreate: fill(refs("A"), nil, refs("C"), refs("D")),
	})
	require.NoError(t, err)
	require.Len(t, s.Panes, 3)
	require.Equal(t, "0-1", s.Panes[1].PositionID)
	require.Equal(t, "B", s.Panes[1].Label)
	requireInvariants(t, s)
}

func TestSetLayoutExplicitOptions(t *testing.T) {
	r := NewReducer(nil)
	opts := []models.LayoutOption{
		{PositionID: "left", X: 0, Y: 0, Width: 0.7, Height: 1},
		{X: 0.7, Y: 0, Width: 0.3, Height: 1},
	}
	s, err := r.SetLayout(InitialState(), LayoutRequest{
		Rows:          1,
		Cols:          3,
		LayoutType:    models.LayoutTypeCustom,
		LayoutOptions: opts,
		FindOrCreate:  fill(refs("A"), refs("B"), refs("C")),
	})
	require.NoError(t, err)
	require.Len(t, s.Panes, 2)
	require.Equal(t, "left", s.Panes[0].PositionID)
	require.Equal(t, "1-0", s.Panes[1].PositionID)
	require.Equal(t, opts[1].Position(), s.Panes[1].Position)
	require.Equal(t, models.LayoutTypeCustom, s.Layout.LayoutType)
	require.Equal(t, 2, s.NumPanes())
}

func TestSetLayoutActivePane(t *testing.T) {
	r := NewReducer(nil)
	s := layout2x2(t, r)
	s, err := r.SetActivePane(s, 3)
	require.NoError(t, err)

	// The previously active position "1-1" lands at result index 2 once
	// cell 0 is skipped.
	sparse, err := r.SetLayout(s, LayoutRequest{
		Rows:         2,
		Cols:         2,
		FindOrCreate: fill(nil, refs("B"), refs("C"), refs("D")),
	})
	require.NoError(t, err)
	require.Equal(t, 2, sparse.ActivePaneIndex)

	hint := 1
	hinted, err := r.SetLayout(s, LayoutRequest{
		Rows:            2,
		Cols:            2,
		ActivePaneIndex: &hint,
		FindOrCreate:    fill(refs("A"), refs("B"), refs("C"), refs("D")),
	})
	require.NoError(t, err)
	require.Equal(t, 1, hinted.ActivePaneIndex)

	single, err := r.SetLayout(s, LayoutRequest{Rows: 1, Cols: 1, FindOrCreate: fill(refs("A"))})
	require.NoError(t, err)
	require.Equal(t, 0, single.ActivePaneIndex)
}

func TestSetLayoutRejectsDegenerateShape(t *testing.T) {
	r := NewReducer(nil)
	s := InitialState()
	for _, req := range []LayoutRequest{
		{Rows: 0, Cols: 2, FindOrCreate: fill()},
		{Rows: 2, Cols: -1, FindOrCreate: fill()},
		{Rows: 1, Cols: 1},
	} {
		out, err := r.SetLayout(s, req)
		require.ErrorIs(t, err, ErrInvalidLayout)
		require.Empty(t, cmp.Diff(s, out))
	}
	require.Empty(t, PlanLayout(s, LayoutRequest{Rows: 0, Cols: 3, FindOrCreate: fill()}).Panes)
}

func TestPlannerScratchIsShared(t *testing.T) {
	pool := []string{"A", "B", "C"}
	next := func(_ int, _ string, scratch *Scratch) *models.Pane {
		for _, uid := range pool {
			if !scratch.Placed(uid) {
				scratch.MarkPlaced(uid)
				return &models.Pane{ContentRefs: []string{uid}}
			}
		}
		return &models.Pane{}
	}
	plan := PlanLayout(InitialState(), LayoutRequest{Rows: 2, Cols: 2, FindOrCreate: next})
	require.Len(t, plan.Panes, 4)
	require.Equal(t, []string{"A"}, plan.Panes[0].ContentRefs)
	require.Equal(t, []string{"C"}, plan.Panes[2].ContentRefs)
	require.True(t, plan.Panes[3].IsEmpty())
}

func TestSetContentForPanesSwapKeepsIdsUnique(t *testing.T) {
	r := NewReducer(nil)
	s, err := r.SetLayout(InitialState(), LayoutRequest{Rows: 1, Cols: 2, FindOrCreate: fill(refs("A"), refs("B"))})
	require.NoError(t, err)

	swapped, err := r.SetContentForPanes(s, []PaneUpdate{
		{PaneIndex: 0, ContentRefs: refs("B")},
		{PaneIndex: 1, ContentRefs: refs("A")},
	})
	require.NoError(t, err)
	require.Equal(t, s.Panes[1].ID, swapped.Panes[0].ID)
	require.Equal(t, s.Panes[0].ID, swapped.Panes[1].ID)
	requireInvariants(t, swapped)

	// Pane 1 is outside the batch, so its id cannot be taken by pane 0.
	dup, err := r.SetContentForPanes(s, []PaneUpdate{{PaneIndex: 0, ContentRefs: refs("B")}})
	require.NoError(t, err)
	require.Equal(t, s.Panes[1].ID, dup.Panes[1].ID)
	require.NotEqual(t, dup.Panes[0].ID, dup.Panes[1].ID)
	require.NotEqual(t, s.Panes[0].ID, dup.Panes[0].ID)
	requireInvariants(t, dup)

	same, err := r.SetContentForPanes(s, []PaneUpdate{
		{PaneIndex: 0, ContentRefs: refs("C")},
		{PaneIndex: 1, ContentRefs: refs("C")},
	})
	require.NoError(t, err)
	requireInvariants(t, same)
}

func TestSetContentForPanesKeepsIdsRegardlessOfOrder(t *testing.T) {
	r := NewReducer(nil)

	same, err := r.SetLayout(InitialState(), LayoutRequest{Rows: 1, Cols: 2, FindOrCreate: fill(refs("A"), refs("A"))})
	require.NoError(t, err)
	reversed, err := r.SetContentForPanes(same, []PaneUpdate{
		{PaneIndex: 1, ContentRefs: refs("A")},
		{PaneIndex: 0, ContentRefs: refs("A")},
	})
	require.NoError(t, err)
	require.Equal(t, same.PaneIDs(), reversed.PaneIDs())
	requireInvariants(t, reversed)

	// Pane 1 takes pane 0's content, but pane 0 is unchanged and keeps its id.
	mixed, err := r.SetLayout(InitialState(), LayoutRequest{Rows: 1, Cols: 2, FindOrCreate: fill(refs("A"), refs("B"))})
	require.NoError(t, err)
	dup, err := r.SetContentForPanes(mixed, []PaneUpdate{
		{PaneIndex: 1, ContentRefs: refs("A")},
		{PaneIndex: 0, ContentRefs: refs("A")},
	})
	require.NoError(t, err)
	require.Equal(t, mixed.Panes[0].ID, dup.Panes[0].ID)
	require.NotContains(t, mixed.PaneIDs(), dup.Panes[1].ID)
	requireInvariants(t, dup)

	s := layout2x2(t, r)
	again, err := r.SetContentForPanes(s, []PaneUpdate{
		{PaneIndex: 3, ContentRefs: refs("D")},
		{PaneIndex: 2, ContentRefs: refs("C")},
		{PaneIndex: 1, ContentRefs: refs("B")},
		{PaneIndex: 0, ContentRefs: refs("A")},
	})
	require.NoError(t, err)
	require.Equal(t, s.PaneIDs(), again.PaneIDs())
}

func TestSetLayoutPrefersPaneInSameCell(t *testing.T) {
	r := NewReducer(nil)
	s, err := r.SetLayout(InitialState(), LayoutRequest{Rows: 1, Cols: 2, FindOrCreate: fill(refs("A"), refs("A"))})
	require.NoError(t, err)

	again, err := r.SetLayout(s, LayoutRequest{Rows: 1, Cols: 2, FindOrCreate: fill(refs("A"), refs("A"))})
	require.NoError(t, err)
	require.Equal(t, s.PaneIDs(), again.PaneIDs())
}

func TestSetLayoutRecomputesPresentationIDOnMove(t *testing.T) {
	r := NewReducer(nil)
	s, err := r.SetLayout(InitialState(), LayoutRequest{Rows: 1, Cols: 2, FindOrCreate: fill(refs("A"), refs("B"))})
	require.NoError(t, err)
	require.Equal(t, "A&0-0", s.Panes[0].PresentationID())

	moved, err := r.SetLayout(s, LayoutRequest{Rows: 1, Cols: 2, FindOrCreate: fill(refs("B"), refs("A"))})
	require.NoError(t, err)
	require.Equal(t, s.Panes[0].ID, moved.Panes[1].ID)
	require.Equal(t, "A&1-0", moved.Panes[1].PresentationID())
	require.Equal(t, "B&0-0", moved.Panes[0].PresentationID())
}

func TestSetContentForPanesOptions(t *testing.T) {
	r := NewReducer(nil)
	s := layout2x2(t, r)
	s.Panes[0].PaneOptions["zoom"] = 3.0
	s.Panes[0].ContentOptions = []map[string]any{{"voi": "lung"}}

	kept, err := r.SetContentForPanes(s, []PaneUpdate{{PaneIndex: 0, ContentRefs: refs("A")}})
	require.NoError(t, err)
	require.Equal(t, 3.0, kept.Panes[0].PaneOptions["zoom"])
	require.Equal(t, []map[string]any{{"voi": "lung"}}, kept.Panes[0].ContentOptions)
	require.Equal(t, "A&0-0", kept.Panes[0].PresentationID())

	replaced, err := r.SetContentForPanes(s, []PaneUpdate{{
		PaneIndex:      0,
		ContentRefs:    refs("E", "F"),
		PaneOptions:    map[string]any{models.OptionViewportType: "volume"},
		ContentOptions: []map[string]any{{}, {"blend": true}},
	}})
	require.NoError(t, err)
	p := replaced.Panes[0]
	require.NotEqual(t, s.Panes[0].ID, p.ID)
	require.Equal(t, "volume&E&F&0-0", p.PresentationID())
	require.NotContains(t, p.PaneOptions, "zoom")
	require.Len(t, p.ContentOptions, 2)

	// The input state is never modified.
	require.Equal(t, []string{"A"}, s.Panes[0].ContentRefs)
}

func TestSetContentForPanesOutOfRange(t *testing.T) {
	r := NewReducer(nil)
	s := InitialState()
	_, err := r.SetContentForPanes(s, []PaneUpdate{{PaneIndex: 4, ContentRefs: refs("A")}})
	require.ErrorIs(t, err, ErrPaneIndexOutOfRange)
}

func TestPresentationIDsAreUnique(t *testing.T) {
	r := NewReducer(nil)
	s := layout2x2(t, r)
	s.Panes[1].PaneOptions[models.OptionPresentationID] = s.Panes[0].PresentationID()

	ensurePresentationIDs(s.Panes)
	require.Equal(t, "A&0-0", s.Panes[0].PresentationID())
	require.Equal(t, "B&1-0", s.Panes[1].PresentationID())

	panes := []models.Pane{
		{ContentRefs: refs("A"), PositionID: "p"},
		{ContentRefs: refs("A"), PositionID: "p"},
	}
	ensurePresentationIDs(panes)
	require.Equal(t, "A&p", panes[0].PresentationID())
	require.Equal(t, "A&p&1", panes[1].PresentationID())
}

func TestSetActivePane(t *testing.T) {
	r := NewReducer(nil)
	s := layout2x2(t, r)

	out, err := r.SetActivePane(s, 2)
	require.NoError(t, err)
	require.Equal(t, 2, out.ActivePaneIndex)

	_, err = r.SetActivePane(s, 4)
	require.ErrorIs(t, err, ErrPaneIndexOutOfRange)
	_, err = r.SetActivePane(s, -1)
	require.ErrorIs(t, err, ErrPaneIndexOutOfRange)
}

func TestReplace(t *testing.T) {
	r := NewReducer(nil)
	s := layout2x2(t, r)

	restored, err := r.Replace(InitialState(), PartialFromState(s))
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(s, restored))

	active := 7
	_, err = r.Replace(s, Partial{ActivePaneIndex: &active})
	require.ErrorIs(t, err, ErrInvalidState)

	dup := s.Clone()
	dup.Panes[1].ID = dup.Panes[0].ID
	_, err = r.Replace(s, Partial{Panes: dup.Panes})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestRemoveContent(t *testing.T) {
	r := NewReducer(nil)
	s, err := r.SetLayout(InitialState(), LayoutRequest{
		Rows:         1,
		Cols:         3,
		FindOrCreate: fill(refs("A", "B"), refs("C"), refs("D")),
	})
	require.NoError(t, err)
	s.Panes[0].ContentOptions = []map[string]any{{"n": 1}, {"n": 2}}

	out, changed, err := r.RemoveContent(s, []string{"A", "C"})
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, []string{"B"}, out.Panes[0].ContentRefs)
	require.Equal(t, []map[string]any{{"n": 2}}, out.Panes[0].ContentOptions)
	require.True(t, out.Panes[1].IsEmpty())
	require.Empty(t, out.Panes[1].ContentOptions)
	require.Equal(t, s.Panes[2].ID, out.Panes[2].ID)
	requireInvariants(t, out)

	_, changed, err = r.RemoveContent(s, []string{"Z"})
	require.NoError(t, err)
	require.False(t, changed)
}

// TestRandomTransitionsKeepInvariants drives a seeded sequence of transitions
// and checks the structural invariants after each one.
func TestRandomTransitionsKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	r := NewReducer(NewIDGenerator(99990, 100000))
	content := []string{"A", "B", "C", "D", "E"}
	pick := func() []string {
		n := rng.Intn(3)
		out := make([]string, 0, n)
		for range n {
			out = append(out, content[rng.Intn(len(content))])
		}
		return out
	}

	s := r.Reset()
	for step := range 300 {
		var next models.GridState
		var err error
		switch rng.Intn(4) {
		case 0:
			next, err = r.SetLayout(s, LayoutRequest{
				Rows: 1 + rng.Intn(3),
				Cols: 1 + rng.Intn(3),
				FindOrCreate: func(int, string, *Scratch) *models.Pane {
					if rng.Intn(5) == 0 {
						return nil
					}
					return &models.Pane{ContentRefs: pick()}
				},
			})
		case 1:
			var updates []PaneUpdate
			for i := range s.Panes {
				if rng.Intn(2) == 0 {
					updates = append(updates, PaneUpdate{PaneIndex: i, ContentRefs: pick()})
				}
			}
			next, err = r.SetContentForPanes(s, updates)
			if err == nil {
				for _, u := range updates {
					if slices.Equal(u.ContentRefs, s.Panes[u.PaneIndex].ContentRefs) {
						require.Equal(t, s.Panes[u.PaneIndex].ID, next.Panes[u.PaneIndex].ID,
							"step %d: unchanged pane %d lost its id", step, u.PaneIndex)
					}
				}
			}
		case 2:
			next, err = r.SetActivePane(s, rng.Intn(len(s.Panes)+1))
		case 3:
			next, _, err = r.RemoveContent(s, []string{content[rng.Intn(len(content))]})
		}
		if err != nil {
			next = s
		}
		require.NoError(t, next.Validate(), "step %d", step)
		if len(next.Panes) > 0 {
			requireInvariants(t, next)
		}
		s = next
	}
}
