package grid

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/hangview/internal/models"
)

// fill returns a strategy placing contents[pos] in each cell, or nil when
// contents has no entry for the cell.
func fill(contents ...[]string) FindOrCreateFunc {
	return func(pos int, _ string, scratch *Scratch) *models.Pane {
		if pos >= len(contents) || contents[pos] == nil {
			return nil
		}
		scratch.MarkPlaced(contents[pos]...)
		return &models.Pane{ContentRefs: contents[pos]}
	}
}

func refs(uids ...string) []string {
	return uids
}

func requireInvariants(t *testing.T, s models.GridState) {
	t.Helper()
	require.NoError(t, s.Validate())
	seen := map[string]bool{}
	for _, p := range s.Panes {
		require.NotEmpty(t, p.ID)
		require.False(t, seen[p.ID], "duplicate pane id %s", p.ID)
		seen[p.ID] = true
		require.Equal(t, p.ID, p.Option(models.OptionViewportID))
		require.NotEmpty(t, p.PresentationID())
	}
	if len(s.Panes) > 0 {
		require.GreaterOrEqual(t, s.ActivePaneIndex, 0)
		require.Less(t, s.ActivePaneIndex, len(s.Panes))
	}
}

func layout2x2(t *testing.T, r *Reducer) models.GridState {
	t.Helper()
	s, err := r.SetLayout(InitialState(), LayoutRequest{
		Rows:         2,
		Cols:         2,
		FindOrCreate: fill(refs("A"), refs("B"), refs("C"), refs("D")),
	})
	require.NoError(t, err)
	return s
}
