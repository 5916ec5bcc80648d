package grid

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/hangview/internal/models"
)

func pane(id string, w, h float64, content ...string) models.Pane {
	return models.Pane{
		ID:          id,
		ContentRefs: content,
		PaneOptions: map[string]any{models.OptionViewportID: id},
		Position:    models.Position{Width: w, Height: h},
	}
}

func TestReusableIsOrderSensitive(t *testing.T) {
	prev := pane("p", 0.5, 1, "A", "B")
	require.True(t, Reusable(prev, pane("", 0.5, 1, "A", "B")))
	require.False(t, Reusable(prev, pane("", 0.5, 1, "B", "A")))
	require.False(t, Reusable(prev, pane("", 0.25, 1, "A", "B")))
	require.False(t, Reusable(prev, pane("", 0.5, 0.5, "A", "B")))
}

func TestResolveReusesAndMergesOptions(t *testing.T) {
	r := NewIdentityResolver(NewIDGenerator(1, 100))
	prev := pane("viewport-old", 1, 1, "A")
	prev.PaneOptions["zoom"] = 2.0
	prev.PaneOptions["toolGroupId"] = "default"

	next := pane("", 1, 1, "A")
	next.PaneOptions = map[string]any{"toolGroupId": "mpr"}

	claimed := Claims{}
	out := r.Resolve(claimed, next, []models.Pane{prev})

	require.Equal(t, "viewport-old", out.ID)
	require.Equal(t, 2.0, out.PaneOptions["zoom"])
	require.Equal(t, "mpr", out.PaneOptions["toolGroupId"])
	require.Equal(t, "viewport-old", out.PaneOptions[models.OptionViewportID])
	require.True(t, claimed.Has("viewport-old"))
}

func TestResolveSkipsClaimedIDs(t *testing.T) {
	r := NewIdentityResolver(NewIDGenerator(1, 100))
	prev := []models.Pane{pane("viewport-old", 1, 1, "A")}
	claimed := Claims{}

	first := r.Resolve(claimed, pane("", 1, 1, "A"), prev)
	second := r.Resolve(claimed, pane("", 1, 1, "A"), prev)

	require.Equal(t, "viewport-old", first.ID)
	require.Equal(t, "viewport-1", second.ID)
}

func TestMintSkipsIDsStillInUse(t *testing.T) {
	r := NewIdentityResolver(NewIDGenerator(1, 100))
	prev := []models.Pane{pane("viewport-1", 1, 1, "X"), pane("viewport-2", 1, 1, "Y")}

	out := r.ResolveAll([]models.Pane{pane("", 1, 1, "Z")}, prev)
	require.Equal(t, "viewport-3", out[0].ID)
}

func TestResolveAllNeverDuplicates(t *testing.T) {
	r := NewIdentityResolver(NewIDGenerator(1, 100))
	prev := []models.Pane{pane("viewport-a", 0.5, 1, "A")}
	next := []models.Pane{pane("", 0.5, 1, "A"), pane("", 0.5, 1, "A")}

	out := r.ResolveAll(next, prev)
	require.Equal(t, "viewport-a", out[0].ID)
	require.NotEqual(t, out[0].ID, out[1].ID)
}
