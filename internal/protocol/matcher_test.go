package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/hangview/internal/models"
)

func TestScore(t *testing.T) {
	sel := models.DisplaySetSelector{Rules: []models.MatchRule{
		{Attribute: "Modality", Equals: "ct", Required: true},
		{Attribute: "SeriesDescription", Contains: "AXIAL", Weight: 5},
	}}
	sets := sampleSets()

	score, ok := Score(sel, sets[0])
	require.True(t, ok)
	require.Equal(t, 6, score)

	score, ok = Score(sel, sets[1])
	require.True(t, ok)
	require.Equal(t, 1, score)

	_, ok = Score(sel, sets[2])
	require.False(t, ok)

	_, ok = Score(models.DisplaySetSelector{}, sets[2])
	require.True(t, ok)
}

func TestScoreAttributeFallback(t *testing.T) {
	ds := models.DisplaySet{UID: "x", Attributes: map[string]string{"BodyPartExamined": "CHEST"}}
	sel := models.DisplaySetSelector{Rules: []models.MatchRule{{Attribute: "BodyPartExamined", Equals: "chest"}}}
	_, ok := Score(sel, ds)
	require.True(t, ok)

	presence := models.DisplaySetSelector{Rules: []models.MatchRule{{Attribute: "ImageOrientation"}}}
	_, ok = Score(presence, ds)
	require.False(t, ok)
}

func TestRankPrefersHigherScores(t *testing.T) {
	sel := models.DisplaySetSelector{Rules: []models.MatchRule{
		{Attribute: "SeriesDescription", Contains: "axial", Weight: 3},
		{Attribute: "Modality", Equals: "CT"},
	}}
	var got []string
	for _, ds := range Rank(sel, sampleSets()) {
		got = append(got, ds.UID)
	}
	// ct-axial scores 4, mr-t1 3, ct-coronal 1.
	require.Equal(t, []string{"ct-axial", "mr-t1", "ct-coronal"}, got)
}

func TestMatcherResolve(t *testing.T) {
	m := NewMatcher(ctProtocol(), studyUID, sampleSets(), map[string]string{
		SelectorMapKey(studyUID, "ct", 1): "mr-t1",
	})

	ds, ok, err := m.Resolve(models.DisplaySetRef{SelectorID: "ct"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "ct-axial", ds.UID)

	ds, ok, err = m.Resolve(models.DisplaySetRef{SelectorID: "ct", MatchedIndex: 1})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "mr-t1", ds.UID)

	_, ok, err = m.Resolve(models.DisplaySetRef{SelectorID: "ct", MatchedIndex: 4})
	require.NoError(t, err)
	require.False(t, ok)

	_, _, err = m.Resolve(models.DisplaySetRef{SelectorID: "pet", Required: true})
	require.ErrorIs(t, err, ErrRequiredContentMissing)
}

func TestSelectorMapKey(t *testing.T) {
	require.Equal(t, "1.2:ct:0", SelectorMapKey("1.2", "ct", 0))
}
