package protocol

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/hangview/internal/catalog"
	"github.com/tOgg1/hangview/internal/grid"
	"github.com/tOgg1/hangview/internal/models"
)

const studyUID = "1.2.840.1"

func sampleSets() []models.DisplaySet {
	return []models.DisplaySet{
		{UID: "ct-axial", StudyUID: studyUID, SeriesUID: "s1", SeriesNumber: 1, Modality: "CT", SeriesDescription: "Axial 5mm"},
		{UID: "ct-coronal", StudyUID: studyUID, SeriesUID: "s2", SeriesNumber: 2, Modality: "CT", SeriesDescription: "Coronal MPR"},
		{UID: "mr-t1", StudyUID: studyUID, SeriesUID: "s3", SeriesNumber: 3, Modality: "MR", SeriesDescription: "T1 axial"},
	}
}

func ctProtocol() models.Protocol {
	return models.Protocol{
		ID: "ct",
		DisplaySetSelectors: map[string]models.DisplaySetSelector{
			"ct": {Rules: []models.MatchRule{{Attribute: "Modality", Equals: "CT", Required: true}}},
			"pet": {Rules: []models.MatchRule{{Attribute: "Modality", Equals: "PT", Required: true}}},
		},
		Stages: []models.Stage{
			{
				ID:        "single",
				Layout:    models.StageLayout{Rows: 1, Cols: 1},
				Viewports: []models.ViewportSpec{{DisplaySets: []models.DisplaySetRef{{SelectorID: "ct"}}}},
			},
			{
				ID:     "dual",
				Layout: models.StageLayout{Rows: 1, Cols: 2},
				Viewports: []models.ViewportSpec{
					{DisplaySets: []models.DisplaySetRef{{SelectorID: "ct"}}},
					{DisplaySets: []models.DisplaySetRef{{SelectorID: "ct", MatchedIndex: 1}}},
				},
			},
			{
				ID:        "pet",
				Layout:    models.StageLayout{Rows: 1, Cols: 1},
				Viewports: []models.ViewportSpec{{DisplaySets: []models.DisplaySetRef{{SelectorID: "pet", Required: true}}}},
			},
			{
				ID:     "off",
				Status: models.StageStatusDisabled,
				Layout: models.StageLayout{Rows: 1, Cols: 1},
			},
			{
				ID:     "exotic",
				Layout: models.StageLayout{Rows: 1, Cols: 1},
				Viewports: []models.ViewportSpec{{
					ViewportOptions: map[string]any{models.OptionViewportType: "hologram"},
				}},
			},
		},
	}
}

type fixture struct {
	catalog *catalog.Catalog
	grid    *grid.Store
	service *Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cat := catalog.New()
	require.NoError(t, cat.Add(context.Background(), sampleSets()...))
	store := grid.NewStore()
	svc := NewService(cat, store)
	require.NoError(t, svc.Register(context.Background(), ctProtocol()))
	return fixture{catalog: cat, grid: store, service: svc}
}

func intPtr(v int) *int {
	return &v
}
