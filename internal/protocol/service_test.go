package protocol

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/hangview/internal/events"
	"github.com/tOgg1/hangview/internal/models"
)

func TestNewServiceHasDefaultProtocol(t *testing.T) {
	f := newFixture(t)
	_, ok := f.service.Protocol(models.DefaultProtocolID)
	require.True(t, ok)

	active, ok := f.service.ActiveProtocol()
	require.True(t, ok)
	require.Equal(t, models.DefaultProtocolID, active.Protocol.ID)
	require.Equal(t, 0, active.StageIndex)

	ids := []string{}
	for _, p := range f.service.Protocols() {
		ids = append(ids, p.ID)
	}
	require.Equal(t, []string{"default", "ct"}, ids)
}

func TestSetProtocolAppliesStage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.service.SetProtocol(ctx, "ct", SetOptions{StageIndex: intPtr(1)}))

	state := f.grid.State()
	require.Equal(t, models.Layout{Rows: 1, Cols: 2, LayoutType: models.LayoutTypeGrid}, state.Layout)
	require.Len(t, state.Panes, 2)
	require.Equal(t, []string{"ct-axial"}, state.Panes[0].ContentRefs)
	require.Equal(t, []string{"ct-coronal"}, state.Panes[1].ContentRefs)
	require.Equal(t, []string{"ct"}, state.Panes[1].ContentSelectors)
	require.Equal(t, 1, state.Panes[1].ContentOptions[0][models.ContentOptionMatchedIndex])
	require.Equal(t, "stack", state.Panes[0].Option(models.OptionViewportType))
	require.Equal(t, "default", state.Panes[0].Option(models.OptionToolGroupID))

	require.Equal(t, models.ProtocolState{ProtocolID: "ct", StageIndex: 1, ActiveStudyUID: studyUID}, f.service.State())
}

func TestSetProtocolHonorsSelectorMap(t *testing.T) {
	f := newFixture(t)
	selectors := map[string]string{
		SelectorMapKey(studyUID, "ct", 0): "ct-coronal",
		SelectorMapKey(studyUID, "ct", 1): "gone",
	}
	require.NoError(t, f.service.SetProtocol(context.Background(), "ct", SetOptions{
		StageIndex:            intPtr(1),
		DisplaySetSelectorMap: selectors,
	}))
	state := f.grid.State()
	require.Equal(t, []string{"ct-coronal"}, state.Panes[0].ContentRefs)
	// An entry naming unknown content falls back to rule ranking.
	require.Equal(t, []string{"ct-coronal"}, state.Panes[1].ContentRefs)
}

func TestSetProtocolFailuresLeaveStateUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.service.SetProtocol(ctx, "ct", SetOptions{}))
	gridBefore := f.grid.State()
	stateBefore := f.service.State()

	cases := []struct {
		name string
		id   string
		opts SetOptions
		want error
	}{
		{"unknown protocol", "nope", SetOptions{}, ErrProtocolNotFound},
		{"stage out of range", "ct", SetOptions{StageIndex: intPtr(9)}, ErrInvalidStageIndex},
		{"negative stage", "ct", SetOptions{StageIndex: intPtr(-1)}, ErrInvalidStageIndex},
		{"required content missing", "ct", SetOptions{StageIndex: intPtr(2)}, ErrRequiredContentMissing},
		{"disabled stage", "ct", SetOptions{StageIndex: intPtr(3)}, ErrStageNotApplicable},
		{"unknown viewport type", "ct", SetOptions{StageIndex: intPtr(4)}, ErrUnknownViewportType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.service.SetProtocol(ctx, tc.id, tc.opts)
			require.ErrorIs(t, err, tc.want)
			require.Empty(t, cmp.Diff(gridBefore, f.grid.State()))
			require.Equal(t, stateBefore, f.service.State())
		})
	}
}

func TestSetProtocolScopesToActiveStudy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.catalog.Add(ctx, models.DisplaySet{UID: "prior-ct", StudyUID: "9.9", Modality: "CT"}))

	f.service.SetActiveStudyUID("9.9")
	require.NoError(t, f.service.SetProtocol(ctx, "ct", SetOptions{}))
	require.Equal(t, []string{"prior-ct"}, f.grid.State().Panes[0].ContentRefs)
	require.Equal(t, "9.9", f.service.State().ActiveStudyUID)
}

func TestSetProtocolExplicitPositions(t *testing.T) {
	f := newFixture(t)
	p := models.Protocol{
		ID:                  "side",
		DisplaySetSelectors: map[string]models.DisplaySetSelector{"any": {}},
		Stages: []models.Stage{{
			ID: "main",
			Layout: models.StageLayout{LayoutOptions: []models.LayoutOption{
				{PositionID: "big", Width: 0.75, Height: 1},
				{PositionID: "thumb", X: 0.75, Width: 0.25, Height: 0.5},
			}},
			DefaultViewport: &models.ViewportSpec{DisplaySets: []models.DisplaySetRef{{SelectorID: "any"}}},
		}},
	}
	require.NoError(t, f.service.Register(context.Background(), p))
	require.NoError(t, f.service.SetProtocol(context.Background(), "side", SetOptions{}))

	state := f.grid.State()
	require.Equal(t, models.LayoutTypeCustom, state.Layout.LayoutType)
	require.Len(t, state.Panes, 2)
	require.Equal(t, "big", state.Panes[0].PositionID)
	require.Equal(t, models.Position{X: 0.75, Width: 0.25, Height: 0.5}, state.Panes[1].Position)
}

func TestStageIndex(t *testing.T) {
	f := newFixture(t)

	idx, err := f.service.StageIndex("ct", StageRef{StageID: "dual"})
	require.NoError(t, err)
	require.Equal(t, 1, idx)

	idx, err = f.service.StageIndex("ct", StageRef{StageIndex: intPtr(2)})
	require.NoError(t, err)
	require.Equal(t, 2, idx)

	idx, err = f.service.StageIndex("ct", StageRef{})
	require.NoError(t, err)
	require.Equal(t, -1, idx)

	_, err = f.service.StageIndex("ct", StageRef{StageID: "nope"})
	require.ErrorIs(t, err, ErrStageNotFound)
	_, err = f.service.StageIndex("ct", StageRef{StageIndex: intPtr(5)})
	require.ErrorIs(t, err, ErrInvalidStageIndex)
	_, err = f.service.StageIndex("nope", StageRef{})
	require.ErrorIs(t, err, ErrProtocolNotFound)
}

func TestMissingPane(t *testing.T) {
	f := newFixture(t)

	pane, err := f.service.MissingPane("ct", 0, []string{"ct-axial"})
	require.NoError(t, err)
	require.NotNil(t, pane)
	require.Equal(t, []string{"ct-coronal"}, pane.ContentRefs)

	pane, err = f.service.MissingPane("ct", 0, []string{"ct-axial", "ct-coronal", "mr-t1"})
	require.NoError(t, err)
	require.Nil(t, pane)

	// The default protocol's default viewport goes through its selector.
	pane, err = f.service.MissingPane(models.DefaultProtocolID, 0, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"ct-axial"}, pane.ContentRefs)
	require.Equal(t, DefaultSelectorID, pane.ContentOptions[0][models.ContentOptionSelectorID])

	_, err = f.service.MissingPane("ct", 7, nil)
	require.ErrorIs(t, err, ErrInvalidStageIndex)
}

func TestRegisterValidatesAndAnnounces(t *testing.T) {
	f := newFixture(t)
	pub := events.NewInMemoryPublisher()
	var loaded []*models.Event
	_, err := pub.SubscribeFunc(events.Filter{EventTypes: []models.EventType{models.EventTypeProtocolsLoaded}},
		func(e *models.Event) { loaded = append(loaded, e) })
	require.NoError(t, err)
	svc := NewService(f.catalog, f.grid, WithPublisher(pub))

	err = svc.Register(context.Background(), models.Protocol{ID: "broken"})
	require.Error(t, err)
	require.Empty(t, loaded)

	require.NoError(t, svc.Register(context.Background(), ctProtocol()))
	require.Len(t, loaded, 1)
	require.Equal(t, []string{"ct"}, loaded[0].Payload)
}

func TestReloadKeepsDefault(t *testing.T) {
	f := newFixture(t)
	other := ctProtocol()
	other.ID = "other"
	require.NoError(t, f.service.Reload(context.Background(), []models.Protocol{other}))

	_, ok := f.service.Protocol("ct")
	require.False(t, ok)
	_, ok = f.service.Protocol("other")
	require.True(t, ok)
	_, ok = f.service.Protocol(models.DefaultProtocolID)
	require.True(t, ok)
}

func TestSetProtocolRestoreLeavesGrid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.grid.State()

	require.NoError(t, f.service.SetProtocol(ctx, "ct", SetOptions{StageIndex: intPtr(1), Restore: true}))
	require.Equal(t, before, f.grid.State())

	state := f.service.State()
	require.Equal(t, "ct", state.ProtocolID)
	require.Equal(t, 1, state.StageIndex)
	require.Equal(t, studyUID, state.ActiveStudyUID)

	err := f.service.SetProtocol(ctx, "ct", SetOptions{StageIndex: intPtr(3), Restore: true})
	require.ErrorIs(t, err, ErrStageNotApplicable)
}

func TestPlannedLayout(t *testing.T) {
	layout, cells := PlannedLayout(ctProtocol().Stages[1])
	require.Equal(t, models.LayoutTypeGrid, layout.LayoutType)
	require.Equal(t, 2, cells)

	wide := models.Stage{Layout: models.StageLayout{Rows: 1, Cols: 1, LayoutOptions: []models.LayoutOption{
		{Width: 0.5, Height: 1}, {X: 0.5, Width: 0.5, Height: 1}, {Width: 0.1, Height: 0.1},
	}}}
	layout, cells = PlannedLayout(wide)
	require.Equal(t, 1, layout.Rows)
	require.Equal(t, 3, layout.Cols)
	require.Equal(t, models.LayoutTypeCustom, layout.LayoutType)
	require.Equal(t, 3, cells)
}
