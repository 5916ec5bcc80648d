package hp

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/hangview/internal/catalog"
	"github.com/tOgg1/hangview/internal/events"
	"github.com/tOgg1/hangview/internal/grid"
	"github.com/tOgg1/hangview/internal/models"
	"github.com/tOgg1/hangview/internal/protocol"
)

const studyUID = "1.2.840.7"

func intPtr(v int) *int { return &v }

func sampleSets() []models.DisplaySet {
	return []models.DisplaySet{
		{UID: "ct-axial", StudyUID: studyUID, SeriesUID: "s1", SeriesNumber: 1, Modality: "CT", SeriesDescription: "Axial"},
		{UID: "ct-coronal", StudyUID: studyUID, SeriesUID: "s2", SeriesNumber: 2, Modality: "CT", SeriesDescription: "Coronal"},
		{UID: "mr-t1", StudyUID: studyUID, SeriesUID: "s3", SeriesNumber: 3, Modality: "MR", SeriesDescription: "T1"},
	}
}

func ctSelectors() map[string]models.DisplaySetSelector {
	return map[string]models.DisplaySetSelector{
		"ct":  {Rules: []models.MatchRule{{Attribute: "Modality", Equals: "CT", Required: true}}},
		"pet": {Rules: []models.MatchRule{{Attribute: "Modality", Equals: "PT", Required: true}}},
	}
}

// ctProtocol has stages single (1x1), dual (1x2) and pet, which needs
// content the study does not have.
func ctProtocol() models.Protocol {
	return models.Protocol{
		ID:                  "ct",
		DisplaySetSelectors: ctSelectors(),
		Callbacks: models.Callbacks{
			OnProtocolEnter: []models.Command{{Name: "enter"}},
			OnProtocolExit:  []models.Command{{Name: "exit"}},
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
		},
	}
}

// navProtocol has stages [enabled, disabled, enabled].
func navProtocol() models.Protocol {
	single := models.StageLayout{Rows: 1, Cols: 1}
	return models.Protocol{
		ID:                  "nav",
		DisplaySetSelectors: ctSelectors(),
		Callbacks: models.Callbacks{
			OnProtocolEnter: []models.Command{{Name: "enter"}},
			OnLayoutChange:  []models.Command{{Name: "guard"}},
		},
		Stages: []models.Stage{
			{ID: "first", Layout: single, Viewports: []models.ViewportSpec{{DisplaySets: []models.DisplaySetRef{{SelectorID: "ct"}}}}},
			{ID: "skipped", Status: models.StageStatusDisabled, Layout: single},
			{ID: "last", Layout: single, Viewports: []models.ViewportSpec{{DisplaySets: []models.DisplaySetRef{{SelectorID: "ct", MatchedIndex: 1}}}}},
		},
	}
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *recordingNotifier) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recordingNotifier) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.notes {
		out = append(out, n.Title)
	}
	return out
}

type fixture struct {
	grid      *grid.Store
	protocols *protocol.Service
	runner    *HandlerRunner
	notifier  *recordingNotifier
	publisher *events.InMemoryPublisher
	ctrl      *Controller
	calls     []string
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()

	cat := catalog.New()
	require.NoError(t, cat.Add(ctx, sampleSets()...))
	store := grid.NewStore()
	svc := protocol.NewService(cat, store)
	require.NoError(t, svc.Register(ctx, ctProtocol(), navProtocol()))

	f := &fixture{
		grid:      store,
		protocols: svc,
		runner:    NewHandlerRunner(),
		notifier:  &recordingNotifier{},
		publisher: events.NewInMemoryPublisher(),
	}
	record := func(_ context.Context, cmd Command, _ map[string]any) (any, error) {
		f.calls = append(f.calls, string(cmd.Kind)+":"+cmd.ProtocolID)
		return nil, nil
	}
	f.runner.Handle("enter", record)
	f.runner.Handle("exit", record)

	base := []Option{WithRunner(f.runner), WithNotifier(f.notifier), WithPublisher(f.publisher)}
	f.ctrl = NewController(svc, store, append(base, opts...)...)

	require.True(t, f.ctrl.ApplyProtocol(ctx, Params{ProtocolID: models.DefaultProtocolID, ActiveStudyUID: studyUID}))
	f.calls = nil
	return f
}

func (f *fixture) contents() [][]string {
	var out [][]string
	for _, p := range f.grid.State().Panes {
		out = append(out, p.ContentRefs)
	}
	return out
}

func (f *fixture) requireStage(t *testing.T, protocolID string, stageIndex int) {
	t.Helper()
	state := f.protocols.State()
	require.Equal(t, protocolID, state.ProtocolID)
	require.Equal(t, stageIndex, state.StageIndex)
}
