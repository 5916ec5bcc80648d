package grid

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/hangview/internal/events"
	"github.com/tOgg1/hangview/internal/models"
)

func newTestStore(t *testing.T) (*Store, *events.InMemoryPublisher, *[]*models.Event) {
	t.Helper()
	pub := events.NewInMemoryPublisher()
	var mu sync.Mutex
	var got []*models.Event
	_, err := pub.SubscribeFunc(events.Filter{EntityTypes: []models.EntityType{models.EntityTypeGrid}}, func(e *models.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	})
	require.NoError(t, err)
	return NewStore(WithPublisher(pub), WithIDGenerator(NewIDGenerator(100, 1000))), pub, &got
}

func TestStoreStartsWithOnePane(t *testing.T) {
	s, _, _ := newTestStore(t)
	state := s.State()
	require.Len(t, state.Panes, 1)
	require.Equal(t, "viewport-100", state.Panes[0].ID)
}

func TestStorePublishesCommits(t *testing.T) {
	ctx := context.Background()
	s, _, got := newTestStore(t)

	require.True(t, s.SetLayout(ctx, LayoutRequest{Rows: 1, Cols: 2, FindOrCreate: fill(refs("A"), refs("B"))}))
	require.True(t, s.SetActivePane(ctx, 1))
	s.Reset(ctx)

	require.Len(t, *got, 3)
	require.Equal(t, models.EventTypeGridLayoutChanged, (*got)[0].Type)
	require.Equal(t, models.EventTypeGridChanged, (*got)[1].Type)
	require.Equal(t, models.EventTypeGridReset, (*got)[2].Type)

	payload, ok := (*got)[1].Payload.(models.GridChangedPayload)
	require.True(t, ok)
	require.Equal(t, ReasonActivePane, payload.Reason)
	require.Equal(t, 1, payload.State.ActivePaneIndex)
}

func TestStoreInvalidOperationsAreNoOps(t *testing.T) {
	ctx := context.Background()
	s, _, got := newTestStore(t)
	before := s.State()

	require.False(t, s.SetActivePane(ctx, 5))
	require.False(t, s.SetLayout(ctx, LayoutRequest{Rows: 0, Cols: 0, FindOrCreate: fill()}))
	require.False(t, s.SetContentForPanes(ctx, []PaneUpdate{{PaneIndex: 9}}))
	bad := 3
	require.False(t, s.Replace(ctx, Partial{ActivePaneIndex: &bad}))

	require.Equal(t, before, s.State())
	require.Empty(t, *got)
}

func TestStoreStateIsACopy(t *testing.T) {
	s, _, _ := newTestStore(t)
	state := s.State()
	state.Panes[0].ContentRefs = append(state.Panes[0].ContentRefs, "X")
	require.Empty(t, s.State().Panes[0].ContentRefs)
}

func TestStoreStrategyMayReadState(t *testing.T) {
	s, _, _ := newTestStore(t)
	ok := s.SetLayout(context.Background(), LayoutRequest{
		Rows: 1,
		Cols: 1,
		FindOrCreate: func(int, string, *Scratch) *models.Pane {
			cur := s.State()
			return &models.Pane{ContentRefs: []string{cur.Panes[0].ID}}
		},
	})
	require.True(t, ok)
	require.Equal(t, []string{"viewport-100"}, s.State().Panes[0].ContentRefs)
}

func TestStoreWatchContentRemoval(t *testing.T) {
	ctx := context.Background()
	s, pub, got := newTestStore(t)
	require.True(t, s.SetLayout(ctx, LayoutRequest{Rows: 1, Cols: 2, FindOrCreate: fill(refs("A"), refs("B"))}))

	stop, err := s.WatchContentRemoval(pub)
	require.NoError(t, err)

	pub.Publish(ctx, events.NewEvent(models.EventTypeContentRemoved, models.EntityTypeContent, "B",
		models.ContentRemovedPayload{DisplaySetUIDs: []string{"B"}}))

	state := s.State()
	require.Equal(t, []string{"A"}, state.Panes[0].ContentRefs)
	require.True(t, state.Panes[1].IsEmpty())
	require.Len(t, *got, 2)

	// Removing content nobody shows commits nothing.
	pub.Publish(ctx, events.NewEvent(models.EventTypeContentRemoved, models.EntityTypeContent, "Z",
		models.ContentRemovedPayload{DisplaySetUIDs: []string{"Z"}}))
	require.Len(t, *got, 2)

	stop()
	pub.Publish(ctx, events.NewEvent(models.EventTypeContentRemoved, models.EntityTypeContent, "A",
		models.ContentRemovedPayload{DisplaySetUIDs: []string{"A"}}))
	require.Equal(t, []string{"A"}, s.State().Panes[0].ContentRefs)
}

func TestStoreConcurrentReaders(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for range 50 {
				if err := s.State().Validate(); err != nil {
					t.Error(err)
					return
				}
				if i == 0 {
					s.SetLayout(ctx, LayoutRequest{Rows: 2, Cols: 2, FindOrCreate: fill(refs("A"), refs("B"), refs("C"), refs("D"))})
				}
			}
		}(i)
	}
	wg.Wait()
}
