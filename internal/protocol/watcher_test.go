package protocol

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tOgg1/hangview/internal/models"
)

func TestWatcherReloadsOnChange(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	reloaded := make(chan []models.Protocol, 4)
	w := NewWatcher(dir, 20*time.Millisecond, func(_ context.Context, protocols []models.Protocol) error {
		reloaded <- protocols
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(50 * time.Millisecond)
	writeFile(t, dir, "ct.yaml", compareYAML)
	writeFile(t, dir, "ignored.txt", "x")

	select {
	case protocols := <-reloaded:
		require.Len(t, protocols, 1)
		require.Equal(t, "ct-compare", protocols[0].ID)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload")
	}

	// A broken file does not reach the callback.
	writeFile(t, dir, "broken.yaml", "id: [")
	select {
	case <-reloaded:
		t.Fatal("broken definitions must not be delivered")
	case <-time.After(200 * time.Millisecond):
	}

	writeFile(t, dir, "broken.yaml", strings.Replace(compareYAML, "ct-compare", "fixed", 1))
	select {
	case protocols := <-reloaded:
		require.Len(t, protocols, 2)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload after fix")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
