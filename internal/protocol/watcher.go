package protocol

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/tOgg1/hangview/internal/logging"
	"github.com/tOgg1/hangview/internal/models"
)

// DefaultReloadDelay coalesces bursts of file writes into one reload.
const DefaultReloadDelay = 100 * time.Millisecond

// ReloadFunc receives the definitions after a directory change.
type ReloadFunc func(ctx context.Context, protocols []models.Protocol) error

// Watcher reloads protocol definitions when files in a directory change.
type Watcher struct {
	dir      string
	delay    time.Duration
	onReload ReloadFunc
	logger   zerolog.Logger
}

// NewWatcher creates a watcher for dir. Non-positive delay uses DefaultReloadDelay.
func NewWatcher(dir string, delay time.Duration, onReload ReloadFunc) *Watcher {
	if delay <= 0 {
		delay = DefaultReloadDelay
	}
	return &Watcher{
		dir:      dir,
		delay:    delay,
		onReload: onReload,
		logger:   logging.Component("protocol-watcher"),
	}
}

// Run watches until ctx is cancelled. Invalid definitions are logged and
// the previously loaded set stays in effect.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("protocol watcher: ensure dir: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("protocol watcher: create: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("protocol watcher: watch %s: %w", w.dir, err)
	}
	w.logger.Debug().Str("dir", w.dir).Msg("watching protocol definitions")

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watch error")
		case evt, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !IsDefinitionFile(evt.Name) || evt.Op == fsnotify.Chmod {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.delay)
			} else {
				timer.Reset(w.delay)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.reload(ctx)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	protocols, err := LoadDir(w.dir)
	if err != nil {
		w.logger.Error().Err(err).Msg("protocol reload failed")
		return
	}
	if w.onReload == nil {
		return
	}
	if err := w.onReload(ctx, protocols); err != nil {
		w.logger.Error().Err(err).Msg("protocol reload rejected")
	}
}
