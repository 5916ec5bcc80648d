// Package metrics exports engine outcomes as prometheus collectors fed by
// the event bus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tOgg1/hangview/internal/events"
	"github.com/tOgg1/hangview/internal/logging"
	"github.com/tOgg1/hangview/internal/models"
)

const namespace = "hangview"

// Recorder counts protocol and grid events.
type Recorder struct {
	registry *prometheus.Registry
	logger   zerolog.Logger

	events    *prometheus.CounterVec
	applied   *prometheus.CounterVec
	failed    *prometheus.CounterVec
	restored  prometheus.Counter
	exhausted prometheus.Counter
	rejected  prometheus.Counter
	deferred  prometheus.Counter
	panes     prometheus.Gauge
	cells     prometheus.Gauge
}

// New creates a recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		logger:   logging.Component("metrics"),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events published on the bus, by type.",
		}, []string{"type"}),
		applied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_applied_total",
			Help:      "Protocol stages applied, by protocol.",
		}, []string{"protocol"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_failed_total",
			Help:      "Protocol applications that failed, by protocol.",
		}, []string{"protocol"}),
		restored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grid_restored_total",
			Help:      "Applications that restored a remembered custom grid.",
		}),
		exhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_exhausted_total",
			Help:      "Stage navigation requests with no applicable stage left.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layout_rejected_total",
			Help:      "Layout changes vetoed by a protocol callback.",
		}),
		deferred: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layout_deferred_total",
			Help:      "Layout changes queued behind a running command.",
		}),
		panes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "grid_panes",
			Help:      "Panes in the current grid.",
		}),
		cells: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "grid_cells",
			Help:      "Rows times columns of the current grid layout.",
		}),
	}
	r.registry.MustRegister(r.events, r.applied, r.failed, r.restored, r.exhausted,
		r.rejected, r.deferred, r.panes, r.cells)
	return r
}

// Registry returns the registry holding the recorder's collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Attach subscribes the recorder to every event on pub. The returned
// function unsubscribes.
func (r *Recorder) Attach(pub events.Publisher) (func(), error) {
	id := "metrics-" + uuid.NewString()
	if err := pub.Subscribe(id, events.Filter{}, r.Observe); err != nil {
		return nil, fmt.Errorf("subscribe metrics: %w", err)
	}
	return func() { _ = pub.Unsubscribe(id) }, nil
}

// Observe records one event.
func (r *Recorder) Observe(ev *models.Event) {
	if ev == nil {
		return
	}
	r.events.WithLabelValues(string(ev.Type)).Inc()

	switch ev.Type {
	case models.EventTypeProtocolApplied:
		r.applied.WithLabelValues(ev.EntityID).Inc()
		if p, ok := ev.Payload.(models.ProtocolAppliedPayload); ok && p.Restored {
			r.restored.Inc()
		}
	case models.EventTypeProtocolFailed:
		r.failed.WithLabelValues(ev.EntityID).Inc()
	case models.EventTypeStageExhausted:
		r.exhausted.Inc()
	case models.EventTypeLayoutRejected:
		r.rejected.Inc()
	case models.EventTypeLayoutDeferred:
		r.deferred.Inc()
	case models.EventTypeGridChanged, models.EventTypeGridLayoutChanged, models.EventTypeGridReset:
		if p, ok := ev.Payload.(models.GridChangedPayload); ok {
			r.panes.Set(float64(len(p.State.Panes)))
			r.cells.Set(float64(p.State.Layout.Rows * p.State.Layout.Cols))
		}
	}
}

// Handler serves the registry in the prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info().Str("addr", addr).Msg("serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve metrics: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics: %w", err)
		}
		return nil
	}
}
