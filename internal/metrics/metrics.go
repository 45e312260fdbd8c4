// Package metrics defines the Prometheus metrics of a scan run.
//
// Metrics:
//   - patentscan_outcomes_total{status, reason} (Counter): resolved documents
//   - patentscan_job_duration_seconds{status} (Histogram): fetch task duration
//   - patentscan_fetch_attempts_total{result} (Counter): HTTP attempts (ok, retry, error)
//   - patentscan_pacing_wait_seconds (Histogram): time spent waiting on a pacing key
//   - patentscan_cache_lookups_total{result} (Counter): document cache hit, miss or stale
//   - patentscan_batch_in_flight (Gauge): jobs currently running
//
// Example queries:
//
//	# Failure rate
//	sum(rate(patentscan_outcomes_total{status="failed"}[5m])) / sum(rate(patentscan_outcomes_total[5m]))
//
//	# P95 pacing wait
//	histogram_quantile(0.95, rate(patentscan_pacing_wait_seconds_bucket[5m]))
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all patentscan metrics are registered with.
var Registry = prometheus.DefaultRegisterer

var (
	OutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patentscan_outcomes_total",
			Help: "Total number of resolved documents by status",
		},
		[]string{"status", "reason"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "patentscan_job_duration_seconds",
			Help:    "Fetch task duration including pacing",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"status"},
	)

	FetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patentscan_fetch_attempts_total",
			Help: "Total number of HTTP attempts by result",
		},
		[]string{"result"}, // "ok", "retry", "error"
	)

	PacingWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "patentscan_pacing_wait_seconds",
			Help:    "Time spent waiting for a pacing key to become free",
			Buckets: []float64{0, 0.5, 1, 2, 3, 5, 10, 30},
		},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patentscan_cache_lookups_total",
			Help: "Document cache lookups by result",
		},
		[]string{"result"}, // "hit", "miss", "stale"
	)

	InFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "patentscan_batch_in_flight",
			Help: "Fetch tasks currently running",
		},
	)
)

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
