// Package prometheus implements querycache.CacheMetrics on top of
// client_golang, registered against the registry managed by pkg/metrics.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/resyncio/querysync/pkg/metrics"
	"github.com/resyncio/querysync/pkg/querycache"
	"github.com/resyncio/querysync/pkg/querykey"
)

// cacheMetrics is the Prometheus-backed querycache.CacheMetrics.
type cacheMetrics struct {
	fetchStarted   *prometheus.CounterVec
	fetchDuration  *prometheus.HistogramVec
	fetchErrors    prometheus.Counter
	fetchingActive prometheus.Gauge
}

// NewCacheMetrics creates a querycache.CacheMetrics backed by Prometheus.
// Returns nil if pkg/metrics.Enable has not been called, so callers can
// pass the result straight to querycache.WithMetrics unconditionally.
func NewCacheMetrics() querycache.CacheMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()
	return &cacheMetrics{
		fetchStarted: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "querysync_fetch_started_total",
				Help: "Total number of fetches started, split by whether they joined an in-flight call",
			},
			[]string{"deduped"},
		),
		fetchDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "querysync_fetch_duration_milliseconds",
				Help: "Duration of fetches that owned the underlying call",
				Buckets: []float64{
					1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 10000,
				},
			},
			[]string{"status"},
		),
		fetchErrors: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "querysync_fetch_errors_total",
				Help: "Total number of fetches that returned an error",
			},
		),
		fetchingActive: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "querysync_fetching_active",
				Help: "Current global count of in-flight fetches",
			},
		),
	}
}

func (m *cacheMetrics) FetchStarted(key querykey.Key, deduped bool) {
	m.fetchStarted.WithLabelValues(boolLabel(deduped)).Inc()
}

func (m *cacheMetrics) FetchCompleted(key querykey.Key, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.fetchErrors.Inc()
	}
	m.fetchDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func (m *cacheMetrics) FetchingCountChanged(count int64) {
	m.fetchingActive.Set(float64(count))
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
