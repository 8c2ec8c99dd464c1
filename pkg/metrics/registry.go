// Package metrics wires the cache's optional CacheMetrics seam to a
// Prometheus registry. Host applications that never call Enable stay at
// zero overhead: pkg/metrics/prometheus's NewCacheMetrics returns nil,
// and querycache treats a nil CacheMetrics as "do nothing".
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.RWMutex
	enabled  bool
	registry *prometheus.Registry
)

// Enable turns on metrics collection against a fresh registry and
// returns it so callers can expose it behind an HTTP handler
// (promhttp.HandlerFor).
func Enable() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	registry = prometheus.NewRegistry()
	enabled = true
	return registry
}

// IsEnabled reports whether Enable has been called.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// GetRegistry returns the active registry, or nil if metrics are disabled.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}
