package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/objectfs/roset/pkg/types"
)

// Adapter wraps Collector to satisfy pkg/types.MetricsCollector's
// per-operation surface - plain cache names instead of byte sizes, a
// string error code instead of an error value - so internal/fuse and
// internal/staging can depend on the interface rather than this
// package's own richer API. Collector's additional methods
// (UpdateCacheSize, the debug HTTP handlers) remain available to
// anything holding the concrete *Collector.
type Adapter struct {
	collector *Collector
}

// NewAdapter wraps an existing Collector.
func NewAdapter(c *Collector) *Adapter {
	return &Adapter{collector: c}
}

// RecordOperation records an operation's duration and outcome. Byte size
// isn't part of this surface; the underlying Collector records zero.
func (a *Adapter) RecordOperation(operation string, duration time.Duration, success bool) {
	a.collector.RecordOperation(operation, duration, 0, success)
}

// RecordCacheHit records a hit against one of the four named caches
// (node/children/negative/remote).
func (a *Adapter) RecordCacheHit(cache string) {
	a.collector.RecordCacheHit(cache, 0)
}

// RecordCacheMiss records a miss against one of the four named caches.
func (a *Adapter) RecordCacheMiss(cache string) {
	a.collector.RecordCacheMiss(cache, 0)
}

// RecordError increments the error counter for operation, labeled with
// code directly rather than Collector's free-text classifyError
// heuristic - callers here already carry a closed error taxonomy
// (pkg/errors.ErrorCode) instead of an arbitrary error message.
func (a *Adapter) RecordError(operation string, code string) {
	c := a.collector
	if !c.config.Enabled {
		return
	}
	c.errorCounter.With(prometheus.Labels{
		"operation": operation,
		"type":      code,
	}).Inc()
}

// GetMetrics returns the collector's current metrics snapshot.
func (a *Adapter) GetMetrics() map[string]interface{} {
	return a.collector.GetMetrics()
}

var _ types.MetricsCollector = (*Adapter)(nil)
