/*
Package metrics provides Prometheus-based metrics collection and an
internal operation tracker for a roset mount process.

# Overview

The collector exports Prometheus counters/histograms/gauges for filesystem
operations, cache hit/miss rates, and errors, alongside a small HTTP debug
surface for troubleshooting without a Prometheus scrape.

# Core Components

Collector: the main metrics aggregator.

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Port:      8080,
		Path:      "/metrics",
		Namespace: "roset",
	})
	if err != nil {
		log.Fatal(err)
	}
	if err := collector.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer collector.Stop(ctx)

DetailedPerformanceMetrics: a finer-grained, non-Prometheus tracker keyed
by FUSE operation type and cache source (node / children / negative /
remote), with optional per-path tracking for the hottest files.

# Recording Operations

	start := time.Now()
	data, err := resolveAndRead(ctx, path)
	collector.RecordOperation("read", time.Since(start), int64(len(data)), err == nil)

# Cache Metrics

	collector.RecordCacheHit("node", 0)
	collector.RecordCacheMiss("children", 0)
	collector.UpdateCacheSize("node", nodeCacheBytes)
	collector.UpdateCacheSize("children", childrenCacheBytes)

# Error Tracking

	if err != nil {
		collector.RecordError("resolve", err)
		return err
	}

# Prometheus Series

Counters:
  - roset_operations_total{operation,status}
  - roset_cache_requests_total{type,source}
  - roset_errors_total{operation,type}

Histograms:
  - roset_operation_duration_seconds{operation}
  - roset_operation_size_bytes{operation}

Gauges:
  - roset_cache_size_bytes{level}
  - roset_active_connections

# HTTP Endpoints

/metrics serves the Prometheus exposition format. /health returns a small
liveness JSON body. /debug/metrics and /debug/operations return a
human-readable snapshot of the internal operation table, useful when
diagnosing a mount without a Prometheus scrape configured.

# Thread Safety

All Collector and DetailedPerformanceMetrics methods are safe for
concurrent use; both hold an internal RWMutex around their tracking state.
*/
package metrics
