// Package metrics provides the centralized Prometheus metrics registry for
// the collector. All metrics are defined in their respective packages (fetch,
// record, quality, pacing, collector, cache) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the collector.
// All metrics are automatically registered via promauto in their respective
// packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Fetch Metrics (pkg/fetch):
//   - refharvest_requests_total{outcome} (Counter): Request attempts by outcome (success, rate_limited, client_error, server_error, network_error, decode_error, cache_hit)
//   - refharvest_pages_fetched_total (Counter): Pages fetched successfully
//   - refharvest_retry_backoff_seconds (Histogram): Backoff durations between retry attempts
//   - refharvest_retries_exhausted_total (Counter): Page fetches that exhausted their retry budget
//
// Store Metrics (pkg/record):
//   - refharvest_records_stored_total (Counter): Records accepted into the store
//   - refharvest_duplicates_skipped_total (Counter): Records rejected as duplicates by identity digest
//   - refharvest_batches_rejected_total (Counter): Batches dropped below the validity threshold
//
// Quality Metrics (pkg/quality):
//   - refharvest_quality_score (Gauge): Latest overall data quality score in [0,1]
//   - refharvest_quality_metric{metric} (Gauge): Latest per-metric quality value (completeness, accuracy, consistency, timeliness)
//
// Pacing Metrics (pkg/pacing):
//   - refharvest_pacing_multiplier (Gauge): Current pacing multiplier applied to the base delay
//   - refharvest_delay_seconds (Histogram): Inter-request respectful delay durations
//   - refharvest_preemptive_escalations_total (Counter): Escalations triggered by low rate-limit-remaining headers
//
// Collector Metrics (pkg/collector):
//   - refharvest_strategy_adjustments_total{action} (Counter): Pacing strategy adjustments by action (slow_hard, slow_soft, speed_up, ease)
//   - refharvest_run_duration_seconds (Gauge): Wall-clock duration of the most recent run
//
// Cache Metrics (pkg/cache):
//   - refharvest_cache_hits_total (Counter): Page cache hits
//   - refharvest_cache_misses_total (Counter): Page cache misses
//   - refharvest_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Request Success Rate
//   rate(refharvest_requests_total{outcome="success"}[5m]) /
//   sum(rate(refharvest_requests_total[5m]))
//
//   # Duplicate Rate
//   rate(refharvest_duplicates_skipped_total[5m]) /
//   rate(refharvest_records_stored_total[5m])
//
//   # Current Pacing Pressure
//   refharvest_pacing_multiplier > 4
//
//   # P95 Respectful Delay
//   histogram_quantile(0.95, rate(refharvest_delay_seconds_bucket[5m]))
