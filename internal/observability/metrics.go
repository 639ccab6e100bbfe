// Package observability exposes the gateway's Prometheus metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Upstream API labels.
const (
	APIWeb   = "web"
	APIStore = "store"
)

// Cache lookup results.
const (
	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheStale   = "stale"
	CacheInvalid = "invalid"
)

var (
	upstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steamgate_upstream_requests_total",
			Help: "Requests sent to the Steam Web and Store APIs, by outcome",
		},
		[]string{"api", "outcome"},
	)

	upstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "steamgate_upstream_request_duration_seconds",
			Help:    "Latency of Steam Web and Store API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"api"},
	)

	commonCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steamgate_common_cache_lookups_total",
			Help: "Common-library cache lookups by result",
		},
		[]string{"result"},
	)

	backfills = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steamgate_backfill_total",
			Help: "Store API app backfills by result",
		},
		[]string{"result"},
	)

	commonPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "steamgate_common_purged_total",
			Help: "Expired common-library cache entries deleted by the sweeper",
		},
	)
)

// ObserveUpstream records one upstream call. outcome is "ok", an HTTP status code, or "error".
func ObserveUpstream(api, outcome string, elapsed time.Duration) {
	upstreamRequests.WithLabelValues(api, outcome).Inc()
	upstreamDuration.WithLabelValues(api).Observe(elapsed.Seconds())
}

// ObserveCacheLookup records a common-library cache lookup result.
func ObserveCacheLookup(result string) {
	commonCacheLookups.WithLabelValues(result).Inc()
}

// ObserveBackfill records whether an app backfill succeeded.
func ObserveBackfill(ok bool) {
	result := "ok"
	if !ok {
		result = "dropped"
	}
	backfills.WithLabelValues(result).Inc()
}

// ObservePurge records common-library cache entries removed by the sweeper.
func ObservePurge(n int64) {
	commonPurged.Add(float64(n))
}
