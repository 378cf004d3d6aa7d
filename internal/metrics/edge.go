// SPDX-License-Identifier: MIT

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EdgeCacheLookups counts cache lookups by result (hit, miss, expired).
	EdgeCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdn_cache_lookups_total",
		Help: "Total number of edge cache lookups by result",
	}, []string{"result"})

	// EdgeCacheEvictions counts LRU evictions.
	EdgeCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cdn_cache_evictions_total",
		Help: "Total number of entries evicted under LRU pressure",
	})

	// EdgeCacheBytes reports the bytes currently held by the cache.
	EdgeCacheBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cdn_cache_bytes",
		Help: "Bytes currently held in the edge cache",
	})

	// EdgeCacheEntries reports the entry count currently held by the cache.
	EdgeCacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cdn_cache_entries",
		Help: "Entries currently held in the edge cache",
	})

	// EdgeOriginFetchDuration tracks forward-to-origin latency by outcome.
	EdgeOriginFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cdn_origin_fetch_duration_seconds",
		Help:    "Latency of cache-miss fetches to the origin",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"outcome"})
)

// Cache lookup results.
const (
	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheExpired = "expired"
)

// IncCacheLookup records a cache lookup result.
func IncCacheLookup(result string) {
	EdgeCacheLookups.WithLabelValues(result).Inc()
}

// SetCacheSize publishes the current cache entry count and byte total.
func SetCacheSize(entries int, bytes int64) {
	EdgeCacheEntries.Set(float64(entries))
	EdgeCacheBytes.Set(float64(bytes))
}

// ObserveOriginFetch records one forwarded fetch to the origin.
func ObserveOriginFetch(outcome string, d time.Duration) {
	EdgeOriginFetchDuration.WithLabelValues(outcome).Observe(d.Seconds())
}
