// SPDX-License-Identifier: MIT

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OriginRequests counts gateway origin requests by resource class and status.
	OriginRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streaming_origin_requests_total",
		Help: "Total number of origin resource requests by class and status",
	}, []string{"class", "status"})

	// OriginObjectReadDuration tracks object-store read latency.
	OriginObjectReadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streaming_origin_object_read_duration_seconds",
		Help:    "Object store read latency by operation",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"op"})

	// PlaylistRewrites counts manifest rewrites by manifest kind.
	PlaylistRewrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streaming_playlist_rewrites_total",
		Help: "Total number of playlist rewrites by manifest kind",
	}, []string{"kind"})
)

// IncOriginRequest records an origin request outcome.
func IncOriginRequest(class string, status int) {
	OriginRequests.WithLabelValues(class, strconv.Itoa(status)).Inc()
}

// ObserveObjectRead records an object-store read latency.
func ObserveObjectRead(op string, d time.Duration) {
	OriginObjectReadDuration.WithLabelValues(op).Observe(d.Seconds())
}

// IncPlaylistRewrite records one manifest rewrite.
func IncPlaylistRewrite(kind string) {
	PlaylistRewrites.WithLabelValues(kind).Inc()
}
