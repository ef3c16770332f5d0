// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	kodiRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kodiguide_kodi_requests_total",
		Help: "JSON-RPC requests to the device by method and outcome",
	}, []string{"method", "outcome"}) // outcome=success|timeout|unavailable|http_error|rpc_error|bad_response|circuit_open|rate_limited

	kodiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kodiguide_kodi_request_duration_seconds",
		Help:    "JSON-RPC request latency in seconds",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method"})

	feedFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kodiguide_feed_fetch_total",
		Help: "Guide feed fetches by source and outcome",
	}, []string{"source", "outcome"}) // source=http|file

	feedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kodiguide_feed_bytes",
		Help: "Decompressed size of the last fetched guide feed",
	})
)

// RecordKodiRequest records one device call.
func RecordKodiRequest(method, outcome string, seconds float64) {
	kodiRequests.WithLabelValues(method, outcome).Inc()
	kodiRequestDuration.WithLabelValues(method).Observe(seconds)
}

// RecordFeedFetch records one guide feed fetch.
func RecordFeedFetch(source string, size int64, err error) {
	if err != nil {
		feedFetches.WithLabelValues(source, "failure").Inc()
		return
	}
	feedFetches.WithLabelValues(source, "success").Inc()
	feedBytes.Set(float64(size))
}
