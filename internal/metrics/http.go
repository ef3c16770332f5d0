// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kodiguide_http_request_duration_seconds",
		Help:    "HTTP request latencies in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	httpRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kodiguide_http_requests_in_flight",
		Help: "Current number of HTTP requests being served",
	})
)

// ObserveHTTPRequest records a finished request. route must be a route
// pattern, never a raw path, to keep cardinality bounded.
func ObserveHTTPRequest(method, route, status string, seconds float64) {
	httpRequestDuration.WithLabelValues(method, route, status).Observe(seconds)
}

func IncHTTPInFlight() { httpRequestsInFlight.Inc() }
func DecHTTPInFlight() { httpRequestsInFlight.Dec() }
