// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kodiguide_query_total",
		Help: "Program queries by mode and outcome",
	}, []string{"mode", "outcome"}) // mode=now|upcoming|browse, outcome=ok|not_found|error

	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kodiguide_query_duration_seconds",
		Help:    "Program query latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
	}, []string{"mode"})

	queryResults = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kodiguide_query_results",
		Help:    "Number of results returned per query",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
	}, []string{"mode"})

	categoryCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kodiguide_category_cache_total",
		Help: "Category list cache lookups by result",
	}, []string{"result"}) // result=hit|miss

	labelResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kodiguide_label_resolution_total",
		Help: "Spoken label resolutions by outcome",
	}, []string{"outcome"}) // outcome=direct|alias|unresolved
)

// RecordQuery records one program query.
func RecordQuery(mode, outcome string, results int, seconds float64) {
	queryTotal.WithLabelValues(mode, outcome).Inc()
	queryDuration.WithLabelValues(mode).Observe(seconds)
	if outcome == "ok" {
		queryResults.WithLabelValues(mode).Observe(float64(results))
	}
}

func IncCategoryCache(hit bool) {
	if hit {
		categoryCache.WithLabelValues("hit").Inc()
		return
	}
	categoryCache.WithLabelValues("miss").Inc()
}

func IncLabelResolution(outcome string) { labelResolutions.WithLabelValues(outcome).Inc() }
