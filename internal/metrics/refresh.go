// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kodiguide_refresh_total",
		Help: "Refresh attempts by kind and outcome",
	}, []string{"kind", "outcome"}) // kind=channels|guide, outcome=success|failure

	refreshDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kodiguide_refresh_duration_seconds",
		Help:    "Refresh duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"kind"})

	lastRefreshSuccess = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kodiguide_last_refresh_success_timestamp_seconds",
		Help: "Unix time of the last successful refresh",
	}, []string{"kind"})

	liveChannels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kodiguide_live_channels",
		Help: "Live channels reported by the device (last refresh)",
	})

	guideChannels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kodiguide_guide_channels",
		Help: "Guide channels in the active guide (last refresh)",
	})

	guidePrograms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kodiguide_guide_programs",
		Help: "Programs in the active guide (last refresh)",
	})

	guideCategories = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kodiguide_guide_categories",
		Help: "Categories in the active guide (last refresh)",
	})

	malformedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kodiguide_malformed_records_total",
		Help: "Guide records skipped because they failed validation",
	}, []string{"record"}) // record=channel|program

	unresolvedAliases = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kodiguide_unresolved_aliases",
		Help: "Alias names without a matching live channel (last channel refresh)",
	})

	missingFromGuide = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kodiguide_live_channels_missing_from_guide",
		Help: "Live channels without a guide channel of the same label (last channel refresh)",
	})

	duplicateChannels = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kodiguide_duplicate_channels_total",
		Help: "Duplicate channel ids dropped during refresh",
	}, []string{"source"}) // source=device|feed
)

// RecordRefresh records the outcome and duration of one refresh attempt.
func RecordRefresh(kind string, err error, seconds float64) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	refreshTotal.WithLabelValues(kind, outcome).Inc()
	refreshDuration.WithLabelValues(kind).Observe(seconds)
	if err == nil {
		lastRefreshSuccess.WithLabelValues(kind).SetToCurrentTime()
	}
}

// RecordLiveRefresh publishes the result of a channel refresh.
func RecordLiveRefresh(channels, missing, unresolved int) {
	liveChannels.Set(float64(channels))
	missingFromGuide.Set(float64(missing))
	unresolvedAliases.Set(float64(unresolved))
}

// RecordGuideRefresh publishes the size of the newly active guide.
func RecordGuideRefresh(channels, categories, programs int) {
	guideChannels.Set(float64(channels))
	guideCategories.Set(float64(categories))
	guidePrograms.Set(float64(programs))
}

func IncMalformedRecord(record string) { malformedRecords.WithLabelValues(record).Inc() }

func AddDuplicateChannels(source string, n int) {
	if n > 0 {
		duplicateChannels.WithLabelValues(source).Add(float64(n))
	}
}
