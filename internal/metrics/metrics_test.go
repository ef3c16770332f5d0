// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getGaugeValue(t *testing.T, gauge prometheus.Gauge) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, gauge.Write(metric))
	return metric.GetGauge().GetValue()
}

func getCounterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, counter.Write(metric))
	return metric.GetCounter().GetValue()
}

func TestRecordRefresh(t *testing.T) {
	okBefore := getCounterValue(t, refreshTotal.WithLabelValues("guide", "success"))
	failBefore := getCounterValue(t, refreshTotal.WithLabelValues("guide", "failure"))

	RecordRefresh("guide", nil, 0.2)
	RecordRefresh("guide", errors.New("boom"), 0.1)

	assert.Equal(t, okBefore+1, getCounterValue(t, refreshTotal.WithLabelValues("guide", "success")))
	assert.Equal(t, failBefore+1, getCounterValue(t, refreshTotal.WithLabelValues("guide", "failure")))
	assert.Greater(t, getGaugeValue(t, lastRefreshSuccess.WithLabelValues("guide")), 0.0)
}

func TestRecordLiveAndGuideRefresh(t *testing.T) {
	RecordLiveRefresh(12, 3, 1)
	assert.Equal(t, 12.0, getGaugeValue(t, liveChannels))
	assert.Equal(t, 3.0, getGaugeValue(t, missingFromGuide))
	assert.Equal(t, 1.0, getGaugeValue(t, unresolvedAliases))

	RecordGuideRefresh(40, 7, 900)
	assert.Equal(t, 40.0, getGaugeValue(t, guideChannels))
	assert.Equal(t, 7.0, getGaugeValue(t, guideCategories))
	assert.Equal(t, 900.0, getGaugeValue(t, guidePrograms))
}

func TestAddDuplicateChannelsIgnoresZero(t *testing.T) {
	before := getCounterValue(t, duplicateChannels.WithLabelValues("device"))
	AddDuplicateChannels("device", 0)
	AddDuplicateChannels("device", 2)
	assert.Equal(t, before+2, getCounterValue(t, duplicateChannels.WithLabelValues("device")))
}

func TestSetCircuitBreakerState(t *testing.T) {
	tripsBefore := getCounterValue(t, circuitBreakerTrips.WithLabelValues("kodi"))
	SetCircuitBreakerState("kodi", "open")

	assert.Equal(t, 1.0, getGaugeValue(t, circuitBreakerState.WithLabelValues("kodi", "open")))
	assert.Equal(t, 0.0, getGaugeValue(t, circuitBreakerState.WithLabelValues("kodi", "closed")))
	assert.Equal(t, tripsBefore+1, getCounterValue(t, circuitBreakerTrips.WithLabelValues("kodi")))

	SetCircuitBreakerState("kodi", "closed")
	assert.Equal(t, 0.0, getGaugeValue(t, circuitBreakerState.WithLabelValues("kodi", "open")))
	assert.Equal(t, 1.0, getGaugeValue(t, circuitBreakerState.WithLabelValues("kodi", "closed")))
}

func TestIncCategoryCache(t *testing.T) {
	hits := getCounterValue(t, categoryCache.WithLabelValues("hit"))
	misses := getCounterValue(t, categoryCache.WithLabelValues("miss"))
	IncCategoryCache(true)
	IncCategoryCache(false)
	IncCategoryCache(false)
	assert.Equal(t, hits+1, getCounterValue(t, categoryCache.WithLabelValues("hit")))
	assert.Equal(t, misses+2, getCounterValue(t, categoryCache.WithLabelValues("miss")))
}

func TestPromhttpExposure(t *testing.T) {
	RecordQuery("now", "ok", 3, 0.001)
	RecordKodiRequest("PVR.GetChannels", "success", 0.02)

	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "kodiguide_query_total"))
	assert.True(t, strings.Contains(body, `kodiguide_kodi_requests_total{method="PVR.GetChannels",outcome="success"}`))
}
