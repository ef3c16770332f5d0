// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewProviderDisabled(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false, ExporterType: "grpc"})
	require.NoError(t, err)
	assert.Nil(t, p.tp)
	require.NoError(t, p.Shutdown(context.Background()))

	_, span := otel.Tracer("test").Start(context.Background(), "noop-check")
	assert.False(t, span.IsRecording())
	span.End()
}

func TestNewProviderInvalidExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, ServiceName: "kodiguide", ExporterType: "zipkin"})
	require.EqualError(t, err, "unsupported exporter type: zipkin (supported: grpc, http)")
}

func TestNewSampler(t *testing.T) {
	assert.Contains(t, newSampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, newSampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, newSampler(0.25).Description(), "TraceIDRatioBased")
}

func TestNilProviderShutdown(t *testing.T) {
	var p *Provider
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestEndSpanRecordsError(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := tp.Tracer("test").Start(context.Background(), "refresh")
	EndSpan(span, errors.New("device down"))

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "device down", ended[0].Status().Description)
	require.Len(t, ended[0].Events(), 1)
}

func TestAttributes(t *testing.T) {
	attrs := RefreshAttributes("guide", 10, 200, 3)
	assert.Contains(t, attrs, attribute.Int(RefreshProgramsKey, 200))

	assert.Len(t, QueryAttributes("now", ""), 1)
	assert.Contains(t, QueryAttributes("now", "Sports"), attribute.String(QueryCategoryKey, "Sports"))
	assert.Equal(t, []attribute.KeyValue{attribute.String(KodiMethodKey, "Player.Open")}, KodiAttributes("Player.Open"))
}
