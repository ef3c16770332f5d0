// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared across spans.
const (
	RefreshKindKey     = "refresh.kind"
	RefreshChannelsKey = "refresh.channels"
	RefreshProgramsKey = "refresh.programs"
	RefreshSkippedKey  = "refresh.skipped"

	QueryModeKey     = "query.mode"
	QueryCategoryKey = "query.category"
	QueryResultsKey  = "query.results"

	KodiMethodKey = "kodi.method"

	FeedSourceKey = "feed.source"
)

// RefreshAttributes describes a finished refresh.
func RefreshAttributes(kind string, channels, programs, skipped int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(RefreshKindKey, kind),
		attribute.Int(RefreshChannelsKey, channels),
		attribute.Int(RefreshProgramsKey, programs),
		attribute.Int(RefreshSkippedKey, skipped),
	}
}

// QueryAttributes describes a program query. An empty category means
// browse mode and is omitted.
func QueryAttributes(mode, category string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(QueryModeKey, mode)}
	if category != "" {
		attrs = append(attrs, attribute.String(QueryCategoryKey, category))
	}
	return attrs
}

func KodiAttributes(method string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String(KodiMethodKey, method)}
}
