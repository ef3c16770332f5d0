// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	refreshIDKey ctxKey = "refresh_id"
)

// correlationFields maps context keys to the log field they populate, in
// the order they appear on a log line.
var correlationFields = []struct {
	key   ctxKey
	field string
}{
	{requestIDKey, FieldRequestID},
	{refreshIDKey, FieldRefreshID},
}

func withID(ctx context.Context, key ctxKey, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, id)
}

func idFrom(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

// ContextWithRequestID tags ctx with the HTTP request id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return withID(ctx, requestIDKey, id)
}

// ContextWithRefreshID tags ctx with the id of one refresh cycle, so every
// line of a channel or guide refresh can be grouped.
func ContextWithRefreshID(ctx context.Context, id string) context.Context {
	return withID(ctx, refreshIDKey, id)
}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string { return idFrom(ctx, requestIDKey) }

// RefreshIDFromContext returns the refresh cycle id, or "".
func RefreshIDFromContext(ctx context.Context) string { return idFrom(ctx, refreshIDKey) }

// WithContext adds the correlation ids found in ctx to logger.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	var fields map[string]any
	for _, cf := range correlationFields {
		if id := idFrom(ctx, cf.key); id != "" {
			if fields == nil {
				fields = make(map[string]any, len(correlationFields))
			}
			fields[cf.field] = id
		}
	}
	if fields == nil {
		return logger
	}
	return logger.With().Fields(fields).Logger()
}

// WithComponentFromContext returns a logger annotated with the component
// name and enriched with correlation fields from ctx.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	return WithContext(ctx, WithComponent(component))
}
