// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"net/http"
	"time"

	klog "github.com/ManuGH/kodiguide/internal/log"
)

// AccessLog writes one structured line per request. The raw path is never
// logged because it carries the shared secret.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := wrap(w)
		next.ServeHTTP(sw, r)

		logger := klog.WithComponentFromContext(r.Context(), "api")
		ev := logger.Info()
		switch {
		case sw.status >= 500:
			ev = logger.Error()
		case sw.status >= 400:
			ev = logger.Warn()
		}
		ev.Str(klog.FieldEvent, "http.request").
			Str("method", r.Method).
			Str("route", routePattern(r)).
			Int("status", sw.status).
			Int("bytes", sw.bytes).
			Int64(klog.FieldDuration, time.Since(start).Milliseconds()).
			Msg("request served")
	})
}
