// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api serves the remote-control surface: device commands under a
// shared-secret path segment, guide queries, on-demand refreshes and the
// public probe and metrics endpoints.
package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/kodiguide/internal/api/middleware"
	"github.com/ManuGH/kodiguide/internal/guide"
	"github.com/ManuGH/kodiguide/internal/health"
	"github.com/ManuGH/kodiguide/internal/kodi"
	"github.com/ManuGH/kodiguide/internal/query"
	"github.com/ManuGH/kodiguide/internal/reconcile"
	"github.com/ManuGH/kodiguide/internal/session"
)

// Device is the subset of the device client the command handlers use.
type Device interface {
	OpenChannel(ctx context.Context, channelID int) error
	CurrentItem(ctx context.Context) (kodi.Item, error)
	Volume(ctx context.Context) (int, error)
	SetVolume(ctx context.Context, volume int) (int, error)
	ToggleMute(ctx context.Context) (bool, error)
	Shutdown(ctx context.Context) error
}

// Engine answers guide queries and label lookups.
type Engine interface {
	Programs(ctx context.Context, req query.Request) (query.Result, error)
	ResolveLabel(ctx context.Context, spoken string) (query.Resolution, error)
}

// Refresher runs on-demand refreshes and reports the last outcomes.
type Refresher interface {
	RefreshLiveChannels(ctx context.Context) (reconcile.Report, error)
	RefreshGuideFromFeed(ctx context.Context) (reconcile.GuideReport, error)
	LastLive() (reconcile.Report, bool)
	LastGuide() (reconcile.GuideReport, bool)
}

// Config holds the HTTP-facing settings.
type Config struct {
	Secret string
	// LabelPrefix is removed from spoken label commands.
	LabelPrefix string
	// RefreshRateLimit caps refresh requests per minute per client.
	RefreshRateLimit int
	// TracingService enables otelhttp spans under this name.
	TracingService string
}

// Deps are the collaborators of the server. Health and Store are optional.
type Deps struct {
	Device    Device
	Engine    Engine
	Refresher Refresher
	Session   session.Store
	Store     guide.Store
	Health    *health.Manager
}

// Server routes requests to the handlers.
type Server struct {
	cfg  Config
	deps Deps
}

// New returns a Server.
func New(cfg Config, deps Deps) *Server {
	return &Server{cfg: cfg, deps: deps}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:  true,
		TracingService: s.cfg.TracingService,
		EnableLogging:  true,
	})

	if s.deps.Health != nil {
		r.Get("/healthz", s.deps.Health.ServeHealth)
		r.Get("/readyz", s.deps.Health.ServeReady)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/{secret}", func(r chi.Router) {
		r.Use(s.requireSecret)

		r.Get("/channel", s.handleChannel)
		r.Get("/label", s.handleLabel)
		r.Get("/volume", s.handleVolume)
		r.Get("/power", s.handlePower)
		r.Get("/mute", s.handleMute)
		r.Get("/source", s.handleSource)

		r.Get("/programs", s.handlePrograms)
		r.Get("/status", s.handleStatus)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(s.cfg.RefreshRateLimit, time.Minute))
			r.Post("/refresh/channels", s.handleRefreshChannels)
			r.Post("/refresh/guide", s.handleRefreshGuide)
		})
	})
	return r
}

// requireSecret answers 404 unless the first path segment is the secret,
// so a wrong secret is indistinguishable from an unknown route.
func (s *Server) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := chi.URLParam(r, "secret")
		if s.cfg.Secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Secret)) != 1 {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
