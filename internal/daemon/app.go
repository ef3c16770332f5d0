// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package daemon wires the configuration into a running service: stores,
// device client, reconciler, query engine, API server and refresh jobs.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/kodiguide/internal/alias"
	"github.com/ManuGH/kodiguide/internal/api"
	"github.com/ManuGH/kodiguide/internal/cache"
	"github.com/ManuGH/kodiguide/internal/config"
	"github.com/ManuGH/kodiguide/internal/epg"
	"github.com/ManuGH/kodiguide/internal/guide"
	"github.com/ManuGH/kodiguide/internal/health"
	"github.com/ManuGH/kodiguide/internal/jobs"
	"github.com/ManuGH/kodiguide/internal/kodi"
	klog "github.com/ManuGH/kodiguide/internal/log"
	"github.com/ManuGH/kodiguide/internal/query"
	"github.com/ManuGH/kodiguide/internal/reconcile"
	"github.com/ManuGH/kodiguide/internal/session"
	"github.com/ManuGH/kodiguide/internal/telemetry"
)

// Exit codes of `kodiguide serve`.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitUpstream = 2
)

// ExitCode maps the error returned by Run to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, jobs.ErrUpstreamExhausted):
		return ExitUpstream
	default:
		return ExitFailure
	}
}

// App is a fully wired daemon.
type App struct {
	cfg        config.Config
	manager    *Manager
	handler    http.Handler
	reconciler *reconcile.Reconciler
	logger     zerolog.Logger
}

// Build opens every resource named by cfg. Resources opened before a
// failure are released again.
func Build(ctx context.Context, cfg config.Config) (_ *App, err error) {
	logger := klog.WithComponent("daemon")

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		return nil, err
	}

	var hooks []namedHook
	addHook := func(name string, fn ShutdownHook) { hooks = append(hooks, namedHook{name: name, hook: fn}) }
	defer func() {
		if err == nil {
			return
		}
		for i := len(hooks) - 1; i >= 0; i-- {
			if herr := hooks[i].hook(context.WithoutCancel(ctx)); herr != nil {
				logger.Warn().Err(herr).Str("hook", hooks[i].name).Msg("cleanup after failed start")
			}
		}
	}()

	lock, err := AcquireLock(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	addHook("lock", func(context.Context) error { return lock.Release() })

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Log.Service,
		ServiceVersion: cfg.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	addHook("telemetry", tp.Shutdown)

	store, err := guide.Open(guide.Config{
		Backend: cfg.Store.Backend,
		Path:    cfg.Store.Path,
		DataDir: cfg.DataDir,
	})
	if err != nil {
		return nil, fmt.Errorf("guide store: %w", err)
	}
	addHook("guide_store", func(context.Context) error { return store.Close() })

	sess, err := openSession(cfg)
	if err != nil {
		return nil, err
	}
	addHook("session", func(context.Context) error { return sess.Close() })

	var (
		queryCache cache.Cache
		redisCache *cache.RedisCache
	)
	if cfg.Cache.RedisAddr != "" {
		redisCache, err = cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		}, klog.WithComponent("cache"))
		if err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
		queryCache = redisCache
	} else {
		queryCache = cache.NewMemoryCache(time.Minute)
	}
	addHook("cache", func(context.Context) error { return queryCache.Close() })

	aliases, err := alias.Load(cfg.ResolvePath(cfg.AliasFile))
	if err != nil {
		return nil, err
	}
	logger.Info().
		Str(klog.FieldEvent, "alias.loaded").
		Int("aliases", aliases.Len()).
		Msg("alias table loaded")

	device := kodi.New(kodi.Config{
		BaseURL:          cfg.Kodi.URL,
		Username:         cfg.Kodi.Username,
		Password:         cfg.Kodi.Password,
		Timeout:          cfg.Kodi.Timeout,
		RateLimit:        cfg.Kodi.RateLimit,
		RateBurst:        cfg.Kodi.RateBurst,
		BreakerThreshold: cfg.Kodi.BreakerThreshold,
		BreakerReset:     cfg.Kodi.BreakerReset,
	})

	rec := reconcile.New(reconcile.Options{
		Store:   store,
		Aliases: aliases,
		Catalog: device,
		Feed: epg.NewFetcher(epg.FetcherConfig{
			Timeout: cfg.Guide.FetchTimeout,
			DataDir: cfg.DataDir,
		}),
		FeedURL:          cfg.Guide.URL,
		FetchTimeout:     cfg.Channels.FetchTimeout,
		GroupConcurrency: cfg.Channels.GroupConcurrency,
	})

	engine := query.New(query.Options{
		Store:   store,
		Aliases: aliases,
		Cache:   queryCache,
	})

	hm := health.NewManager(cfg.Version)
	hm.RegisterChecker(health.NewStoreChecker(store))
	hm.RegisterChecker(health.NewKodiChecker(device))
	if redisCache != nil {
		hm.RegisterChecker(health.NewCacheChecker(redisCache))
	}
	hm.RegisterChecker(health.NewLastRefreshChecker("channels_refresh", staleAfter(cfg.Channels.RefreshInterval), func() (time.Time, error) {
		rep, _ := rec.LastLive()
		return rep.CompletedAt, rec.LastLiveError()
	}))
	if cfg.Guide.URL != "" {
		hm.RegisterChecker(health.NewLastRefreshChecker("guide_refresh", staleAfter(cfg.Guide.RefreshInterval), func() (time.Time, error) {
			rep, _ := rec.LastGuide()
			return rep.CompletedAt, rec.LastGuideError()
		}))
	}

	apiCfg := api.Config{
		Secret:           cfg.Secret,
		LabelPrefix:      cfg.LabelPrefix,
		RefreshRateLimit: cfg.RefreshRateLimit,
	}
	if cfg.Telemetry.Enabled {
		apiCfg.TracingService = cfg.Log.Service
	}
	handler := api.New(apiCfg, api.Deps{
		Device:    device,
		Engine:    engine,
		Refresher: rec,
		Session:   sess,
		Store:     store,
		Health:    hm,
	}).Handler()

	runner := jobs.NewRunner(jobs.Config{
		ChannelsInterval:    cfg.Channels.RefreshInterval,
		GuideInterval:       cfg.Guide.RefreshInterval,
		GuideEnabled:        cfg.Guide.URL != "",
		WatchPath:           watchPath(cfg.Guide),
		MaxUpstreamFailures: cfg.MaxUpstreamFailures,
	}, rec)

	manager, err := NewManager(ServerConfig{Listen: cfg.Listen}, handler, runner.Run)
	if err != nil {
		return nil, err
	}
	for _, h := range hooks {
		manager.RegisterShutdownHook(h.name, h.hook)
	}

	logger.Info().
		Str(klog.FieldEvent, "daemon.built").
		Str(klog.FieldBaseURL, cfg.Kodi.URL).
		Str("store", cfg.Store.Backend).
		Str("session", cfg.Session.Backend).
		Str("lock", lock.Path()).
		Msg("daemon wired")

	return &App{cfg: cfg, manager: manager, handler: handler, reconciler: rec, logger: logger}, nil
}

// Run serves until ctx is done or a component fails; see Manager.Start.
func (a *App) Run(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Handler exposes the routed API, mainly for tests.
func (a *App) Handler() http.Handler { return a.handler }

// Addr returns the bound listen address while running.
func (a *App) Addr() string { return a.manager.Addr() }

// Close releases the resources of an App that was never run.
func (a *App) Close(ctx context.Context) error {
	return a.manager.runHooks(ctx)
}

func openSession(cfg config.Config) (session.Store, error) {
	switch cfg.Session.Backend {
	case "badger":
		s, err := session.OpenBadgerStore(cfg.ResolvePath(cfg.Session.Path))
		if err != nil {
			return nil, fmt.Errorf("session store: %w", err)
		}
		return s, nil
	default:
		return session.NewMemoryStore(), nil
	}
}

// staleAfter tolerates two missed refresh cycles before reporting stale
// data; a disabled schedule never goes stale.
func staleAfter(interval time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}
	return 3 * interval
}

func watchPath(g config.GuideConfig) string {
	if !g.Watch || g.URL == "" || epg.IsRemote(g.URL) {
		return ""
	}
	return strings.TrimPrefix(g.URL, "file://")
}
