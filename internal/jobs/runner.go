// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package jobs schedules channel and guide refreshes.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/kodiguide/internal/epg"
	klog "github.com/ManuGH/kodiguide/internal/log"
	"github.com/ManuGH/kodiguide/internal/reconcile"
)

// ErrUpstreamExhausted stops the runner after too many consecutive
// upstream failures of one kind.
var ErrUpstreamExhausted = errors.New("jobs: upstream failures exhausted")

// Refresher is implemented by *reconcile.Reconciler.
type Refresher interface {
	RefreshLiveChannels(ctx context.Context) (reconcile.Report, error)
	RefreshGuideFromFeed(ctx context.Context) (reconcile.GuideReport, error)
}

// Config controls the schedule. Zero intervals disable the periodic
// refresh of that kind; the initial refresh always runs.
type Config struct {
	ChannelsInterval time.Duration
	GuideInterval    time.Duration
	// GuideEnabled is false when no feed is configured.
	GuideEnabled bool
	// WatchPath is a local feed file to watch; empty disables watching.
	WatchPath     string
	WatchDebounce time.Duration
	// MaxUpstreamFailures consecutive upstream failures of one kind end Run
	// with ErrUpstreamExhausted; zero means never.
	MaxUpstreamFailures int
}

// Runner drives the refresh schedule.
type Runner struct {
	cfg    Config
	target Refresher
	logger zerolog.Logger

	mu       sync.Mutex
	failures map[string]int
}

// NewRunner returns a Runner.
func NewRunner(cfg Config, target Refresher) *Runner {
	if cfg.WatchDebounce <= 0 {
		cfg.WatchDebounce = epg.DefaultDebounce
	}
	return &Runner{
		cfg:      cfg,
		target:   target,
		logger:   klog.WithComponent("jobs"),
		failures: make(map[string]int),
	}
}

// Run performs the initial guide and channel refresh, then refreshes on
// schedule and on feed file changes until ctx is done. The guide goes
// first so the channel diagnostics see it. Run returns nil on
// cancellation and ErrUpstreamExhausted when the failure budget is spent.
func (r *Runner) Run(ctx context.Context) error {
	if r.cfg.GuideEnabled {
		if err := r.refreshGuide(ctx); err != nil {
			return err
		}
	}
	if err := r.refreshChannels(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.every(ctx, r.cfg.ChannelsInterval, r.refreshChannels)
	})
	if r.cfg.GuideEnabled {
		g.Go(func() error {
			return r.every(ctx, r.cfg.GuideInterval, r.refreshGuide)
		})
	}
	if r.cfg.GuideEnabled && r.cfg.WatchPath != "" {
		exhausted := make(chan error, 1)
		g.Go(func() error {
			wctx, cancel := context.WithCancel(ctx)
			defer cancel()
			err := epg.Watch(wctx, r.cfg.WatchPath, r.cfg.WatchDebounce, func(ctx context.Context) {
				r.logger.Info().Str(klog.FieldEvent, "jobs.feed_changed").Str(klog.FieldPath, r.cfg.WatchPath).Msg("guide feed changed")
				if err := r.refreshGuide(ctx); err != nil {
					select {
					case exhausted <- err:
					default:
					}
					cancel()
				}
			})
			select {
			case err := <-exhausted:
				return err
			default:
			}
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("watch guide feed: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *Runner) every(ctx context.Context, interval time.Duration, fn func(context.Context) error) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := fn(ctx); err != nil {
				return err
			}
		}
	}
}

func (r *Runner) refreshChannels(ctx context.Context) error {
	_, err := r.target.RefreshLiveChannels(ctx)
	return r.account(ctx, "channels", err)
}

func (r *Runner) refreshGuide(ctx context.Context) error {
	_, err := r.target.RefreshGuideFromFeed(ctx)
	return r.account(ctx, "guide", err)
}

// account tracks consecutive upstream failures. Other errors are logged
// by the reconciler and do not count; cancellation is not a failure.
func (r *Runner) account(ctx context.Context, kind string, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case err == nil:
		r.failures[kind] = 0
		return nil
	case ctx.Err() != nil:
		return nil
	case !errors.Is(err, reconcile.ErrUpstreamUnavailable):
		return nil
	}

	r.failures[kind]++
	n := r.failures[kind]
	r.logger.Warn().
		Str(klog.FieldEvent, "jobs.upstream_failure").
		Str("kind", kind).
		Int("consecutive", n).
		Int("max", r.cfg.MaxUpstreamFailures).
		Msg("refresh could not reach upstream")
	if r.cfg.MaxUpstreamFailures > 0 && n >= r.cfg.MaxUpstreamFailures {
		return fmt.Errorf("%w: %s failed %d times in a row: %w", ErrUpstreamExhausted, kind, n, err)
	}
	return nil
}

// Failures returns the current consecutive upstream failure count of kind.
func (r *Runner) Failures(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures[kind]
}
