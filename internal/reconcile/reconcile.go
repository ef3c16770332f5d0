// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package reconcile refreshes the live channel set from the device and the
// guide from the feed, and reports where the two disagree.
package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ManuGH/kodiguide/internal/alias"
	"github.com/ManuGH/kodiguide/internal/epg"
	"github.com/ManuGH/kodiguide/internal/guide"
	"github.com/ManuGH/kodiguide/internal/kodi"
	klog "github.com/ManuGH/kodiguide/internal/log"
)

// DefaultFetchTimeout bounds a device catalog fetch.
const DefaultFetchTimeout = 5 * time.Second

// ErrUpstreamUnavailable means the device or feed could not be read. The
// refresh was aborted and the previous state is still active.
var ErrUpstreamUnavailable = errors.New("reconcile: upstream unavailable")

// ErrNoFeed is returned by RefreshGuideFromFeed when no feed is configured.
var ErrNoFeed = errors.New("reconcile: no guide feed configured")

// CatalogSource lists the device's channels. *kodi.Client implements it.
type CatalogSource interface {
	ChannelGroups(ctx context.Context) ([]int, error)
	Channels(ctx context.Context, groupID int) ([]kodi.Channel, error)
}

// FeedSource retrieves a parsed guide feed. *epg.Fetcher implements it.
type FeedSource interface {
	Fetch(ctx context.Context, source string) (epg.Feed, error)
}

// Options configures a Reconciler.
type Options struct {
	Store   guide.Store
	Aliases *alias.Table
	Catalog CatalogSource
	Feed    FeedSource
	FeedURL string
	// FetchTimeout bounds the device fetch; zero means DefaultFetchTimeout.
	FetchTimeout time.Duration
	// GroupConcurrency caps parallel group fetches; zero means 4.
	GroupConcurrency int
	Now              func() time.Time
}

// Reconciler serializes all refreshes against one store.
type Reconciler struct {
	store       guide.Store
	aliases     *alias.Table
	catalog     CatalogSource
	feed        FeedSource
	feedURL     string
	timeout     time.Duration
	concurrency int
	now         func() time.Time
	logger      zerolog.Logger

	mu sync.Mutex // one refresh at a time, live or guide
	sf singleflight.Group

	stateMu      sync.RWMutex
	lastLive     *Report
	lastGuide    *GuideReport
	lastLiveErr  error
	lastGuideErr error
}

// New returns a Reconciler for opts.
func New(opts Options) *Reconciler {
	r := &Reconciler{
		store:       opts.Store,
		aliases:     opts.Aliases,
		catalog:     opts.Catalog,
		feed:        opts.Feed,
		feedURL:     opts.FeedURL,
		timeout:     opts.FetchTimeout,
		concurrency: opts.GroupConcurrency,
		now:         opts.Now,
		logger:      klog.WithComponent("reconcile"),
	}
	if r.timeout <= 0 {
		r.timeout = DefaultFetchTimeout
	}
	if r.concurrency <= 0 {
		r.concurrency = 4
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.aliases == nil {
		r.aliases = alias.New()
	}
	return r
}

// LastLive returns the last successful channel refresh report, if any.
func (r *Reconciler) LastLive() (Report, bool) {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	if r.lastLive == nil {
		return Report{}, false
	}
	return *r.lastLive, true
}

// LastGuide returns the last successful guide refresh report, if any.
func (r *Reconciler) LastGuide() (GuideReport, bool) {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	if r.lastGuide == nil {
		return GuideReport{}, false
	}
	return *r.lastGuide, true
}

// LastLiveError is the error of the most recent channel refresh, nil after
// a success.
func (r *Reconciler) LastLiveError() error {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.lastLiveErr
}

// LastGuideError is the error of the most recent guide refresh from the
// feed, nil after a success.
func (r *Reconciler) LastGuideError() error {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.lastGuideErr
}

func (r *Reconciler) refreshContext(ctx context.Context) (context.Context, zerolog.Logger) {
	if klog.RefreshIDFromContext(ctx) == "" {
		ctx = klog.ContextWithRefreshID(ctx, uuid.NewString())
	}
	return ctx, klog.WithContext(ctx, r.logger)
}
