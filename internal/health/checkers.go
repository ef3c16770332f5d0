// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuGH/kodiguide/internal/guide"
	"github.com/ManuGH/kodiguide/internal/kodi"
)

// StoreChecker reports the guide store. An empty live set or guide is
// degraded; a failing store is unhealthy.
type StoreChecker struct {
	store guide.Store
}

func NewStoreChecker(store guide.Store) *StoreChecker {
	return &StoreChecker{store: store}
}

func (c *StoreChecker) Name() string { return "guide_store" }

func (c *StoreChecker) Check(ctx context.Context) CheckResult {
	if v, ok := c.store.(interface{ Verify(context.Context) error }); ok {
		if err := v.Verify(ctx); err != nil {
			return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
		}
	}
	st, err := c.store.Stats(ctx)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	msg := fmt.Sprintf("%d live channels, %d guide channels, %d programs", st.LiveChannels, st.GuideChannels, st.Programs)
	if st.LiveChannels == 0 || st.Programs == 0 {
		return CheckResult{Status: StatusDegraded, Message: msg}
	}
	return CheckResult{Status: StatusHealthy, Message: msg}
}

// Pinger is the part of the device client the checker needs.
type Pinger interface {
	Ping(ctx context.Context) error
	Breaker() *kodi.CircuitBreaker
}

// KodiChecker pings the device. An open breaker is reported without
// pinging.
type KodiChecker struct {
	client Pinger
}

func NewKodiChecker(client Pinger) *KodiChecker {
	return &KodiChecker{client: client}
}

func (c *KodiChecker) Name() string { return "kodi" }

func (c *KodiChecker) Check(ctx context.Context) CheckResult {
	if b := c.client.Breaker(); b != nil && b.State() == kodi.StateOpen {
		return CheckResult{Status: StatusUnhealthy, Message: "circuit breaker open"}
	}
	if err := c.client.Ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: "device reachable"}
}

// CacheChecker reports an external cache. The cache is optional, so a
// failure only degrades.
type CacheChecker struct {
	cache interface {
		HealthCheck(ctx context.Context) error
	}
}

func NewCacheChecker(c interface{ HealthCheck(context.Context) error }) *CacheChecker {
	return &CacheChecker{cache: c}
}

func (c *CacheChecker) Name() string { return "cache" }

func (c *CacheChecker) Check(ctx context.Context) CheckResult {
	if err := c.cache.HealthCheck(ctx); err != nil {
		return CheckResult{Status: StatusDegraded, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// LastRefreshChecker reports the age and outcome of the most recent
// refresh of one kind.
type LastRefreshChecker struct {
	name   string
	maxAge time.Duration
	last   func() (time.Time, error)
	now    func() time.Time
}

// NewLastRefreshChecker builds a checker from last, which returns the time
// of the last success and the error of the most recent attempt. A zero
// maxAge disables the staleness check.
func NewLastRefreshChecker(name string, maxAge time.Duration, last func() (time.Time, error)) *LastRefreshChecker {
	return &LastRefreshChecker{name: name, maxAge: maxAge, last: last, now: time.Now}
}

func (c *LastRefreshChecker) Name() string { return c.name }

func (c *LastRefreshChecker) Check(context.Context) CheckResult {
	lastOK, lastErr := c.last()

	if lastOK.IsZero() {
		res := CheckResult{Status: StatusUnhealthy, Message: "no successful refresh yet"}
		if lastErr != nil {
			res.Error = lastErr.Error()
		}
		return res
	}
	if lastErr != nil {
		return CheckResult{
			Status:  StatusDegraded,
			Error:   lastErr.Error(),
			Message: "last refresh failed, serving previous data",
		}
	}
	if c.maxAge > 0 && c.now().Sub(lastOK) > c.maxAge {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("last successful refresh %s ago", c.now().Sub(lastOK).Truncate(time.Second)),
		}
	}
	return CheckResult{Status: StatusHealthy, Message: "last refresh successful"}
}
