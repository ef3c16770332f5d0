// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/kodiguide/internal/cache"
	"github.com/ManuGH/kodiguide/internal/config"
	"github.com/ManuGH/kodiguide/internal/guide"
	"github.com/ManuGH/kodiguide/internal/kodi"
)

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(context.Context) CheckResult {
	return CheckResult{Status: m.status}
}

func TestManagerHealth(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "healthy", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "degraded", status: StatusDegraded})

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.GreaterOrEqual(t, resp.Uptime, int64(0))
	assert.Nil(t, resp.Checks)

	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 2)
}

func TestManagerReady(t *testing.T) {
	m := NewManager("v1")
	assert.True(t, m.Ready(context.Background()).Ready)

	m.RegisterChecker(&mockChecker{name: "degraded", status: StatusDegraded})
	resp := m.Ready(context.Background())
	assert.True(t, resp.Ready)
	assert.Equal(t, StatusDegraded, resp.Status)

	m.RegisterChecker(&mockChecker{name: "down", status: StatusUnhealthy})
	resp = m.Ready(context.Background())
	assert.False(t, resp.Ready)
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

func TestServeReady(t *testing.T) {
	m := NewManager("v1")
	m.RegisterChecker(&mockChecker{name: "down", status: StatusUnhealthy})

	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body ReadinessResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.False(t, body.Ready)
	assert.Equal(t, StatusUnhealthy, body.Checks["down"].Status)

	rec = httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "liveness is always 200")
}

func TestStoreChecker(t *testing.T) {
	ctx := context.Background()
	store := guide.NewMemoryStore()
	c := NewStoreChecker(store)
	assert.Equal(t, StatusDegraded, c.Check(ctx).Status)

	require.NoError(t, store.ReplaceLiveChannels(ctx, []guide.LiveChannel{guide.NewLiveChannel(1, "ESPN")}))
	require.NoError(t, store.ReplaceGuide(ctx, guide.GuideSnapshot{
		Categories: []guide.Category{{ID: 1, Name: "Sports"}},
		Programs: []guide.Program{guide.NewProgram(guide.Program{
			ID: 1, GuideChannelID: 1, Title: "Match", CategoryID: 1,
			Start: time.Now(), Stop: time.Now().Add(time.Hour),
		})},
	}))
	res := c.Check(ctx)
	assert.Equal(t, StatusHealthy, res.Status)
	assert.Contains(t, res.Message, "1 live channels")

	require.NoError(t, store.Close())
	assert.Equal(t, StatusUnhealthy, c.Check(ctx).Status)
}

type fakePinger struct {
	err     error
	breaker *kodi.CircuitBreaker
}

func (f fakePinger) Ping(context.Context) error { return f.err }
func (f fakePinger) Breaker() *kodi.CircuitBreaker { return f.breaker }

func TestKodiChecker(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, StatusHealthy, NewKodiChecker(fakePinger{}).Check(ctx).Status)

	res := NewKodiChecker(fakePinger{err: kodi.ErrTimeout}).Check(ctx)
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.NotEmpty(t, res.Error)

	b := kodi.NewCircuitBreaker("test", 1, time.Hour)
	_ = b.Execute(func() error { return kodi.ErrUpstreamUnavailable }, func(error) bool { return true })
	require.Equal(t, kodi.StateOpen, b.State())
	res = NewKodiChecker(fakePinger{breaker: b}).Check(ctx)
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Equal(t, "circuit breaker open", res.Message)
}

func TestCacheChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCache(context.Background(), cache.RedisConfig{Addr: mr.Addr()}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	checker := NewCacheChecker(c)
	assert.Equal(t, StatusHealthy, checker.Check(context.Background()).Status)

	mr.Close()
	assert.Equal(t, StatusDegraded, checker.Check(context.Background()).Status)
}

func TestLastRefreshChecker(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	var lastOK time.Time
	var lastErr error
	c := NewLastRefreshChecker("guide_refresh", time.Hour, func() (time.Time, error) { return lastOK, lastErr })
	c.now = func() time.Time { return now }

	assert.Equal(t, StatusUnhealthy, c.Check(context.Background()).Status)

	lastOK = now.Add(-time.Minute)
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)

	lastErr = errors.New("feed down")
	res := c.Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "feed down", res.Error)

	lastErr = nil
	lastOK = now.Add(-2 * time.Hour)
	assert.Equal(t, StatusDegraded, c.Check(context.Background()).Status)
}

func TestPerformStartupChecks(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = filepath.Join(dir, "data")
	require.NoError(t, PerformStartupChecks(context.Background(), cfg))
	assert.DirExists(t, cfg.DataDir)

	cfg.AliasFile = "aliases.yaml"
	assert.ErrorContains(t, PerformStartupChecks(context.Background(), cfg), "alias file")
	require.NoError(t, os.WriteFile(filepath.Join(cfg.DataDir, "aliases.yaml"), []byte("{}"), 0o600))
	require.NoError(t, PerformStartupChecks(context.Background(), cfg))

	cfg.Guide.URL = "file://" + filepath.Join(dir, "missing.xml")
	assert.ErrorContains(t, PerformStartupChecks(context.Background(), cfg), "guide file")

	cfg.Guide.URL = "https://epg.example/guide.xml"
	assert.NoError(t, PerformStartupChecks(context.Background(), cfg))
}
