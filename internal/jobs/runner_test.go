// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/kodiguide/internal/reconcile"
)

var errDown = fmt.Errorf("%w: device down", reconcile.ErrUpstreamUnavailable)

type fakeRefresher struct {
	mu       sync.Mutex
	order    []string
	liveErrs []error // consumed in order; nil once exhausted
	guideErr error
	live     int
	guides   int
}

func (f *fakeRefresher) RefreshLiveChannels(context.Context) (reconcile.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live++
	f.order = append(f.order, "channels")
	if len(f.liveErrs) > 0 {
		err := f.liveErrs[0]
		f.liveErrs = f.liveErrs[1:]
		return reconcile.Report{}, err
	}
	return reconcile.Report{}, nil
}

func (f *fakeRefresher) RefreshGuideFromFeed(context.Context) (reconcile.GuideReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.guides++
	f.order = append(f.order, "guide")
	return reconcile.GuideReport{}, f.guideErr
}

func (f *fakeRefresher) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live, f.guides
}

func TestRunInitialRefreshAndStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := &fakeRefresher{}
	r := NewRunner(Config{ChannelsInterval: 5 * time.Millisecond, GuideInterval: time.Hour, GuideEnabled: true}, f)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		live, _ := f.counts()
		return live >= 3
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, []string{"guide", "channels"}, f.order[:2])
	assert.Equal(t, 1, f.guides)
}

func TestRunWithoutGuide(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := &fakeRefresher{}
	r := NewRunner(Config{}, f)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, r.Run(ctx))

	live, guides := f.counts()
	assert.Equal(t, 1, live)
	assert.Zero(t, guides)
}

func TestRunStopsWhenUpstreamExhausted(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := &fakeRefresher{liveErrs: []error{errDown, errDown, errDown, errDown}}
	r := NewRunner(Config{ChannelsInterval: time.Millisecond, MaxUpstreamFailures: 3}, f)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := r.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpstreamExhausted))
	assert.True(t, errors.Is(err, reconcile.ErrUpstreamUnavailable))

	live, _ := f.counts()
	assert.Equal(t, 3, live)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	f := &fakeRefresher{liveErrs: []error{errDown, errDown, nil, errDown}}
	r := NewRunner(Config{MaxUpstreamFailures: 3}, f)
	ctx := context.Background()

	require.NoError(t, r.refreshChannels(ctx))
	require.NoError(t, r.refreshChannels(ctx))
	assert.Equal(t, 2, r.Failures("channels"))
	require.NoError(t, r.refreshChannels(ctx))
	assert.Zero(t, r.Failures("channels"))
	require.NoError(t, r.refreshChannels(ctx))
	assert.Equal(t, 1, r.Failures("channels"))
}

func TestNonUpstreamErrorsDoNotCount(t *testing.T) {
	f := &fakeRefresher{guideErr: errors.New("store rejected snapshot")}
	r := NewRunner(Config{MaxUpstreamFailures: 1, GuideEnabled: true}, f)
	for i := 0; i < 3; i++ {
		require.NoError(t, r.refreshGuide(context.Background()))
	}
	assert.Zero(t, r.Failures("guide"))
}

func TestZeroMaxNeverExhausts(t *testing.T) {
	f := &fakeRefresher{guideErr: errDown}
	r := NewRunner(Config{GuideEnabled: true}, f)
	for i := 0; i < 10; i++ {
		require.NoError(t, r.refreshGuide(context.Background()))
	}
	assert.Equal(t, 10, r.Failures("guide"))
}

func TestRunRefreshesGuideOnFileChange(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "guide.xml")
	require.NoError(t, os.WriteFile(path, []byte("<tv/>"), 0o600))

	f := &fakeRefresher{}
	r := NewRunner(Config{GuideEnabled: true, WatchPath: path, WatchDebounce: 10 * time.Millisecond}, f)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// Keep writing until the watcher (started after the initial refresh)
	// reports a change.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("<tv></tv>"), 0o600)
		_, guides := f.counts()
		return guides >= 2
	}, 3*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
