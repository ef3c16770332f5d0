// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
}

func startManager(t *testing.T, m *Manager, ctx context.Context) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()
	require.Eventually(t, func() bool { return m.Addr() != "" }, time.Second, 5*time.Millisecond)
	return done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not stop")
		return nil
	}
}

func TestNewManagerRequiresHandler(t *testing.T) {
	_, err := NewManager(ServerConfig{}, nil, nil)
	assert.ErrorIs(t, err, ErrMissingHandler)
}

func TestManagerServesUntilCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	m, err := NewManager(ServerConfig{Listen: "127.0.0.1:0"}, okHandler(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := startManager(t, m, ctx)

	resp, err := http.Get("http://" + m.Addr() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", string(body))
	http.DefaultClient.CloseIdleConnections()

	cancel()
	require.NoError(t, wait(t, done))
}

func TestManagerRunsHooksInReverseOrder(t *testing.T) {
	m, err := NewManager(ServerConfig{Listen: "127.0.0.1:0"}, okHandler(), nil)
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		order []string
	)
	for _, name := range []string{"first", "second", "third"} {
		m.RegisterShutdownHook(name, func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := startManager(t, m, ctx)
	cancel()
	require.NoError(t, wait(t, done))
	assert.Equal(t, []string{"third", "second", "first"}, order)

	// second shutdown is a no-op
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestManagerStopsWhenJobsFail(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	boom := errors.New("budget spent")
	hookRan := false
	m, err := NewManager(ServerConfig{Listen: "127.0.0.1:0"}, okHandler(), func(context.Context) error {
		return boom
	})
	require.NoError(t, err)
	m.RegisterShutdownHook("store", func(context.Context) error {
		hookRan = true
		return nil
	})

	err = m.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, hookRan)
}

func TestManagerWaitsForJobsBeforeHooks(t *testing.T) {
	jobsStopped := make(chan struct{})
	m, err := NewManager(ServerConfig{Listen: "127.0.0.1:0"}, okHandler(), func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		close(jobsStopped)
		return nil
	})
	require.NoError(t, err)

	var stoppedFirst bool
	m.RegisterShutdownHook("store", func(context.Context) error {
		select {
		case <-jobsStopped:
			stoppedFirst = true
		default:
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := startManager(t, m, ctx)
	cancel()
	require.NoError(t, wait(t, done))
	assert.True(t, stoppedFirst)
}

func TestManagerHookErrorsAreReported(t *testing.T) {
	m, err := NewManager(ServerConfig{Listen: "127.0.0.1:0"}, okHandler(), nil)
	require.NoError(t, err)
	m.RegisterShutdownHook("broken", func(context.Context) error { return errors.New("close failed") })

	ctx, cancel := context.WithCancel(context.Background())
	done := startManager(t, m, ctx)
	cancel()
	err = wait(t, done)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hook broken: close failed")
}

func TestManagerStartTwice(t *testing.T) {
	m, err := NewManager(ServerConfig{Listen: "127.0.0.1:0"}, okHandler(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := startManager(t, m, ctx)
	assert.ErrorIs(t, m.Start(ctx), ErrManagerStarted)
	cancel()
	require.NoError(t, wait(t, done))
}

func TestShutdownBeforeStart(t *testing.T) {
	m, err := NewManager(ServerConfig{}, okHandler(), nil)
	require.NoError(t, err)
	assert.ErrorIs(t, m.Shutdown(context.Background()), ErrManagerNotStarted)
}

func TestListenFailure(t *testing.T) {
	m, err := NewManager(ServerConfig{Listen: "256.0.0.1:bad"}, okHandler(), nil)
	require.NoError(t, err)
	err = m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen")
}
