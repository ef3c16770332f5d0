// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	klog "github.com/ManuGH/kodiguide/internal/log"
)

// ShutdownHook is a function that performs cleanup during graceful shutdown.
// Hooks are executed in reverse registration order (LIFO).
type ShutdownHook func(ctx context.Context) error

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Listen          string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

func (c *ServerConfig) setDefaults() {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		// Refreshes run inside the request and may wait on the feed download.
		c.WriteTimeout = 2 * time.Minute
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 2 * time.Minute
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

// Manager runs the API server next to the background jobs and tears both
// down when either fails or the context ends.
type Manager struct {
	cfg     ServerConfig
	handler http.Handler
	jobs    func(ctx context.Context) error

	server   *http.Server
	listener net.Listener

	// Shutdown hooks (LIFO order)
	shutdownHooks []namedHook

	started  bool
	stopping bool
	mu       sync.Mutex

	logger zerolog.Logger
}

// namedHook represents a shutdown hook with a name for logging
type namedHook struct {
	name string
	hook ShutdownHook
}

// NewManager creates a manager. jobs may be nil.
func NewManager(cfg ServerConfig, handler http.Handler, jobs func(ctx context.Context) error) (*Manager, error) {
	if handler == nil {
		return nil, ErrMissingHandler
	}
	cfg.setDefaults()
	return &Manager{
		cfg:     cfg,
		handler: handler,
		jobs:    jobs,
		logger:  klog.WithComponent("manager"),
	}, nil
}

// Addr returns the bound listen address once Start has bound it.
func (m *Manager) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// Start binds the listener, serves, and runs the jobs until ctx is done or
// one of them fails. It always shuts down before returning; the returned
// error is the failure that ended the run, nil on cancellation.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrManagerStarted
	}
	ln, err := net.Listen("tcp", m.cfg.Listen)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("listen %s: %w", m.cfg.Listen, err)
	}
	m.listener = ln
	m.server = &http.Server{
		Handler:           m.handler,
		ReadTimeout:       m.cfg.ReadTimeout,
		ReadHeaderTimeout: m.cfg.ReadTimeout / 2,
		WriteTimeout:      m.cfg.WriteTimeout,
		IdleTimeout:       m.cfg.IdleTimeout,
	}
	m.started = true
	m.mu.Unlock()

	m.logger.Info().
		Str(klog.FieldEvent, "api.listening").
		Str("addr", ln.Addr().String()).
		Msg("API server listening")

	// Error channel for server and job failures
	errChan := make(chan error, 2)

	go func() {
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error().Err(err).Str(klog.FieldEvent, "api.server_failed").Msg("API server failed")
			errChan <- fmt.Errorf("API server: %w", err)
		}
	}()

	jobsCtx, cancelJobs := context.WithCancel(ctx)
	defer cancelJobs()
	jobsDone := make(chan struct{})
	if m.jobs == nil {
		close(jobsDone)
	} else {
		go func() {
			defer close(jobsDone)
			if err := m.jobs(jobsCtx); err != nil {
				errChan <- fmt.Errorf("jobs: %w", err)
			}
		}()
	}

	var cause error
	select {
	case cause = <-errChan:
		m.logger.Error().Err(cause).Str(klog.FieldEvent, "daemon.failed").Msg("initiating shutdown")
	case <-ctx.Done():
		m.logger.Info().Str(klog.FieldEvent, "daemon.signal").Msg("shutdown signal received")
	}

	// Jobs stop before the hooks close the stores they write to.
	cancelJobs()
	<-jobsDone

	// Use a detached-but-bounded context so shutdown can complete even if parent is canceled.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ShutdownTimeout)
	defer cancel()
	if err := m.Shutdown(shutdownCtx); err != nil {
		if cause != nil {
			return fmt.Errorf("%w (shutdown: %w)", cause, err)
		}
		return err
	}
	return cause
}

// Shutdown stops the server and runs the hooks. Calling it more than once
// is a no-op.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	if !m.started {
		m.mu.Unlock()
		return ErrManagerNotStarted
	}
	m.stopping = true
	m.mu.Unlock()

	m.logger.Info().Str(klog.FieldEvent, "daemon.stopping").Msg("shutting down")

	var errs []error
	if err := m.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("API server shutdown: %w", err))
	}
	if err := m.runHooks(ctx); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		m.logger.Error().Int("error_count", len(errs)).Msg("shutdown completed with errors")
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	m.logger.Info().Str(klog.FieldEvent, "daemon.stopped").Msg("daemon stopped cleanly")
	return nil
}

// runHooks executes and clears the shutdown hooks in reverse order.
func (m *Manager) runHooks(ctx context.Context) error {
	m.mu.Lock()
	hooks := m.shutdownHooks
	m.shutdownHooks = nil
	m.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		hook := hooks[i]
		hookStart := time.Now()
		if err := hook.hook(ctx); err != nil {
			m.logger.Error().
				Err(err).
				Str("hook", hook.name).
				Dur(klog.FieldDuration, time.Since(hookStart)).
				Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", hook.name, err))
			continue
		}
		m.logger.Debug().
			Str("hook", hook.name).
			Dur(klog.FieldDuration, time.Since(hookStart)).
			Msg("shutdown hook completed")
	}
	return errors.Join(errs...)
}

// RegisterShutdownHook registers a cleanup function to be called during shutdown.
// Hooks are executed in reverse registration order (LIFO).
func (m *Manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownHooks = append(m.shutdownHooks, namedHook{name: name, hook: hook})
}
