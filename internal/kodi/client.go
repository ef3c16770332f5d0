// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package kodi is a small JSON-RPC 2.0 client for the Kodi media center.
package kodi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	klog "github.com/ManuGH/kodiguide/internal/log"
	"github.com/ManuGH/kodiguide/internal/metrics"
	"github.com/ManuGH/kodiguide/internal/telemetry"
)

const (
	defaultTimeout = 5 * time.Second
	maxBodyBytes   = 4 << 20
)

// Config configures a Client.
type Config struct {
	BaseURL  string
	Username string
	Password string
	// Timeout bounds each request; zero means 5s.
	Timeout time.Duration
	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64
	RateBurst int
	// BreakerThreshold consecutive transport failures open the breaker;
	// zero disables it.
	BreakerThreshold int
	BreakerReset     time.Duration
}

// Client talks to one Kodi instance.
type Client struct {
	base     string
	user     string
	password string
	http     *http.Client
	limiter  *rate.Limiter
	breaker  *CircuitBreaker
	nextID   atomic.Uint64
	logger   zerolog.Logger
}

// New returns a Client for cfg.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		base:     strings.TrimRight(cfg.BaseURL, "/"),
		user:     cfg.Username,
		password: cfg.Password,
		http:     &http.Client{Timeout: timeout},
		breaker:  NewCircuitBreaker("kodi", cfg.BreakerThreshold, cfg.BreakerReset),
		logger:   klog.WithComponent("kodi"),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c
}

// Breaker exposes the circuit breaker for health reporting.
func (c *Client) Breaker() *CircuitBreaker { return c.breaker }

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// call performs one JSON-RPC request and decodes the result into out
// (which may be nil).
func (c *Client) call(ctx context.Context, method string, params, out any) (err error) {
	ctx, span := telemetry.Tracer("kodiguide/kodi").Start(ctx, "kodi."+method)
	span.SetAttributes(telemetry.KodiAttributes(method)...)
	start := time.Now()
	defer func() {
		metrics.RecordKodiRequest(method, outcome(err), time.Since(start).Seconds())
		telemetry.EndSpan(span, err)
		if err != nil {
			c.logger.Debug().Err(err).Str(klog.FieldEvent, "kodi.request_failed").Str("method", method).Msg("json-rpc call failed")
		}
	}()

	if c.limiter != nil {
		if werr := c.limiter.Wait(ctx); werr != nil {
			return &RPCError{Sentinel: ErrTimeout, Method: method, Err: werr}
		}
	}

	body, err := json.Marshal(request{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("kodi: encode %s: %w", method, err)
	}

	var raw []byte
	err = c.breaker.Execute(func() error {
		var rerr error
		raw, rerr = c.roundTrip(ctx, method, body)
		return rerr
	}, isTransportFailure)
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return &RPCError{Sentinel: ErrCircuitOpen, Method: method}
		}
		return err
	}

	var resp response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return &RPCError{Sentinel: ErrBadResponse, Method: method, Err: err}
	}
	if resp.Error != nil {
		return &RPCError{Sentinel: ErrRPC, Method: method, Code: resp.Error.Code, Message: resp.Error.Message}
	}
	if out == nil {
		return nil
	}
	if len(resp.Result) == 0 {
		return &RPCError{Sentinel: ErrBadResponse, Method: method, Message: "missing result"}
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return &RPCError{Sentinel: ErrBadResponse, Method: method, Err: err}
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/jsonrpc", bytes.NewReader(body))
	if err != nil {
		return nil, &RPCError{Sentinel: ErrUpstreamUnavailable, Method: method, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, &RPCError{Sentinel: classifyTransport(err), Method: method, Err: err}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, &RPCError{Sentinel: classifyTransport(err), Method: method, Status: res.StatusCode, Err: err}
	}
	if res.StatusCode != http.StatusOK {
		return nil, &RPCError{Sentinel: ErrUpstreamError, Method: method, Status: res.StatusCode, Message: snippet(raw)}
	}
	return raw, nil
}

func classifyTransport(err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return ErrTimeout
	}
	return ErrUpstreamUnavailable
}

// isTransportFailure reports whether err says the device is unhealthy, as
// opposed to a well-formed JSON-RPC rejection.
func isTransportFailure(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrUpstreamError)
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
