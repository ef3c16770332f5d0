// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package kodi

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamUnavailable covers transport failures: the device could not
	// be reached or did not answer in time.
	ErrUpstreamUnavailable = errors.New("kodi: device unreachable or transport failure")
	// ErrTimeout is a kind of ErrUpstreamUnavailable.
	ErrTimeout = fmt.Errorf("%w: request timed out", ErrUpstreamUnavailable)
	// ErrCircuitOpen is returned without contacting the device.
	ErrCircuitOpen = fmt.Errorf("%w: circuit breaker is open", ErrUpstreamUnavailable)

	ErrUpstreamError = errors.New("kodi: device returned a non-200 status")
	ErrBadResponse   = errors.New("kodi: invalid response format or malformed data")
	ErrRPC           = errors.New("kodi: json-rpc error")
)

// RPCError wraps one of the sentinels with call context.
type RPCError struct {
	Sentinel error
	Method   string
	Status   int
	Code     int
	Message  string
	Err      error // lower-level cause, e.g. a net.Error
}

func (e *RPCError) Error() string {
	msg := fmt.Sprintf("kodi: %s: %v", e.Method, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Code != 0 || e.Message != "" {
		msg = fmt.Sprintf("%s: code %d: %s", msg, e.Code, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *RPCError) Unwrap() error {
	return e.Sentinel
}

// outcome maps an error to the metrics outcome label.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "unavailable"
	case errors.Is(err, ErrUpstreamError):
		return "http_error"
	case errors.Is(err, ErrRPC):
		return "rpc_error"
	case errors.Is(err, ErrBadResponse):
		return "bad_response"
	default:
		return "unknown"
	}
}
