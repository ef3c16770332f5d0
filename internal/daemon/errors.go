// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import "errors"

var (
	// ErrMissingHandler is returned when a manager is created without an HTTP handler.
	ErrMissingHandler = errors.New("API handler is required")

	// ErrManagerStarted is returned when Start is called twice.
	ErrManagerStarted = errors.New("manager already started")

	// ErrManagerNotStarted is returned when trying to shutdown a manager that hasn't started
	ErrManagerNotStarted = errors.New("manager not started")

	// ErrAlreadyRunning is returned when another instance holds the data directory lock.
	ErrAlreadyRunning = errors.New("another kodiguide instance is using the data directory")
)
