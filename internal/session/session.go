// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package session holds the small piece of state the remote-control
// surface tracks on behalf of the TV: mute flag and selected source.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrInvalidSource is returned when saving a source outside one..ten.
var ErrInvalidSource = errors.New("session: invalid source")

// Sources lists the valid inputs in order.
var Sources = []string{"one", "two", "three", "four", "five", "six", "seven", "eight", "nine", "ten"}

// ValidSource reports whether s names one of Sources. Matching is exact.
func ValidSource(s string) bool {
	return slices.Contains(Sources, s)
}

// State is the TV state as seen by callers.
type State struct {
	Muted  bool   `json:"muted"`
	Source string `json:"source"`
}

// Default returns the state of a fresh installation.
func Default() State {
	return State{Source: "one"}
}

func (s State) validate() error {
	if !ValidSource(s.Source) {
		return fmt.Errorf("%w: %q", ErrInvalidSource, s.Source)
	}
	return nil
}

// Store persists State.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, st State) error
	// Update applies fn to the current state and saves the result atomically
	// with respect to other Update calls. If fn fails nothing is saved.
	Update(ctx context.Context, fn func(*State) error) (State, error)
	Close() error
}

// MemoryStore keeps State in process memory.
type MemoryStore struct {
	mu sync.Mutex
	st State
}

// NewMemoryStore returns a store holding Default().
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{st: Default()}
}

func (m *MemoryStore) Load(context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st, nil
}

func (m *MemoryStore) Save(_ context.Context, st State) error {
	if err := st.validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.st = st
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Update(_ context.Context, fn func(*State) error) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.st
	if err := fn(&next); err != nil {
		return m.st, err
	}
	if err := next.validate(); err != nil {
		return m.st, err
	}
	m.st = next
	return next, nil
}

func (m *MemoryStore) Close() error { return nil }
