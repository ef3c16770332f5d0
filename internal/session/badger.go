// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

const stateKey = "session:tv"

// BadgerStore persists State in a badger database so toggles survive
// restarts.
type BadgerStore struct {
	// mu serializes writers so fn in Update never runs twice against the
	// same stored state.
	mu sync.Mutex
	db *badger.DB
}

// OpenBadgerStore opens (or creates) the database in dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }

func (s *BadgerStore) Load(_ context.Context) (State, error) {
	var st State
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		st, err = get(txn)
		return err
	})
	return st, err
}

func (s *BadgerStore) Save(_ context.Context, st State) error {
	if err := st.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(txn *badger.Txn) error {
		return put(txn, st)
	})
}

// Update runs fn inside a read-write transaction. Writers are serialized,
// so fn observes the state left by the previous Update.
func (s *BadgerStore) Update(_ context.Context, fn func(*State) error) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out State
	err := s.db.Update(func(txn *badger.Txn) error {
		st, err := get(txn)
		if err != nil {
			return err
		}
		if err := fn(&st); err != nil {
			return err
		}
		if err := st.validate(); err != nil {
			return err
		}
		out = st
		return put(txn, st)
	})
	if err != nil {
		cur, lerr := s.Load(context.Background())
		if lerr != nil {
			return State{}, err
		}
		return cur, err
	}
	return out, nil
}

func get(txn *badger.Txn) (State, error) {
	item, err := txn.Get([]byte(stateKey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Default(), nil
	}
	if err != nil {
		return State{}, err
	}
	var st State
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &st)
	}); err != nil {
		return State{}, fmt.Errorf("decode session state: %w", err)
	}
	return st, nil
}

func put(txn *badger.Txn, st State) error {
	buf, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return txn.Set([]byte(stateKey), buf)
}
