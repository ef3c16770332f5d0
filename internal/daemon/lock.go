// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockName is the lock file created in the data directory.
const LockName = "kodiguide.lock"

// InstanceLock keeps a second daemon off the same data directory. The
// sqlite guide store and the badger session store assume one writer.
type InstanceLock struct {
	path string
	lock *flock.Flock
}

// AcquireLock takes the data directory lock without blocking.
func AcquireLock(dataDir string) (*InstanceLock, error) {
	path := filepath.Join(dataDir, LockName)
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, path)
	}
	return &InstanceLock{path: path, lock: fl}, nil
}

// Path returns the lock file path.
func (l *InstanceLock) Path() string { return l.path }

// Release unlocks; the file itself is left in place.
func (l *InstanceLock) Release() error {
	return l.lock.Unlock()
}
