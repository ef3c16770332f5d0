// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package guide

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Config selects the store backend.
type Config struct {
	Backend string // "memory" (default) or "sqlite"
	Path    string // database file for sqlite; relative paths resolve against DataDir
	DataDir string
}

// Open returns the configured store.
func Open(cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		path := cfg.Path
		if path == "" {
			path = "guide.db"
		}
		if !filepath.IsAbs(path) && cfg.DataDir != "" {
			path = filepath.Join(cfg.DataDir, path)
		}
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("guide: unknown store backend %q", cfg.Backend)
	}
}
