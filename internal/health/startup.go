// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/kodiguide/internal/config"
	"github.com/ManuGH/kodiguide/internal/epg"
	klog "github.com/ManuGH/kodiguide/internal/log"
)

// PerformStartupChecks validates the environment before the daemon starts
// serving: a writable data directory and readable operator files.
func PerformStartupChecks(_ context.Context, cfg config.Config) error {
	logger := klog.WithComponent("startup-check")

	if err := checkDataDir(logger, cfg.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}

	if cfg.AliasFile != "" {
		if err := checkFileReadable(cfg.ResolvePath(cfg.AliasFile)); err != nil {
			return fmt.Errorf("alias file: %w", err)
		}
	}

	if cfg.Guide.URL == "" {
		logger.Warn().
			Str(klog.FieldEvent, "startup.no_guide").
			Msg("guide url not configured; program queries will return no results")
	} else if !epg.IsRemote(cfg.Guide.URL) {
		path := strings.TrimPrefix(cfg.Guide.URL, "file://")
		if err := checkFileReadable(path); err != nil {
			return fmt.Errorf("guide file: %w", err)
		}
	}

	if cfg.Store.Backend == "memory" {
		logger.Info().
			Str(klog.FieldEvent, "startup.memory_store").
			Msg("guide store is in memory; the first refresh after start rebuilds it")
	}

	logger.Info().Str(klog.FieldEvent, "startup.checks_passed").Msg("startup checks passed")
	return nil
}

func checkDataDir(logger zerolog.Logger, path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s: %w", path, err)
	}
	_ = os.Remove(testFile)

	logger.Debug().Str(klog.FieldPath, path).Msg("data directory is writable")
	return nil
}

func checkFileReadable(path string) error {
	f, err := os.Open(path) // #nosec G304 -- path comes from operator config
	if err != nil {
		return err
	}
	return f.Close()
}
