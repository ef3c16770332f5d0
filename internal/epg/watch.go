// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package epg

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	klog "github.com/ManuGH/kodiguide/internal/log"
)

// DefaultDebounce collapses bursts of writes into one notification.
const DefaultDebounce = 500 * time.Millisecond

// Watch calls fn after path changes, debounced. It watches the parent
// directory so editors that replace the file by rename are seen. Watch
// blocks until ctx is done.
func Watch(ctx context.Context, path string, debounce time.Duration, fn func(context.Context)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	logger := klog.WithComponent("epg")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve feed path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch feed directory: %w", err)
	}
	logger.Info().Str(klog.FieldEvent, "epg.watcher_started").Str(klog.FieldPath, abs).Msg("watching guide feed for changes")

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Str(klog.FieldEvent, "epg.watcher_stopped").Msg("guide feed watcher stopped")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				logger.Debug().Str(klog.FieldEvent, "epg.file_changed").Str("op", event.Op.String()).Msg("guide feed changed")
				timer.Reset(debounce)
			}
		case <-timer.C:
			fn(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error().Err(err).Str(klog.FieldEvent, "epg.watcher_error").Msg("guide feed watcher error")
		}
	}
}
