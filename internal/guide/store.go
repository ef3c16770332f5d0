// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package guide holds the local program guide: the live channel snapshot
// from the device and the guide channels, categories and programs from the
// feed. Every replace is atomic for concurrent readers.
package guide

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidSnapshot is returned when a replace would break referential rules.
	ErrInvalidSnapshot = errors.New("guide: invalid snapshot")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("guide: store closed")
)

// Store is the persistence contract the reconciler and query engine need.
type Store interface {
	// ReplaceLiveChannels discards the live channel set and installs items.
	ReplaceLiveChannels(ctx context.Context, items []LiveChannel) error
	// ReplaceGuide discards guide channels, categories and programs and installs snap.
	ReplaceGuide(ctx context.Context, snap GuideSnapshot) error

	FindLiveChannelByNormalizedLabel(ctx context.Context, key string) (LiveChannel, bool, error)
	FindGuideChannelByID(ctx context.Context, id int) (GuideChannel, bool, error)
	HasGuideChannelWithNormalizedLabel(ctx context.Context, key string) (bool, error)
	FindCategoryByName(ctx context.Context, name string) (Category, bool, error)

	// LiveChannels returns the live set ordered by id.
	LiveChannels(ctx context.Context) ([]LiveChannel, error)
	// ListCategories returns every category name sorted by name.
	ListCategories(ctx context.Context) ([]string, error)
	// QueryPrograms returns the matching programs in no particular order.
	QueryPrograms(ctx context.Context, f ProgramFilter) ([]Program, error)
	// QueryLivePrograms looks up the category, filters its programs and
	// resolves each one to a live channel, all against one consistent view
	// of the store. Programs without a live channel are dropped. The bool
	// reports whether the category exists.
	QueryLivePrograms(ctx context.Context, q LiveProgramQuery) ([]LiveProgram, bool, error)

	// Generation changes after every successful replace.
	Generation() uint64
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// validate checks what both backends rely on: unique ids, unique category
// names and programs pointing at a category from the same snapshot.
func (s GuideSnapshot) validate() error {
	channels := make(map[int]struct{}, len(s.Channels))
	for _, ch := range s.Channels {
		if _, dup := channels[ch.ID]; dup {
			return fmt.Errorf("%w: duplicate guide channel id %d", ErrInvalidSnapshot, ch.ID)
		}
		channels[ch.ID] = struct{}{}
	}

	cats := make(map[int]struct{}, len(s.Categories))
	names := make(map[string]struct{}, len(s.Categories))
	for _, c := range s.Categories {
		if _, dup := cats[c.ID]; dup {
			return fmt.Errorf("%w: duplicate category id %d", ErrInvalidSnapshot, c.ID)
		}
		if _, dup := names[c.Name]; dup {
			return fmt.Errorf("%w: duplicate category name %q", ErrInvalidSnapshot, c.Name)
		}
		cats[c.ID] = struct{}{}
		names[c.Name] = struct{}{}
	}

	programs := make(map[int]struct{}, len(s.Programs))
	for _, p := range s.Programs {
		if _, dup := programs[p.ID]; dup {
			return fmt.Errorf("%w: duplicate program id %d", ErrInvalidSnapshot, p.ID)
		}
		programs[p.ID] = struct{}{}
		if _, ok := cats[p.CategoryID]; !ok {
			return fmt.Errorf("%w: program %d references unknown category %d", ErrInvalidSnapshot, p.ID, p.CategoryID)
		}
	}
	return nil
}

func validateLive(items []LiveChannel) error {
	ids := make(map[int]struct{}, len(items))
	for _, ch := range items {
		if _, dup := ids[ch.ID]; dup {
			return fmt.Errorf("%w: duplicate live channel id %d", ErrInvalidSnapshot, ch.ID)
		}
		ids[ch.ID] = struct{}{}
	}
	return nil
}

func containsNormalized(haystack, needle string) bool {
	return strings.Contains(haystack, needle)
}
