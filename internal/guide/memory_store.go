// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package guide

import (
	"context"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// liveSnapshot is immutable once published.
type liveSnapshot struct {
	ordered []LiveChannel
	// first channel per normalized label, in input order
	byLabel map[string]LiveChannel
}

// guideSnapshot is immutable once published.
type guideSnapshot struct {
	channels      map[int]GuideChannel
	labels        map[string]struct{}
	categories    map[string]Category
	categoryNames []string
	byCategory    map[int][]Program
	programs      int
}

// MemoryStore keeps the active snapshots behind atomic pointers. A replace
// builds a complete new snapshot and swaps the pointer, so readers observe
// either the old or the new state and never a partial one.
type MemoryStore struct {
	mu     sync.Mutex // serializes writers
	live   atomic.Pointer[liveSnapshot]
	guide  atomic.Pointer[guideSnapshot]
	gen    atomic.Uint64
	closed atomic.Bool
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	s.live.Store(newLiveSnapshot(nil))
	s.guide.Store(newGuideSnapshot(GuideSnapshot{}))
	// Seeded from the clock so cache keys never repeat across restarts.
	s.gen.Store(uint64(time.Now().UnixNano()))
	return s
}

func newLiveSnapshot(items []LiveChannel) *liveSnapshot {
	ls := &liveSnapshot{
		ordered: make([]LiveChannel, 0, len(items)),
		byLabel: make(map[string]LiveChannel, len(items)),
	}
	for _, ch := range items {
		ch = NewLiveChannel(ch.ID, ch.Label)
		ls.ordered = append(ls.ordered, ch)
		if _, exists := ls.byLabel[ch.NormalizedLabel]; !exists {
			ls.byLabel[ch.NormalizedLabel] = ch
		}
	}
	sort.Slice(ls.ordered, func(i, j int) bool { return ls.ordered[i].ID < ls.ordered[j].ID })
	return ls
}

func newGuideSnapshot(snap GuideSnapshot) *guideSnapshot {
	gs := &guideSnapshot{
		channels:      make(map[int]GuideChannel, len(snap.Channels)),
		labels:        make(map[string]struct{}, len(snap.Channels)),
		categories:    make(map[string]Category, len(snap.Categories)),
		categoryNames: make([]string, 0, len(snap.Categories)),
		byCategory:    make(map[int][]Program),
		programs:      len(snap.Programs),
	}
	for _, ch := range snap.Channels {
		ch = NewGuideChannel(ch.ID, ch.Label)
		gs.channels[ch.ID] = ch
		gs.labels[ch.NormalizedLabel] = struct{}{}
	}
	for _, c := range snap.Categories {
		gs.categories[c.Name] = c
		gs.categoryNames = append(gs.categoryNames, c.Name)
	}
	sort.Strings(gs.categoryNames)
	for _, p := range snap.Programs {
		p = NewProgram(p)
		gs.byCategory[p.CategoryID] = append(gs.byCategory[p.CategoryID], p)
	}
	return gs
}

func (s *MemoryStore) check(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

// ReplaceLiveChannels swaps in a new live channel snapshot.
func (s *MemoryStore) ReplaceLiveChannels(ctx context.Context, items []LiveChannel) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := validateLive(items); err != nil {
		return err
	}
	next := newLiveSnapshot(items)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.live.Store(next)
	s.gen.Add(1)
	return nil
}

// ReplaceGuide swaps in a new guide snapshot.
func (s *MemoryStore) ReplaceGuide(ctx context.Context, snap GuideSnapshot) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := snap.validate(); err != nil {
		return err
	}
	next := newGuideSnapshot(snap)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.guide.Store(next)
	s.gen.Add(1)
	return nil
}

func (s *MemoryStore) FindLiveChannelByNormalizedLabel(ctx context.Context, key string) (LiveChannel, bool, error) {
	if err := s.check(ctx); err != nil {
		return LiveChannel{}, false, err
	}
	ch, ok := s.live.Load().byLabel[key]
	return ch, ok, nil
}

func (s *MemoryStore) FindGuideChannelByID(ctx context.Context, id int) (GuideChannel, bool, error) {
	if err := s.check(ctx); err != nil {
		return GuideChannel{}, false, err
	}
	ch, ok := s.guide.Load().channels[id]
	return ch, ok, nil
}

func (s *MemoryStore) HasGuideChannelWithNormalizedLabel(ctx context.Context, key string) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	_, ok := s.guide.Load().labels[key]
	return ok, nil
}

func (s *MemoryStore) FindCategoryByName(ctx context.Context, name string) (Category, bool, error) {
	if err := s.check(ctx); err != nil {
		return Category{}, false, err
	}
	c, ok := s.guide.Load().categories[name]
	return c, ok, nil
}

func (s *MemoryStore) LiveChannels(ctx context.Context) ([]LiveChannel, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return slices.Clone(s.live.Load().ordered), nil
}

func (s *MemoryStore) ListCategories(ctx context.Context) ([]string, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return slices.Clone(s.guide.Load().categoryNames), nil
}

func (s *MemoryStore) QueryPrograms(ctx context.Context, f ProgramFilter) ([]Program, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var out []Program
	for _, p := range s.guide.Load().byCategory[f.CategoryID] {
		if f.accepts(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemoryStore) QueryLivePrograms(ctx context.Context, q LiveProgramQuery) ([]LiveProgram, bool, error) {
	if err := s.check(ctx); err != nil {
		return nil, false, err
	}
	g, live := s.guide.Load(), s.live.Load()
	cat, ok := g.categories[q.Category]
	if !ok {
		return nil, false, nil
	}
	f := q.filter(cat.ID)
	var out []LiveProgram
	for _, p := range g.byCategory[cat.ID] {
		if !f.accepts(p) {
			continue
		}
		gc, ok := g.channels[p.GuideChannelID]
		if !ok {
			continue
		}
		if ch, ok := live.byLabel[gc.NormalizedLabel]; ok {
			out = append(out, LiveProgram{Program: p, Channel: ch})
		}
	}
	return out, true, nil
}

func (s *MemoryStore) Generation() uint64 { return s.gen.Load() }

func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	if err := s.check(ctx); err != nil {
		return Stats{}, err
	}
	live, g := s.live.Load(), s.guide.Load()
	return Stats{
		LiveChannels:  len(live.ordered),
		GuideChannels: len(g.channels),
		Categories:    len(g.categoryNames),
		Programs:      g.programs,
		Generation:    s.gen.Load(),
	}, nil
}

func (s *MemoryStore) Close() error {
	s.closed.Store(true)
	return nil
}
