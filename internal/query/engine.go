// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package query answers "what's on" questions against the guide store,
// returning only programs on channels the device can tune to.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/kodiguide/internal/alias"
	"github.com/ManuGH/kodiguide/internal/cache"
	"github.com/ManuGH/kodiguide/internal/guide"
	klog "github.com/ManuGH/kodiguide/internal/log"
	"github.com/ManuGH/kodiguide/internal/metrics"
	"github.com/ManuGH/kodiguide/internal/normalize"
	"github.com/ManuGH/kodiguide/internal/telemetry"
)

const categoryCacheTTL = time.Hour

// Options configures an Engine.
type Options struct {
	Store   guide.Store
	Aliases *alias.Table
	// Cache holds category lists keyed by store generation; nil disables it.
	Cache cache.Cache
	Now   func() time.Time
}

// Engine runs program queries. It is safe for concurrent use.
type Engine struct {
	store   guide.Store
	aliases *alias.Table
	cache   cache.Cache
	now     func() time.Time
	logger  zerolog.Logger
}

// New returns an Engine.
func New(opts Options) *Engine {
	e := &Engine{
		store:   opts.Store,
		aliases: opts.Aliases,
		cache:   opts.Cache,
		now:     opts.Now,
		logger:  klog.WithComponent("query"),
	}
	if e.cache == nil {
		e.cache = cache.NoOp{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Programs answers req. Browse requests return the sorted category names;
// otherwise the category must exist (ErrNotFound) and the matching
// programs are returned ordered by urgency.
func (e *Engine) Programs(ctx context.Context, req Request) (res Result, err error) {
	if req.Mode == "" {
		req.Mode = ModeUpcoming
	}
	modeLabel := string(req.Mode)
	category := ""
	if req.Browse() {
		modeLabel = "browse"
	} else {
		category = *req.Category
	}

	ctx, span := telemetry.Tracer("kodiguide/query").Start(ctx, "query.programs")
	span.SetAttributes(telemetry.QueryAttributes(modeLabel, category)...)
	start := time.Now()
	defer func() {
		outcome := "ok"
		switch {
		case isNotFound(err):
			outcome = "not_found"
		case err != nil:
			outcome = "error"
		}
		n := len(res.Programs)
		if req.Browse() {
			n = len(res.Categories)
		}
		metrics.RecordQuery(modeLabel, outcome, n, time.Since(start).Seconds())
		telemetry.EndSpan(span, err)
	}()

	if req.Browse() {
		names, err := e.Categories(ctx)
		if err != nil {
			return Result{}, err
		}
		return Result{Categories: names}, nil
	}

	progs, err := e.programs(ctx, category, req.Title, req.Mode)
	if err != nil {
		return Result{}, err
	}
	return Result{Programs: progs}, nil
}

// Categories returns the sorted category names, cached per store
// generation.
func (e *Engine) Categories(ctx context.Context) ([]string, error) {
	key := "categories:" + strconv.FormatUint(e.store.Generation(), 10)
	if raw, ok := e.cache.Get(ctx, key); ok {
		var names []string
		if err := json.Unmarshal(raw, &names); err == nil {
			metrics.IncCategoryCache(true)
			return names, nil
		}
	}
	metrics.IncCategoryCache(false)

	names, err := e.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	if raw, err := json.Marshal(names); err == nil {
		e.cache.Set(ctx, key, raw, categoryCacheTTL)
	}
	return names, nil
}

func (e *Engine) programs(ctx context.Context, categoryName, title string, mode Mode) ([]ResolvedProgram, error) {
	now := e.now()
	matches, ok, err := e.store.QueryLivePrograms(ctx, guide.LiveProgramQuery{
		Category:      categoryName,
		TitleContains: normalize.Label(title),
		Window:        window(mode, now),
	})
	if err != nil {
		return nil, fmt.Errorf("query programs: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: category %q", ErrNotFound, categoryName)
	}

	out := make([]ResolvedProgram, 0, len(matches))
	for _, p := range matches {
		rp := ResolvedProgram{
			LiveChannelID:    p.Channel.ID,
			LiveChannelLabel: p.Channel.Label,
			Title:            p.Title,
			Start:            p.Start,
			Stop:             p.Stop,
			Description:      p.Description,
		}
		if mode == ModeNow {
			left := seconds(p.Stop.Sub(now))
			rp.TimeToStop = &left
		} else {
			until := seconds(p.Start.Sub(now))
			rp.TimeToStart = &until
		}
		out = append(out, rp)
	}

	sortByUrgency(out, mode)
	logger := klog.WithContext(ctx, e.logger)
	logger.Debug().
		Str(klog.FieldEvent, "query.programs").
		Str(klog.FieldCategory, categoryName).
		Str(klog.FieldMode, string(mode)).
		Int("results", len(out)).
		Msg("program query answered")
	return out, nil
}

// window returns the time predicate for mode. Now and upcoming partition
// every program that has not ended: now is start <= now < stop.
func window(mode Mode, now time.Time) guide.TimeWindow {
	if mode == ModeNow {
		return func(start, stop time.Time) bool {
			return !start.After(now) && stop.After(now)
		}
	}
	return func(start, _ time.Time) bool {
		return start.After(now)
	}
}

// sortByUrgency orders upcoming results soonest first and now results by
// most time remaining first. Ties go by channel id, then title.
func sortByUrgency(out []ResolvedProgram, mode Mode) {
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if ua, ub := a.Urgency(mode), b.Urgency(mode); ua != ub {
			if mode == ModeNow {
				return ua > ub
			}
			return ua < ub
		}
		if a.LiveChannelID != b.LiveChannelID {
			return a.LiveChannelID < b.LiveChannelID
		}
		return a.Title < b.Title
	})
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}
