// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/kodiguide/internal/epg"
	"github.com/ManuGH/kodiguide/internal/guide"
	klog "github.com/ManuGH/kodiguide/internal/log"
	"github.com/ManuGH/kodiguide/internal/metrics"
	"github.com/ManuGH/kodiguide/internal/telemetry"
)

// GuideReport is the outcome of a guide refresh.
type GuideReport struct {
	Channels   int `json:"channels"`
	Categories int `json:"categories"`
	Programs   int `json:"programs"`
	// Skipped counts malformed records, from parsing and from validation.
	Skipped int `json:"skipped"`
	// DuplicateChannels counts feed channel ids seen more than once; the
	// last occurrence was kept.
	DuplicateChannels int       `json:"duplicate_channels"`
	Generation        uint64    `json:"generation"`
	CompletedAt       time.Time `json:"completed_at"`
}

// RefreshGuideFromFeed fetches the configured feed and applies it. Fetch
// failures leave the active guide untouched.
func (r *Reconciler) RefreshGuideFromFeed(ctx context.Context) (GuideReport, error) {
	if r.feed == nil || r.feedURL == "" {
		return GuideReport{}, ErrNoFeed
	}
	v, err, _ := r.sf.Do("guide", func() (any, error) {
		ctx, logger := r.refreshContext(ctx)
		logger.Info().Str(klog.FieldEvent, "guide.fetch_start").Str(klog.FieldFeedURL, redactURL(r.feedURL)).Msg("downloading guide feed")

		start := time.Now()
		feed, err := r.feed.Fetch(ctx, r.feedURL)
		if err != nil {
			if errors.Is(err, epg.ErrUpstreamUnavailable) {
				err = fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
			}
			metrics.RecordRefresh("guide", err, time.Since(start).Seconds())
			logger.Error().Err(err).Str(klog.FieldEvent, "guide.fetch_failed").Msg("guide feed unavailable, guide unchanged")
			return GuideReport{}, err
		}
		return r.RefreshGuide(ctx, feed)
	})
	r.stateMu.Lock()
	r.lastGuideErr = err
	r.stateMu.Unlock()
	if err != nil {
		return GuideReport{}, err
	}
	return v.(GuideReport), nil
}

// RefreshGuide replaces guide channels, categories and programs with the
// content of feed. Malformed records are skipped and counted; they never
// abort the refresh.
func (r *Reconciler) RefreshGuide(ctx context.Context, feed epg.Feed) (rep GuideReport, err error) {
	ctx, logger := r.refreshContext(ctx)
	ctx, span := telemetry.Tracer("kodiguide/reconcile").Start(ctx, "reconcile.refresh_guide")
	start := time.Now()
	defer func() {
		metrics.RecordRefresh("guide", err, time.Since(start).Seconds())
		span.SetAttributes(telemetry.RefreshAttributes("guide", rep.Channels, rep.Programs, rep.Skipped)...)
		telemetry.EndSpan(span, err)
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, merr := range feed.Malformed {
		r.skip(logger, merr)
	}
	rep.Skipped = len(feed.Malformed)

	snap, dups, skipped := r.buildSnapshot(logger, feed)
	rep.Skipped += skipped
	rep.DuplicateChannels = dups

	if err := r.store.ReplaceGuide(ctx, snap); err != nil {
		logger.Error().Err(err).Str(klog.FieldEvent, "guide.refresh_failed").Msg("guide replace failed, guide unchanged")
		return GuideReport{}, fmt.Errorf("replace guide: %w", err)
	}

	rep.Channels = len(snap.Channels)
	rep.Categories = len(snap.Categories)
	rep.Programs = len(snap.Programs)
	rep.Generation = r.store.Generation()
	rep.CompletedAt = r.now()

	metrics.RecordGuideRefresh(rep.Channels, rep.Categories, rep.Programs)
	metrics.AddDuplicateChannels("feed", dups)
	logger.Info().
		Str(klog.FieldEvent, "guide.refresh_done").
		Int("channels", rep.Channels).
		Int("categories", rep.Categories).
		Int("programs", rep.Programs).
		Int("skipped", rep.Skipped).
		Msgf("guide holds %d programs on %d channels", rep.Programs, rep.Channels)

	r.stateMu.Lock()
	r.lastGuide = &rep
	r.stateMu.Unlock()
	return rep, nil
}

// buildSnapshot validates the feed and assigns ids. Categories are created
// first-writer-wins in program order; program ids are sequential.
func (r *Reconciler) buildSnapshot(logger zerolog.Logger, feed epg.Feed) (guide.GuideSnapshot, int, int) {
	var (
		snap    guide.GuideSnapshot
		dups    int
		skipped int
	)

	byID := make(map[int]int, len(feed.Channels))
	for i, rec := range feed.Channels {
		if err := epg.Validate(rec); err != nil {
			r.skip(logger, &epg.MalformedRecordError{Kind: "channel", Index: i, Reason: err.Error()})
			skipped++
			continue
		}
		ch := guide.NewGuideChannel(rec.ID, rec.DisplayName)
		if pos, exists := byID[rec.ID]; exists {
			dups++
			logger.Debug().
				Str(klog.FieldEvent, "guide.duplicate_channel").
				Int(klog.FieldChannelID, rec.ID).
				Msg("duplicate guide channel id, keeping the last one")
			snap.Channels[pos] = ch
			continue
		}
		byID[rec.ID] = len(snap.Channels)
		snap.Channels = append(snap.Channels, ch)
	}

	categories := make(map[string]int)
	snap.Programs = make([]guide.Program, 0, len(feed.Programs))
	for i, rec := range feed.Programs {
		if err := epg.Validate(rec); err != nil {
			r.skip(logger, &epg.MalformedRecordError{Kind: "programme", Index: i, Reason: err.Error()})
			skipped++
			continue
		}
		catID, ok := categories[rec.Category]
		if !ok {
			catID = len(snap.Categories) + 1
			categories[rec.Category] = catID
			snap.Categories = append(snap.Categories, guide.Category{ID: catID, Name: rec.Category})
		}
		snap.Programs = append(snap.Programs, guide.NewProgram(guide.Program{
			ID:             len(snap.Programs) + 1,
			GuideChannelID: rec.Channel,
			Title:          rec.Title,
			Start:          rec.Start,
			Stop:           rec.Stop,
			Description:    rec.Desc,
			CategoryID:     catID,
		}))
	}
	return snap, dups, skipped
}

func (r *Reconciler) skip(logger zerolog.Logger, err error) {
	kind := "record"
	var merr *epg.MalformedRecordError
	if errors.As(err, &merr) {
		kind = merr.Kind
	}
	metrics.IncMalformedRecord(kind)
	logger.Warn().Err(err).Str(klog.FieldEvent, "guide.malformed_record").Msg("skipping malformed guide record")
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return raw
	}
	return u.Redacted()
}
