// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package reconcile

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/kodiguide/internal/guide"
	"github.com/ManuGH/kodiguide/internal/kodi"
	klog "github.com/ManuGH/kodiguide/internal/log"
	"github.com/ManuGH/kodiguide/internal/metrics"
	"github.com/ManuGH/kodiguide/internal/telemetry"
)

// Report is the outcome of a channel refresh.
type Report struct {
	LiveChannels int `json:"live_channels"`
	// Duplicates counts channel ids reported by more than one group; the
	// first occurrence was kept.
	Duplicates   int   `json:"duplicates"`
	FailedGroups []int `json:"failed_groups,omitempty"`
	// MissingFromGuide lists live channels without a guide channel of the
	// same normalized label.
	MissingFromGuide []guide.LiveChannel `json:"missing_from_guide"`
	// UnresolvedAliases lists alias names matching no fetched label.
	UnresolvedAliases []string  `json:"unresolved_aliases"`
	Generation        uint64    `json:"generation"`
	CompletedAt       time.Time `json:"completed_at"`
}

// DeviceChannels is the merged device catalog.
type DeviceChannels struct {
	Channels     []kodi.Channel
	Duplicates   int
	FailedGroups []int
}

// FetchDeviceChannels reads every channel group concurrently and merges the
// results in group order. A failing group contributes nothing; a failing
// group listing, or every group failing, is ErrUpstreamUnavailable.
func (r *Reconciler) FetchDeviceChannels(ctx context.Context) (DeviceChannels, error) {
	logger := klog.WithContext(ctx, r.logger)

	groups, err := r.catalog.ChannelGroups(ctx)
	if err != nil {
		return DeviceChannels{}, fmt.Errorf("%w: list channel groups: %w", ErrUpstreamUnavailable, err)
	}

	perGroup := make([][]kodi.Channel, len(groups))
	failed := make([]bool, len(groups))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, gid := range groups {
		g.Go(func() error {
			chans, err := r.catalog.Channels(ctx, gid)
			if err != nil {
				failed[i] = true
				logger.Warn().Err(err).
					Str(klog.FieldEvent, "channels.group_failed").
					Int(klog.FieldGroupID, gid).
					Msg("channel group fetch failed, skipping group")
				return nil
			}
			perGroup[i] = chans
			return nil
		})
	}
	_ = g.Wait()

	var out DeviceChannels
	seen := make(map[int]struct{})
	for i, chans := range perGroup {
		if failed[i] {
			out.FailedGroups = append(out.FailedGroups, groups[i])
			continue
		}
		for _, ch := range chans {
			if _, dup := seen[ch.ID]; dup {
				out.Duplicates++
				continue
			}
			seen[ch.ID] = struct{}{}
			out.Channels = append(out.Channels, ch)
		}
	}
	if len(groups) > 0 && len(out.FailedGroups) == len(groups) {
		return DeviceChannels{}, fmt.Errorf("%w: all %d channel groups failed", ErrUpstreamUnavailable, len(groups))
	}
	return out, nil
}

// RefreshLiveChannels fetches the device catalog and applies it. On fetch
// failure the live set is untouched. Concurrent callers share one refresh.
func (r *Reconciler) RefreshLiveChannels(ctx context.Context) (Report, error) {
	v, err, shared := r.sf.Do("live", func() (any, error) {
		return r.refreshLive(ctx)
	})
	if shared {
		logger := klog.WithContext(ctx, r.logger)
		logger.Debug().Str(klog.FieldEvent, "channels.refresh_shared").Msg("joined in-flight channel refresh")
	}
	if err != nil {
		return Report{}, err
	}
	return v.(Report), nil
}

func (r *Reconciler) refreshLive(ctx context.Context) (rep Report, err error) {
	ctx, logger := r.refreshContext(ctx)
	ctx, span := telemetry.Tracer("kodiguide/reconcile").Start(ctx, "reconcile.refresh_channels")
	start := time.Now()
	defer func() {
		metrics.RecordRefresh("channels", err, time.Since(start).Seconds())
		span.SetAttributes(telemetry.RefreshAttributes("channels", rep.LiveChannels, 0, rep.Duplicates)...)
		telemetry.EndSpan(span, err)
		r.stateMu.Lock()
		r.lastLiveErr = err
		r.stateMu.Unlock()
	}()

	logger.Info().Str(klog.FieldEvent, "channels.refresh_start").Msg("refreshing live channels")

	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	dev, err := r.FetchDeviceChannels(fetchCtx)
	cancel()
	if err != nil {
		logger.Error().Err(err).Str(klog.FieldEvent, "channels.refresh_failed").Msg("device is not responding, live channels unchanged")
		return Report{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	rep, err = r.applyLocked(ctx, dev.Channels)
	if err != nil {
		return Report{}, err
	}
	rep.Duplicates += dev.Duplicates
	rep.FailedGroups = dev.FailedGroups
	metrics.AddDuplicateChannels("device", dev.Duplicates)
	r.publishLive(rep)
	return rep, nil
}

// ApplyLiveChannels replaces the live set with an already fetched catalog
// and computes the diagnostics.
func (r *Reconciler) ApplyLiveChannels(ctx context.Context, chans []kodi.Channel) (Report, error) {
	ctx, _ = r.refreshContext(ctx)
	r.mu.Lock()
	defer r.mu.Unlock()
	rep, err := r.applyLocked(ctx, chans)
	if err != nil {
		return Report{}, err
	}
	r.publishLive(rep)
	return rep, nil
}

func (r *Reconciler) applyLocked(ctx context.Context, chans []kodi.Channel) (Report, error) {
	logger := klog.WithContext(ctx, r.logger)

	live := make([]guide.LiveChannel, 0, len(chans))
	labels := make([]string, 0, len(chans))
	seen := make(map[int]struct{}, len(chans))
	dups := 0
	for _, ch := range chans {
		labels = append(labels, ch.Label)
		if _, dup := seen[ch.ID]; dup {
			dups++
			continue
		}
		seen[ch.ID] = struct{}{}
		live = append(live, guide.NewLiveChannel(ch.ID, ch.Label))
	}

	// 1. replace
	if err := r.store.ReplaceLiveChannels(ctx, live); err != nil {
		return Report{}, fmt.Errorf("replace live channels: %w", err)
	}

	// 2. live channels the guide does not know
	rep := Report{
		LiveChannels:      len(live),
		Duplicates:        dups,
		MissingFromGuide:  []guide.LiveChannel{},
		UnresolvedAliases: []string{},
		Generation:        r.store.Generation(),
		CompletedAt:       r.now(),
	}
	for _, ch := range live {
		ok, err := r.store.HasGuideChannelWithNormalizedLabel(ctx, ch.NormalizedLabel)
		if err != nil {
			return Report{}, fmt.Errorf("check guide channel %q: %w", ch.Label, err)
		}
		if !ok {
			rep.MissingFromGuide = append(rep.MissingFromGuide, ch)
		}
	}

	// 3. aliases that point nowhere
	if unresolved := r.aliases.Unresolved(labels); len(unresolved) > 0 {
		rep.UnresolvedAliases = unresolved
	}

	logger.Info().
		Str(klog.FieldEvent, "channels.refresh_done").
		Int("channels", rep.LiveChannels).
		Int("duplicates", rep.Duplicates).
		Int("missing_from_guide", len(rep.MissingFromGuide)).
		Msgf("device reports %d channels", rep.LiveChannels)
	if len(rep.UnresolvedAliases) > 0 {
		logger.Warn().
			Str(klog.FieldEvent, "alias.unresolved").
			Strs("aliases", rep.UnresolvedAliases).
			Msg("aliases not linked with any device channel")
	}
	for _, ch := range rep.MissingFromGuide {
		logger.Warn().
			Str(klog.FieldEvent, "channels.missing_from_guide").
			Int(klog.FieldChannelID, ch.ID).
			Str(klog.FieldChannelLabel, ch.Label).
			Msg("device channel not linked to guide programs")
	}
	return rep, nil
}

func (r *Reconciler) publishLive(rep Report) {
	metrics.RecordLiveRefresh(rep.LiveChannels, len(rep.MissingFromGuide), len(rep.UnresolvedAliases))
	r.stateMu.Lock()
	r.lastLive = &rep
	r.stateMu.Unlock()
}
