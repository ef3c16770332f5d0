// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/kodiguide/internal/guide"
	klog "github.com/ManuGH/kodiguide/internal/log"
	"github.com/ManuGH/kodiguide/internal/metrics"
	"github.com/ManuGH/kodiguide/internal/normalize"
)

// Resolution is the outcome of ResolveLabel.
type Resolution struct {
	Channel guide.LiveChannel
	// Candidates are the labels tried, in order.
	Candidates []string
	// Matched is the candidate that found the channel.
	Matched string
}

// ResolveLabel finds the live channel for a spoken label, trying the label
// itself and then every alias whose variants contain it. The first hit
// wins. A label nothing matches is ErrNotFound.
func (e *Engine) ResolveLabel(ctx context.Context, spoken string) (Resolution, error) {
	candidates := e.aliases.Candidates(spoken)
	for i, cand := range candidates {
		ch, ok, err := e.store.FindLiveChannelByNormalizedLabel(ctx, normalize.Label(cand))
		if err != nil {
			return Resolution{}, fmt.Errorf("find live channel: %w", err)
		}
		if ok {
			outcome := "direct"
			if i > 0 {
				outcome = "alias"
			}
			metrics.IncLabelResolution(outcome)
			return Resolution{Channel: ch, Candidates: candidates, Matched: cand}, nil
		}
	}
	metrics.IncLabelResolution("unresolved")
	logger := klog.WithContext(ctx, e.logger)
	logger.Info().
		Str(klog.FieldEvent, "label.unresolved").
		Str(klog.FieldChannelLabel, spoken).
		Strs("candidates", candidates).
		Msg("consider registering an alias for this label")
	return Resolution{Candidates: candidates}, fmt.Errorf("%w: label %q", ErrNotFound, spoken)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
