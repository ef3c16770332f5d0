// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package query

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when the requested category does not exist.
var ErrNotFound = errors.New("query: not found")

// Mode selects the time window of a program query.
type Mode string

const (
	// ModeUpcoming selects programs that have not started yet.
	ModeUpcoming Mode = "upcoming"
	// ModeNow selects programs that are on air.
	ModeNow Mode = "now"
)

// ParseMode accepts "now" and "upcoming" (case-insensitive). Empty means
// upcoming.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ModeUpcoming):
		return ModeUpcoming, nil
	case string(ModeNow):
		return ModeNow, nil
	default:
		return "", fmt.Errorf("query: unknown mode %q (want now or upcoming)", s)
	}
}

// Request is a program query. A nil or empty Category asks for the list of
// category names instead of programs.
type Request struct {
	Category *string
	Title    string
	Mode     Mode
}

// Browse reports whether the request lists categories.
func (r Request) Browse() bool {
	return r.Category == nil || *r.Category == ""
}

// Result holds either the category list (browse) or programs.
type Result struct {
	Categories []string          `json:"categories,omitempty"`
	Programs   []ResolvedProgram `json:"programs,omitempty"`
}

// ResolvedProgram is a program the device can tune to.
type ResolvedProgram struct {
	LiveChannelID    int       `json:"channel_id"`
	LiveChannelLabel string    `json:"channel_label"`
	Title            string    `json:"title"`
	Start            time.Time `json:"start"`
	Stop             time.Time `json:"stop"`
	Description      string    `json:"description,omitempty"`
	// TimeToStart is set in upcoming mode, TimeToStop in now mode; seconds.
	// The field for the query's mode is present even when it is zero.
	TimeToStart *int64 `json:"time_to_start,omitempty"`
	TimeToStop  *int64 `json:"time_to_stop,omitempty"`
}

// ChannelTag is the "{id}/{label}:" prefix existing voice callers expect.
func (p ResolvedProgram) ChannelTag() string {
	return fmt.Sprintf("%d/%s:", p.LiveChannelID, p.LiveChannelLabel)
}

// Urgency returns the sort key for mode in seconds.
func (p ResolvedProgram) Urgency(mode Mode) int64 {
	v := p.TimeToStart
	if mode == ModeNow {
		v = p.TimeToStop
	}
	if v == nil {
		return 0
	}
	return *v
}
