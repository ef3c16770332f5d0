// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package guide

import (
	"time"

	"github.com/ManuGH/kodiguide/internal/normalize"
)

// LiveChannel is a channel as currently reported by the device.
// Construct it with NewLiveChannel so NormalizedLabel stays derived.
type LiveChannel struct {
	ID              int    `json:"id"`
	Label           string `json:"label"`
	NormalizedLabel string `json:"-"`
}

// NewLiveChannel builds a LiveChannel and derives its comparison key.
func NewLiveChannel(id int, label string) LiveChannel {
	return LiveChannel{ID: id, Label: label, NormalizedLabel: normalize.Label(label)}
}

// GuideChannel is a channel as described by the guide feed. Its id is
// assigned by the feed and stable across refreshes.
type GuideChannel struct {
	ID              int    `json:"id"`
	Label           string `json:"label"`
	NormalizedLabel string `json:"-"`
}

// NewGuideChannel builds a GuideChannel and derives its comparison key.
func NewGuideChannel(id int, label string) GuideChannel {
	return GuideChannel{ID: id, Label: label, NormalizedLabel: normalize.Label(label)}
}

// Category groups programs. Names are unique and matched exactly.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Program is one guide entry. GuideChannelID refers to a GuideChannel by id
// but is not required to resolve.
type Program struct {
	ID              int       `json:"id"`
	GuideChannelID  int       `json:"guide_channel_id"`
	Title           string    `json:"title"`
	NormalizedTitle string    `json:"-"`
	Start           time.Time `json:"start"`
	Stop            time.Time `json:"stop"`
	Description     string    `json:"description,omitempty"`
	CategoryID      int       `json:"category_id"`
}

// NewProgram returns p with its NormalizedTitle recomputed from Title.
func NewProgram(p Program) Program {
	p.NormalizedTitle = normalize.Label(p.Title)
	return p
}

// TimeWindow decides whether a program's [start, stop) interval is wanted.
type TimeWindow func(start, stop time.Time) bool

// ProgramFilter selects programs for QueryPrograms.
type ProgramFilter struct {
	CategoryID int
	// TitleContains is an already normalized substring; empty matches all.
	TitleContains string
	// Window is optional; nil accepts every program.
	Window TimeWindow
}

func (f ProgramFilter) accepts(p Program) bool {
	if p.CategoryID != f.CategoryID {
		return false
	}
	if f.TitleContains != "" && !containsNormalized(p.NormalizedTitle, f.TitleContains) {
		return false
	}
	if f.Window != nil && !f.Window(p.Start, p.Stop) {
		return false
	}
	return true
}

// LiveProgramQuery selects programs by category name for QueryLivePrograms.
type LiveProgramQuery struct {
	Category      string
	TitleContains string
	Window        TimeWindow
}

func (q LiveProgramQuery) filter(categoryID int) ProgramFilter {
	return ProgramFilter{CategoryID: categoryID, TitleContains: q.TitleContains, Window: q.Window}
}

// LiveProgram is a program together with the live channel its guide
// channel resolves to.
type LiveProgram struct {
	Program
	Channel LiveChannel
}

// GuideSnapshot is the complete guide side written by one refresh.
type GuideSnapshot struct {
	Channels   []GuideChannel
	Categories []Category
	Programs   []Program
}

// Stats reports collection sizes.
type Stats struct {
	LiveChannels  int    `json:"live_channels"`
	GuideChannels int    `json:"guide_channels"`
	Categories    int    `json:"categories"`
	Programs      int    `json:"programs"`
	Generation    uint64 `json:"generation"`
}
