// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package alias maps operator-registered canonical channel names to the
// spoken or typed variants used in voice commands.
package alias

import (
	"github.com/ManuGH/kodiguide/internal/normalize"
)

// Entry is one canonical alias name together with its spoken variants.
type Entry struct {
	Name     string
	Variants []string
}

// Table is an ordered, read-only alias table. Enumeration order is the
// order entries were loaded in.
type Table struct {
	entries []Entry
	// variant key -> indexes into entries, ascending
	byVariant map[string][]int
}

// New builds a table from the given entries, keeping their order.
func New(entries ...Entry) *Table {
	t := &Table{
		entries:   make([]Entry, 0, len(entries)),
		byVariant: make(map[string][]int),
	}
	for _, e := range entries {
		variants := make([]string, len(e.Variants))
		copy(variants, e.Variants)
		idx := len(t.entries)
		t.entries = append(t.entries, Entry{Name: e.Name, Variants: variants})

		seen := make(map[string]struct{}, len(variants))
		for _, v := range variants {
			key := normalize.Label(v)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			t.byVariant[key] = append(t.byVariant[key], idx)
		}
	}
	return t
}

// Len returns the number of alias names in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Names returns the alias names in table order.
func (t *Table) Names() []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.Name)
	}
	return out
}

// Entries returns a copy of the table entries in table order.
func (t *Table) Entries() []Entry {
	if t == nil {
		return nil
	}
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Candidates expands a spoken label into the labels to try against the
// live channel set, in order: the spoken label itself, then every alias
// name whose variants contain it (case-insensitive), in table order.
// Without a matching alias the result has length 1.
func (t *Table) Candidates(spoken string) []string {
	out := []string{spoken}
	if t == nil {
		return out
	}
	key := normalize.Label(spoken)
	for _, idx := range t.byVariant[key] {
		name := t.entries[idx].Name
		if normalize.Label(name) == key {
			continue
		}
		out = append(out, name)
	}
	return out
}

// Unresolved returns the alias names that match none of the given channel
// labels (case-insensitive), in table order.
func (t *Table) Unresolved(labels []string) []string {
	if t == nil || len(t.entries) == 0 {
		return nil
	}
	known := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		known[normalize.Label(l)] = struct{}{}
	}
	var out []string
	for _, e := range t.entries {
		if _, ok := known[normalize.Label(e.Name)]; !ok {
			out = append(out, e.Name)
		}
	}
	return out
}
