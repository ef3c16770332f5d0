// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLabel(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"ascii upper", "ESPN", "espn"},
		{"mixed case", "Discovery Channel", "discovery channel"},
		{"edge whitespace", "  NEWS \t", "news"},
		{"zero width edges", "\u200BNEWS\uFEFF", "news"},
		{"inner whitespace collapsed", "Das   Erste\tHD", "das erste hd"},
		{"cyrillic", "ПЕРВЫЙ КАНАЛ", "первый канал"},
		{"german sharp s folds", "STRAßE", "strasse"},
		{"empty", "", ""},
		{"only spaces", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Label(tt.in))
		})
	}
}

func TestLabelIdempotent(t *testing.T) {
	inputs := []string{
		"ESPN", "  Noticias  ", "Первый Канал", "ǰ", "Ω ohm", "Straße", "ﬁle", "Å",
	}
	for _, in := range inputs {
		once := Label(in)
		assert.Equal(t, once, Label(once), "Label must be idempotent for %q", in)
	}
}

func TestLabelCaseVariantsCollapse(t *testing.T) {
	variants := []string{"news channel", "NEWS CHANNEL", "News Channel", "nEwS cHaNnEl"}
	want := Label(variants[0])
	for _, v := range variants[1:] {
		assert.Equal(t, want, Label(v))
	}
	assert.True(t, Equal("Noticias", "NOTICIAS"))
	assert.False(t, Equal("Noticias", "News"))
}

func TestContains(t *testing.T) {
	assert.True(t, Contains("The Big Match", "big"))
	assert.True(t, Contains("The Big Match", "BIG MATCH"))
	assert.True(t, Contains("anything", ""))
	assert.False(t, Contains("The Big Match", "final"))
}
