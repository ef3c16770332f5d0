// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package epg

import (
	"fmt"
	"strings"
	"time"
)

// XMLTV timestamps: YYYYMMDDhhmmss with an optional numeric zone. Seconds
// may be omitted. A missing zone means UTC.
var timeLayouts = []string{
	"20060102150405 -0700",
	"20060102150405",
	"200601021504 -0700",
	"200601021504",
	"20060102150405-0700",
}

// ParseTime parses an XMLTV timestamp.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// FormatTime renders t in the canonical XMLTV layout.
func FormatTime(t time.Time) string {
	return t.Format("20060102150405 -0700")
}
