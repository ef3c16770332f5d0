// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldRefreshID = "refresh_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Catalog / guide fields
	FieldChannelID    = "channel_id"
	FieldChannelLabel = "channel_label"
	FieldGroupID      = "group_id"
	FieldCategory     = "category"
	FieldAlias        = "alias"
	FieldMode         = "mode"

	// Source fields
	FieldBaseURL  = "base_url"
	FieldFeedURL  = "feed_url"
	FieldPath     = "path"
	FieldDuration = "duration_ms"
)
