// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package epg

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrMalformedRecord marks a feed record that is missing required data.
var ErrMalformedRecord = errors.New("epg: malformed record")

// ChannelRecord is a validated guide channel.
type ChannelRecord struct {
	ID          int    `json:"id" validate:"gte=0"`
	DisplayName string `json:"display_name" validate:"required"`
}

// ProgramRecord is a validated guide programme. Stop must be after Start.
type ProgramRecord struct {
	Channel  int       `json:"channel" validate:"gte=0"`
	Title    string    `json:"title" validate:"required"`
	Category string    `json:"category" validate:"required"`
	Start    time.Time `json:"start" validate:"required"`
	Stop     time.Time `json:"stop" validate:"required,gtfield=Start"`
	Desc     string    `json:"desc,omitempty"`
}

// Feed is the parsed content of one guide document.
type Feed struct {
	Channels  []ChannelRecord
	Programs  []ProgramRecord
	Malformed []error
}

// MalformedRecordError describes one rejected record.
type MalformedRecordError struct {
	Kind   string // "channel" or "programme"
	Index  int    // position among records of the same kind
	Ref    string // channel id as written in the feed
	Reason string
}

func (e *MalformedRecordError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("epg: malformed %s #%d (channel %q): %s", e.Kind, e.Index, e.Ref, e.Reason)
	}
	return fmt.Sprintf("epg: malformed %s #%d: %s", e.Kind, e.Index, e.Reason)
}

func (e *MalformedRecordError) Unwrap() error { return ErrMalformedRecord }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks a record against its struct tags.
func Validate(rec any) error {
	err := validate.Struct(rec)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Field()+" "+friendlyMessage(fe))
	}
	return errors.New(strings.Join(parts, "; "))
}

func friendlyMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "gtfield":
		return "must be after " + strings.ToLower(fe.Param())
	default:
		return "is invalid"
	}
}

func (c Channel) record(idx int) (ChannelRecord, error) {
	bad := func(reason string) error {
		return &MalformedRecordError{Kind: "channel", Index: idx, Ref: c.ID, Reason: reason}
	}
	id, err := strconv.Atoi(strings.TrimSpace(c.ID))
	if err != nil {
		return ChannelRecord{}, bad("id must be an integer")
	}
	rec := ChannelRecord{ID: id, DisplayName: first(c.DisplayNames)}
	if err := Validate(rec); err != nil {
		return ChannelRecord{}, bad(err.Error())
	}
	return rec, nil
}

func (p Programme) record(idx int) (ProgramRecord, error) {
	bad := func(reason string) error {
		return &MalformedRecordError{Kind: "programme", Index: idx, Ref: p.Channel, Reason: reason}
	}
	ch, err := strconv.Atoi(strings.TrimSpace(p.Channel))
	if err != nil {
		return ProgramRecord{}, bad("channel must be an integer")
	}
	start, err := ParseTime(p.Start)
	if err != nil {
		return ProgramRecord{}, bad("start: " + err.Error())
	}
	stop, err := ParseTime(p.Stop)
	if err != nil {
		return ProgramRecord{}, bad("stop: " + err.Error())
	}
	rec := ProgramRecord{
		Channel:  ch,
		Title:    first(p.Titles),
		Category: first(p.Categories),
		Start:    start,
		Stop:     stop,
		Desc:     first(p.Descs),
	}
	if err := Validate(rec); err != nil {
		return ProgramRecord{}, bad(err.Error())
	}
	return rec, nil
}
