// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package epg reads XMLTV guide feeds into validated channel and program
// records.
package epg

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// MaxFeedBytes caps the decompressed size of a feed.
const MaxFeedBytes = 256 << 20

// Text is a possibly language-tagged XMLTV text element.
type Text struct {
	Lang  string `xml:"lang,attr,omitempty"`
	Value string `xml:",chardata"`
}

// Channel is an XMLTV <channel> element.
type Channel struct {
	ID           string `xml:"id,attr"`
	DisplayNames []Text `xml:"display-name"`
}

// Programme is an XMLTV <programme> element. Only the fields the guide
// uses are decoded.
type Programme struct {
	Start      string `xml:"start,attr"`
	Stop       string `xml:"stop,attr"`
	Channel    string `xml:"channel,attr"`
	Titles     []Text `xml:"title"`
	Categories []Text `xml:"category"`
	Descs      []Text `xml:"desc"`
}

func first(ts []Text) string {
	for _, t := range ts {
		if v := strings.TrimSpace(t.Value); v != "" {
			return v
		}
	}
	return ""
}

// Parse streams an XMLTV document. Structural XML errors abort the parse;
// records that decode but fail validation are collected in
// Feed.Malformed and skipped.
func Parse(r io.Reader) (Feed, error) {
	dec := newDecoder(io.LimitReader(r, MaxFeedBytes))

	var (
		feed    Feed
		sawRoot bool
		nCh     int
		nProg   int
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Feed{}, fmt.Errorf("decode xmltv: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "tv":
			sawRoot = true
		case "channel":
			var c Channel
			if err := dec.DecodeElement(&c, &se); err != nil {
				return Feed{}, fmt.Errorf("decode xmltv channel %d: %w", nCh, err)
			}
			rec, err := c.record(nCh)
			nCh++
			if err != nil {
				feed.Malformed = append(feed.Malformed, err)
				continue
			}
			feed.Channels = append(feed.Channels, rec)
		case "programme":
			var p Programme
			if err := dec.DecodeElement(&p, &se); err != nil {
				return Feed{}, fmt.Errorf("decode xmltv programme %d: %w", nProg, err)
			}
			rec, err := p.record(nProg)
			nProg++
			if err != nil {
				feed.Malformed = append(feed.Malformed, err)
				continue
			}
			feed.Programs = append(feed.Programs, rec)
		}
	}
	if !sawRoot {
		return Feed{}, errors.New("decode xmltv: missing <tv> root element")
	}
	return feed, nil
}

func newDecoder(r io.Reader) *xml.Decoder {
	dec := xml.NewDecoder(r)
	dec.Strict = true
	// No entity expansion beyond the XML builtins.
	dec.Entity = map[string]string{}
	dec.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(label)
		if err != nil {
			return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
		}
		return enc.NewDecoder().Reader(input), nil
	}
	return dec
}
