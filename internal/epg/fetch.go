// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package epg

import (
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	klog "github.com/ManuGH/kodiguide/internal/log"
	"github.com/ManuGH/kodiguide/internal/metrics"
)

// ErrUpstreamUnavailable is returned when the feed cannot be retrieved.
var ErrUpstreamUnavailable = errors.New("epg: feed unreachable or transport failure")

// SnapshotName is the file the last downloaded feed is kept in.
const SnapshotName = "guide.xml"

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	// Timeout bounds the whole download; zero means 60s.
	Timeout time.Duration
	// DataDir receives the decompressed snapshot of remote feeds. Empty
	// disables the snapshot.
	DataDir string
}

// Fetcher retrieves and parses guide feeds from HTTP(S) URLs or local
// files. Gzip content is detected by its magic bytes.
type Fetcher struct {
	client  *http.Client
	dataDir string
	logger  zerolog.Logger
}

// NewFetcher returns a Fetcher for cfg.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		dataDir: cfg.DataDir,
		logger:  klog.WithComponent("epg"),
	}
}

// SnapshotPath returns where remote feeds are persisted, or "".
func (f *Fetcher) SnapshotPath() string {
	if f.dataDir == "" {
		return ""
	}
	return filepath.Join(f.dataDir, SnapshotName)
}

// IsRemote reports whether source is fetched over HTTP.
func IsRemote(source string) bool {
	u, err := url.Parse(source)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}

// Fetch retrieves source and parses it. Retrieval failures wrap
// ErrUpstreamUnavailable; a document that is not XMLTV is a plain error.
func (f *Fetcher) Fetch(ctx context.Context, source string) (Feed, error) {
	if IsRemote(source) {
		return f.fetchHTTP(ctx, source)
	}
	return f.fetchFile(ctx, source)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, source string) (feed Feed, err error) {
	var size int64
	defer func() { metrics.RecordFeedFetch("http", size, err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return Feed{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	res, err := f.client.Do(req)
	if err != nil {
		return Feed{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return Feed{}, fmt.Errorf("%w: GET %s: HTTP %d", ErrUpstreamUnavailable, redact(source), res.StatusCode)
	}

	body, err := maybeGunzip(res.Body)
	if err != nil {
		return Feed{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	counted := &countingReader{r: body}

	snapshot := f.SnapshotPath()
	if snapshot == "" {
		feed, err = Parse(counted)
		size = counted.n
		return feed, transportOrParse(err)
	}

	if err := os.MkdirAll(f.dataDir, 0o750); err != nil {
		return Feed{}, fmt.Errorf("create data dir: %w", err)
	}
	pending, err := renameio.NewPendingFile(snapshot, renameio.WithPermissions(0o644))
	if err != nil {
		return Feed{}, fmt.Errorf("create pending feed snapshot: %w", err)
	}
	defer func() {
		if cerr := pending.Cleanup(); cerr != nil {
			f.logger.Debug().Err(cerr).Msg("cleanup pending feed snapshot")
		}
	}()

	feed, err = Parse(io.TeeReader(counted, pending))
	size = counted.n
	if err != nil {
		return Feed{}, transportOrParse(err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return Feed{}, fmt.Errorf("atomically replace feed snapshot: %w", err)
	}
	f.logger.Debug().
		Str(klog.FieldEvent, "epg.snapshot_written").
		Str(klog.FieldPath, snapshot).
		Int64("bytes", size).
		Msg("feed snapshot written")
	return feed, nil
}

func (f *Fetcher) fetchFile(ctx context.Context, source string) (feed Feed, err error) {
	var size int64
	defer func() { metrics.RecordFeedFetch("file", size, err) }()

	if err := ctx.Err(); err != nil {
		return Feed{}, err
	}
	path := filepath.Clean(strings.TrimPrefix(source, "file://"))
	// #nosec G304 -- path comes from operator configuration
	file, err := os.Open(path)
	if err != nil {
		return Feed{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer file.Close()

	body, err := maybeGunzip(file)
	if err != nil {
		return Feed{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	counted := &countingReader{r: body}
	feed, err = Parse(counted)
	size = counted.n
	return feed, err
}

func maybeGunzip(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return zr, nil
	}
	return br, nil
}

// transportOrParse classifies a Parse failure on a network stream. A
// broken connection mid-body surfaces as an XML syntax error wrapping the
// read error.
func transportOrParse(err error) error {
	if err == nil {
		return nil
	}
	var ne net.Error
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, gzip.ErrChecksum) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return err
}

func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
