// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/kodiguide/internal/version"
)

// fakeDaemon records requests and answers with canned JSON per path.
type fakeDaemon struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   map[string]any
	status   map[string]int
}

func (f *fakeDaemon) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r)
	f.mu.Unlock()

	if code, ok := f.status[r.URL.Path]; ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "query: not found"})
		return
	}
	body, ok := f.bodies[r.Method+" "+r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeDaemon) last() *http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newFakeDaemon(t *testing.T) (*fakeDaemon, string) {
	t.Helper()
	start := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)
	f := &fakeDaemon{
		status: map[string]int{},
		bodies: map[string]any{
			"GET /s3cret/programs": map[string]any{
				"mode":       "upcoming",
				"categories": []string{"News", "Sports"},
				"programs": []map[string]any{{
					"tag": "7/ESPN:", "channel_id": 7, "channel_label": "ESPN",
					"title": "The Big Match", "start": start, "stop": start.Add(2 * time.Hour),
					"time_to_start": 600,
				}},
			},
			"POST /s3cret/refresh/channels": map[string]any{
				"live_channels": 3, "duplicates": 1,
				"missing_from_guide": []map[string]any{{"id": 9, "label": "Shopping"}},
				"unresolved_aliases": []string{"NEWS"},
			},
			"POST /s3cret/refresh/guide": map[string]any{
				"channels": 2, "categories": 4, "programs": 120, "skipped": 3,
			},
			"GET /s3cret/status": map[string]any{
				"store":    map[string]any{"live_channels": 3, "guide_channels": 2, "categories": 4, "programs": 120},
				"channels": map[string]any{"live_channels": 3, "completed_at": start, "missing_from_guide": []any{}, "unresolved_aliases": []string{}},
			},
			"GET /readyz": map[string]any{"ready": true},
		},
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv.URL
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func validConfig(t *testing.T) string {
	return writeConfig(t, "dataDir: "+t.TempDir()+"\nsecret: s3cret\n")
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersionCommand(t *testing.T) {
	code, out, _ := runCLI(t, "version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, version.String())
}

func TestProgramsCommandRendersTable(t *testing.T) {
	f, url := newFakeDaemon(t)
	code, out, errOut := runCLI(t, "programs", "Sports", "--title", "match", "-c", validConfig(t), "--server", url)
	require.Equal(t, 0, code, errOut)

	req := f.last()
	assert.Equal(t, "/s3cret/programs", req.URL.Path)
	assert.Equal(t, "Sports", req.URL.Query().Get("category"))
	assert.Equal(t, "match", req.URL.Query().Get("title"))
	assert.Equal(t, "upcoming", req.URL.Query().Get("mode"))

	assert.Contains(t, out, "7/ESPN:")
	assert.Contains(t, out, "The Big Match")
	assert.Contains(t, out, "Starts in")
	assert.Contains(t, out, "10m0s")
}

func TestProgramsCommandJSON(t *testing.T) {
	_, url := newFakeDaemon(t)
	code, out, _ := runCLI(t, "programs", "Sports", "--json", "-c", validConfig(t), "--server", url)
	require.Equal(t, 0, code)

	var rows []programRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, 7, rows[0].LiveChannelID)
	require.NotNil(t, rows[0].TimeToStart)
	assert.Equal(t, int64(600), *rows[0].TimeToStart)
}

func TestProgramsCommandRejectsBadMode(t *testing.T) {
	code, _, errOut := runCLI(t, "programs", "Sports", "--mode", "later", "-c", validConfig(t), "--server", "http://127.0.0.1:1")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "later")
}

func TestProgramsCommandReportsDaemonError(t *testing.T) {
	f, url := newFakeDaemon(t)
	f.status["/s3cret/programs"] = http.StatusNotFound
	code, _, errOut := runCLI(t, "programs", "Cooking", "-c", validConfig(t), "--server", url)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "daemon answered 404: query: not found")
}

func TestCategoriesCommand(t *testing.T) {
	f, url := newFakeDaemon(t)
	code, out, _ := runCLI(t, "categories", "-c", validConfig(t), "--server", url)
	require.Equal(t, 0, code)
	assert.Equal(t, "News\nSports\n", out)
	assert.False(t, f.last().URL.Query().Has("category"))
}

func TestRefreshCommands(t *testing.T) {
	f, url := newFakeDaemon(t)
	cfg := validConfig(t)

	code, out, _ := runCLI(t, "refresh", "channels", "-c", cfg, "--server", url)
	require.Equal(t, 0, code)
	assert.Equal(t, http.MethodPost, f.last().Method)
	assert.Contains(t, out, "Live channels: 3 (duplicates 1)")
	assert.Contains(t, out, "Shopping")
	assert.Contains(t, out, "Aliases matching no device channel: NEWS")

	code, out, _ = runCLI(t, "refresh", "guide", "-c", cfg, "--server", url)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "120 programs (skipped 3)")

	code, _, _ = runCLI(t, "refresh", "everything", "-c", cfg, "--server", url)
	assert.Equal(t, 1, code)
}

func TestStatusCommand(t *testing.T) {
	_, url := newFakeDaemon(t)
	code, out, _ := runCLI(t, "status", "-c", validConfig(t), "--server", url)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Guide channels")
	assert.Contains(t, out, "Last guide refresh")
	assert.Contains(t, out, "never")
}

func TestHealthcheckCommand(t *testing.T) {
	_, url := newFakeDaemon(t)
	code, out, _ := runCLI(t, "healthcheck", "--server", url)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Healthcheck successful (readyz)")

	code, _, errOut := runCLI(t, "healthcheck", "--live", "--server", url)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "404")
}

func TestClientCommandsNeedValidConfig(t *testing.T) {
	cfg := writeConfig(t, "secret: s3cret\nunknownField: 1\n")
	code, _, errOut := runCLI(t, "categories", "-c", cfg, "--server", "http://127.0.0.1:1")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "load configuration")
}

func TestServeFailsOnInvalidConfig(t *testing.T) {
	cfg := writeConfig(t, "dataDir: "+t.TempDir()+"\n")
	code, _, _ := runCLI(t, "serve", "-c", cfg)
	assert.Equal(t, 1, code)
}

func TestDialAddr(t *testing.T) {
	tests := map[string]string{
		":8090":          "127.0.0.1:8090",
		"0.0.0.0:8090":   "127.0.0.1:8090",
		"[::]:8090":      "127.0.0.1:8090",
		"10.0.0.5:9000":  "10.0.0.5:9000",
		"kodi.lan:8090":  "kodi.lan:8090",
		"not-an-address": "not-an-address",
	}
	for in, want := range tests {
		assert.Equal(t, want, dialAddr(in), in)
	}
}
