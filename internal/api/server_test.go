// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/kodiguide/internal/alias"
	"github.com/ManuGH/kodiguide/internal/guide"
	"github.com/ManuGH/kodiguide/internal/health"
	"github.com/ManuGH/kodiguide/internal/kodi"
	"github.com/ManuGH/kodiguide/internal/query"
	"github.com/ManuGH/kodiguide/internal/reconcile"
	"github.com/ManuGH/kodiguide/internal/session"
)

const secret = "s3cret"

type fakeDevice struct {
	mu      sync.Mutex
	err     error
	current kodi.Item
	volume  int
	muted   bool
	opened  []int
	toggles int
	shut    bool
}

func (d *fakeDevice) OpenChannel(_ context.Context, id int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.opened = append(d.opened, id)
	return nil
}

func (d *fakeDevice) CurrentItem(context.Context) (kodi.Item, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current, d.err
}

func (d *fakeDevice) Volume(context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.volume, d.err
}

func (d *fakeDevice) SetVolume(_ context.Context, v int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return 0, d.err
	}
	d.volume = v
	return v, nil
}

func (d *fakeDevice) ToggleMute(context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	d.toggles++
	d.muted = !d.muted
	return d.muted, nil
}

func (d *fakeDevice) Shutdown(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.shut = true
	return nil
}

type fakeRefresher struct {
	liveErr  error
	guideErr error
	calls    int
}

func (f *fakeRefresher) RefreshLiveChannels(context.Context) (reconcile.Report, error) {
	f.calls++
	if f.liveErr != nil {
		return reconcile.Report{}, f.liveErr
	}
	return reconcile.Report{LiveChannels: 2, UnresolvedAliases: []string{"WEATHER"}}, nil
}

func (f *fakeRefresher) RefreshGuideFromFeed(context.Context) (reconcile.GuideReport, error) {
	f.calls++
	if f.guideErr != nil {
		return reconcile.GuideReport{}, f.guideErr
	}
	return reconcile.GuideReport{Programs: 3}, nil
}

func (f *fakeRefresher) LastLive() (reconcile.Report, bool) {
	return reconcile.Report{LiveChannels: 2}, true
}

func (f *fakeRefresher) LastGuide() (reconcile.GuideReport, bool) {
	return reconcile.GuideReport{}, false
}

type fixture struct {
	srv       http.Handler
	device    *fakeDevice
	refresher *fakeRefresher
	session   session.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)

	store := guide.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.ReplaceLiveChannels(ctx, []guide.LiveChannel{
		guide.NewLiveChannel(7, "ESPN"),
		guide.NewLiveChannel(4, "NEWS"),
	}))
	require.NoError(t, store.ReplaceGuide(ctx, guide.GuideSnapshot{
		Channels:   []guide.GuideChannel{guide.NewGuideChannel(5, "ESPN")},
		Categories: []guide.Category{{ID: 1, Name: "Sports"}, {ID: 2, Name: "News"}},
		Programs: []guide.Program{guide.NewProgram(guide.Program{
			ID: 1, GuideChannelID: 5, Title: "Match", CategoryID: 1,
			Start: now.Add(600 * time.Second), Stop: now.Add(2 * time.Hour),
		})},
	}))

	engine := query.New(query.Options{
		Store:   store,
		Aliases: alias.New(alias.Entry{Name: "NEWS", Variants: []string{"news channel", "noticias"}}),
		Now:     func() time.Time { return now },
	})

	f := &fixture{
		device:    &fakeDevice{current: kodi.Item{ID: 7, Label: "ESPN", Type: "channel"}, volume: 40},
		refresher: &fakeRefresher{},
		session:   session.NewMemoryStore(),
	}
	hm := health.NewManager("test")
	f.srv = New(Config{
		Secret:           secret,
		LabelPrefix:      "put on channel",
		RefreshRateLimit: 100,
	}, Deps{
		Device:    f.device,
		Engine:    engine,
		Refresher: f.refresher,
		Session:   f.session,
		Store:     store,
		Health:    hm,
	}).Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func (f *fixture) get(t *testing.T, cmd, arg string) *httptest.ResponseRecorder {
	t.Helper()
	p := fmt.Sprintf("/%s/%s", secret, cmd)
	if arg != "" {
		p += "?request=" + url.QueryEscape(arg)
	}
	return f.do(t, http.MethodGet, p)
}

func value(t *testing.T, rec *httptest.ResponseRecorder) any {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body["value"]
}

func assertRecordNotFound(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Record not found", rec.Body.String())
}

func TestWrongSecretIsNotFound(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/wrong/volume").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/volume").Code)
}

func TestChannelCommand(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, float64(7), value(t, f.get(t, "channel", "")))
	assert.Equal(t, float64(7), value(t, f.get(t, "channel", "{value}")))

	assert.Equal(t, float64(12), value(t, f.get(t, "channel", "12")))
	assert.Equal(t, []int{12}, f.device.opened)

	assertRecordNotFound(t, f.get(t, "channel", "twelve"))

	f.device.err = kodi.ErrTimeout
	assertRecordNotFound(t, f.get(t, "channel", "12"))
	assert.Equal(t, float64(-1), value(t, f.get(t, "channel", "")))
}

func TestLabelCommand(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "ESPN", value(t, f.get(t, "label", "")))

	assert.Equal(t, float64(7), value(t, f.get(t, "label", "Put On Channel espn")))
	assert.Equal(t, float64(4), value(t, f.get(t, "label", "noticias")))
	assert.Equal(t, []int{7, 4}, f.device.opened)

	assertRecordNotFound(t, f.get(t, "label", "weather"))
	assertRecordNotFound(t, f.get(t, "label", "put on channel"))
}

func TestVolumeCommand(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, float64(40), value(t, f.get(t, "volume", "")))
	assert.Equal(t, float64(55), value(t, f.get(t, "volume", "55")))
	assertRecordNotFound(t, f.get(t, "volume", "101"))
	assertRecordNotFound(t, f.get(t, "volume", "loud"))

	f.device.err = kodi.ErrUpstreamError
	assert.Equal(t, float64(-1), value(t, f.get(t, "volume", "")))
	assertRecordNotFound(t, f.get(t, "volume", "10"))
}

func TestPowerCommand(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, true, value(t, f.get(t, "power", "")))
	assert.Equal(t, true, value(t, f.get(t, "power", "1")))
	assert.False(t, f.device.shut)
	assert.Equal(t, false, value(t, f.get(t, "power", "0")))
	assert.True(t, f.device.shut)
	assertRecordNotFound(t, f.get(t, "power", "2"))
}

func TestMuteCommandTogglesOnlyOnChange(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, float64(0), value(t, f.get(t, "mute", "")))

	assert.Equal(t, float64(0), value(t, f.get(t, "mute", "0")))
	assert.Equal(t, 0, f.device.toggles)

	assert.Equal(t, float64(1), value(t, f.get(t, "mute", "1")))
	assert.Equal(t, float64(1), value(t, f.get(t, "mute", "1")))
	assert.Equal(t, 1, f.device.toggles)
	assert.Equal(t, float64(1), value(t, f.get(t, "mute", "")))

	assertRecordNotFound(t, f.get(t, "mute", "yes"))

	f.device.err = kodi.ErrTimeout
	assertRecordNotFound(t, f.get(t, "mute", "0"))
	st, _ := f.session.Load(context.Background())
	assert.True(t, st.Muted, "failed toggle keeps the tracked state")
}

func TestSourceCommand(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "one", value(t, f.get(t, "source", "")))
	assert.Equal(t, "three", value(t, f.get(t, "source", "three")))
	assert.Equal(t, "three", value(t, f.get(t, "source", "")))
	assertRecordNotFound(t, f.get(t, "source", "eleven"))
}

func TestProgramsEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/"+secret+"/programs?category=Sports&mode=upcoming")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Mode     string `json:"mode"`
		Programs []struct {
			Tag         string `json:"tag"`
			Title       string `json:"title"`
			ChannelID   int    `json:"channel_id"`
			TimeToStart int64  `json:"time_to_start"`
		} `json:"programs"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Programs, 1)
	assert.Equal(t, "upcoming", body.Mode)
	assert.Equal(t, "7/ESPN:", body.Programs[0].Tag)
	assert.Equal(t, "Match", body.Programs[0].Title)
	assert.Equal(t, int64(600), body.Programs[0].TimeToStart)

	rec = f.do(t, http.MethodGet, "/"+secret+"/programs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"categories":["News","Sports"]`)

	rec = f.do(t, http.MethodGet, "/"+secret+"/programs?category=Cooking")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/"+secret+"/programs?category=Sports&mode=later")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/"+secret+"/refresh/channels")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "WEATHER")

	rec = f.do(t, http.MethodPost, "/"+secret+"/refresh/guide")
	require.Equal(t, http.StatusOK, rec.Code)

	f.refresher.liveErr = fmt.Errorf("%w: device down", reconcile.ErrUpstreamUnavailable)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodPost, "/"+secret+"/refresh/channels").Code)

	f.refresher.guideErr = reconcile.ErrNoFeed
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/"+secret+"/refresh/guide").Code)

	assert.Equal(t, http.StatusMethodNotAllowed, f.do(t, http.MethodGet, "/"+secret+"/refresh/guide").Code)
}

func TestStatusAndProbes(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/"+secret+"/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"live_channels":2`)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/readyz").Code)

	rec = f.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "kodiguide_http_requests_in_flight"))
}
