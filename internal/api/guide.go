// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"errors"
	"net/http"

	"github.com/ManuGH/kodiguide/internal/guide"
	klog "github.com/ManuGH/kodiguide/internal/log"
	"github.com/ManuGH/kodiguide/internal/query"
	"github.com/ManuGH/kodiguide/internal/reconcile"
)

// programView adds the channel tag callers read aloud.
type programView struct {
	Tag string `json:"tag"`
	query.ResolvedProgram
}

type programsResponse struct {
	Mode       query.Mode    `json:"mode,omitempty"`
	Categories []string      `json:"categories,omitempty"`
	Programs   []programView `json:"programs"`
}

// handlePrograms answers GET /programs?category=&title=&mode=. Without a
// category it lists the category names.
func (s *Server) handlePrograms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode, err := query.ParseMode(q.Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req := query.Request{Title: q.Get("title"), Mode: mode}
	if q.Has("category") {
		c := q.Get("category")
		req.Category = &c
	}

	res, err := s.deps.Engine.Programs(r.Context(), req)
	switch {
	case errors.Is(err, query.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
		return
	case err != nil:
		logger := klog.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).
			Str(klog.FieldEvent, "query.failed").Msg("program query failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if req.Browse() {
		writeJSON(w, http.StatusOK, programsResponse{Categories: res.Categories, Programs: []programView{}})
		return
	}
	out := programsResponse{Mode: mode, Programs: make([]programView, len(res.Programs))}
	for i, p := range res.Programs {
		out.Programs[i] = programView{Tag: p.ChannelTag(), ResolvedProgram: p}
	}
	writeJSON(w, http.StatusOK, out)
}

type statusResponse struct {
	Store    *guide.Stats           `json:"store,omitempty"`
	Channels *reconcile.Report      `json:"channels,omitempty"`
	Guide    *reconcile.GuideReport `json:"guide,omitempty"`
}

// handleStatus reports store sizes and the last refresh reports, including
// the unresolved aliases and channels missing from the guide.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var resp statusResponse
	if s.deps.Store != nil {
		st, err := s.deps.Store.Stats(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		resp.Store = &st
	}
	if rep, ok := s.deps.Refresher.LastLive(); ok {
		resp.Channels = &rep
	}
	if rep, ok := s.deps.Refresher.LastGuide(); ok {
		resp.Guide = &rep
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefreshChannels(w http.ResponseWriter, r *http.Request) {
	rep, err := s.deps.Refresher.RefreshLiveChannels(r.Context())
	if err != nil {
		writeError(w, refreshStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleRefreshGuide(w http.ResponseWriter, r *http.Request) {
	rep, err := s.deps.Refresher.RefreshGuideFromFeed(r.Context())
	if err != nil {
		writeError(w, refreshStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func refreshStatus(err error) int {
	switch {
	case errors.Is(err, reconcile.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, reconcile.ErrNoFeed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
