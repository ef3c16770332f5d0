// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"net/http"
	"strconv"
	"strings"

	klog "github.com/ManuGH/kodiguide/internal/log"
	"github.com/ManuGH/kodiguide/internal/session"
)

// handleChannel reports the playing channel id (-1 when the device cannot
// be asked) or tunes to the given id.
func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	logger := klog.WithComponentFromContext(r.Context(), "api")
	arg, read := requestValue(r)
	if read {
		item, err := s.deps.Device.CurrentItem(r.Context())
		if err != nil {
			logger.Warn().Err(err).Str(klog.FieldEvent, "command.channel_get_failed").Msg("current channel unavailable")
			writeValue(w, -1)
			return
		}
		writeValue(w, item.ID)
		return
	}

	id, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || id < 0 {
		writeRecordNotFound(w)
		return
	}
	if err := s.deps.Device.OpenChannel(r.Context(), id); err != nil {
		logger.Warn().Err(err).Int(klog.FieldChannelID, id).Str(klog.FieldEvent, "command.channel_failed").Msg("open channel failed")
		writeRecordNotFound(w)
		return
	}
	logger.Info().Int(klog.FieldChannelID, id).Str(klog.FieldEvent, "command.channel").Msg("channel set")
	writeValue(w, id)
}

// handleLabel reports the playing channel label or tunes by spoken label.
func (s *Server) handleLabel(w http.ResponseWriter, r *http.Request) {
	logger := klog.WithComponentFromContext(r.Context(), "api")
	arg, read := requestValue(r)
	if read {
		item, err := s.deps.Device.CurrentItem(r.Context())
		if err != nil {
			logger.Warn().Err(err).Str(klog.FieldEvent, "command.label_get_failed").Msg("current label unavailable")
			writeValue(w, "")
			return
		}
		writeValue(w, item.Label)
		return
	}

	label := s.spokenLabel(arg)
	if label == "" {
		writeRecordNotFound(w)
		return
	}
	res, err := s.deps.Engine.ResolveLabel(r.Context(), label)
	if err != nil {
		writeRecordNotFound(w)
		return
	}
	if err := s.deps.Device.OpenChannel(r.Context(), res.Channel.ID); err != nil {
		logger.Warn().Err(err).Int(klog.FieldChannelID, res.Channel.ID).Str(klog.FieldEvent, "command.label_failed").Msg("open channel failed")
		writeRecordNotFound(w)
		return
	}
	logger.Info().
		Str(klog.FieldEvent, "command.label").
		Str(klog.FieldChannelLabel, label).
		Str(klog.FieldAlias, res.Matched).
		Int(klog.FieldChannelID, res.Channel.ID).
		Msg("channel set by label")
	writeValue(w, res.Channel.ID)
}

// spokenLabel upper-cases the command and removes the configured prefix.
func (s *Server) spokenLabel(arg string) string {
	label := strings.ToUpper(arg)
	if p := strings.ToUpper(strings.TrimSpace(s.cfg.LabelPrefix)); p != "" {
		label = strings.Replace(label, p, "", 1)
	}
	return strings.TrimSpace(label)
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	arg, read := requestValue(r)
	if read {
		v, err := s.deps.Device.Volume(r.Context())
		if err != nil {
			writeValue(w, -1)
			return
		}
		writeValue(w, v)
		return
	}

	v, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || v < 0 || v > 100 {
		writeRecordNotFound(w)
		return
	}
	got, err := s.deps.Device.SetVolume(r.Context(), v)
	if err != nil {
		writeRecordNotFound(w)
		return
	}
	writeValue(w, got)
}

// handlePower reports true while the bridge answers; "0" shuts the device
// down and "1" is acknowledged without a device call.
func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	arg, read := requestValue(r)
	if read {
		writeValue(w, true)
		return
	}
	switch arg {
	case "0":
		if err := s.deps.Device.Shutdown(r.Context()); err != nil {
			writeRecordNotFound(w)
			return
		}
		logger := klog.WithComponentFromContext(r.Context(), "api")
		logger.Info().
			Str(klog.FieldEvent, "command.power_off").Msg("device shutdown requested")
		writeValue(w, false)
	case "1":
		writeValue(w, true)
	default:
		writeRecordNotFound(w)
	}
}

// handleMute toggles the device only when the requested state differs from
// the tracked one.
func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	arg, read := requestValue(r)
	if read {
		st, err := s.deps.Session.Load(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeValue(w, muteValue(st.Muted))
		return
	}
	if arg != "0" && arg != "1" {
		writeRecordNotFound(w)
		return
	}
	want := arg == "1"

	st, err := s.deps.Session.Update(r.Context(), func(st *session.State) error {
		if st.Muted == want {
			return nil
		}
		muted, err := s.deps.Device.ToggleMute(r.Context())
		if err != nil {
			return err
		}
		st.Muted = muted
		return nil
	})
	if err != nil {
		logger := klog.WithComponentFromContext(r.Context(), "api")
		logger.Warn().Err(err).
			Str(klog.FieldEvent, "command.mute_failed").Msg("mute toggle failed")
		writeRecordNotFound(w)
		return
	}
	writeValue(w, muteValue(st.Muted))
}

func muteValue(muted bool) int {
	if muted {
		return 1
	}
	return 0
}

func (s *Server) handleSource(w http.ResponseWriter, r *http.Request) {
	arg, read := requestValue(r)
	if read {
		st, err := s.deps.Session.Load(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeValue(w, st.Source)
		return
	}
	if !session.ValidSource(arg) {
		writeRecordNotFound(w)
		return
	}
	st, err := s.deps.Session.Update(r.Context(), func(st *session.State) error {
		st.Source = arg
		return nil
	})
	if err != nil {
		writeRecordNotFound(w)
		return
	}
	writeValue(w, st.Source)
}
