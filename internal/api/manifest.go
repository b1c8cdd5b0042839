/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/friendsincode/chorus/internal/events"
	"github.com/friendsincode/chorus/internal/manifest"
)

// handleManifest serves the channel's manifest for the current hour window.
// Generation is a pure function of channel state and the floored hour, so the
// result is cached per window and concurrent requests are safe.
func (a *API) handleManifest(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	ctx := r.Context()
	window := manifest.WindowStart(time.Now())

	if payload, ok := a.cache.GetManifest(ctx, channelID, window); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
		return
	}

	m, err := a.builder.Generate(ctx, channelID, time.Now())
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "channel_not_found")
		return
	case errors.Is(err, manifest.ErrNoContent):
		a.logger.Error().Str("channel_id", channelID).Msg("channel has no playable content")
		writeError(w, http.StatusServiceUnavailable, "no_playable_content")
		return
	case err != nil:
		a.logger.Error().Err(err).Str("channel_id", channelID).Msg("manifest generation failed")
		writeError(w, http.StatusInternalServerError, "manifest_generation_failed")
		return
	}

	payload, err := json.Marshal(m)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "manifest_encoding_failed")
		return
	}

	if err := a.cache.SetManifest(ctx, channelID, window, payload); err != nil {
		a.logger.Debug().Err(err).Str("channel_id", channelID).Msg("manifest cache write failed")
	}

	a.bus.Publish(events.EventManifestGenerated, events.Payload{
		"channel_id":  channelID,
		"manifest_id": m.ManifestID,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}
