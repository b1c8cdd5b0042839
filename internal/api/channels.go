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
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/friendsincode/chorus/internal/cache"
	"github.com/friendsincode/chorus/internal/events"
	"github.com/friendsincode/chorus/internal/manifest"
	"github.com/friendsincode/chorus/internal/models"
)

type channelCreateRequest struct {
	TenantID          string  `json:"tenant_id"`
	Name              string  `json:"name"`
	Bitrate           int     `json:"bitrate"`
	CrossfadeSeconds  int     `json:"crossfade_seconds"`
	NormalizationLUFS float64 `json:"normalization_lufs"`
	OfflineMode       bool    `json:"offline_mode"`
}

func (a *API) handleChannelsCreate(w http.ResponseWriter, r *http.Request) {
	var req channelCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name_required")
		return
	}

	channel := models.Channel{
		ID:                uuid.NewString(),
		TenantID:          req.TenantID,
		Name:              req.Name,
		Status:            models.ChannelDraft,
		Bitrate:           req.Bitrate,
		CrossfadeSeconds:  req.CrossfadeSeconds,
		NormalizationLUFS: req.NormalizationLUFS,
		OfflineMode:       req.OfflineMode,
	}
	if err := a.db.WithContext(r.Context()).Create(&channel).Error; err != nil {
		a.logger.Error().Err(err).Msg("channel create failed")
		writeError(w, http.StatusInternalServerError, "create_failed")
		return
	}

	writeJSON(w, http.StatusCreated, channel)
}

func (a *API) handleChannelsList(w http.ResponseWriter, r *http.Request) {
	var channels []models.Channel
	if err := a.db.WithContext(r.Context()).Order("created_at ASC").Find(&channels).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "list_failed")
		return
	}
	writeJSON(w, http.StatusOK, channels)
}

func (a *API) handleChannelsGet(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	ctx := r.Context()

	if cached, ok := a.cache.GetChannel(ctx, channelID); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	var channel models.Channel
	if err := a.db.WithContext(ctx).First(&channel, "id = ?", channelID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "channel_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get_failed")
		return
	}

	_ = a.cache.SetChannel(ctx, &cache.CachedChannel{
		ID:                channel.ID,
		TenantID:          channel.TenantID,
		Name:              channel.Name,
		Status:            string(channel.Status),
		Bitrate:           channel.Bitrate,
		CrossfadeSeconds:  channel.CrossfadeSeconds,
		NormalizationLUFS: channel.NormalizationLUFS,
		OfflineMode:       channel.OfflineMode,
	})

	writeJSON(w, http.StatusOK, channel)
}

func (a *API) handleChannelOnline(w http.ResponseWriter, r *http.Request) {
	a.setChannelStatus(w, r, models.ChannelOnline, events.EventChannelOnline)
}

func (a *API) handleChannelOffline(w http.ResponseWriter, r *http.Request) {
	a.setChannelStatus(w, r, models.ChannelOffline, events.EventChannelOffline)
}

func (a *API) setChannelStatus(w http.ResponseWriter, r *http.Request, status models.ChannelStatus, event events.EventType) {
	channelID := chi.URLParam(r, "channelID")
	ctx := r.Context()

	res := a.db.WithContext(ctx).
		Model(&models.Channel{}).
		Where("id = ?", channelID).
		Update("status", status)
	if res.Error != nil {
		writeError(w, http.StatusInternalServerError, "update_failed")
		return
	}
	if res.RowsAffected == 0 {
		writeError(w, http.StatusNotFound, "channel_not_found")
		return
	}

	// The cached record and the current window's manifest are both stale now.
	_ = a.cache.InvalidateChannel(ctx, channelID)
	_ = a.cache.InvalidateManifests(ctx, channelID, manifest.WindowStart(time.Now()))

	a.bus.Publish(event, events.Payload{"channel_id": channelID})
	writeJSON(w, http.StatusOK, map[string]string{"id": channelID, "status": string(status)})
}
