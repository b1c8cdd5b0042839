/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/friendsincode/chorus/internal/models"
)

type playlistCreateRequest struct {
	ChannelID string `json:"channel_id"`
	Name      string `json:"name"`
}

func (a *API) handlePlaylistsCreate(w http.ResponseWriter, r *http.Request) {
	var req playlistCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name_required")
		return
	}

	playlist := models.Playlist{
		ID:        uuid.NewString(),
		ChannelID: req.ChannelID,
		Name:      req.Name,
	}
	if err := a.db.WithContext(r.Context()).Create(&playlist).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "create_failed")
		return
	}
	writeJSON(w, http.StatusCreated, playlist)
}

func (a *API) handlePlaylistsList(w http.ResponseWriter, r *http.Request) {
	query := a.db.WithContext(r.Context()).Order("created_at ASC")
	if channelID := r.URL.Query().Get("channel_id"); channelID != "" {
		query = query.Where("channel_id = ?", channelID)
	}

	var playlists []models.Playlist
	if err := query.Find(&playlists).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "list_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"playlists": playlists})
}

type playlistItemRequest struct {
	MediaItemID string `json:"media_item_id"`
	Position    int    `json:"position"`
}

func (a *API) handlePlaylistItemsAdd(w http.ResponseWriter, r *http.Request) {
	playlistID := chi.URLParam(r, "playlistID")
	ctx := r.Context()

	var req playlistItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MediaItemID == "" {
		writeError(w, http.StatusBadRequest, "media_item_required")
		return
	}

	var playlist models.Playlist
	if err := a.db.WithContext(ctx).First(&playlist, "id = ?", playlistID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "playlist_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get_failed")
		return
	}

	item := models.PlaylistItem{
		ID:          uuid.NewString(),
		PlaylistID:  playlistID,
		MediaItemID: req.MediaItemID,
		Position:    req.Position,
	}
	if err := a.db.WithContext(ctx).Create(&item).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "create_failed")
		return
	}
	writeJSON(w, http.StatusCreated, item)
}
