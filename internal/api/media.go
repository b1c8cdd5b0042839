/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/friendsincode/chorus/internal/models"
)

// maxUploadBytes bounds in-flight upload size (512 MiB).
const maxUploadBytes = 512 << 20

// handleMediaUpload ingests an uploaded file: the item enters the catalog as
// PENDING and a transcode job carries it to READY in the background. Only
// READY media is ever scheduled.
func (a *API) handleMediaUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_multipart")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file_required")
		return
	}
	defer file.Close()

	title := r.FormValue("title")
	if title == "" {
		writeError(w, http.StatusBadRequest, "title_required")
		return
	}

	mediaType := models.MediaType(r.FormValue("type"))
	switch mediaType {
	case models.MediaMusic, models.MediaAd, models.MediaVignette, models.MediaJingle:
	case "":
		mediaType = models.MediaMusic
	default:
		writeError(w, http.StatusBadRequest, "invalid_media_type")
		return
	}

	duration, _ := strconv.Atoi(r.FormValue("duration_seconds"))

	item := models.MediaItem{
		ID:              uuid.NewString(),
		Title:           title,
		Type:            mediaType,
		Status:          models.MediaPending,
		DurationSeconds: duration,
	}

	if err := a.catalog.Ingest(r.Context(), &item, file); err != nil {
		a.logger.Error().Err(err).Str("media_id", item.ID).Msg("media ingest failed")
		writeError(w, http.StatusInternalServerError, "ingest_failed")
		return
	}

	if err := a.db.WithContext(r.Context()).Create(&item).Error; err != nil {
		a.logger.Error().Err(err).Msg("media create failed")
		writeError(w, http.StatusInternalServerError, "create_failed")
		return
	}

	if _, err := a.queue.Enqueue(r.Context(), item.ID); err != nil {
		a.logger.Error().Err(err).Str("media_id", item.ID).Msg("transcode enqueue failed")
		writeError(w, http.StatusInternalServerError, "enqueue_failed")
		return
	}

	writeJSON(w, http.StatusCreated, item)
}

func (a *API) handleMediaGet(w http.ResponseWriter, r *http.Request) {
	mediaID := chi.URLParam(r, "mediaID")

	item, err := a.catalog.Get(r.Context(), mediaID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "media_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get_failed")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type mediaTagRequest struct {
	Tag string `json:"tag"`
}

// handleMediaTag attaches a tag to a media item, creating the tag on first
// use. Tagging is how items join the safety fallback and intervention pools.
func (a *API) handleMediaTag(w http.ResponseWriter, r *http.Request) {
	mediaID := chi.URLParam(r, "mediaID")
	ctx := r.Context()

	var req mediaTagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Tag == "" {
		writeError(w, http.StatusBadRequest, "tag_required")
		return
	}

	if _, err := a.catalog.Get(ctx, mediaID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "media_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get_failed")
		return
	}

	var tag models.Tag
	err := a.db.WithContext(ctx).
		Where(models.Tag{Name: req.Tag}).
		Attrs(models.Tag{ID: uuid.NewString()}).
		FirstOrCreate(&tag).Error
	if err != nil {
		writeError(w, http.StatusInternalServerError, "tag_failed")
		return
	}

	link := models.MediaTagLink{MediaItemID: mediaID, TagID: tag.ID}
	if err := a.db.WithContext(ctx).Where(link).FirstOrCreate(&link).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "tag_failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"media_id": mediaID, "tag": tag.Name})
}
