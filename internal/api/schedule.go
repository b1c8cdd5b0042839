/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/friendsincode/chorus/internal/events"
	"github.com/friendsincode/chorus/internal/manifest"
	"github.com/friendsincode/chorus/internal/models"
)

type scheduleRuleRequest struct {
	PlaylistID string  `json:"playlist_id"`
	StartDate  string  `json:"start_date"` // "2006-01-02"
	EndDate    *string `json:"end_date"`
	StartTime  string  `json:"start_time"` // "HH:MM:SS"
	EndTime    string  `json:"end_time"`
	Weekdays   []int   `json:"weekdays"` // 0=Sunday .. 6=Saturday, empty = all
	Priority   int     `json:"priority"`
}

func (a *API) handleScheduleRulesCreate(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")

	var req scheduleRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.PlaylistID == "" || req.StartTime == "" || req.EndTime == "" {
		writeError(w, http.StatusBadRequest, "playlist_and_times_required")
		return
	}

	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start_date")
		return
	}

	var endDate *time.Time
	if req.EndDate != nil {
		parsed, err := time.Parse("2006-01-02", *req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end_date")
			return
		}
		endDate = &parsed
	}

	weekdays := models.AllWeekdays
	if len(req.Weekdays) > 0 {
		days := make([]time.Weekday, 0, len(req.Weekdays))
		for _, d := range req.Weekdays {
			if d < 0 || d > 6 {
				writeError(w, http.StatusBadRequest, "invalid_weekday")
				return
			}
			days = append(days, time.Weekday(d))
		}
		weekdays = models.Weekdays(days...)
	}

	rule := models.ScheduleRule{
		ID:         uuid.NewString(),
		ChannelID:  channelID,
		PlaylistID: req.PlaylistID,
		StartDate:  startDate,
		EndDate:    endDate,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Weekdays:   weekdays,
		Priority:   req.Priority,
		Active:     true,
	}
	if err := a.db.WithContext(r.Context()).Create(&rule).Error; err != nil {
		a.logger.Error().Err(err).Msg("schedule rule create failed")
		writeError(w, http.StatusInternalServerError, "create_failed")
		return
	}

	a.invalidateWindow(r, channelID)
	a.bus.Publish(events.EventScheduleUpdate, events.Payload{"channel_id": channelID})
	writeJSON(w, http.StatusCreated, rule)
}

func (a *API) handleScheduleRulesList(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")

	var rules []models.ScheduleRule
	err := a.db.WithContext(r.Context()).
		Where("channel_id = ?", channelID).
		Order("priority DESC, created_at DESC").
		Find(&rules).Error
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_failed")
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

// handleScheduleRulesExport serves the channel schedule as an iCal feed.
func (a *API) handleScheduleRulesExport(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")

	export, err := a.exporter.ExportICal(r.Context(), channelID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "channel_not_found")
			return
		}
		a.logger.Error().Err(err).Msg("schedule export failed")
		writeError(w, http.StatusInternalServerError, "export_failed")
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	_, _ = w.Write(export.Data)
}

type interventionRequest struct {
	Name         string `json:"name"`
	Policy       string `json:"policy"`
	EveryMinutes int    `json:"every_minutes"`
	EveryItems   int    `json:"every_items"`
	MediaTag     string `json:"media_tag"`
}

func (a *API) handleInterventionsCreate(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")

	var req interventionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Name == "" || req.MediaTag == "" {
		writeError(w, http.StatusBadRequest, "name_and_tag_required")
		return
	}

	policy := models.InterventionPolicy(req.Policy)
	switch policy {
	case models.PolicyInterrupt, models.PolicyNormal:
	case "":
		policy = models.PolicyNormal
	default:
		writeError(w, http.StatusBadRequest, "invalid_policy")
		return
	}
	if policy == models.PolicyNormal && req.EveryItems <= 0 {
		writeError(w, http.StatusBadRequest, "every_items_required")
		return
	}

	rule := models.InterventionRule{
		ID:           uuid.NewString(),
		ChannelID:    channelID,
		Name:         req.Name,
		Policy:       policy,
		EveryMinutes: req.EveryMinutes,
		EveryItems:   req.EveryItems,
		MediaTag:     req.MediaTag,
		Active:       true,
	}
	if err := a.db.WithContext(r.Context()).Create(&rule).Error; err != nil {
		a.logger.Error().Err(err).Msg("intervention create failed")
		writeError(w, http.StatusInternalServerError, "create_failed")
		return
	}

	a.invalidateWindow(r, channelID)
	writeJSON(w, http.StatusCreated, rule)
}

func (a *API) handleInterventionsList(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")

	var rules []models.InterventionRule
	err := a.db.WithContext(r.Context()).
		Where("channel_id = ?", channelID).
		Order("created_at ASC").
		Find(&rules).Error
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_failed")
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

// invalidateWindow drops the current window's cached manifest after a
// configuration change so the next request rebuilds it.
func (a *API) invalidateWindow(r *http.Request, channelID string) {
	_ = a.cache.InvalidateManifests(r.Context(), channelID, manifest.WindowStart(time.Now()))
}
