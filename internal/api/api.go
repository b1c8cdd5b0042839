/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the HTTP surface: channel and catalog administration
// plus the manifest endpoint edge players poll.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/chorus/internal/cache"
	"github.com/friendsincode/chorus/internal/catalog"
	"github.com/friendsincode/chorus/internal/events"
	"github.com/friendsincode/chorus/internal/logbuffer"
	"github.com/friendsincode/chorus/internal/manifest"
	"github.com/friendsincode/chorus/internal/schedule"
	"github.com/friendsincode/chorus/internal/transcoder"
	"github.com/friendsincode/chorus/internal/version"
)

// API exposes HTTP handlers.
type API struct {
	db        *gorm.DB
	cache     *cache.Cache
	builder   *manifest.Builder
	catalog   *catalog.Service
	queue     *transcoder.Queue
	bus       *events.Bus
	logBuffer *logbuffer.Buffer
	exporter  *schedule.ExportService
	logger    zerolog.Logger
}

// New creates the API router wrapper.
func New(db *gorm.DB, cacheSvc *cache.Cache, builder *manifest.Builder, catalogSvc *catalog.Service, queue *transcoder.Queue, bus *events.Bus, logBuf *logbuffer.Buffer, logger zerolog.Logger) *API {
	return &API{
		db:        db,
		cache:     cacheSvc,
		builder:   builder,
		catalog:   catalogSvc,
		queue:     queue,
		bus:       bus,
		logBuffer: logBuf,
		exporter:  schedule.NewExportService(db, logger),
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts API routes on the provided router.
func (a *API) Routes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Get("/version", a.handleVersion)
		r.Get("/logs", a.handleLogsList)

		r.Route("/channels", func(r chi.Router) {
			r.Get("/", a.handleChannelsList)
			r.Post("/", a.handleChannelsCreate)
			r.Route("/{channelID}", func(r chi.Router) {
				r.Get("/", a.handleChannelsGet)
				r.Post("/online", a.handleChannelOnline)
				r.Post("/offline", a.handleChannelOffline)
				r.Get("/manifest", a.handleManifest)
				r.Route("/schedule-rules", func(r chi.Router) {
					r.Get("/", a.handleScheduleRulesList)
					r.Post("/", a.handleScheduleRulesCreate)
					r.Get("/export", a.handleScheduleRulesExport)
				})
				r.Route("/interventions", func(r chi.Router) {
					r.Get("/", a.handleInterventionsList)
					r.Post("/", a.handleInterventionsCreate)
				})
			})
		})

		r.Route("/media", func(r chi.Router) {
			r.Post("/upload", a.handleMediaUpload)
			r.Route("/{mediaID}", func(r chi.Router) {
				r.Get("/", a.handleMediaGet)
				r.Post("/tags", a.handleMediaTag)
			})
		})

		r.Route("/playlists", func(r chi.Router) {
			r.Get("/", a.handlePlaylistsList)
			r.Post("/", a.handlePlaylistsCreate)
			r.Post("/{playlistID}/items", a.handlePlaylistItemsAdd)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": version.String()})
}

// handleLogsList serves recent process logs from the in-memory ring buffer.
func (a *API) handleLogsList(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeJSON(w, http.StatusOK, map[string]any{"entries": []logbuffer.LogEntry{}})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	entries := a.logBuffer.Entries(logbuffer.Query{
		Level:     r.URL.Query().Get("level"),
		Component: r.URL.Query().Get("component"),
		Limit:     limit,
	})
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
