/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server wires configuration, storage, services and the HTTP stack
// into one runnable process.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/chorus/internal/api"
	"github.com/friendsincode/chorus/internal/cache"
	"github.com/friendsincode/chorus/internal/catalog"
	"github.com/friendsincode/chorus/internal/config"
	"github.com/friendsincode/chorus/internal/db"
	"github.com/friendsincode/chorus/internal/eventbus"
	"github.com/friendsincode/chorus/internal/events"
	"github.com/friendsincode/chorus/internal/logbuffer"
	"github.com/friendsincode/chorus/internal/manifest"
	"github.com/friendsincode/chorus/internal/schedule"
	"github.com/friendsincode/chorus/internal/telemetry"
	"github.com/friendsincode/chorus/internal/transcoder"
	"github.com/friendsincode/chorus/internal/version"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server

	db         *gorm.DB
	logBuffer  *logbuffer.Buffer
	cache      *cache.Cache
	catalog    *catalog.Service
	builder    *manifest.Builder
	queue      *transcoder.Queue
	bus        *events.Bus
	bridge     *eventbus.Bridge
	tracer     *telemetry.TracerProvider
	instanceID string

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	gdb, err := db.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.Migrate(gdb); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	cacheSvc, err := cache.New(cache.Config{
		RedisAddr:      cfg.RedisAddr,
		RedisPassword:  cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
		ManifestTTL:    cfg.ManifestWindow,
		ChannelTTL:     cache.DefaultChannelTTL,
		DisableOnError: true,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}

	storage, err := buildStorage(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	tracer, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "chorus",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	bus := events.NewBus()

	var bridge *eventbus.Bridge
	if cfg.NATSURL != "" {
		bridge, err = eventbus.NewBridge(cfg.NATSURL, bus, []events.EventType{
			events.EventMediaReady,
			events.EventMediaFailed,
			events.EventChannelOnline,
			events.EventChannelOffline,
			events.EventScheduleUpdate,
		}, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("NATS bridge unavailable, events stay in-process")
			bridge = nil
		}
	}

	catalogSvc := catalog.NewService(gdb, storage, baseURL(cfg), logger)
	resolver := schedule.NewResolver(gdb, logger)
	builder := manifest.NewBuilder(gdb, resolver, catalogSvc, cfg.QueueLength, logger)

	playbackDefaults, err := config.LoadPlaybackDefaults(cfg.PlaybackDefault)
	if err != nil {
		return nil, fmt.Errorf("load playback defaults: %w", err)
	}
	builder.SetDefaultConfig(manifest.Config{
		Crossfade:         playbackDefaults.CrossfadeSeconds,
		NormalizationLUFS: playbackDefaults.NormalizationLUFS,
		OfflineMode:       playbackDefaults.OfflineMode,
	})

	queue := transcoder.NewQueue(gdb, logger)

	instanceID := cfg.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()[:8]
	}

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		db:         gdb,
		logBuffer:  logBuf,
		cache:      cacheSvc,
		catalog:    catalogSvc,
		builder:    builder,
		queue:      queue,
		bus:        bus,
		bridge:     bridge,
		tracer:     tracer,
		instanceID: instanceID,
	}
	s.buildRouter()
	return s, nil
}

func buildStorage(cfg *config.Config, logger zerolog.Logger) (catalog.Storage, error) {
	if cfg.S3Bucket != "" {
		return catalog.NewS3Storage(context.Background(), catalog.S3Config{
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			PublicBaseURL:   cfg.S3PublicBaseURL,
			UsePathStyle:    cfg.S3UsePathStyle,
		}, logger)
	}
	return catalog.NewFilesystemStorage(cfg.MediaRoot, logger), nil
}

func baseURL(cfg *config.Config) string {
	if cfg.BaseURL != "" {
		return cfg.BaseURL
	}
	return fmt.Sprintf("http://%s:%d", cfg.HTTPBind, cfg.HTTPPort)
}

func (s *Server) buildRouter() {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("chorus-api"))
	router.Use(telemetry.MetricsMiddleware)
	router.Use(middleware.Timeout(60 * time.Second))

	apiHandler := api.New(s.db, s.cache, s.builder, s.catalog, s.queue, s.bus, s.logBuffer, s.logger)
	apiHandler.Routes(router)

	router.Get("/healthz", s.handleHealthz)
	router.Get("/readyz", s.handleReadyz)
	router.Handle("/metrics", telemetry.Handler())

	// Media files stored on the local filesystem are served by this process;
	// object-storage deployments hand out bucket or CDN URLs instead.
	router.Get("/media/*", s.handleMediaFile)

	s.router = router
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(r.Context())
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("readiness check failed: database")
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}

	if err := s.catalog.CheckStorageAccess(r.Context()); err != nil {
		s.logger.Error().Err(err).Msg("readiness check failed: storage")
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleMediaFile streams a stored media payload by its relative path.
func (s *Server) handleMediaFile(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")
	if path == "" || strings.Contains(path, "..") {
		http.NotFound(w, r)
		return
	}

	rc, err := s.catalog.Open(r.Context(), path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Debug().Err(err).Str("path", path).Msg("media stream aborted")
	}
}

// Start launches background workers and serves HTTP until Shutdown.
func (s *Server) Start() error {
	bgCtx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	processor := transcoder.NewHashProcessor(s.catalog)
	for i := 0; i < s.cfg.TranscodeWorkers; i++ {
		workerID := fmt.Sprintf("%s-w%d", s.instanceID, i)
		worker := transcoder.NewWorker(workerID, s.queue, s.db, processor, s.bus, s.cfg.TranscodePollInterval, s.logger)
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			worker.Run(bgCtx)
		}()
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.HTTPBind, s.cfg.HTTPPort)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().
		Str("addr", addr).
		Str("instance", s.instanceID).
		Int("transcode_workers", s.cfg.TranscodeWorkers).
		Msg("server listening")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops HTTP and background work gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	var firstErr error

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if s.bgCancel != nil {
		s.bgCancel()
	}
	done := make(chan struct{})
	go func() {
		s.bgWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn().Msg("background workers did not stop before deadline")
	}

	if s.bridge != nil {
		s.bridge.Close()
	}
	if err := s.cache.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.tracer.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := db.Close(s.db); err != nil && firstErr == nil {
		firstErr = err
	}

	s.logger.Info().Msg("server stopped")
	return firstErr
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'; base-uri 'self'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}
