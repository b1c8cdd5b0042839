/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/chorus/internal/catalog"
	"github.com/friendsincode/chorus/internal/config"
	"github.com/friendsincode/chorus/internal/db"
	"github.com/friendsincode/chorus/internal/events"
	"github.com/friendsincode/chorus/internal/logbuffer"
	"github.com/friendsincode/chorus/internal/logging"
	"github.com/friendsincode/chorus/internal/playback"
	"github.com/friendsincode/chorus/internal/server"
	"github.com/friendsincode/chorus/internal/transcoder"
	"github.com/friendsincode/chorus/internal/version"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:     "chorus",
	Short:   "Chorus - unattended broadcast channel automation",
	Long:    "Chorus keeps broadcast channels audible around the clock: it generates deterministic playback manifests server-side and runs a self-healing edge player client-side.",
	Version: version.String(),
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Chorus manifest server",
	Long:  "Start the HTTP API, manifest generation and the background transcode workers",
	RunE:  runServe,
}

var edgeCmd = &cobra.Command{
	Use:   "edge",
	Short: "Run an edge playback session",
	Long:  "Subscribe to a channel, cache its assets locally and advance through the manifest queue",
	RunE:  runEdge,
}

var transcodeCmd = &cobra.Command{
	Use:   "transcode",
	Short: "Run standalone transcode workers",
	Long:  "Drain the transcode job queue without serving HTTP, for dedicated worker hosts",
	RunE:  runTranscode,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(edgeCmd)
	rootCmd.AddCommand(transcodeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.Setup(cfg.Environment)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	// Recent logs are kept in memory and served over the API.
	logBuf := logbuffer.New(10000)
	logger = logging.SetupWithWriter(cfg.Environment, logBuf)

	logger.Info().Str("version", version.String()).Msg("Chorus starting")

	srv, err := server.New(cfg, logBuf, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info().Msg("shutting down gracefully...")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("Chorus stopped")
	return nil
}

func runEdge(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if cfg.EdgeChannelID == "" {
		return fmt.Errorf("CHORUS_EDGE_CHANNEL_ID is required for the edge command")
	}

	edgeCache, err := playback.NewEdgeCache(cfg.EdgeCacheDir, playback.NewHTTPFetcher(0), logger)
	if err != nil {
		return fmt.Errorf("initialize edge cache: %w", err)
	}

	engine := playback.NewEngine(edgeCache, logger)
	session := playback.NewSession(cfg.EdgeServerURL, cfg.EdgeChannelID, engine, cfg.EdgeHealInterval, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("server", cfg.EdgeServerURL).
		Str("channel_id", cfg.EdgeChannelID).
		Msg("edge playback session starting")

	if err := session.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	logger.Info().Msg("edge playback session ended")
	return nil
}

func runTranscode(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	gdb, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close(gdb)

	if err := db.Migrate(gdb); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	storage := catalog.NewFilesystemStorage(cfg.MediaRoot, logger)
	catalogSvc := catalog.NewService(gdb, storage, cfg.BaseURL, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue := transcoder.NewQueue(gdb, logger)
	processor := transcoder.NewHashProcessor(catalogSvc)
	bus := events.NewBus()

	workers := cfg.TranscodeWorkers
	if workers <= 0 {
		workers = 1
	}

	instance := cfg.InstanceID
	if instance == "" {
		instance = "transcode"
	}

	logger.Info().Int("workers", workers).Msg("transcode workers starting")

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		worker := transcoder.NewWorker(
			fmt.Sprintf("%s-w%d", instance, i),
			queue, gdb, processor, bus, cfg.TranscodePollInterval, logger,
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(ctx)
		}()
	}
	wg.Wait()

	logger.Info().Msg("transcode workers stopped")
	return nil
}
