/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package transcoder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/chorus/internal/events"
	"github.com/friendsincode/chorus/internal/models"
	"github.com/friendsincode/chorus/internal/telemetry"
)

// DefaultPollInterval between queue polls when no work is pending.
const DefaultPollInterval = 2 * time.Second

// MediaStore is the slice of the catalog the worker needs: reading back
// stored bytes for hashing and probing.
type MediaStore interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// Processor turns stored media bytes into catalog metadata. The default
// implementation hashes the payload; a real deployment plugs in an ffmpeg
// pipeline behind the same interface.
type Processor interface {
	Process(ctx context.Context, item *models.MediaItem) (hash string, err error)
}

// HashProcessor content-addresses media by SHA-256 of the stored bytes.
type HashProcessor struct {
	store MediaStore
}

// NewHashProcessor creates the default processor.
func NewHashProcessor(store MediaStore) *HashProcessor {
	return &HashProcessor{store: store}
}

// Process reads the stored payload and returns its content hash.
func (p *HashProcessor) Process(ctx context.Context, item *models.MediaItem) (string, error) {
	path := item.FilePath
	if path == "" {
		path = item.BucketKey
	}
	if path == "" {
		return "", fmt.Errorf("media %s has no stored payload", item.ID)
	}

	rc, err := p.store.Open(ctx, path)
	if err != nil {
		return "", fmt.Errorf("open media payload: %w", err)
	}
	defer rc.Close()

	h := sha256.New()
	if _, err := io.Copy(h, rc); err != nil {
		return "", fmt.Errorf("hash media payload: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Worker drains the transcode queue. Run as many as needed; the queue's
// claim semantics keep them from stepping on each other.
type Worker struct {
	id           string
	queue        *Queue
	db           *gorm.DB
	processor    Processor
	bus          *events.Bus
	pollInterval time.Duration
	logger       zerolog.Logger
}

// NewWorker creates a transcode worker.
func NewWorker(id string, queue *Queue, db *gorm.DB, processor Processor, bus *events.Bus, pollInterval time.Duration, logger zerolog.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Worker{
		id:           id,
		queue:        queue,
		db:           db,
		processor:    processor,
		bus:          bus,
		pollInterval: pollInterval,
		logger:       logger.With().Str("component", "transcode_worker").Str("worker", id).Logger(),
	}
}

// Run polls for work until the context is canceled. After finishing a job it
// immediately polls again so a backlog drains at full speed.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info().Msg("transcode worker started")
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		for w.processOne(ctx) {
		}

		select {
		case <-ctx.Done():
			w.logger.Info().Msg("transcode worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// processOne claims and executes a single job. Returns true when a job was
// handled, false when the queue was empty or claiming failed.
func (w *Worker) processOne(ctx context.Context) bool {
	job, err := w.queue.Claim(ctx, w.id)
	if err != nil {
		w.logger.Error().Err(err).Msg("claim failed")
		return false
	}
	if job == nil {
		return false
	}

	if err := w.execute(ctx, job); err != nil {
		w.logger.Error().Err(err).Str("job_id", job.ID).Str("media_id", job.MediaItemID).Msg("transcode failed")
		w.fail(ctx, job, err)
		return true
	}

	if err := w.queue.Complete(ctx, job.ID, nil); err != nil {
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("complete failed")
	}
	telemetry.TranscodeJobsTotal.WithLabelValues(string(models.JobDone)).Inc()
	return true
}

func (w *Worker) execute(ctx context.Context, job *models.TranscodeJob) error {
	var item models.MediaItem
	if err := w.db.WithContext(ctx).First(&item, "id = ?", job.MediaItemID).Error; err != nil {
		return fmt.Errorf("load media item: %w", err)
	}

	if err := w.db.WithContext(ctx).
		Model(&models.MediaItem{}).
		Where("id = ?", item.ID).
		Update("status", models.MediaProcessing).Error; err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	hash, err := w.processor.Process(ctx, &item)
	if err != nil {
		return err
	}

	err = w.db.WithContext(ctx).
		Model(&models.MediaItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]any{
			"status":    models.MediaReady,
			"file_hash": hash,
			"version":   gorm.Expr("version + 1"),
		}).Error
	if err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}

	w.logger.Info().Str("media_id", item.ID).Str("hash", hash).Msg("media ready")
	w.bus.Publish(events.EventMediaReady, events.Payload{
		"media_id": item.ID,
		"hash":     hash,
	})
	return nil
}

// fail leaves the media item FAILED for retry; a worker crash after claiming
// must never corrupt catalog state beyond that.
func (w *Worker) fail(ctx context.Context, job *models.TranscodeJob, jobErr error) {
	if err := w.db.WithContext(ctx).
		Model(&models.MediaItem{}).
		Where("id = ?", job.MediaItemID).
		Update("status", models.MediaFailed).Error; err != nil {
		w.logger.Error().Err(err).Str("media_id", job.MediaItemID).Msg("mark failed errored")
	}
	if err := w.queue.Complete(ctx, job.ID, jobErr); err != nil {
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("complete failed")
	}

	telemetry.TranscodeJobsTotal.WithLabelValues(string(models.JobFailed)).Inc()
	w.bus.Publish(events.EventMediaFailed, events.Payload{
		"media_id": job.MediaItemID,
		"error":    jobErr.Error(),
	})
}
