/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package transcoder runs the background ingest pipeline that moves uploaded
// media from PENDING to READY. Work is pulled from a database-backed job
// queue with an exclusive, non-blocking claim so concurrent workers never
// process the same job twice.
package transcoder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/chorus/internal/models"
)

// claimBatch bounds how many pending candidates a single claim attempt scans
// before giving up for this poll cycle.
const claimBatch = 5

// Queue manages transcode job persistence and claiming.
type Queue struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewQueue creates a transcode job queue.
func NewQueue(db *gorm.DB, logger zerolog.Logger) *Queue {
	return &Queue{
		db:     db,
		logger: logger.With().Str("component", "transcode_queue").Logger(),
	}
}

// Enqueue creates a pending job for a media item.
func (q *Queue) Enqueue(ctx context.Context, mediaItemID string) (*models.TranscodeJob, error) {
	job := &models.TranscodeJob{
		ID:          uuid.NewString(),
		MediaItemID: mediaItemID,
		Status:      models.JobPending,
	}
	if err := q.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("enqueue transcode job: %w", err)
	}

	q.logger.Debug().Str("job_id", job.ID).Str("media_id", mediaItemID).Msg("transcode job enqueued")
	return job, nil
}

// Claim atomically takes ownership of the oldest pending job. The claim is a
// compare-and-swap on status: whichever worker flips pending to running first
// wins, losers move on to the next candidate. Returns nil with no error when
// nothing is pending.
func (q *Queue) Claim(ctx context.Context, workerID string) (*models.TranscodeJob, error) {
	var candidates []models.TranscodeJob
	err := q.db.WithContext(ctx).
		Where("status = ?", models.JobPending).
		Order("created_at ASC").
		Limit(claimBatch).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}

	now := time.Now()
	for _, candidate := range candidates {
		res := q.db.WithContext(ctx).
			Model(&models.TranscodeJob{}).
			Where("id = ? AND status = ?", candidate.ID, models.JobPending).
			Updates(map[string]any{
				"status":     models.JobRunning,
				"claimed_by": workerID,
				"claimed_at": now,
			})
		if res.Error != nil {
			return nil, fmt.Errorf("claim job %s: %w", candidate.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			// Another worker won the race for this candidate.
			continue
		}

		candidate.Status = models.JobRunning
		candidate.ClaimedBy = workerID
		candidate.ClaimedAt = &now
		q.logger.Debug().Str("job_id", candidate.ID).Str("worker", workerID).Msg("transcode job claimed")
		return &candidate, nil
	}

	return nil, nil
}

// Complete marks a claimed job done or failed.
func (q *Queue) Complete(ctx context.Context, jobID string, jobErr error) error {
	updates := map[string]any{"status": models.JobDone}
	if jobErr != nil {
		updates["status"] = models.JobFailed
		updates["error"] = jobErr.Error()
	}

	err := q.db.WithContext(ctx).
		Model(&models.TranscodeJob{}).
		Where("id = ?", jobID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	return nil
}
