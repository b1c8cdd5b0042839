/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package manifest turns channel state into immutable, window-scoped playback
// plans. A manifest is a pure function of (channel state, floored hour):
// generating it twice for the same window yields byte-identical output.
package manifest

import (
	"fmt"
	"time"

	"github.com/friendsincode/chorus/internal/models"
)

// Config carries the channel playback parameters shipped to edge players.
type Config struct {
	Crossfade         int     `json:"crossfade"`
	NormalizationLUFS float64 `json:"normalization_lufs"`
	OfflineMode       bool    `json:"offline_mode"`
}

// File is one deduplicated asset referenced by the queue.
type File struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Hash    string `json:"hash"`
	Version int    `json:"version"`
}

// QueueEntry is one slot in the ordered playback queue.
type QueueEntry struct {
	Type        models.MediaType          `json:"type"`
	MediaFileID string                    `json:"media_file_id"`
	Title       string                    `json:"title"`
	Duration    int                       `json:"duration,omitempty"`
	Policy      models.InterventionPolicy `json:"policy,omitempty"`
}

// Manifest is the wire artifact consumed by edge players. It is never mutated
// after creation; a new time window yields a new manifest.
type Manifest struct {
	StreamID   string       `json:"stream_id"`
	ManifestID string       `json:"manifest_id"`
	Config     Config       `json:"config"`
	Files      []File       `json:"files"`
	Queue      []QueueEntry `json:"queue"`
}

// WindowStart floors an instant to the manifest window boundary. All clients
// requesting within the same hour share one synchronization point, bounding
// staleness to at most one window.
func WindowStart(at time.Time) time.Time {
	return at.UTC().Truncate(time.Hour)
}

// ID derives the manifest identifier for a channel window.
func ID(channelID string, windowStart time.Time) string {
	return fmt.Sprintf("%s-%d", channelID, windowStart.Unix())
}
