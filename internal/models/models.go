/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// ChannelStatus tracks the lifecycle of a broadcast channel.
type ChannelStatus string

const (
	ChannelDraft   ChannelStatus = "DRAFT"
	ChannelReady   ChannelStatus = "READY"
	ChannelOnline  ChannelStatus = "ONLINE"
	ChannelOffline ChannelStatus = "OFFLINE"
)

// Channel is a single logical broadcast stream administered by a tenant.
type Channel struct {
	ID                string        `gorm:"type:uuid;primaryKey"`
	TenantID          string        `gorm:"type:uuid;index"`
	Name              string        `gorm:"index"`
	Status            ChannelStatus `gorm:"type:varchar(16);not null;default:'DRAFT'"`
	Bitrate           int
	CrossfadeSeconds  int
	NormalizationLUFS float64
	OfflineMode       bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// MediaType enumerates content categories in the catalog.
type MediaType string

const (
	MediaMusic    MediaType = "MUSIC"
	MediaAd       MediaType = "AD"
	MediaVignette MediaType = "VIGNETTE"
	MediaJingle   MediaType = "JINGLE"
)

// MediaStatus tracks transcoding lifecycle. Only READY items are ever
// scheduled or shipped in a manifest.
type MediaStatus string

const (
	MediaPending    MediaStatus = "PENDING"
	MediaProcessing MediaStatus = "PROCESSING"
	MediaReady      MediaStatus = "READY"
	MediaFailed     MediaStatus = "FAILED"
)

// MediaItem is the durable content unit.
type MediaItem struct {
	ID              string      `gorm:"type:uuid;primaryKey"`
	Title           string      `gorm:"index"`
	Type            MediaType   `gorm:"type:varchar(16);index"`
	Status          MediaStatus `gorm:"type:varchar(16);index;not null;default:'PENDING'"`
	DurationSeconds int
	FilePath        string
	BucketKey       string
	CDNURL          string
	FileHash        string `gorm:"type:varchar(64)"`
	Version         int    `gorm:"not null;default:1"`
	Tags            []MediaTagLink
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Tag defines a metadata label. Reserved names: "safe_fallback" marks the
// channel-independent safety pool, intervention rules reference tags by name.
type Tag struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Name      string `gorm:"uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TagSafeFallback is the tag name of the safety content pool.
const TagSafeFallback = "safe_fallback"

// MediaTagLink join table between media and tags.
type MediaTagLink struct {
	MediaItemID string `gorm:"type:uuid;primaryKey"`
	TagID       string `gorm:"type:uuid;primaryKey"`
}

// Playlist groups media items for rotation on a channel.
type Playlist struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	ChannelID string `gorm:"type:uuid;index"`
	Name      string `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PlaylistItem orders media within a playlist.
type PlaylistItem struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	PlaylistID  string `gorm:"type:uuid;index:idx_playlist_items_playlist"`
	MediaItemID string `gorm:"type:uuid;index"`
	Position    int
}

// InterventionPolicy controls where an intervention lands in the queue.
type InterventionPolicy string

const (
	// PolicyInterrupt places the intervention at the head of the window.
	PolicyInterrupt InterventionPolicy = "INTERRUPT"
	// PolicyNormal interleaves the intervention between music slots.
	PolicyNormal InterventionPolicy = "NORMAL"
)

// InterventionRule is a named, configurable non-music insertion
// (time announcement, ad break, jingle).
type InterventionRule struct {
	ID           string             `gorm:"type:uuid;primaryKey"`
	ChannelID    string             `gorm:"type:uuid;index:idx_intervention_rules_channel"`
	Name         string             `gorm:"type:varchar(64)"`
	Policy       InterventionPolicy `gorm:"type:varchar(16);not null;default:'NORMAL'"`
	EveryMinutes int
	EveryItems   int
	MediaTag     string `gorm:"type:varchar(64)"`
	Active       bool   `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TranscodeJobStatus tracks background transcode work.
type TranscodeJobStatus string

const (
	JobPending TranscodeJobStatus = "pending"
	JobRunning TranscodeJobStatus = "running"
	JobDone    TranscodeJobStatus = "done"
	JobFailed  TranscodeJobStatus = "failed"
)

// TranscodeJob records one unit of catalog ingest work.
type TranscodeJob struct {
	ID          string             `gorm:"type:uuid;primaryKey"`
	MediaItemID string             `gorm:"type:uuid;index"`
	Status      TranscodeJobStatus `gorm:"type:varchar(16);index;not null;default:'pending'"`
	Error       string             `gorm:"type:text"`
	ClaimedBy   string             `gorm:"type:varchar(64)"`
	ClaimedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
