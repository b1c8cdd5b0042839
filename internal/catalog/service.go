/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package catalog exposes the durable media store to the manifest engine.
// Only items in READY state are ever returned.
package catalog

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/chorus/internal/models"
)

// StorageKind identifies where stored paths point.
type StorageKind string

const (
	StorageFilesystem StorageKind = "filesystem"
	StorageS3         StorageKind = "s3"
)

// Storage interface abstracts media byte storage.
type Storage interface {
	Store(ctx context.Context, mediaID string, file io.Reader) (string, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
	URL(path string) string
	Kind() StorageKind
	CheckAccess(ctx context.Context) error
}

// Service manages catalog queries and asset URL resolution.
type Service struct {
	db      *gorm.DB
	storage Storage
	baseURL string
	logger  zerolog.Logger
}

// NewService creates a catalog service backed by the given storage.
func NewService(db *gorm.DB, storage Storage, baseURL string, logger zerolog.Logger) *Service {
	return &Service{
		db:      db,
		storage: storage,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With().Str("component", "catalog").Logger(),
	}
}

// ReadyPlaylistItems returns the READY media of a playlist in position order.
// Items still transcoding or failed are filtered out.
func (s *Service) ReadyPlaylistItems(ctx context.Context, playlistID string) ([]models.MediaItem, error) {
	var items []models.MediaItem
	err := s.db.WithContext(ctx).
		Joins("JOIN playlist_items ON playlist_items.media_item_id = media_items.id").
		Where("playlist_items.playlist_id = ?", playlistID).
		Where("media_items.status = ?", models.MediaReady).
		Order("playlist_items.position ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("query playlist items: %w", err)
	}
	return items, nil
}

// PoolByTag returns READY media carrying the named tag, creation order.
// Used for the safety fallback pool and intervention candidate pools.
func (s *Service) PoolByTag(ctx context.Context, tagName string) ([]models.MediaItem, error) {
	var items []models.MediaItem
	err := s.db.WithContext(ctx).
		Joins("JOIN media_tag_links ON media_tag_links.media_item_id = media_items.id").
		Joins("JOIN tags ON tags.id = media_tag_links.tag_id").
		Where("tags.name = ?", tagName).
		Where("media_items.status = ?", models.MediaReady).
		Order("media_items.created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("query tag pool %q: %w", tagName, err)
	}
	return items, nil
}

// Get returns a single media item by ID.
func (s *Service) Get(ctx context.Context, mediaID string) (*models.MediaItem, error) {
	var item models.MediaItem
	if err := s.db.WithContext(ctx).First(&item, "id = ?", mediaID).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// ResolveURL maps a media item's storage descriptor to a fetchable URL.
// Precedence: local file path (served by this process), then bucket key
// (object storage), then a pre-set CDN URL.
func (s *Service) ResolveURL(item models.MediaItem) string {
	switch {
	case item.FilePath != "":
		return s.baseURL + "/media/" + strings.TrimLeft(item.FilePath, "/")
	case item.BucketKey != "":
		return s.storage.URL(item.BucketKey)
	case item.CDNURL != "":
		return item.CDNURL
	default:
		s.logger.Warn().Str("media_id", item.ID).Msg("media item has no storage descriptor")
		return ""
	}
}

// Store saves media bytes and returns the storage path.
func (s *Service) Store(ctx context.Context, mediaID string, file io.Reader) (string, error) {
	path, err := s.storage.Store(ctx, mediaID, file)
	if err != nil {
		s.logger.Error().Err(err).Str("media_id", mediaID).Msg("media store failed")
		return "", fmt.Errorf("store media: %w", err)
	}
	return path, nil
}

// Ingest stores media bytes and records the matching storage descriptor on
// the item: a local file path for filesystem storage, a bucket key for
// object storage.
func (s *Service) Ingest(ctx context.Context, item *models.MediaItem, file io.Reader) error {
	path, err := s.Store(ctx, item.ID, file)
	if err != nil {
		return err
	}
	switch s.storage.Kind() {
	case StorageS3:
		item.BucketKey = path
	default:
		item.FilePath = path
	}
	return nil
}

// Open reads back stored media bytes, used by the transcode worker for
// hashing and probing.
func (s *Service) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	return s.storage.Open(ctx, path)
}

// CheckStorageAccess verifies that the storage backend is reachable.
func (s *Service) CheckStorageAccess(ctx context.Context) error {
	return s.storage.CheckAccess(ctx)
}
