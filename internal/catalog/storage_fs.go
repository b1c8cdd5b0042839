/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalog

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// FilesystemStorage implements Storage using the local filesystem.
type FilesystemStorage struct {
	rootDir string
	logger  zerolog.Logger
}

// NewFilesystemStorage creates a filesystem-based storage backend.
func NewFilesystemStorage(rootDir string, logger zerolog.Logger) *FilesystemStorage {
	return &FilesystemStorage{
		rootDir: rootDir,
		logger:  logger,
	}
}

// Store saves a file under a hash-balanced directory layout and returns the
// relative path for database storage.
func (fs *FilesystemStorage) Store(ctx context.Context, mediaID string, file io.Reader) (string, error) {
	relativePath := buildMediaPath(mediaID, ".audio")
	fullPath := filepath.Join(fs.rootDir, relativePath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("create directories: %w", err)
	}

	dest, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, file); err != nil {
		os.Remove(fullPath) // Clean up on failure
		return "", fmt.Errorf("write file: %w", err)
	}

	fs.logger.Debug().Str("path", fullPath).Str("media_id", mediaID).Msg("filesystem storage: file stored")
	return relativePath, nil
}

// Open reads back a stored file.
func (fs *FilesystemStorage) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(fs.rootDir, path))
}

// Delete removes a file from the filesystem.
func (fs *FilesystemStorage) Delete(ctx context.Context, path string) error {
	fullPath := filepath.Join(fs.rootDir, path)
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

// URL returns the path relative to the media root; the HTTP layer serves it.
func (fs *FilesystemStorage) URL(path string) string {
	return path
}

// Kind identifies this backend's storage descriptor type.
func (fs *FilesystemStorage) Kind() StorageKind {
	return StorageFilesystem
}

// CheckAccess verifies the storage directory exists and is accessible.
func (fs *FilesystemStorage) CheckAccess(ctx context.Context) error {
	info, err := os.Stat(fs.rootDir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("media root directory does not exist: %s", fs.rootDir)
		}
		return fmt.Errorf("cannot access media root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("media root is not a directory: %s", fs.rootDir)
	}
	return nil
}

// buildMediaPath constructs a hierarchical storage path for a media file.
// Structure: media_id[0:2]/media_id[2:4]/media_id.ext keeps directories
// balanced as the catalog grows.
func buildMediaPath(mediaID, extension string) string {
	if len(mediaID) < 4 {
		return mediaID + extension
	}
	return filepath.Join(mediaID[0:2], mediaID[2:4], mediaID+extension)
}
