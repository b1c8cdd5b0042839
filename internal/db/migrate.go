/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"github.com/friendsincode/chorus/internal/models"
	"gorm.io/gorm"
)

// Migrate applies schema migrations for all models.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Channel{},
		&models.MediaItem{},
		&models.Tag{},
		&models.MediaTagLink{},
		&models.Playlist{},
		&models.PlaylistItem{},
		&models.ScheduleRule{},
		&models.InterventionRule{},
		&models.TranscodeJob{},
	)
}
