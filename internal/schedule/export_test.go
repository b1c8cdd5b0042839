/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/friendsincode/chorus/internal/models"
)

func setupExportDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.Channel{}, &models.Playlist{}, &models.ScheduleRule{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestExportICal(t *testing.T) {
	db := setupExportDB(t)

	channel := models.Channel{ID: uuid.NewString(), Name: "Morning FM", Status: models.ChannelOnline}
	if err := db.Create(&channel).Error; err != nil {
		t.Fatalf("create channel: %v", err)
	}
	playlist := models.Playlist{ID: uuid.NewString(), ChannelID: channel.ID, Name: "Breakfast Mix"}
	if err := db.Create(&playlist).Error; err != nil {
		t.Fatalf("create playlist: %v", err)
	}

	end := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	rule := models.ScheduleRule{
		ID:         uuid.NewString(),
		ChannelID:  channel.ID,
		PlaylistID: playlist.ID,
		StartDate:  time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), // a Monday
		EndDate:    &end,
		StartTime:  "06:00:00",
		EndTime:    "09:00:00",
		Weekdays:   models.Weekdays(time.Monday, time.Wednesday, time.Friday),
		Priority:   10,
		Active:     true,
	}
	if err := db.Create(&rule).Error; err != nil {
		t.Fatalf("create rule: %v", err)
	}

	// Inactive rules stay out of the feed.
	inactive := rule
	inactive.ID = uuid.NewString()
	inactive.Active = false
	if err := db.Create(&inactive).Error; err != nil {
		t.Fatalf("create inactive rule: %v", err)
	}

	svc := NewExportService(db, zerolog.Nop())
	export, err := svc.ExportICal(context.Background(), channel.ID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	body := string(export.Data)
	if got := strings.Count(body, "BEGIN:VEVENT"); got != 1 {
		t.Fatalf("event count = %d, want 1 (inactive rule excluded)", got)
	}
	for _, want := range []string{
		"SUMMARY:Breakfast Mix",
		"DTSTART:20260601T060000Z",
		"DTEND:20260601T090000Z",
		"RRULE:FREQ=WEEKLY;BYDAY=MO,WE,FR;UNTIL=20260630T090000Z",
		"X-WR-CALNAME:Morning FM Schedule",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("export missing %q", want)
		}
	}

	if export.Filename != "morning-fm-schedule.ics" {
		t.Errorf("filename = %q", export.Filename)
	}
	if !strings.HasPrefix(export.ContentType, "text/calendar") {
		t.Errorf("content type = %q", export.ContentType)
	}
}

func TestExportICalUnknownChannel(t *testing.T) {
	db := setupExportDB(t)
	svc := NewExportService(db, zerolog.Nop())

	_, err := svc.ExportICal(context.Background(), uuid.NewString())
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("err = %v, want record not found", err)
	}
}

func TestRuleWindowSkipsToCoveredWeekday(t *testing.T) {
	rule := models.ScheduleRule{
		StartDate: time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC), // a Tuesday
		StartTime: "12:00:00",
		EndTime:   "13:00:00",
		Weekdays:  models.Weekdays(time.Friday),
		Active:    true,
	}

	start, end, ok := ruleWindow(rule)
	if !ok {
		t.Fatal("expected a representable occurrence")
	}
	if start.Weekday() != time.Friday {
		t.Errorf("start weekday = %s, want Friday", start.Weekday())
	}
	if start.Format("2006-01-02") != "2026-06-05" {
		t.Errorf("start date = %s, want 2026-06-05", start.Format("2006-01-02"))
	}
	if !end.After(start) {
		t.Error("end not after start")
	}
}
