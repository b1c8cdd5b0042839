/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/chorus/internal/models"
)

// ExportService renders a channel's schedule rules as a calendar feed so
// operators can review rotation coverage in any calendar client.
type ExportService struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewExportService creates a schedule export service.
func NewExportService(db *gorm.DB, logger zerolog.Logger) *ExportService {
	return &ExportService{
		db:     db,
		logger: logger.With().Str("component", "schedule_export").Logger(),
	}
}

// ICalExport contains the rendered calendar data.
type ICalExport struct {
	Data        []byte
	Filename    string
	ContentType string
}

// ExportICal renders the channel's active schedule rules as iCal. Each rule
// becomes a weekly recurring event on its weekdays, bounded by the rule's
// date range.
func (s *ExportService) ExportICal(ctx context.Context, channelID string) (*ICalExport, error) {
	var channel models.Channel
	if err := s.db.WithContext(ctx).First(&channel, "id = ?", channelID).Error; err != nil {
		return nil, fmt.Errorf("load channel %s: %w", channelID, err)
	}

	var rules []models.ScheduleRule
	if err := s.db.WithContext(ctx).
		Where("channel_id = ? AND active = ?", channelID, true).
		Order("priority DESC, created_at DESC").
		Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("load schedule rules: %w", err)
	}

	playlistNames, err := s.playlistNames(ctx, rules)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString("BEGIN:VCALENDAR\r\n")
	buf.WriteString("VERSION:2.0\r\n")
	buf.WriteString("PRODID:-//Chorus//Schedule Export//EN\r\n")
	buf.WriteString(fmt.Sprintf("X-WR-CALNAME:%s Schedule\r\n", escapeICalText(channel.Name)))
	buf.WriteString("CALSCALE:GREGORIAN\r\n")
	buf.WriteString("METHOD:PUBLISH\r\n")

	now := time.Now()
	for _, rule := range rules {
		start, end, ok := ruleWindow(rule)
		if !ok {
			s.logger.Warn().Str("rule_id", rule.ID).Msg("rule has no representable occurrence, skipping")
			continue
		}

		summary := playlistNames[rule.PlaylistID]
		if summary == "" {
			summary = "Playlist " + rule.PlaylistID
		}

		buf.WriteString("BEGIN:VEVENT\r\n")
		buf.WriteString(fmt.Sprintf("UID:%s@chorus\r\n", rule.ID))
		buf.WriteString(fmt.Sprintf("DTSTAMP:%s\r\n", formatICalTime(now)))
		buf.WriteString(fmt.Sprintf("DTSTART:%s\r\n", formatICalTime(start)))
		buf.WriteString(fmt.Sprintf("DTEND:%s\r\n", formatICalTime(end)))
		buf.WriteString(fmt.Sprintf("RRULE:%s\r\n", ruleRecurrence(rule)))
		buf.WriteString(fmt.Sprintf("SUMMARY:%s\r\n", escapeICalText(summary)))
		buf.WriteString(fmt.Sprintf("DESCRIPTION:%s\r\n", escapeICalText(fmt.Sprintf("Priority %d", rule.Priority))))
		buf.WriteString("END:VEVENT\r\n")
	}

	buf.WriteString("END:VCALENDAR\r\n")

	name := channel.Name
	if name == "" {
		name = channelID
	}
	return &ICalExport{
		Data:        buf.Bytes(),
		Filename:    fmt.Sprintf("%s-schedule.ics", slugify(name)),
		ContentType: "text/calendar; charset=utf-8",
	}, nil
}

func (s *ExportService) playlistNames(ctx context.Context, rules []models.ScheduleRule) (map[string]string, error) {
	ids := make([]string, 0, len(rules))
	for _, rule := range rules {
		ids = append(ids, rule.PlaylistID)
	}
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	var playlists []models.Playlist
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&playlists).Error; err != nil {
		return nil, fmt.Errorf("load playlists: %w", err)
	}
	for _, p := range playlists {
		names[p.ID] = p.Name
	}
	return names, nil
}

// ruleWindow computes the first occurrence of the rule: the earliest date in
// range whose weekday the rule covers, at the rule's clock window.
func ruleWindow(rule models.ScheduleRule) (start, end time.Time, ok bool) {
	day := rule.StartDate.UTC()
	for i := 0; i < 7; i++ {
		if rule.Weekdays.Contains(day.Weekday()) {
			break
		}
		day = day.AddDate(0, 0, 1)
	}
	if !rule.Weekdays.Contains(day.Weekday()) {
		return time.Time{}, time.Time{}, false
	}
	if rule.EndDate != nil && day.After(rule.EndDate.UTC()) {
		return time.Time{}, time.Time{}, false
	}

	start, err := combineClock(day, rule.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	end, err = combineClock(day, rule.EndTime)
	if err != nil || !end.After(start) {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// ruleRecurrence renders the weekly RRULE for a schedule rule.
func ruleRecurrence(rule models.ScheduleRule) string {
	var b strings.Builder
	b.WriteString("FREQ=WEEKLY;BYDAY=")
	b.WriteString(byDayList(rule.Weekdays))
	if rule.EndDate != nil {
		until, err := combineClock(rule.EndDate.UTC(), rule.EndTime)
		if err == nil {
			b.WriteString(";UNTIL=")
			b.WriteString(formatICalTime(until))
		}
	}
	return b.String()
}

// byDayList renders a weekday set as iCal BYDAY codes, Sunday first.
func byDayList(set models.WeekdaySet) string {
	codes := []string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}
	var days []string
	for day := time.Sunday; day <= time.Saturday; day++ {
		if set.Contains(day) {
			days = append(days, codes[day])
		}
	}
	return strings.Join(days, ",")
}

// combineClock merges a date with an "HH:MM[:SS]" clock string in UTC.
func combineClock(day time.Time, clock string) (time.Time, error) {
	if len(clock) == 5 {
		clock += ":00"
	}
	t, err := time.Parse("15:04:05", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse clock %q: %w", clock, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC), nil
}

func formatICalTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

func escapeICalText(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func slugify(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "-")
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			result.WriteRune(r)
		}
	}
	return result.String()
}
