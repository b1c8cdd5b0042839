/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"
)

// ScheduleRule authorizes a playlist to run on a channel during a recurring
// daily time window within a date range. Priority is explicit: when several
// rules match the same instant the highest Priority wins, and the most
// recently created rule wins among equals. Relying on row order for the
// tie-break is not deterministic across stores and is deliberately avoided.
type ScheduleRule struct {
	ID         string     `gorm:"type:uuid;primaryKey"`
	ChannelID  string     `gorm:"type:uuid;index:idx_schedule_rules_channel;not null"`
	PlaylistID string     `gorm:"type:uuid;not null"`
	StartDate  time.Time  `gorm:"not null"`
	EndDate    *time.Time // nil means indefinite
	StartTime  string     `gorm:"type:varchar(8);not null"` // "HH:MM:SS"
	EndTime    string     `gorm:"type:varchar(8);not null"`
	Weekdays   WeekdaySet `gorm:"not null;default:127"`
	Priority   int        `gorm:"not null;default:0"`
	Active     bool       `gorm:"not null;default:true"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName returns the table name for GORM.
func (ScheduleRule) TableName() string {
	return "schedule_rules"
}

// WeekdaySet is a bitmask over ISO weekdays, bit 0 = Sunday.
type WeekdaySet int

// Weekdays builds a set from time.Weekday values.
func Weekdays(days ...time.Weekday) WeekdaySet {
	var set WeekdaySet
	for _, day := range days {
		set |= 1 << uint(day)
	}
	return set
}

// AllWeekdays matches every day of the week.
const AllWeekdays WeekdaySet = 1<<7 - 1

// Contains reports whether the set includes the given weekday.
func (s WeekdaySet) Contains(day time.Weekday) bool {
	return s&(1<<uint(day)) != 0
}

// ContainsDate reports whether at falls inside the rule's date range.
// The range is inclusive on both ends; a nil EndDate means indefinite.
func (r ScheduleRule) ContainsDate(at time.Time) bool {
	day := truncateToDay(at)
	if day.Before(truncateToDay(r.StartDate)) {
		return false
	}
	if r.EndDate != nil && day.After(truncateToDay(*r.EndDate)) {
		return false
	}
	return true
}

// ContainsClock reports whether at's time of day falls inside the rule's
// window, inclusive on both ends. A window with StartTime after EndTime
// never matches; overnight coverage is expressed as two rules.
func (r ScheduleRule) ContainsClock(at time.Time) bool {
	clock := at.Format("15:04:05")
	start := normalizeClock(r.StartTime)
	end := normalizeClock(r.EndTime)
	if start > end {
		return false
	}
	return clock >= start && clock <= end
}

// Matches reports whether the rule authorizes playback at the given instant.
func (r ScheduleRule) Matches(at time.Time) bool {
	return r.Active && r.ContainsDate(at) && r.ContainsClock(at) && r.Weekdays.Contains(at.Weekday())
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// normalizeClock pads "HH:MM" to "HH:MM:SS" so lexical comparison holds.
func normalizeClock(clock string) string {
	if len(clock) == 5 {
		return clock + ":00"
	}
	return clock
}
