/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"testing"
	"time"
)

func TestWeekdaySet(t *testing.T) {
	weekend := Weekdays(time.Saturday, time.Sunday)

	if !weekend.Contains(time.Saturday) || !weekend.Contains(time.Sunday) {
		t.Error("weekend set missing its own days")
	}
	if weekend.Contains(time.Wednesday) {
		t.Error("weekend set contains Wednesday")
	}

	for d := time.Sunday; d <= time.Saturday; d++ {
		if !AllWeekdays.Contains(d) {
			t.Errorf("AllWeekdays missing %s", d)
		}
	}
}

func TestScheduleRuleMatches(t *testing.T) {
	jan1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mar31 := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	base := ScheduleRule{
		StartDate: jan1,
		EndDate:   &mar31,
		StartTime: "08:00:00",
		EndTime:   "18:00:00",
		Weekdays:  AllWeekdays,
		Active:    true,
	}

	tests := []struct {
		name   string
		modify func(*ScheduleRule)
		at     time.Time
		want   bool
	}{
		{
			name: "inside all windows",
			at:   time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
			want: true,
		},
		{
			name: "start boundary inclusive",
			at:   time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC),
			want: true,
		},
		{
			name: "end boundary inclusive",
			at:   time.Date(2026, 2, 10, 18, 0, 0, 0, time.UTC),
			want: true,
		},
		{
			name: "one second past end",
			at:   time.Date(2026, 2, 10, 18, 0, 1, 0, time.UTC),
			want: false,
		},
		{
			name: "before start date",
			at:   time.Date(2025, 12, 31, 12, 0, 0, 0, time.UTC),
			want: false,
		},
		{
			name: "end date is inclusive all day",
			at:   time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC),
			want: true,
		},
		{
			name: "after end date",
			at:   time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
			want: false,
		},
		{
			name:   "nil end date is indefinite",
			modify: func(r *ScheduleRule) { r.EndDate = nil },
			at:     time.Date(2030, 6, 15, 12, 0, 0, 0, time.UTC),
			want:   true,
		},
		{
			name:   "weekday excluded",
			modify: func(r *ScheduleRule) { r.Weekdays = Weekdays(time.Monday) },
			// 2026-02-10 is a Tuesday.
			at:   time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
			want: false,
		},
		{
			name:   "inactive never matches",
			modify: func(r *ScheduleRule) { r.Active = false },
			at:     time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
			want:   false,
		},
		{
			name: "inverted clock window never matches",
			modify: func(r *ScheduleRule) {
				r.StartTime = "22:00:00"
				r.EndTime = "02:00:00"
			},
			at:   time.Date(2026, 2, 10, 23, 0, 0, 0, time.UTC),
			want: false,
		},
		{
			name:   "short clock format is padded",
			modify: func(r *ScheduleRule) { r.StartTime = "08:00"; r.EndTime = "18:00" },
			at:     time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := base
			if tt.modify != nil {
				tt.modify(&rule)
			}
			if got := rule.Matches(tt.at); got != tt.want {
				t.Errorf("Matches(%s) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}
