/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package schedule decides which playlist a channel should be playing at a
// given instant. Resolution is deterministic: the same rule set and the same
// instant always produce the same playlist.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/chorus/internal/models"
	"github.com/friendsincode/chorus/internal/telemetry"
)

// ErrNoMatch signals that no active schedule rule covers the requested
// instant. It is an expected outcome, not a failure: callers fall back to the
// safety pool.
var ErrNoMatch = errors.New("no schedule rule matches")

// Resolver evaluates schedule rules against points in time.
type Resolver struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewResolver creates a schedule resolver.
func NewResolver(db *gorm.DB, logger zerolog.Logger) *Resolver {
	return &Resolver{
		db:     db,
		logger: logger.With().Str("component", "schedule_resolver").Logger(),
	}
}

// ResolveActivePlaylist returns the playlist ID that should be playing on a
// channel at the given instant. Among matching rules the highest Priority
// wins; among equal priorities the most recently created rule wins.
//
// A store error is returned wrapped and is distinct from ErrNoMatch: the
// caller must not treat a failing database as an empty schedule.
func (r *Resolver) ResolveActivePlaylist(ctx context.Context, channelID string, at time.Time) (string, error) {
	var rules []models.ScheduleRule
	err := r.db.WithContext(ctx).
		Where("channel_id = ? AND active = ?", channelID, true).
		Find(&rules).Error
	if err != nil {
		telemetry.ResolverErrorsTotal.WithLabelValues(channelID).Inc()
		return "", fmt.Errorf("load schedule rules: %w", err)
	}

	rule, ok := pickWinner(rules, at)
	if !ok {
		r.logger.Debug().
			Str("channel_id", channelID).
			Time("at", at).
			Int("rules_considered", len(rules)).
			Msg("no schedule rule matches")
		return "", ErrNoMatch
	}

	r.logger.Debug().
		Str("channel_id", channelID).
		Str("rule_id", rule.ID).
		Str("playlist_id", rule.PlaylistID).
		Int("priority", rule.Priority).
		Msg("schedule resolved")

	return rule.PlaylistID, nil
}

// pickWinner selects the matching rule with the highest priority, breaking
// ties by most recent creation, then by ID for full determinism.
func pickWinner(rules []models.ScheduleRule, at time.Time) (models.ScheduleRule, bool) {
	matching := rules[:0:0]
	for _, rule := range rules {
		if rule.Matches(at) {
			matching = append(matching, rule)
		}
	}
	if len(matching) == 0 {
		return models.ScheduleRule{}, false
	}

	sort.Slice(matching, func(i, j int) bool {
		a, b := matching[i], matching[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	return matching[0], true
}
