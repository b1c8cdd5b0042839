/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package manifest

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/chorus/internal/models"
	"github.com/friendsincode/chorus/internal/schedule"
	"github.com/friendsincode/chorus/internal/telemetry"
)

// DefaultQueueLength is the projection length used when none is configured.
const DefaultQueueLength = 30

// ErrNoContent signals that neither the schedule nor the safety fallback pool
// produced a single playable item. The queue must never be empty, so this is
// a hard failure.
var ErrNoContent = errors.New("no playable content for channel")

// PlaylistResolver decides which playlist is active at an instant.
type PlaylistResolver interface {
	ResolveActivePlaylist(ctx context.Context, channelID string, at time.Time) (string, error)
}

// Catalog is the slice of the media catalog the builder consumes.
type Catalog interface {
	ReadyPlaylistItems(ctx context.Context, playlistID string) ([]models.MediaItem, error)
	PoolByTag(ctx context.Context, tagName string) ([]models.MediaItem, error)
	ResolveURL(item models.MediaItem) string
}

// Builder assembles manifests for channel windows.
type Builder struct {
	db          *gorm.DB
	resolver    PlaylistResolver
	catalog     Catalog
	queueLength int
	defaults    Config
	logger      zerolog.Logger
}

// NewBuilder creates a manifest builder. queueLength <= 0 selects the default
// projection length.
func NewBuilder(db *gorm.DB, resolver PlaylistResolver, catalog Catalog, queueLength int, logger zerolog.Logger) *Builder {
	if queueLength <= 0 {
		queueLength = DefaultQueueLength
	}
	return &Builder{
		db:          db,
		resolver:    resolver,
		catalog:     catalog,
		queueLength: queueLength,
		logger:      logger.With().Str("component", "manifest_builder").Logger(),
	}
}

// SetDefaultConfig sets station-wide playback parameters applied to channels
// that have not set their own.
func (b *Builder) SetDefaultConfig(c Config) {
	b.defaults = c
}

// Generate produces the manifest for a channel at the given instant. The
// result is idempotent per (channel, floored hour): concurrent requests for
// the same window are safe and observe identical output.
//
// Store failures abort generation and propagate. An empty schedule or an
// empty playlist does not: the safety fallback pool covers those, because a
// channel must always have something audible queued.
func (b *Builder) Generate(ctx context.Context, channelID string, at time.Time) (*Manifest, error) {
	start := time.Now()
	defer func() {
		telemetry.ManifestBuildDuration.WithLabelValues(channelID).Observe(time.Since(start).Seconds())
	}()

	window := WindowStart(at)

	var channel models.Channel
	if err := b.db.WithContext(ctx).First(&channel, "id = ?", channelID).Error; err != nil {
		return nil, fmt.Errorf("load channel %s: %w", channelID, err)
	}

	items, err := b.eligibleItems(ctx, channelID, window)
	if err != nil {
		return nil, err
	}

	rules, err := b.activeRules(ctx, channelID)
	if err != nil {
		return nil, err
	}

	// Candidate draws are seeded by the window so repeated generation picks
	// the same interventions and fallback ordering.
	rng := rand.New(rand.NewSource(windowSeed(channelID, window)))

	queue := b.buildQueue(ctx, items, rules, rng)

	m := &Manifest{
		StreamID:   channelID,
		ManifestID: ID(channelID, window),
		Config:     b.playbackConfig(channel),
		Files:      b.collectFiles(queue),
		Queue:      queueEntries(queue),
	}

	b.logger.Info().
		Str("channel_id", channelID).
		Str("manifest_id", m.ManifestID).
		Int("queue_len", len(m.Queue)).
		Int("files", len(m.Files)).
		Msg("manifest generated")

	return m, nil
}

// playbackConfig merges the channel's playback parameters with the station
// defaults. Zero values mean the channel never set one.
func (b *Builder) playbackConfig(channel models.Channel) Config {
	cfg := Config{
		Crossfade:         channel.CrossfadeSeconds,
		NormalizationLUFS: channel.NormalizationLUFS,
		OfflineMode:       channel.OfflineMode,
	}
	if cfg.Crossfade == 0 {
		cfg.Crossfade = b.defaults.Crossfade
	}
	if cfg.NormalizationLUFS == 0 {
		cfg.NormalizationLUFS = b.defaults.NormalizationLUFS
	}
	if !cfg.OfflineMode {
		cfg.OfflineMode = b.defaults.OfflineMode
	}
	return cfg
}

// eligibleItems resolves the active playlist's READY items, falling back to
// the safety pool when the schedule has no answer or the playlist is empty.
func (b *Builder) eligibleItems(ctx context.Context, channelID string, window time.Time) ([]models.MediaItem, error) {
	playlistID, err := b.resolver.ResolveActivePlaylist(ctx, channelID, window)
	switch {
	case errors.Is(err, schedule.ErrNoMatch):
		return b.fallbackPool(ctx, channelID, "no schedule match")
	case err != nil:
		return nil, fmt.Errorf("resolve schedule: %w", err)
	}

	items, err := b.catalog.ReadyPlaylistItems(ctx, playlistID)
	if err != nil {
		return nil, fmt.Errorf("load playlist %s: %w", playlistID, err)
	}
	if len(items) == 0 {
		return b.fallbackPool(ctx, channelID, "playlist empty")
	}
	return items, nil
}

func (b *Builder) fallbackPool(ctx context.Context, channelID, reason string) ([]models.MediaItem, error) {
	pool, err := b.catalog.PoolByTag(ctx, models.TagSafeFallback)
	if err != nil {
		return nil, fmt.Errorf("load fallback pool: %w", err)
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("channel %s: %w", channelID, ErrNoContent)
	}

	telemetry.ManifestFallbackTotal.WithLabelValues(channelID).Inc()
	b.logger.Warn().
		Str("channel_id", channelID).
		Str("reason", reason).
		Int("pool_size", len(pool)).
		Msg("using safety fallback pool")

	return pool, nil
}

func (b *Builder) activeRules(ctx context.Context, channelID string) ([]models.InterventionRule, error) {
	var rules []models.InterventionRule
	err := b.db.WithContext(ctx).
		Where("channel_id = ? AND active = ?", channelID, true).
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("load intervention rules: %w", err)
	}

	// Stable application order regardless of store row order.
	sort.Slice(rules, func(i, j int) bool {
		if !rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].CreatedAt.Before(rules[j].CreatedAt)
		}
		return rules[i].ID < rules[j].ID
	})
	return rules, nil
}

// queueItem pairs a media item with the policy it entered the queue under.
type queueItem struct {
	media  models.MediaItem
	policy models.InterventionPolicy
}

// buildQueue projects the eligible items circularly over the configured
// length, with interrupt interventions at the head and interval interventions
// interleaved after every K-th music slot.
func (b *Builder) buildQueue(ctx context.Context, items []models.MediaItem, rules []models.InterventionRule, rng *rand.Rand) []queueItem {
	queue := make([]queueItem, 0, b.queueLength+len(rules))

	for _, rule := range rules {
		if rule.Policy != models.PolicyInterrupt {
			continue
		}
		if candidate, ok := b.drawCandidate(ctx, rule, rng); ok {
			queue = append(queue, queueItem{media: candidate, policy: models.PolicyInterrupt})
		}
	}

	for i := 0; i < b.queueLength; i++ {
		queue = append(queue, queueItem{media: items[i%len(items)]})

		for _, rule := range rules {
			if rule.Policy != models.PolicyNormal || rule.EveryItems <= 0 {
				continue
			}
			if (i+1)%rule.EveryItems != 0 {
				continue
			}
			if candidate, ok := b.drawCandidate(ctx, rule, rng); ok {
				queue = append(queue, queueItem{media: candidate, policy: models.PolicyNormal})
			}
		}
	}

	return queue
}

// drawCandidate picks one item from the rule's tag pool. A missing pool skips
// the intervention; music is mandatory, interventions are not.
func (b *Builder) drawCandidate(ctx context.Context, rule models.InterventionRule, rng *rand.Rand) (models.MediaItem, bool) {
	if rule.MediaTag == "" {
		return models.MediaItem{}, false
	}

	pool, err := b.catalog.PoolByTag(ctx, rule.MediaTag)
	if err != nil || len(pool) == 0 {
		b.logger.Debug().
			Str("rule", rule.Name).
			Str("tag", rule.MediaTag).
			Err(err).
			Msg("intervention candidate unavailable, skipping")
		return models.MediaItem{}, false
	}

	return pool[rng.Intn(len(pool))], true
}

// collectFiles deduplicates queue assets by media ID, first appearance order.
func (b *Builder) collectFiles(queue []queueItem) []File {
	seen := make(map[string]bool, len(queue))
	files := make([]File, 0, len(queue))

	for _, entry := range queue {
		if seen[entry.media.ID] {
			continue
		}
		seen[entry.media.ID] = true
		files = append(files, File{
			ID:      entry.media.ID,
			URL:     b.catalog.ResolveURL(entry.media),
			Hash:    entry.media.FileHash,
			Version: entry.media.Version,
		})
	}
	return files
}

func queueEntries(queue []queueItem) []QueueEntry {
	entries := make([]QueueEntry, 0, len(queue))
	for _, item := range queue {
		entries = append(entries, QueueEntry{
			Type:        item.media.Type,
			MediaFileID: item.media.ID,
			Title:       item.media.Title,
			Duration:    item.media.DurationSeconds,
			Policy:      item.policy,
		})
	}
	return entries
}

// windowSeed derives a deterministic RNG seed from the channel window.
func windowSeed(channelID string, window time.Time) int64 {
	h := fnv.New64a()
	h.Write([]byte(channelID))
	fmt.Fprintf(h, ":%d", window.Unix())
	return int64(h.Sum64())
}
