/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/chorus/internal/manifest"
	"github.com/friendsincode/chorus/internal/telemetry"
)

// State is the engine's operating mode.
type State string

const (
	// StateIdle means no manifest, or an exhausted queue.
	StateIdle State = "IDLE"
	// StatePlaying means the engine is advancing through cached content.
	StatePlaying State = "PLAYING"
	// StateDegraded means the current track is being streamed directly
	// because nothing upcoming was cached.
	StateDegraded State = "DEGRADED"
)

// stallGrace is added to a track's nominal duration before the auto-heal
// check considers playback stalled.
const stallGrace = 10 * time.Second

// defaultTrackSeconds bounds the stall deadline for entries that ship
// without a duration.
const defaultTrackSeconds = 300

// AssetCache is the engine's view of the edge cache. Presence checks must be
// synchronous; preloading may take as long as it likes.
type AssetCache interface {
	Has(assetID string) bool
	Preload(ctx context.Context, files []manifest.File)
}

// Engine advances through a manifest queue, preferring cached assets and
// degrading to direct streaming rather than going silent.
type Engine struct {
	cache  AssetCache
	logger zerolog.Logger

	mu       sync.Mutex
	queue    []manifest.QueueEntry
	state    State
	deadline time.Time
}

// NewEngine creates an idle playback engine.
func NewEngine(cache AssetCache, logger zerolog.Logger) *Engine {
	return &Engine{
		cache:  cache,
		logger: logger.With().Str("component", "playback_engine").Logger(),
		state:  StateIdle,
	}
}

// State returns the current operating mode.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// QueueLen returns the number of entries not yet consumed.
func (e *Engine) QueueLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Sync replaces the queue wholesale with the manifest's and kicks off an
// asset preload in the background. The preload stops when ctx is canceled,
// so a channel switch does not keep fetching stale assets.
func (e *Engine) Sync(ctx context.Context, m *manifest.Manifest) {
	files := m.Files
	if len(files) == 0 {
		files = filesFromQueue(m.Queue)
	}

	e.mu.Lock()
	e.queue = append([]manifest.QueueEntry(nil), m.Queue...)
	if len(e.queue) == 0 {
		e.state = StateIdle
	}
	e.mu.Unlock()

	e.logger.Info().
		Str("manifest_id", m.ManifestID).
		Int("queue_len", len(m.Queue)).
		Int("files", len(files)).
		Msg("manifest synced")

	go e.cache.Preload(ctx, files)
}

// SyncPayload decodes a raw manifest payload and syncs it. A malformed
// payload never panics or errors out: it is treated as an empty queue and
// the engine goes idle.
func (e *Engine) SyncPayload(ctx context.Context, raw []byte) {
	var m manifest.Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		e.logger.Warn().Err(err).Msg("malformed manifest payload, treating as empty")
		m = manifest.Manifest{}
	}
	e.Sync(ctx, &m)
}

// NextTrack returns the next entry to play. The queue is scanned in order
// for the first cached entry; it is popped along with everything skipped
// before it, and the engine is PLAYING. With nothing cached the head is
// popped for direct streaming and the engine is DEGRADED. An empty queue
// returns false and the engine is IDLE.
func (e *Engine) NextTrack() (manifest.QueueEntry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.queue) == 0 {
		e.state = StateIdle
		return manifest.QueueEntry{}, false
	}

	for i, entry := range e.queue {
		if e.cache.Has(entry.MediaFileID) {
			e.queue = e.queue[i+1:]
			e.state = StatePlaying
			e.armStallDeadline(entry)
			telemetry.EdgeCacheHitsTotal.Inc()
			return entry, true
		}
	}

	// Nothing upcoming is cached. Stream the head directly rather than
	// going silent.
	entry := e.queue[0]
	e.queue = e.queue[1:]
	e.state = StateDegraded
	e.armStallDeadline(entry)
	telemetry.EdgeCacheMissesTotal.Inc()
	e.logger.Warn().Str("media_id", entry.MediaFileID).Msg("no cached track ahead, direct streaming")
	return entry, true
}

// armStallDeadline must be called with the lock held.
func (e *Engine) armStallDeadline(entry manifest.QueueEntry) {
	seconds := entry.Duration
	if seconds <= 0 {
		seconds = defaultTrackSeconds
	}
	e.deadline = time.Now().Add(time.Duration(seconds)*time.Second + stallGrace)
}

// stalled reports whether the current track has run past its deadline.
func (e *Engine) stalled(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state != StateIdle && now.After(e.deadline)
}

// RunAutoHeal watches for silent stalls and forces a queue advance when the
// current track has overrun its expected duration. Each recovered track is
// handed to onTrack. Returns when ctx is canceled.
func (e *Engine) RunAutoHeal(ctx context.Context, interval time.Duration, onTrack func(manifest.QueueEntry)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !e.stalled(now) {
				continue
			}
			telemetry.PlaybackHealsTotal.Inc()
			e.logger.Warn().Msg("silent stall detected, forcing queue advance")
			if entry, ok := e.NextTrack(); ok && onTrack != nil {
				onTrack(entry)
			}
		}
	}
}

// filesFromQueue derives an asset list from queue entries when the manifest
// ships without an explicit files set. Entries carry no URL, so these assets
// can only be matched against what is already cached.
func filesFromQueue(queue []manifest.QueueEntry) []manifest.File {
	seen := make(map[string]bool, len(queue))
	files := make([]manifest.File, 0, len(queue))
	for _, entry := range queue {
		if entry.MediaFileID == "" || seen[entry.MediaFileID] {
			continue
		}
		seen[entry.MediaFileID] = true
		files = append(files, manifest.File{ID: entry.MediaFileID})
	}
	return files
}
