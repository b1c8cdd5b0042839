/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/chorus/internal/manifest"
	"github.com/friendsincode/chorus/internal/models"
)

// fakeCache implements AssetCache with a fixed presence set and records
// preload invocations.
type fakeCache struct {
	mu       sync.Mutex
	cached   map[string]bool
	preloads [][]manifest.File
}

func newFakeCache(ids ...string) *fakeCache {
	cached := make(map[string]bool, len(ids))
	for _, id := range ids {
		cached[id] = true
	}
	return &fakeCache{cached: cached}
}

func (f *fakeCache) Has(assetID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cached[assetID]
}

func (f *fakeCache) Preload(ctx context.Context, files []manifest.File) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.preloads = append(f.preloads, files)
}

func entries(ids ...string) []manifest.QueueEntry {
	out := make([]manifest.QueueEntry, len(ids))
	for i, id := range ids {
		out[i] = manifest.QueueEntry{
			Type:        models.MediaMusic,
			MediaFileID: id,
			Title:       id,
			Duration:    180,
		}
	}
	return out
}

func syncQueue(t *testing.T, e *Engine, queue []manifest.QueueEntry) {
	t.Helper()
	e.Sync(context.Background(), &manifest.Manifest{ManifestID: "test", Queue: queue})
}

func TestNextTrackSkipsToFirstCached(t *testing.T) {
	cache := newFakeCache("c")
	engine := NewEngine(cache, zerolog.Nop())
	syncQueue(t, engine, entries("a", "b", "c", "d"))

	entry, ok := engine.NextTrack()
	if !ok {
		t.Fatal("expected a track")
	}
	if entry.MediaFileID != "c" {
		t.Errorf("track = %q, want the first cached entry c", entry.MediaFileID)
	}
	if engine.State() != StatePlaying {
		t.Errorf("state = %q, want PLAYING", engine.State())
	}
	// a and b were skipped and consumed along with c.
	if engine.QueueLen() != 1 {
		t.Errorf("queue length = %d, want 1", engine.QueueLen())
	}

	next, ok := engine.NextTrack()
	if !ok || next.MediaFileID != "d" {
		t.Errorf("next = %+v ok=%v, want d", next, ok)
	}
}

func TestNextTrackDegradesWhenNothingCached(t *testing.T) {
	engine := NewEngine(newFakeCache(), zerolog.Nop())
	syncQueue(t, engine, entries("a", "b"))

	entry, ok := engine.NextTrack()
	if !ok {
		t.Fatal("expected a track even with a cold cache")
	}
	if entry.MediaFileID != "a" {
		t.Errorf("track = %q, want the head entry a", entry.MediaFileID)
	}
	if engine.State() != StateDegraded {
		t.Errorf("state = %q, want DEGRADED", engine.State())
	}
	if engine.QueueLen() != 1 {
		t.Errorf("queue length = %d, want 1", engine.QueueLen())
	}
}

func TestNextTrackRecoversFromDegraded(t *testing.T) {
	cache := newFakeCache("b")
	engine := NewEngine(cache, zerolog.Nop())
	syncQueue(t, engine, entries("a", "b"))

	if _, ok := engine.NextTrack(); !ok {
		t.Fatal("expected first track")
	}
	if engine.State() != StateDegraded {
		t.Fatalf("state = %q, want DEGRADED after uncached head", engine.State())
	}

	entry, ok := engine.NextTrack()
	if !ok || entry.MediaFileID != "b" {
		t.Fatalf("second track = %+v ok=%v, want b", entry, ok)
	}
	if engine.State() != StatePlaying {
		t.Errorf("state = %q, want PLAYING once a cached track is found", engine.State())
	}
}

func TestNextTrackEmptyQueueIsIdle(t *testing.T) {
	engine := NewEngine(newFakeCache(), zerolog.Nop())

	if _, ok := engine.NextTrack(); ok {
		t.Fatal("expected no track from an empty queue")
	}
	if engine.State() != StateIdle {
		t.Errorf("state = %q, want IDLE", engine.State())
	}

	// Draining a queue also ends in IDLE.
	syncQueue(t, engine, entries("a"))
	if _, ok := engine.NextTrack(); !ok {
		t.Fatal("expected the single track")
	}
	if _, ok := engine.NextTrack(); ok {
		t.Fatal("expected exhaustion")
	}
	if engine.State() != StateIdle {
		t.Errorf("state = %q, want IDLE after exhaustion", engine.State())
	}
}

func TestSyncPayloadMalformedGoesIdle(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "garbage", payload: []byte("{not json")},
		{name: "empty body", payload: nil},
		{name: "wrong shape", payload: []byte(`{"queue": "not-an-array"}`)},
		{name: "empty object", payload: []byte(`{}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(newFakeCache(), zerolog.Nop())
			engine.SyncPayload(context.Background(), tt.payload)

			if engine.QueueLen() != 0 {
				t.Errorf("queue length = %d, want 0", engine.QueueLen())
			}
			if engine.State() != StateIdle {
				t.Errorf("state = %q, want IDLE", engine.State())
			}
			if _, ok := engine.NextTrack(); ok {
				t.Error("expected no track after malformed sync")
			}
		})
	}
}

func TestSyncReplacesQueueWholesale(t *testing.T) {
	cache := newFakeCache("a", "x")
	engine := NewEngine(cache, zerolog.Nop())
	syncQueue(t, engine, entries("a", "b", "c"))
	syncQueue(t, engine, entries("x", "y"))

	if engine.QueueLen() != 2 {
		t.Fatalf("queue length = %d, want 2 after resync", engine.QueueLen())
	}
	entry, ok := engine.NextTrack()
	if !ok || entry.MediaFileID != "x" {
		t.Errorf("track = %+v ok=%v, want x from the new queue", entry, ok)
	}
}

func TestSyncDerivesFilesFromQueue(t *testing.T) {
	cache := newFakeCache()
	engine := NewEngine(cache, zerolog.Nop())

	engine.Sync(context.Background(), &manifest.Manifest{
		ManifestID: "test",
		Queue:      entries("a", "b", "a"),
	})

	// Preload runs on a goroutine; wait briefly for it to be recorded.
	deadline := time.Now().Add(time.Second)
	for {
		cache.mu.Lock()
		n := len(cache.preloads)
		cache.mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	cache.mu.Lock()
	defer cache.mu.Unlock()
	if len(cache.preloads) != 1 {
		t.Fatalf("preloads = %d, want 1", len(cache.preloads))
	}
	files := cache.preloads[0]
	if len(files) != 2 {
		t.Fatalf("derived files = %d, want 2 deduplicated entries", len(files))
	}
	if files[0].ID != "a" || files[1].ID != "b" {
		t.Errorf("derived files = %+v, want a then b", files)
	}
}

func TestAutoHealAdvancesStalledPlayback(t *testing.T) {
	cache := newFakeCache("a", "b")
	engine := NewEngine(cache, zerolog.Nop())
	syncQueue(t, engine, entries("a", "b"))

	if _, ok := engine.NextTrack(); !ok {
		t.Fatal("expected first track")
	}

	// Force the stall deadline into the past.
	engine.mu.Lock()
	engine.deadline = time.Now().Add(-time.Second)
	engine.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healed := make(chan manifest.QueueEntry, 1)
	go engine.RunAutoHeal(ctx, 10*time.Millisecond, func(entry manifest.QueueEntry) {
		healed <- entry
	})

	select {
	case entry := <-healed:
		if entry.MediaFileID != "b" {
			t.Errorf("healed track = %q, want b", entry.MediaFileID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("auto-heal never advanced the queue")
	}
}

func TestAutoHealIgnoresIdleEngine(t *testing.T) {
	engine := NewEngine(newFakeCache(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healed := make(chan manifest.QueueEntry, 1)
	go engine.RunAutoHeal(ctx, 10*time.Millisecond, func(entry manifest.QueueEntry) {
		healed <- entry
	})

	select {
	case entry := <-healed:
		t.Fatalf("auto-heal fired on an idle engine: %+v", entry)
	case <-time.After(100 * time.Millisecond):
	}
}
