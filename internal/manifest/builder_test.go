/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package manifest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/friendsincode/chorus/internal/models"
	"github.com/friendsincode/chorus/internal/schedule"
)

type fakeResolver struct {
	playlistID string
	err        error
}

func (f *fakeResolver) ResolveActivePlaylist(ctx context.Context, channelID string, at time.Time) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.playlistID, nil
}

type fakeCatalog struct {
	playlists map[string][]models.MediaItem
	pools     map[string][]models.MediaItem
	err       error
}

func (f *fakeCatalog) ReadyPlaylistItems(ctx context.Context, playlistID string) ([]models.MediaItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.playlists[playlistID], nil
}

func (f *fakeCatalog) PoolByTag(ctx context.Context, tagName string) ([]models.MediaItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pools[tagName], nil
}

func (f *fakeCatalog) ResolveURL(item models.MediaItem) string {
	return "https://cdn.test/" + item.ID
}

func musicItems(n int) []models.MediaItem {
	items := make([]models.MediaItem, n)
	for i := range items {
		items[i] = models.MediaItem{
			ID:              fmt.Sprintf("track-%d", i),
			Title:           fmt.Sprintf("Track %d", i),
			Type:            models.MediaMusic,
			Status:          models.MediaReady,
			DurationSeconds: 180,
			FileHash:        fmt.Sprintf("hash-%d", i),
			Version:         1,
		}
	}
	return items
}

func setupBuilderDB(t *testing.T, channel *models.Channel, rules ...models.InterventionRule) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.Channel{}, &models.InterventionRule{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Create(channel).Error; err != nil {
		t.Fatalf("create channel: %v", err)
	}
	for i := range rules {
		if rules[i].ID == "" {
			rules[i].ID = uuid.NewString()
		}
		if err := db.Create(&rules[i]).Error; err != nil {
			t.Fatalf("create rule: %v", err)
		}
	}
	return db
}

func testChannel() *models.Channel {
	return &models.Channel{
		ID:                uuid.NewString(),
		Status:            models.ChannelOnline,
		CrossfadeSeconds:  3,
		NormalizationLUFS: -14,
	}
}

func TestGenerateCircularProjection(t *testing.T) {
	channel := testChannel()
	db := setupBuilderDB(t, channel)

	catalog := &fakeCatalog{
		playlists: map[string][]models.MediaItem{"pl": musicItems(3)},
	}
	builder := NewBuilder(db, &fakeResolver{playlistID: "pl"}, catalog, 7, zerolog.Nop())

	m, err := builder.Generate(context.Background(), channel.ID, time.Now())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	want := []string{"track-0", "track-1", "track-2", "track-0", "track-1", "track-2", "track-0"}
	if len(m.Queue) != len(want) {
		t.Fatalf("queue length = %d, want %d", len(m.Queue), len(want))
	}
	for i, entry := range m.Queue {
		if entry.MediaFileID != want[i] {
			t.Errorf("queue[%d] = %q, want %q", i, entry.MediaFileID, want[i])
		}
	}

	// Three distinct tracks referenced seven times dedupe to three files.
	if len(m.Files) != 3 {
		t.Errorf("files = %d, want 3", len(m.Files))
	}
	for _, f := range m.Files {
		if f.URL == "" || f.Hash == "" {
			t.Errorf("file %s missing url or hash", f.ID)
		}
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	channel := testChannel()
	db := setupBuilderDB(t, channel, models.InterventionRule{
		ChannelID:  channel.ID,
		Name:       "retail",
		Policy:     models.PolicyNormal,
		EveryItems: 5,
		MediaTag:   "ads",
		Active:     true,
	})

	catalog := &fakeCatalog{
		playlists: map[string][]models.MediaItem{"pl": musicItems(4)},
		pools: map[string][]models.MediaItem{
			"ads": {
				{ID: "ad-1", Type: models.MediaAd, Status: models.MediaReady},
				{ID: "ad-2", Type: models.MediaAd, Status: models.MediaReady},
				{ID: "ad-3", Type: models.MediaAd, Status: models.MediaReady},
			},
		},
	}
	builder := NewBuilder(db, &fakeResolver{playlistID: "pl"}, catalog, 30, zerolog.Nop())

	at := time.Date(2026, 3, 4, 14, 22, 31, 0, time.UTC)
	first, err := builder.Generate(context.Background(), channel.ID, at)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	// A later instant inside the same hour shares the window.
	second, err := builder.Generate(context.Background(), channel.ID, at.Add(20*time.Minute))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if first.ManifestID != second.ManifestID {
		t.Errorf("manifest ids differ: %q vs %q", first.ManifestID, second.ManifestID)
	}
	if !reflect.DeepEqual(first.Queue, second.Queue) {
		t.Error("queues differ across same-window generations")
	}
	if !reflect.DeepEqual(first.Files, second.Files) {
		t.Error("files differ across same-window generations")
	}

	wantID := fmt.Sprintf("%s-%d", channel.ID, time.Date(2026, 3, 4, 14, 0, 0, 0, time.UTC).Unix())
	if first.ManifestID != wantID {
		t.Errorf("manifest id = %q, want %q", first.ManifestID, wantID)
	}
}

func TestGenerateInterruptAtHead(t *testing.T) {
	channel := testChannel()
	db := setupBuilderDB(t, channel, models.InterventionRule{
		ChannelID:    channel.ID,
		Name:         "time-announcement",
		Policy:       models.PolicyInterrupt,
		EveryMinutes: 60,
		MediaTag:     "time",
		Active:       true,
	})

	catalog := &fakeCatalog{
		playlists: map[string][]models.MediaItem{"pl": musicItems(2)},
		pools: map[string][]models.MediaItem{
			"time": {{ID: "chime", Type: models.MediaVignette, Status: models.MediaReady}},
		},
	}
	builder := NewBuilder(db, &fakeResolver{playlistID: "pl"}, catalog, 10, zerolog.Nop())

	m, err := builder.Generate(context.Background(), channel.ID, time.Now())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if m.Queue[0].MediaFileID != "chime" {
		t.Fatalf("queue head = %q, want the interrupt candidate", m.Queue[0].MediaFileID)
	}
	if m.Queue[0].Policy != models.PolicyInterrupt {
		t.Errorf("head policy = %q, want INTERRUPT", m.Queue[0].Policy)
	}
	if len(m.Queue) != 11 {
		t.Errorf("queue length = %d, want 10 music slots plus one interrupt", len(m.Queue))
	}
}

func TestGenerateIntervalInsertion(t *testing.T) {
	channel := testChannel()
	db := setupBuilderDB(t, channel, models.InterventionRule{
		ChannelID:  channel.ID,
		Name:       "retail",
		Policy:     models.PolicyNormal,
		EveryItems: 3,
		MediaTag:   "ads",
		Active:     true,
	})

	catalog := &fakeCatalog{
		playlists: map[string][]models.MediaItem{"pl": musicItems(5)},
		pools: map[string][]models.MediaItem{
			"ads": {{ID: "spot", Type: models.MediaAd, Status: models.MediaReady}},
		},
	}
	builder := NewBuilder(db, &fakeResolver{playlistID: "pl"}, catalog, 9, zerolog.Nop())

	m, err := builder.Generate(context.Background(), channel.ID, time.Now())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	// 9 music slots with an ad after every third: 12 entries total.
	if len(m.Queue) != 12 {
		t.Fatalf("queue length = %d, want 12", len(m.Queue))
	}
	for _, idx := range []int{3, 7, 11} {
		if m.Queue[idx].MediaFileID != "spot" {
			t.Errorf("queue[%d] = %q, want the ad spot", idx, m.Queue[idx].MediaFileID)
		}
	}
	musicCount := 0
	for _, entry := range m.Queue {
		if entry.Type == models.MediaMusic {
			musicCount++
		}
	}
	if musicCount != 9 {
		t.Errorf("music slots = %d, want 9", musicCount)
	}
}

func TestGenerateMissingInterventionCandidateSkips(t *testing.T) {
	channel := testChannel()
	db := setupBuilderDB(t, channel, models.InterventionRule{
		ChannelID:  channel.ID,
		Name:       "retail",
		Policy:     models.PolicyNormal,
		EveryItems: 2,
		MediaTag:   "nonexistent",
		Active:     true,
	})

	catalog := &fakeCatalog{
		playlists: map[string][]models.MediaItem{"pl": musicItems(3)},
	}
	builder := NewBuilder(db, &fakeResolver{playlistID: "pl"}, catalog, 6, zerolog.Nop())

	m, err := builder.Generate(context.Background(), channel.ID, time.Now())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(m.Queue) != 6 {
		t.Errorf("queue length = %d, want 6 (interventions without candidates skip)", len(m.Queue))
	}
}

func TestGenerateFallbackPool(t *testing.T) {
	fallback := []models.MediaItem{
		{ID: "safe-1", Type: models.MediaMusic, Status: models.MediaReady},
		{ID: "safe-2", Type: models.MediaMusic, Status: models.MediaReady},
	}

	tests := []struct {
		name     string
		resolver *fakeResolver
		catalog  *fakeCatalog
	}{
		{
			name:     "no schedule match",
			resolver: &fakeResolver{err: schedule.ErrNoMatch},
			catalog: &fakeCatalog{
				pools: map[string][]models.MediaItem{models.TagSafeFallback: fallback},
			},
		},
		{
			name:     "empty playlist",
			resolver: &fakeResolver{playlistID: "pl-empty"},
			catalog: &fakeCatalog{
				playlists: map[string][]models.MediaItem{},
				pools:     map[string][]models.MediaItem{models.TagSafeFallback: fallback},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			channel := testChannel()
			db := setupBuilderDB(t, channel)
			builder := NewBuilder(db, tt.resolver, tt.catalog, 4, zerolog.Nop())

			m, err := builder.Generate(context.Background(), channel.ID, time.Now())
			if err != nil {
				t.Fatalf("generate: %v", err)
			}
			if len(m.Queue) != 4 {
				t.Fatalf("queue length = %d, want 4", len(m.Queue))
			}
			for _, entry := range m.Queue {
				if entry.MediaFileID != "safe-1" && entry.MediaFileID != "safe-2" {
					t.Errorf("queue entry %q not from fallback pool", entry.MediaFileID)
				}
			}
		})
	}
}

func TestGenerateNoContentAnywhere(t *testing.T) {
	channel := testChannel()
	db := setupBuilderDB(t, channel)
	builder := NewBuilder(db, &fakeResolver{err: schedule.ErrNoMatch}, &fakeCatalog{}, 4, zerolog.Nop())

	_, err := builder.Generate(context.Background(), channel.ID, time.Now())
	if !errors.Is(err, ErrNoContent) {
		t.Fatalf("err = %v, want ErrNoContent", err)
	}
}

func TestGenerateStoreFailurePropagates(t *testing.T) {
	channel := testChannel()
	db := setupBuilderDB(t, channel)
	storeErr := errors.New("connection refused")
	builder := NewBuilder(db, &fakeResolver{err: storeErr}, &fakeCatalog{}, 4, zerolog.Nop())

	_, err := builder.Generate(context.Background(), channel.ID, time.Now())
	if !errors.Is(err, storeErr) {
		t.Fatalf("err = %v, want wrapped store error", err)
	}
	if errors.Is(err, ErrNoContent) {
		t.Fatal("store failure must not be reported as missing content")
	}
}

func TestGenerateUnknownChannel(t *testing.T) {
	db := setupBuilderDB(t, testChannel())
	builder := NewBuilder(db, &fakeResolver{playlistID: "pl"}, &fakeCatalog{}, 4, zerolog.Nop())

	_, err := builder.Generate(context.Background(), uuid.NewString(), time.Now())
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("err = %v, want record not found", err)
	}
}

func TestGenerateAppliesStationDefaults(t *testing.T) {
	channel := &models.Channel{ID: uuid.NewString(), Status: models.ChannelOnline}
	db := setupBuilderDB(t, channel)

	catalog := &fakeCatalog{
		playlists: map[string][]models.MediaItem{"pl": musicItems(2)},
	}
	builder := NewBuilder(db, &fakeResolver{playlistID: "pl"}, catalog, 4, zerolog.Nop())
	builder.SetDefaultConfig(Config{Crossfade: 5, NormalizationLUFS: -16})

	m, err := builder.Generate(context.Background(), channel.ID, time.Now())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if m.Config.Crossfade != 5 || m.Config.NormalizationLUFS != -16 {
		t.Errorf("config = %+v, want station defaults for an unconfigured channel", m.Config)
	}

	// A channel with its own settings keeps them.
	configured := testChannel()
	if err := db.Create(configured).Error; err != nil {
		t.Fatalf("create channel: %v", err)
	}
	m, err = builder.Generate(context.Background(), configured.ID, time.Now())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if m.Config.Crossfade != 3 || m.Config.NormalizationLUFS != -14 {
		t.Errorf("config = %+v, want the channel's own settings", m.Config)
	}
}
