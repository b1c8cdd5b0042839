/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playback is the edge side of the system: it consumes manifests,
// pre-fetches assets into a local cache and advances through the queue with
// zero tolerance for silence, even when the network or storage is degraded.
package playback

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/chorus/internal/manifest"
)

// Fetcher retrieves asset bytes by URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// HTTPFetcher fetches assets over plain HTTP GET.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a fetcher with a bounded per-asset timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch streams the asset body. Non-200 responses are errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch asset: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch asset: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// cachedAsset tracks the identity of a stored asset so version bumps trigger
// a refetch.
type cachedAsset struct {
	hash    string
	version int
}

// EdgeCache is a content-addressed local asset store. Presence lookups are
// synchronous and never touch the disk or the network; only the preload path
// does I/O.
type EdgeCache struct {
	dir     string
	fetcher Fetcher
	logger  zerolog.Logger

	mu      sync.RWMutex
	present map[string]cachedAsset
}

// NewEdgeCache creates the cache rooted at dir.
func NewEdgeCache(dir string, fetcher Fetcher, logger zerolog.Logger) (*EdgeCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &EdgeCache{
		dir:     dir,
		fetcher: fetcher,
		logger:  logger.With().Str("component", "edge_cache").Logger(),
		present: make(map[string]cachedAsset),
	}, nil
}

// Has reports whether the asset is locally available. This is the only cache
// operation the playback queue scan consults.
func (c *EdgeCache) Has(assetID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.present[assetID]
	return ok
}

// Path returns the local file path of a cached asset.
func (c *EdgeCache) Path(assetID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.present[assetID]; !ok {
		return "", false
	}
	return c.assetPath(assetID), true
}

// Preload fetches every manifest file not already cached at the right
// version. Fetch failures are cache misses, not errors: the engine keeps
// playing via direct streaming and the next preload retries.
func (c *EdgeCache) Preload(ctx context.Context, files []manifest.File) {
	for _, file := range files {
		if ctx.Err() != nil {
			return
		}
		if c.fresh(file) {
			continue
		}
		if err := c.fetchOne(ctx, file); err != nil {
			c.logger.Warn().Err(err).Str("asset_id", file.ID).Msg("asset preload failed, will stream directly")
		}
	}
}

func (c *EdgeCache) fresh(file manifest.File) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	got, ok := c.present[file.ID]
	return ok && got.version == file.Version && got.hash == file.Hash
}

func (c *EdgeCache) fetchOne(ctx context.Context, file manifest.File) error {
	if file.URL == "" {
		return fmt.Errorf("asset %s has no url", file.ID)
	}

	body, err := c.fetcher.Fetch(ctx, file.URL)
	if err != nil {
		return err
	}
	defer body.Close()

	path := c.assetPath(file.ID)
	tmp := path + ".part"
	dest, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create cache file: %w", err)
	}

	if _, err := io.Copy(dest, body); err != nil {
		dest.Close()
		os.Remove(tmp)
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := dest.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit cache file: %w", err)
	}

	c.mu.Lock()
	c.present[file.ID] = cachedAsset{hash: file.Hash, version: file.Version}
	c.mu.Unlock()

	c.logger.Debug().Str("asset_id", file.ID).Int("version", file.Version).Msg("asset cached")
	return nil
}

// Evict removes an asset, used when a manifest ships a new version.
func (c *EdgeCache) Evict(assetID string) {
	c.mu.Lock()
	delete(c.present, assetID)
	c.mu.Unlock()
	os.Remove(c.assetPath(assetID))
}

// Size returns the number of cached assets.
func (c *EdgeCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.present)
}

func (c *EdgeCache) assetPath(assetID string) string {
	return filepath.Join(c.dir, assetID+".asset")
}
