/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based caching layer for generated manifests
// and channel records. Manifests are pure functions of (channel state,
// floored window start), so caching them is safe: concurrent requests for the
// same window observe byte-identical payloads.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Default TTL values for different cache types
const (
	DefaultManifestTTL = 1 * time.Hour
	DefaultChannelTTL  = 5 * time.Minute
)

// Key prefixes for Redis cache
const (
	KeyManifest = "chorus:cache:manifest:" // + channel_id:window_epoch
	KeyChannel  = "chorus:cache:channel:"  // + channel_id
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ManifestTTL time.Duration
	ChannelTTL  time.Duration

	// Fallback behavior
	DisableOnError bool // If true, disable caching on Redis errors
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		ManifestTTL:    DefaultManifestTTL,
		ChannelTTL:     DefaultChannelTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool // Circuit breaker state
}

// New creates a new cache instance. A missing Redis is not fatal: the cache
// starts disabled and every lookup is a miss.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		return &Cache{
			logger:   logger.With().Str("component", "cache").Logger(),
			config:   cfg,
			disabled: true,
		}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")

	return &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
	}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// handleError handles Redis errors with circuit breaker logic.
func (c *Cache) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

func (c *Cache) getRaw(ctx context.Context, key string) ([]byte, bool) {
	if !c.IsAvailable() {
		return nil, false
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.handleError(err, "get")
		return nil, false
	}

	return data, true
}

func (c *Cache) setRaw(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}

	return nil
}

func (c *Cache) delete(ctx context.Context, key string) error {
	if !c.IsAvailable() {
		return nil
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}

	return nil
}

// Manifest caching methods

func manifestKey(channelID string, windowStart time.Time) string {
	return fmt.Sprintf("%s%s:%d", KeyManifest, channelID, windowStart.Unix())
}

// GetManifest retrieves a cached manifest payload for a channel window.
func (c *Cache) GetManifest(ctx context.Context, channelID string, windowStart time.Time) ([]byte, bool) {
	data, found := c.getRaw(ctx, manifestKey(channelID, windowStart))
	if found {
		c.logger.Debug().Str("channel_id", channelID).Msg("manifest cache hit")
	}
	return data, found
}

// SetManifest caches a manifest payload until the window rolls over.
func (c *Cache) SetManifest(ctx context.Context, channelID string, windowStart time.Time, data []byte) error {
	ttl := c.config.ManifestTTL
	if ttl <= 0 {
		ttl = DefaultManifestTTL
	}
	return c.setRaw(ctx, manifestKey(channelID, windowStart), data, ttl)
}

// InvalidateManifests removes cached manifests for a channel window. Called
// when schedule rules or playlists change mid-window.
func (c *Cache) InvalidateManifests(ctx context.Context, channelID string, windowStart time.Time) error {
	c.logger.Debug().Str("channel_id", channelID).Msg("invalidating manifest cache")
	return c.delete(ctx, manifestKey(channelID, windowStart))
}

// Channel caching methods

// CachedChannel represents a cached channel record.
type CachedChannel struct {
	ID                string  `json:"id"`
	TenantID          string  `json:"tenant_id"`
	Name              string  `json:"name"`
	Status            string  `json:"status"`
	Bitrate           int     `json:"bitrate"`
	CrossfadeSeconds  int     `json:"crossfade_seconds"`
	NormalizationLUFS float64 `json:"normalization_lufs"`
	OfflineMode       bool    `json:"offline_mode"`
}

// GetChannel retrieves a cached channel by ID.
func (c *Cache) GetChannel(ctx context.Context, channelID string) (*CachedChannel, bool) {
	data, found := c.getRaw(ctx, KeyChannel+channelID)
	if !found {
		return nil, false
	}

	var channel CachedChannel
	if err := json.Unmarshal(data, &channel); err != nil {
		c.logger.Debug().Err(err).Str("channel_id", channelID).Msg("failed to unmarshal cached channel")
		return nil, false
	}

	c.logger.Debug().Str("channel_id", channelID).Msg("channel cache hit")
	return &channel, true
}

// SetChannel caches a channel record.
func (c *Cache) SetChannel(ctx context.Context, channel *CachedChannel) error {
	data, err := json.Marshal(channel)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	ttl := c.config.ChannelTTL
	if ttl <= 0 {
		ttl = DefaultChannelTTL
	}
	return c.setRaw(ctx, KeyChannel+channel.ID, data, ttl)
}

// InvalidateChannel removes a channel from cache.
func (c *Cache) InvalidateChannel(ctx context.Context, channelID string) error {
	c.logger.Debug().Str("channel_id", channelID).Msg("invalidating channel cache")
	return c.delete(ctx, KeyChannel+channelID)
}
