/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	BaseURL     string // Public base URL (e.g., http://radio.example.com:8080)
	DBBackend   DatabaseBackend
	DBDSN       string
	MediaRoot   string
	MetricsBind string
	InstanceID  string

	// Manifest generation
	QueueLength     int           // projection slots per manifest window
	ManifestWindow  time.Duration // synchronization window, hour floor by default
	PlaybackDefault string        // optional YAML file with playback defaults

	// Transcode worker pool
	TranscodeWorkers      int
	TranscodePollInterval time.Duration

	// Redis manifest cache
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// NATS event bridge (optional)
	NATSURL string

	// S3 object storage
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	S3PublicBaseURL   string // Optional CDN/CloudFront URL
	S3UsePathStyle    bool   // Required for MinIO

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Edge playback (used by the `edge` command)
	EdgeCacheDir     string
	EdgeServerURL    string
	EdgeChannelID    string
	EdgeHealInterval time.Duration
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("CHORUS_ENV", "development"),
		HTTPBind:    getEnv("CHORUS_HTTP_BIND", "0.0.0.0"),
		HTTPPort:    getEnvInt("CHORUS_HTTP_PORT", 8080),
		BaseURL:     getEnv("CHORUS_BASE_URL", ""),
		DBBackend:   DatabaseBackend(getEnv("CHORUS_DB_BACKEND", string(DatabasePostgres))),
		DBDSN:       getEnv("CHORUS_DB_DSN", ""),
		MediaRoot:   getEnv("CHORUS_MEDIA_ROOT", "./media"),
		MetricsBind: getEnv("CHORUS_METRICS_BIND", "127.0.0.1:9000"),
		InstanceID:  getEnv("CHORUS_INSTANCE_ID", ""),

		QueueLength:     getEnvInt("CHORUS_QUEUE_LENGTH", 30),
		ManifestWindow:  time.Duration(getEnvInt("CHORUS_MANIFEST_WINDOW_MINUTES", 60)) * time.Minute,
		PlaybackDefault: getEnv("CHORUS_PLAYBACK_DEFAULTS", ""),

		TranscodeWorkers:      getEnvInt("CHORUS_TRANSCODE_WORKERS", 2),
		TranscodePollInterval: time.Duration(getEnvInt("CHORUS_TRANSCODE_POLL_SECONDS", 5)) * time.Second,

		RedisAddr:     getEnv("CHORUS_REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("CHORUS_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("CHORUS_REDIS_DB", 0),

		NATSURL: getEnv("CHORUS_NATS_URL", ""),

		S3AccessKeyID:     getEnvAny([]string{"CHORUS_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"CHORUS_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"CHORUS_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"CHORUS_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Endpoint:        getEnvAny([]string{"CHORUS_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3PublicBaseURL:   getEnvAny([]string{"CHORUS_S3_PUBLIC_BASE_URL", "S3_PUBLIC_BASE_URL"}, ""),
		S3UsePathStyle:    getEnvBool("CHORUS_S3_USE_PATH_STYLE", false),

		TracingEnabled:    getEnvBool("CHORUS_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("CHORUS_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("CHORUS_TRACING_SAMPLE_RATE", 1.0),

		EdgeCacheDir:     getEnv("CHORUS_EDGE_CACHE_DIR", "./edge-cache"),
		EdgeServerURL:    getEnv("CHORUS_EDGE_SERVER_URL", "http://localhost:8080"),
		EdgeChannelID:    getEnv("CHORUS_EDGE_CHANNEL_ID", ""),
		EdgeHealInterval: time.Duration(getEnvInt("CHORUS_EDGE_HEAL_SECONDS", 5)) * time.Second,
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.QueueLength <= 0 {
		return nil, fmt.Errorf("CHORUS_QUEUE_LENGTH must be positive, got %d", cfg.QueueLength)
	}

	if cfg.ManifestWindow <= 0 {
		return nil, fmt.Errorf("CHORUS_MANIFEST_WINDOW_MINUTES must be positive")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "true" || v == "1" || v == "yes" {
			return true
		}
		if v == "false" || v == "0" || v == "no" {
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}
