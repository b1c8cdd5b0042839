/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// APIRequestsTotal counts HTTP requests by method, endpoint and status.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chorus_api_requests_total",
		Help: "Total HTTP requests served",
	}, []string{"method", "endpoint", "status"})

	// APIRequestDuration observes HTTP request latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chorus_api_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	// APIActiveConnections gauges in-flight HTTP requests.
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chorus_api_active_connections",
		Help: "In-flight HTTP requests",
	})

	// ManifestBuildDuration observes manifest generation time per channel.
	ManifestBuildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chorus_manifest_build_duration_seconds",
		Help:    "Manifest generation latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"channel_id"})

	// ManifestFallbackTotal counts manifests that had to use the safety pool.
	ManifestFallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chorus_manifest_fallback_total",
		Help: "Manifests generated from the safety fallback pool",
	}, []string{"channel_id"})

	// ResolverErrorsTotal counts schedule resolution store failures.
	ResolverErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chorus_resolver_errors_total",
		Help: "Schedule resolution failures by channel",
	}, []string{"channel_id"})

	// TranscodeJobsTotal counts transcode jobs by terminal status.
	TranscodeJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chorus_transcode_jobs_total",
		Help: "Transcode jobs completed, by status",
	}, []string{"status"})

	// EdgeCacheHitsTotal counts playback queue scans served from cache.
	EdgeCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chorus_edge_cache_hits_total",
		Help: "Next-track selections served from the edge cache",
	})

	// EdgeCacheMissesTotal counts degraded (direct stream) selections.
	EdgeCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chorus_edge_cache_misses_total",
		Help: "Next-track selections that fell back to direct streaming",
	})

	// PlaybackHealsTotal counts forced queue advances from silence detection.
	PlaybackHealsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chorus_playback_heals_total",
		Help: "Forced queue advances triggered by the auto-heal check",
	})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
