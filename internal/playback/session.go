/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/chorus/internal/manifest"
)

// idleRetry is how long the session waits before re-requesting a manifest
// after an empty queue or a fetch failure.
const idleRetry = 5 * time.Second

// Session ties a channel subscription, the edge cache and the playback
// engine together for the lifetime of one listening session.
type Session struct {
	serverURL    string
	channelID    string
	engine       *Engine
	client       *http.Client
	healInterval time.Duration
	logger       zerolog.Logger
}

// NewSession creates a playback session against a manifest server.
func NewSession(serverURL, channelID string, engine *Engine, healInterval time.Duration, logger zerolog.Logger) *Session {
	if healInterval <= 0 {
		healInterval = 5 * time.Second
	}
	return &Session{
		serverURL:    serverURL,
		channelID:    channelID,
		engine:       engine,
		client:       &http.Client{Timeout: 15 * time.Second},
		healInterval: healInterval,
		logger:       logger.With().Str("component", "playback_session").Str("channel_id", channelID).Logger(),
	}
}

// Run drives playback until the context is canceled. The auto-heal watcher
// runs alongside and shares the session lifetime, so ending the session
// stops both the timer and any in-flight preloads.
func (s *Session) Run(ctx context.Context) error {
	go s.engine.RunAutoHeal(ctx, s.healInterval, func(entry manifest.QueueEntry) {
		s.logger.Info().Str("media_id", entry.MediaFileID).Str("title", entry.Title).Msg("auto-heal advanced to track")
	})

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if s.engine.QueueLen() == 0 {
			if err := s.refresh(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("manifest refresh failed, retrying")
				if !sleep(ctx, idleRetry) {
					return ctx.Err()
				}
				continue
			}
		}

		entry, ok := s.engine.NextTrack()
		if !ok {
			if !sleep(ctx, idleRetry) {
				return ctx.Err()
			}
			continue
		}

		s.logger.Info().
			Str("media_id", entry.MediaFileID).
			Str("title", entry.Title).
			Str("type", string(entry.Type)).
			Str("state", string(s.engine.State())).
			Msg("now playing")

		seconds := entry.Duration
		if seconds <= 0 {
			seconds = defaultTrackSeconds
		}
		if !sleep(ctx, time.Duration(seconds)*time.Second) {
			return ctx.Err()
		}
	}
}

// refresh fetches the channel's current manifest and syncs the engine.
func (s *Session) refresh(ctx context.Context) error {
	url := fmt.Sprintf("%s/v1/channels/%s/manifest", s.serverURL, s.channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build manifest request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch manifest: unexpected status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	s.engine.SyncPayload(ctx, raw)
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
