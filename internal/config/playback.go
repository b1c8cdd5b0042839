/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PlaybackDefaults carries station-wide playback parameters applied to
// channels that have not overridden them.
type PlaybackDefaults struct {
	CrossfadeSeconds  int     `yaml:"crossfade_seconds"`
	NormalizationLUFS float64 `yaml:"normalization_lufs"`
	OfflineMode       bool    `yaml:"offline_mode"`
}

// DefaultPlayback returns the built-in playback parameters.
func DefaultPlayback() PlaybackDefaults {
	return PlaybackDefaults{
		CrossfadeSeconds:  3,
		NormalizationLUFS: -14,
	}
}

// LoadPlaybackDefaults reads a YAML defaults file. An empty path returns the
// built-in defaults.
func LoadPlaybackDefaults(path string) (PlaybackDefaults, error) {
	defaults := DefaultPlayback()
	if path == "" {
		return defaults, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return defaults, fmt.Errorf("read playback defaults: %w", err)
	}

	if err := yaml.Unmarshal(data, &defaults); err != nil {
		return defaults, fmt.Errorf("parse playback defaults: %w", err)
	}

	return defaults, nil
}
