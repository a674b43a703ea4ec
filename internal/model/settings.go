package model

//
// settings.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

import (
	"github.com/rs/zerolog"
	"gitlab.com/kabes/go-cast/internal/aerr"
)

// DownloadPolicy gate downloads on the current connection type.
type DownloadPolicy string

const (
	PolicyWifiOnly      = DownloadPolicy("wifi_only")
	PolicyAskOnCellular = DownloadPolicy("ask_on_cellular")
	PolicyAlways        = DownloadPolicy("always")
)

func (p DownloadPolicy) Valid() bool {
	switch p {
	case PolicyWifiOnly, PolicyAskOnCellular, PolicyAlways:
		return true
	default:
		return false
	}
}

// Settings is the global download/storage/playback policy, stored as
// key-value rows in the settings table.
type Settings struct {
	// StorageLimitBytes cap total downloaded bytes; 0 = unlimited.
	StorageLimitBytes int64
	// KeepLatestPerPodcast cap downloads kept per podcast; 0 = unlimited.
	KeepLatestPerPodcast int

	ManualDownloadPolicy DownloadPolicy
	AutoDownloadPolicy   DownloadPolicy

	PlaybackSpeed   float64
	SkipForwardSec  int
	SkipBackwardSec int
}

// DefaultSettings used for empty databases and missing keys.
func DefaultSettings() Settings {
	return Settings{
		StorageLimitBytes:    0,
		KeepLatestPerPodcast: 0,
		ManualDownloadPolicy: PolicyAlways,
		AutoDownloadPolicy:   PolicyWifiOnly,
		PlaybackSpeed:        1.0,
		SkipForwardSec:       30,
		SkipBackwardSec:      15,
	}
}

func (s *Settings) Validate() error {
	if s.StorageLimitBytes < 0 {
		return aerr.ErrValidation.WithUserMsg("storage limit must be >= 0")
	}

	if s.KeepLatestPerPodcast < 0 {
		return aerr.ErrValidation.WithUserMsg("keep-latest limit must be >= 0")
	}

	if !s.ManualDownloadPolicy.Valid() || !s.AutoDownloadPolicy.Valid() {
		return aerr.ErrValidation.WithUserMsg("invalid download policy")
	}

	if s.PlaybackSpeed <= 0 || s.PlaybackSpeed > 4 {
		return aerr.ErrValidation.WithUserMsg("invalid playback speed")
	}

	// configured skip intervals of zero are disallowed
	if s.SkipForwardSec <= 0 || s.SkipBackwardSec <= 0 {
		return aerr.ErrValidation.WithUserMsg("skip intervals must be > 0")
	}

	return nil
}

func (s *Settings) MarshalZerologObject(event *zerolog.Event) {
	event.Int64("storage_limit_bytes", s.StorageLimitBytes).
		Int("keep_latest_per_podcast", s.KeepLatestPerPodcast).
		Str("manual_download_policy", string(s.ManualDownloadPolicy)).
		Str("auto_download_policy", string(s.AutoDownloadPolicy)).
		Float64("playback_speed", s.PlaybackSpeed).
		Int("skip_forward_s", s.SkipForwardSec).
		Int("skip_backward_s", s.SkipBackwardSec)
}
