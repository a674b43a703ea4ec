package model

//
// episodes.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

import (
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/kabes/go-cast/internal/aerr"
	"gitlab.com/kabes/go-cast/internal/validators"
)

const (
	// EffectivelyCompletedRemaining is the remaining time under which an episode
	// counts as finished for cleanup ranking.
	EffectivelyCompletedRemaining = 120.0
	// EffectivelyCompletedFraction of total duration after which an episode
	// counts as finished for cleanup ranking.
	EffectivelyCompletedFraction = 0.95
)

type Episode struct {
	ID        int64
	PodcastID int64

	GUID        string
	Title       string
	Description string
	AudioURL    string
	ArtworkURL  string
	// Duration in seconds; 0 when the feed did not provide one.
	Duration  float64
	Published time.Time

	IsPlayed  bool
	IsStarred bool
	// Position is the saved playback position in seconds.
	Position float64

	// LocalFile is a bare filename relative to the media directory;
	// empty when the episode is not downloaded.
	LocalFile string
	// DownloadProgress is 0..1 while a transfer is tracked; nil otherwise.
	DownloadProgress *float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (e *Episode) Validate() error {
	if e.GUID == "" {
		return aerr.ErrValidation.WithUserMsg("invalid (empty) episode guid")
	}

	if validators.SanitizeURL(e.AudioURL) == "" {
		return aerr.ErrValidation.WithUserMsg("invalid episode audio url").WithMeta("url", e.AudioURL)
	}

	return nil
}

func (e *Episode) IsDownloaded() bool {
	return e.LocalFile != ""
}

// Remaining seconds of playback; 0 when duration is unknown.
func (e *Episode) Remaining() float64 {
	if e.Duration <= 0 {
		return 0
	}

	if e.Position >= e.Duration {
		return 0
	}

	return e.Duration - e.Position
}

// EffectivelyCompleted report whether the episode counts as finished even when
// not formally marked played: near the end by time or by fraction of duration.
func (e *Episode) EffectivelyCompleted() bool {
	if e.IsPlayed {
		return true
	}

	if e.Duration <= 0 {
		return false
	}

	if e.Duration-e.Position <= EffectivelyCompletedRemaining {
		return true
	}

	return e.Position >= EffectivelyCompletedFraction*e.Duration
}

func (e *Episode) MarshalZerologObject(event *zerolog.Event) {
	event.Int64("id", e.ID).
		Int64("podcast_id", e.PodcastID).
		Str("guid", e.GUID).
		Str("title", e.Title).
		Str("audio_url", e.AudioURL).
		Float64("duration", e.Duration).
		Time("published", e.Published).
		Bool("played", e.IsPlayed).
		Bool("starred", e.IsStarred).
		Float64("position", e.Position).
		Str("local_file", e.LocalFile).
		Any("download_progress", e.DownloadProgress)
}

// ------------------------------------------------------

type Episodes []Episode

func (e Episodes) ToGUIDMap() map[string]*Episode {
	res := make(map[string]*Episode, len(e))

	for i := range e {
		res[e[i].GUID] = &e[i]
	}

	return res
}
