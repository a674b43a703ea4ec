package model

//
// podcasts.go
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

type Podcast struct {
	ID int64

	FeedURL     string
	Title       string
	Description string
	ArtworkURL  string
	Author      string

	// SpeedOverride replace the global playback speed for this podcast
	// when set.
	SpeedOverride *float64
	// AutoDownload new episodes found on refresh.
	AutoDownload bool

	LastRefreshed time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p *Podcast) Validate() error {
	if validators.SanitizeURL(p.FeedURL) == "" {
		return aerr.ErrValidation.WithUserMsg("invalid podcast feed url").WithMeta("url", p.FeedURL)
	}

	if p.SpeedOverride != nil && (*p.SpeedOverride <= 0 || *p.SpeedOverride > 4) {
		return aerr.ErrValidation.WithUserMsg("invalid playback speed override").
			WithMeta("speed", *p.SpeedOverride)
	}

	return nil
}

// EffectiveSpeed return the per-podcast override when set, else globalSpeed.
func (p *Podcast) EffectiveSpeed(globalSpeed float64) float64 {
	if p.SpeedOverride != nil && *p.SpeedOverride > 0 {
		return *p.SpeedOverride
	}

	return globalSpeed
}

func (p *Podcast) MarshalZerologObject(event *zerolog.Event) {
	event.Int64("id", p.ID).
		Str("feed_url", p.FeedURL).
		Str("title", p.Title).
		Bool("auto_download", p.AutoDownload).
		Any("speed_override", p.SpeedOverride)
}

// ------------------------------------------------------

type Podcasts []Podcast

func (p Podcasts) ToIDsMap() map[string]int64 {
	res := make(map[string]int64, len(p))

	for _, pod := range p {
		res[pod.FeedURL] = pod.ID
	}

	return res
}
