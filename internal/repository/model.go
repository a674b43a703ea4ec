// model.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
package repository

import (
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/kabes/go-cast/internal/model"
)

type EpisodeDB struct {
	ID               int64      `db:"id"`
	PodcastID        int64      `db:"podcast_id"`
	GUID             string     `db:"guid"`
	Title            string     `db:"title"`
	Description      string     `db:"description"`
	AudioURL         string     `db:"audio_url"`
	ArtworkURL       string     `db:"artwork_url"`
	Duration         float64    `db:"duration"`
	Published        *time.Time `db:"published"`
	IsPlayed         bool       `db:"is_played"`
	IsStarred        bool       `db:"is_starred"`
	Position         float64    `db:"position"`
	LocalFile        string     `db:"local_file"`
	DownloadProgress *float64   `db:"download_progress"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

func NewEpisodeDB(e *model.Episode) EpisodeDB {
	var published *time.Time
	if !e.Published.IsZero() {
		published = &e.Published
	}

	return EpisodeDB{
		ID:               e.ID,
		PodcastID:        e.PodcastID,
		GUID:             e.GUID,
		Title:            e.Title,
		Description:      e.Description,
		AudioURL:         e.AudioURL,
		ArtworkURL:       e.ArtworkURL,
		Duration:         e.Duration,
		Published:        published,
		IsPlayed:         e.IsPlayed,
		IsStarred:        e.IsStarred,
		Position:         e.Position,
		LocalFile:        e.LocalFile,
		DownloadProgress: e.DownloadProgress,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
}

func (e *EpisodeDB) ToModel() model.Episode {
	var published time.Time
	if e.Published != nil {
		published = *e.Published
	}

	return model.Episode{
		ID:               e.ID,
		PodcastID:        e.PodcastID,
		GUID:             e.GUID,
		Title:            e.Title,
		Description:      e.Description,
		AudioURL:         e.AudioURL,
		ArtworkURL:       e.ArtworkURL,
		Duration:         e.Duration,
		Published:        published,
		IsPlayed:         e.IsPlayed,
		IsStarred:        e.IsStarred,
		Position:         e.Position,
		LocalFile:        e.LocalFile,
		DownloadProgress: e.DownloadProgress,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
}

func (e EpisodeDB) MarshalZerologObject(event *zerolog.Event) {
	event.Int64("id", e.ID).
		Int64("podcast_id", e.PodcastID).
		Str("guid", e.GUID).
		Str("title", e.Title).
		Str("local_file", e.LocalFile).
		Any("download_progress", e.DownloadProgress)
}

//------------------------------------------------------------------------------

type PodcastDB struct {
	ID            int64      `db:"id"`
	FeedURL       string     `db:"feed_url"`
	Title         string     `db:"title"`
	Description   string     `db:"description"`
	ArtworkURL    string     `db:"artwork_url"`
	Author        string     `db:"author"`
	SpeedOverride *float64   `db:"speed_override"`
	AutoDownload  bool       `db:"auto_download"`
	LastRefreshed *time.Time `db:"last_refreshed"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

func NewPodcastDB(p *model.Podcast) PodcastDB {
	var lastRefreshed *time.Time
	if !p.LastRefreshed.IsZero() {
		lastRefreshed = &p.LastRefreshed
	}

	return PodcastDB{
		ID:            p.ID,
		FeedURL:       p.FeedURL,
		Title:         p.Title,
		Description:   p.Description,
		ArtworkURL:    p.ArtworkURL,
		Author:        p.Author,
		SpeedOverride: p.SpeedOverride,
		AutoDownload:  p.AutoDownload,
		LastRefreshed: lastRefreshed,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func (p *PodcastDB) ToModel() model.Podcast {
	var lastRefreshed time.Time
	if p.LastRefreshed != nil {
		lastRefreshed = *p.LastRefreshed
	}

	return model.Podcast{
		ID:            p.ID,
		FeedURL:       p.FeedURL,
		Title:         p.Title,
		Description:   p.Description,
		ArtworkURL:    p.ArtworkURL,
		Author:        p.Author,
		SpeedOverride: p.SpeedOverride,
		AutoDownload:  p.AutoDownload,
		LastRefreshed: lastRefreshed,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func (p PodcastDB) MarshalZerologObject(event *zerolog.Event) {
	event.Int64("id", p.ID).
		Str("feed_url", p.FeedURL).
		Str("title", p.Title).
		Bool("auto_download", p.AutoDownload)
}

type PodcastsDB []PodcastDB

func (p PodcastsDB) ToIDsMap() map[string]int64 {
	res := make(map[string]int64, len(p))

	for _, pod := range p {
		res[pod.FeedURL] = pod.ID
	}

	return res
}

//------------------------------------------------------------------------------

type QueueItemDB struct {
	ID        int64     `db:"id"`
	EpisodeID int64     `db:"episode_id"`
	SortOrder int64     `db:"sort_order"`
	CreatedAt time.Time `db:"created_at"`

	Episode EpisodeDB `db:"episode"`
}

func (q *QueueItemDB) ToModel() model.QueueItem {
	return model.QueueItem{
		ID:        q.ID,
		EpisodeID: q.EpisodeID,
		SortOrder: q.SortOrder,
		CreatedAt: q.CreatedAt,
		Episode:   q.Episode.ToModel(),
	}
}

//------------------------------------------------------------------------------

type ListeningSessionDB struct {
	ID          string     `db:"id"`
	EpisodeGUID string     `db:"episode_guid"`
	StartedAt   time.Time  `db:"started_at"`
	EndedAt     *time.Time `db:"ended_at"`
	ListenedSec float64    `db:"listened_sec"`
}
