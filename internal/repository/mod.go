//
// mod.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

var ErrNoData = errors.New("no result")

// DBContext is the database access object handed to repositories by the
// db layer; satisfied by *sqlx.Conn and *sqlx.Tx.
type DBContext interface {
	sqlx.QueryerContext
	sqlx.ExecerContext

	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

// ------------------------------------------------------

type EpisodesRepository interface {
	// GetEpisode by guid.
	GetEpisode(ctx context.Context, db DBContext, guid string) (*EpisodeDB, error)
	ListEpisodes(ctx context.Context, db DBContext, podcastid int64) ([]EpisodeDB, error)
	// ListDownloadedEpisodes return episodes with a recorded local file.
	// When podcastid > 0 limit to one podcast.
	ListDownloadedEpisodes(ctx context.Context, db DBContext, podcastid int64) ([]EpisodeDB, error)
	// ListDownloadedPlayedEpisodes return episodes both downloaded and played.
	ListDownloadedPlayedEpisodes(ctx context.Context, db DBContext) ([]EpisodeDB, error)
	// ListEpisodesWithProgress return episodes with a non-null download
	// progress; used by the launch-time orphan repair.
	ListEpisodesWithProgress(ctx context.Context, db DBContext) ([]EpisodeDB, error)
	SaveEpisode(ctx context.Context, db DBContext, episode ...EpisodeDB) error
	// UpdateDownloadState set local file and progress for guid.
	UpdateDownloadState(ctx context.Context, db DBContext, guid, localfile string, progress *float64) error
	UpdatePlaybackState(ctx context.Context, db DBContext, guid string, position float64, played bool) error
	UpdateStarred(ctx context.Context, db DBContext, guid string, starred bool) error
}

type PodcastsRepository interface {
	GetPodcast(ctx context.Context, db DBContext, feedurl string) (*PodcastDB, error)
	GetPodcastByID(ctx context.Context, db DBContext, podcastid int64) (*PodcastDB, error)
	ListPodcasts(ctx context.Context, db DBContext) (PodcastsDB, error)
	SavePodcast(ctx context.Context, db DBContext, podcast *PodcastDB) (int64, error)
	// DeletePodcast remove podcast, its episodes and queue entries (cascade).
	DeletePodcast(ctx context.Context, db DBContext, podcastid int64) error
}

type QueueRepository interface {
	// ListQueue return queue items joined with episodes, ordered by sort_order.
	ListQueue(ctx context.Context, db DBContext) ([]QueueItemDB, error)
	GetMaxSortOrder(ctx context.Context, db DBContext) (int64, error)
	InsertItem(ctx context.Context, db DBContext, episodeid, sortorder int64) error
	DeleteItemByEpisode(ctx context.Context, db DBContext, episodeid int64) error
	// ShiftSortOrders add delta to every item's sort order.
	ShiftSortOrders(ctx context.Context, db DBContext, delta int64) error
	UpdateSortOrder(ctx context.Context, db DBContext, itemid, sortorder int64) error
	DeleteAll(ctx context.Context, db DBContext) error
}

type SettingsRepository interface {
	ListSettings(ctx context.Context, db DBContext) (map[string]string, error)
	SaveSetting(ctx context.Context, db DBContext, key, value string) error
}

type ListeningRepository interface {
	InsertSession(ctx context.Context, db DBContext, session *ListeningSessionDB) error
	CloseSession(ctx context.Context, db DBContext, id string, endedat time.Time, listenedsec float64) error
	// SumListened return total listened seconds for sessions started after `since`.
	SumListened(ctx context.Context, db DBContext, since time.Time) (float64, error)
}

type MaintenanceRepository interface {
	Maintenance(ctx context.Context, db DBContext) error
}
