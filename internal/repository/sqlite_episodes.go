package repository

//
// sqlite_episodes.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

const episodeColumns = "id, podcast_id, guid, title, description, audio_url, artwork_url, " +
	"duration, published, is_played, is_starred, position, local_file, download_progress, " +
	"created_at, updated_at"

func (s sqliteRepository) GetEpisode(ctx context.Context, db DBContext, guid string) (*EpisodeDB, error) {
	episode := &EpisodeDB{}

	err := db.GetContext(ctx, episode,
		"SELECT "+episodeColumns+" FROM episodes WHERE guid=?", guid)

	switch {
	case err == nil:
		return episode, nil
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNoData
	default:
		return nil, fmt.Errorf("query episode error: %w", err)
	}
}

func (s sqliteRepository) ListEpisodes(ctx context.Context, db DBContext, podcastid int64,
) ([]EpisodeDB, error) {
	log.Ctx(ctx).Debug().Int64("podcast_id", podcastid).Msg("list episodes")

	res := []EpisodeDB{}

	err := db.SelectContext(ctx, &res,
		"SELECT "+episodeColumns+" FROM episodes WHERE podcast_id=? "+
			"ORDER BY published DESC, id DESC", podcastid)
	if err != nil {
		return nil, fmt.Errorf("query episodes error: %w", err)
	}

	return res, nil
}

func (s sqliteRepository) ListDownloadedEpisodes(ctx context.Context, db DBContext, podcastid int64,
) ([]EpisodeDB, error) {
	query := "SELECT " + episodeColumns + " FROM episodes WHERE local_file != ''"
	args := []any{}

	if podcastid > 0 {
		query += " AND podcast_id=?"
		args = append(args, podcastid) //nolint:wsl_v5
	}

	// missing published dates sort as oldest
	query += " ORDER BY published IS NOT NULL, published, id"

	res := []EpisodeDB{}

	if err := db.SelectContext(ctx, &res, query, args...); err != nil {
		return nil, fmt.Errorf("query downloaded episodes error: %w", err)
	}

	return res, nil
}

func (s sqliteRepository) ListDownloadedPlayedEpisodes(ctx context.Context, db DBContext,
) ([]EpisodeDB, error) {
	res := []EpisodeDB{}

	err := db.SelectContext(ctx, &res,
		"SELECT "+episodeColumns+" FROM episodes WHERE local_file != '' AND is_played")
	if err != nil {
		return nil, fmt.Errorf("query downloaded played episodes error: %w", err)
	}

	return res, nil
}

func (s sqliteRepository) ListEpisodesWithProgress(ctx context.Context, db DBContext,
) ([]EpisodeDB, error) {
	res := []EpisodeDB{}

	err := db.SelectContext(ctx, &res,
		"SELECT "+episodeColumns+" FROM episodes WHERE download_progress IS NOT NULL")
	if err != nil {
		return nil, fmt.Errorf("query in-progress episodes error: %w", err)
	}

	return res, nil
}

func (s sqliteRepository) SaveEpisode(ctx context.Context, db DBContext, episode ...EpisodeDB) error {
	logger := log.Ctx(ctx)

	for _, eps := range episode {
		logger.Debug().Object("episode", eps).Msg("save episode")

		if eps.ID == 0 {
			_, err := db.ExecContext(ctx,
				"INSERT INTO episodes (podcast_id, guid, title, description, audio_url, artwork_url, "+
					"duration, published, is_played, is_starred, position, local_file, download_progress) "+
					"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) "+
					"ON CONFLICT(guid) DO NOTHING",
				eps.PodcastID, eps.GUID, eps.Title, eps.Description, eps.AudioURL, eps.ArtworkURL,
				eps.Duration, eps.Published, eps.IsPlayed, eps.IsStarred, eps.Position,
				eps.LocalFile, eps.DownloadProgress)
			if err != nil {
				return fmt.Errorf("insert episode %q error: %w", eps.GUID, err)
			}

			continue
		}

		_, err := db.ExecContext(ctx,
			"UPDATE episodes SET title=?, description=?, audio_url=?, artwork_url=?, duration=?, "+
				"published=?, is_played=?, is_starred=?, position=?, local_file=?, "+
				"download_progress=?, updated_at=current_timestamp WHERE id=?",
			eps.Title, eps.Description, eps.AudioURL, eps.ArtworkURL, eps.Duration,
			eps.Published, eps.IsPlayed, eps.IsStarred, eps.Position, eps.LocalFile,
			eps.DownloadProgress, eps.ID)
		if err != nil {
			return fmt.Errorf("update episode %q error: %w", eps.GUID, err)
		}
	}

	return nil
}

func (s sqliteRepository) UpdateDownloadState(ctx context.Context, db DBContext,
	guid, localfile string, progress *float64,
) error {
	log.Ctx(ctx).Debug().Str("guid", guid).Str("local_file", localfile).
		Any("progress", progress).Msg("update episode download state")

	res, err := db.ExecContext(ctx,
		"UPDATE episodes SET local_file=?, download_progress=?, updated_at=current_timestamp "+
			"WHERE guid=?",
		localfile, progress, guid)
	if err != nil {
		return fmt.Errorf("update download state error: %w", err)
	}

	return expectOneRow(res)
}

func (s sqliteRepository) UpdatePlaybackState(ctx context.Context, db DBContext,
	guid string, position float64, played bool,
) error {
	log.Ctx(ctx).Debug().Str("guid", guid).Float64("position", position).
		Bool("played", played).Msg("update episode playback state")

	res, err := db.ExecContext(ctx,
		"UPDATE episodes SET position=?, is_played=?, updated_at=current_timestamp WHERE guid=?",
		position, played, guid)
	if err != nil {
		return fmt.Errorf("update playback state error: %w", err)
	}

	return expectOneRow(res)
}

func (s sqliteRepository) UpdateStarred(ctx context.Context, db DBContext, guid string, starred bool,
) error {
	res, err := db.ExecContext(ctx,
		"UPDATE episodes SET is_starred=?, updated_at=current_timestamp WHERE guid=?",
		starred, guid)
	if err != nil {
		return fmt.Errorf("update starred error: %w", err)
	}

	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected error: %w", err)
	}

	if affected == 0 {
		return ErrNoData
	}

	return nil
}
