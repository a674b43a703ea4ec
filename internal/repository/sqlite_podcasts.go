package repository

//
// sqlite_podcasts.go
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

const podcastColumns = "id, feed_url, title, description, artwork_url, author, " +
	"speed_override, auto_download, last_refreshed, created_at, updated_at"

func (s sqliteRepository) GetPodcast(ctx context.Context, db DBContext, feedurl string,
) (*PodcastDB, error) {
	podcast := &PodcastDB{}

	err := db.GetContext(ctx, podcast,
		"SELECT "+podcastColumns+" FROM podcasts WHERE feed_url=?", feedurl)

	switch {
	case err == nil:
		return podcast, nil
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNoData
	default:
		return nil, fmt.Errorf("query podcast error: %w", err)
	}
}

func (s sqliteRepository) GetPodcastByID(ctx context.Context, db DBContext, id int64,
) (*PodcastDB, error) {
	podcast := &PodcastDB{}

	err := db.GetContext(ctx, podcast,
		"SELECT "+podcastColumns+" FROM podcasts WHERE id=?", id)

	switch {
	case err == nil:
		return podcast, nil
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNoData
	default:
		return nil, fmt.Errorf("query podcast error: %w", err)
	}
}

func (s sqliteRepository) ListPodcasts(ctx context.Context, db DBContext) (PodcastsDB, error) {
	res := PodcastsDB{}

	err := db.SelectContext(ctx, &res,
		"SELECT "+podcastColumns+" FROM podcasts ORDER BY title")
	if err != nil {
		return nil, fmt.Errorf("query podcasts error: %w", err)
	}

	return res, nil
}

func (s sqliteRepository) SavePodcast(ctx context.Context, db DBContext, podcast *PodcastDB,
) (int64, error) {
	log.Ctx(ctx).Debug().Object("podcast", podcast).Msg("save podcast")

	if podcast.ID == 0 {
		res, err := db.ExecContext(ctx,
			"INSERT INTO podcasts (feed_url, title, description, artwork_url, author, "+
				"speed_override, auto_download, last_refreshed) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			podcast.FeedURL, podcast.Title, podcast.Description, podcast.ArtworkURL,
			podcast.Author, podcast.SpeedOverride, podcast.AutoDownload, podcast.LastRefreshed)
		if err != nil {
			return 0, fmt.Errorf("insert podcast error: %w", err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("get podcast id error: %w", err)
		}

		return id, nil
	}

	_, err := db.ExecContext(ctx,
		"UPDATE podcasts SET title=?, description=?, artwork_url=?, author=?, "+
			"speed_override=?, auto_download=?, last_refreshed=?, "+
			"updated_at=current_timestamp WHERE id=?",
		podcast.Title, podcast.Description, podcast.ArtworkURL, podcast.Author,
		podcast.SpeedOverride, podcast.AutoDownload, podcast.LastRefreshed, podcast.ID)
	if err != nil {
		return 0, fmt.Errorf("update podcast error: %w", err)
	}

	return podcast.ID, nil
}

// DeletePodcast remove podcast; episodes and queue entries go with it via
// foreign key cascade.
func (s sqliteRepository) DeletePodcast(ctx context.Context, db DBContext, id int64) error {
	log.Ctx(ctx).Debug().Int64("podcast_id", id).Msg("delete podcast")

	res, err := db.ExecContext(ctx, "DELETE FROM podcasts WHERE id=?", id)
	if err != nil {
		return fmt.Errorf("delete podcast error: %w", err)
	}

	return expectOneRow(res)
}
