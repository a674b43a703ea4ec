package repository

//
// sqlite_queue.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

func (s sqliteRepository) ListQueue(ctx context.Context, db DBContext) ([]QueueItemDB, error) {
	res := []QueueItemDB{}

	err := db.SelectContext(ctx, &res,
		`SELECT q.id, q.episode_id, q.sort_order, q.created_at,
			e.id AS "episode.id", e.podcast_id AS "episode.podcast_id",
			e.guid AS "episode.guid", e.title AS "episode.title",
			e.description AS "episode.description", e.audio_url AS "episode.audio_url",
			e.artwork_url AS "episode.artwork_url", e.duration AS "episode.duration",
			e.published AS "episode.published", e.is_played AS "episode.is_played",
			e.is_starred AS "episode.is_starred", e.position AS "episode.position",
			e.local_file AS "episode.local_file",
			e.download_progress AS "episode.download_progress",
			e.created_at AS "episode.created_at", e.updated_at AS "episode.updated_at"
		FROM queue_items q
		JOIN episodes e ON e.id = q.episode_id
		ORDER BY q.sort_order`)
	if err != nil {
		return nil, fmt.Errorf("query queue error: %w", err)
	}

	return res, nil
}

func (s sqliteRepository) GetMaxSortOrder(ctx context.Context, db DBContext) (int64, error) {
	var maxOrder int64

	err := db.GetContext(ctx, &maxOrder,
		"SELECT coalesce(max(sort_order), 0) FROM queue_items")
	if err != nil {
		return 0, fmt.Errorf("query max sort order error: %w", err)
	}

	return maxOrder, nil
}

func (s sqliteRepository) InsertItem(ctx context.Context, db DBContext, episodeid, sortorder int64,
) error {
	log.Ctx(ctx).Debug().Int64("episode_id", episodeid).Int64("sort_order", sortorder).
		Msg("insert queue item")

	_, err := db.ExecContext(ctx,
		"INSERT INTO queue_items (episode_id, sort_order) VALUES (?, ?) "+
			"ON CONFLICT(episode_id) DO NOTHING",
		episodeid, sortorder)
	if err != nil {
		return fmt.Errorf("insert queue item error: %w", err)
	}

	return nil
}

func (s sqliteRepository) DeleteItemByEpisode(ctx context.Context, db DBContext, episodeid int64,
) error {
	res, err := db.ExecContext(ctx,
		"DELETE FROM queue_items WHERE episode_id=?", episodeid)
	if err != nil {
		return fmt.Errorf("delete queue item error: %w", err)
	}

	return expectOneRow(res)
}

// ShiftSortOrders move every item by delta; used to open a slot at the
// front of the queue.
func (s sqliteRepository) ShiftSortOrders(ctx context.Context, db DBContext, delta int64) error {
	_, err := db.ExecContext(ctx,
		"UPDATE queue_items SET sort_order = sort_order + ?", delta)
	if err != nil {
		return fmt.Errorf("shift sort orders error: %w", err)
	}

	return nil
}

func (s sqliteRepository) UpdateSortOrder(ctx context.Context, db DBContext, id, sortorder int64,
) error {
	res, err := db.ExecContext(ctx,
		"UPDATE queue_items SET sort_order=? WHERE id=?", sortorder, id)
	if err != nil {
		return fmt.Errorf("update sort order error: %w", err)
	}

	return expectOneRow(res)
}

func (s sqliteRepository) DeleteAll(ctx context.Context, db DBContext) error {
	log.Ctx(ctx).Debug().Msg("clear queue")

	if _, err := db.ExecContext(ctx, "DELETE FROM queue_items"); err != nil {
		return fmt.Errorf("clear queue error: %w", err)
	}

	return nil
}
