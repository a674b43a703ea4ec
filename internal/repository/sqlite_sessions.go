package repository

//
// sqlite_sessions.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

func (s sqliteRepository) InsertSession(ctx context.Context, db DBContext,
	session *ListeningSessionDB,
) error {
	log.Ctx(ctx).Debug().Str("id", session.ID).Str("guid", session.EpisodeGUID).
		Msg("insert listening session")

	_, err := db.ExecContext(ctx,
		"INSERT INTO listening_sessions (id, episode_guid, started_at, ended_at, listened_sec) "+
			"VALUES (?, ?, ?, ?, ?)",
		session.ID, session.EpisodeGUID, session.StartedAt, session.EndedAt, session.ListenedSec)
	if err != nil {
		return fmt.Errorf("insert listening session error: %w", err)
	}

	return nil
}

func (s sqliteRepository) CloseSession(ctx context.Context, db DBContext,
	id string, endedat time.Time, listenedsec float64,
) error {
	res, err := db.ExecContext(ctx,
		"UPDATE listening_sessions SET ended_at=?, listened_sec=? WHERE id=?",
		endedat, listenedsec, id)
	if err != nil {
		return fmt.Errorf("close listening session error: %w", err)
	}

	return expectOneRow(res)
}

// SumListened return total listened time in seconds since given moment.
func (s sqliteRepository) SumListened(ctx context.Context, db DBContext, since time.Time,
) (float64, error) {
	var total float64

	err := db.GetContext(ctx, &total,
		"SELECT coalesce(sum(listened_sec), 0) FROM listening_sessions WHERE started_at >= ?",
		since)
	if err != nil {
		return 0, fmt.Errorf("query listened time error: %w", err)
	}

	return total, nil
}
