// Package repository implement sqlite-backed storage for podcasts,
// episodes, the play queue and settings.
package repository

//
// sqlite.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// sqliteRepository is stateless; every method receives the database access
// object from the caller so services control connection/transaction scope.
type sqliteRepository struct{}

func (s sqliteRepository) Maintenance(ctx context.Context, db DBContext) error {
	logger := log.Ctx(ctx)

	for idx, sql := range maintScripts {
		logger.Debug().Msgf("run maintenance script[%d]: %q", idx, sql)

		if _, err := db.ExecContext(ctx, sql); err != nil {
			return fmt.Errorf("execute maintenance script %q error: %w", sql, err)
		}
	}

	return nil
}

// maintScripts clean old data only; physical maintenance (vacuum etc.)
// belongs to the db layer as it cannot run inside a transaction.
var maintScripts = []string{
	// drop closed listening sessions older than a year
	"DELETE FROM listening_sessions " +
		"WHERE ended_at IS NOT NULL AND ended_at < datetime('now', '-1 year');",
}
