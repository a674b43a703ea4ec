package repository

//
// sqlite_settings.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

func (s sqliteRepository) ListSettings(ctx context.Context, db DBContext) (map[string]string, error) {
	rows := []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}{}

	if err := db.SelectContext(ctx, &rows, "SELECT key, value FROM settings"); err != nil {
		return nil, fmt.Errorf("query settings error: %w", err)
	}

	res := make(map[string]string, len(rows))
	for _, row := range rows {
		res[row.Key] = row.Value
	}

	return res, nil
}

func (s sqliteRepository) SaveSetting(ctx context.Context, db DBContext, key, value string) error {
	log.Ctx(ctx).Debug().Str("key", key).Str("value", value).Msg("save setting")

	_, err := db.ExecContext(ctx,
		"INSERT INTO settings (key, value) VALUES (?, ?) "+
			"ON CONFLICT(key) DO UPDATE SET value=excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("save setting error: %w", err)
	}

	return nil
}
