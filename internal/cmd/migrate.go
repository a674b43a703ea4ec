//
// migrate.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

package cmd

import (
	"context"
	"fmt"

	"gitlab.com/kabes/go-cast/internal/db"
)

type Migrate struct {
	Database string
}

func (a *Migrate) Start(ctx context.Context) error {
	re := &db.Database{}
	if err := re.Connect(ctx, "sqlite3", a.Database); err != nil {
		return fmt.Errorf("connect to database error: %w", err)
	}

	defer re.Shutdown(ctx) //nolint:errcheck

	if err := re.Migrate(ctx, "sqlite3"); err != nil {
		return fmt.Errorf("migrate error: %w", err)
	}

	fmt.Println("Migration finished")

	return nil
}
