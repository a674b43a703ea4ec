//
// maintenance.go
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

type Maintenance struct {
	Database string
}

func (a *Maintenance) Start(ctx context.Context) error {
	re := &db.Database{}
	if err := re.Connect(ctx, "sqlite3", a.Database); err != nil {
		return fmt.Errorf("connect to database error: %w", err)
	}

	defer re.Shutdown(ctx) //nolint:errcheck

	if err := re.Maintenance(ctx); err != nil {
		return fmt.Errorf("maintenance error: %w", err)
	}

	fmt.Println("Done")

	return nil
}
