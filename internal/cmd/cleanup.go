//
// cleanup.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

package cmd

import (
	"context"
	"fmt"

	"github.com/samber/do/v2"
	"gitlab.com/kabes/go-cast/internal/service"
)

type Cleanup struct {
	Database string
	MediaDir string
	// All delete every download not protected by queue membership
	// instead of only enforcing the configured limits.
	All bool
}

func (a *Cleanup) Start(ctx context.Context) error {
	injector := createInjector(ctx, a.MediaDir, nil)

	database, err := connectDatabase(ctx, injector, a.Database)
	if err != nil {
		return err
	}

	defer database.Shutdown(ctx) //nolint:errcheck

	cleanup := do.MustInvoke[*service.CleanupSrv](injector)

	if a.All {
		if err := cleanup.DeleteAllUnprotected(ctx); err != nil {
			return fmt.Errorf("cleanup error: %w", err)
		}
	} else if err := cleanup.EnforceAllLimits(ctx); err != nil {
		return fmt.Errorf("cleanup error: %w", err)
	}

	fmt.Println("Cleanup finished")

	return nil
}
