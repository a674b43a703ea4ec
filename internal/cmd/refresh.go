//
// refresh.go
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

type Refresh struct {
	Database string
	MediaDir string
}

func (a *Refresh) Start(ctx context.Context) error {
	injector := createInjector(ctx, a.MediaDir, nil)

	database, err := connectDatabase(ctx, injector, a.Database)
	if err != nil {
		return err
	}

	defer database.Shutdown(ctx) //nolint:errcheck

	feeds := do.MustInvoke[*service.FeedsSrv](injector)
	if err := feeds.RefreshAll(ctx); err != nil {
		return fmt.Errorf("refresh error: %w", err)
	}

	// wait for auto-downloads kicked off by the refresh
	do.MustInvoke[*service.DownloadsSrv](injector).Wait()

	fmt.Println("Refresh finished")

	return nil
}
