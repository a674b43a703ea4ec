//
// download.go
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

type Download struct {
	Database string
	MediaDir string
	GUID     string
}

func (a *Download) Start(ctx context.Context) error {
	injector := createInjector(ctx, a.MediaDir, nil)

	database, err := connectDatabase(ctx, injector, a.Database)
	if err != nil {
		return err
	}

	defer database.Shutdown(ctx) //nolint:errcheck

	downloads := do.MustInvoke[*service.DownloadsSrv](injector)

	// cli downloads are explicit user action; skip the policy gate
	if err := downloads.Download(ctx, a.GUID); err != nil {
		return fmt.Errorf("download error: %w", err)
	}

	downloads.Wait()

	fmt.Println("Download finished")

	return nil
}
