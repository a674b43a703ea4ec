//
// status.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/do/v2"
	"gitlab.com/kabes/go-cast/internal/service"
)

// Status print a one-screen summary of the library and the configured
// policies.
type Status struct {
	Database string
	MediaDir string
}

func (a *Status) Start(ctx context.Context) error {
	injector := createInjector(ctx, a.MediaDir, nil)

	database, err := connectDatabase(ctx, injector, a.Database)
	if err != nil {
		return err
	}

	defer database.Shutdown(ctx) //nolint:errcheck

	feeds := do.MustInvoke[*service.FeedsSrv](injector)
	queue := do.MustInvoke[*service.QueueSrv](injector)
	downloads := do.MustInvoke[*service.DownloadsSrv](injector)
	settings := do.MustInvoke[*service.SettingsSrv](injector)
	stats := do.MustInvoke[*service.StatsSrv](injector)

	podcasts, err := feeds.ListPodcasts(ctx)
	if err != nil {
		return fmt.Errorf("get podcast list error: %w", err)
	}

	queued, err := queue.List(ctx)
	if err != nil {
		return fmt.Errorf("get queue error: %w", err)
	}

	totalsize, err := downloads.TotalDownloadSize(ctx)
	if err != nil {
		return fmt.Errorf("get download size error: %w", err)
	}

	sett, err := settings.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("get settings error: %w", err)
	}

	listened, err := stats.ListenedSince(ctx, time.Time{})
	if err != nil {
		return fmt.Errorf("get listening stats error: %w", err)
	}

	fmt.Printf("Podcasts:        %d\n", len(podcasts))
	fmt.Printf("Queued episodes: %d\n", len(queued))
	fmt.Printf("Downloads size:  %d bytes", totalsize)

	if sett.StorageLimitBytes > 0 {
		fmt.Printf(" (limit %d)", sett.StorageLimitBytes)
	}

	fmt.Println()
	fmt.Printf("Total listened:  %s\n", time.Duration(listened*float64(time.Second)).Round(time.Second))
	fmt.Printf("Policies:        manual=%s auto=%s keep-latest=%d\n",
		sett.ManualDownloadPolicy, sett.AutoDownloadPolicy, sett.KeepLatestPerPodcast)

	return nil
}
