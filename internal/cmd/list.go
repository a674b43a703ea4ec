//
// list.go
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

type List struct {
	Database string
	MediaDir string
	Object   string
}

const ListSupportedObjects = "podcasts, queue, downloads"

func (a *List) Start(ctx context.Context) error {
	injector := createInjector(ctx, a.MediaDir, nil)

	database, err := connectDatabase(ctx, injector, a.Database)
	if err != nil {
		return err
	}

	defer database.Shutdown(ctx) //nolint:errcheck

	switch a.Object {
	case "podcasts":
		return a.listPodcasts(ctx, injector)
	case "queue":
		return a.listQueue(ctx, injector)
	case "downloads":
		return a.listDownloads(ctx, injector)

	default:
		return fmt.Errorf("unknown object for query %q", a.Object) //nolint:err113
	}
}

func (a *List) listPodcasts(ctx context.Context, injector do.Injector) error {
	feeds := do.MustInvoke[*service.FeedsSrv](injector)

	podcasts, err := feeds.ListPodcasts(ctx)
	if err != nil {
		return fmt.Errorf("get podcast list error: %w", err)
	}

	fmt.Printf("%-5s | %-40s | %s\n", "ID", "Title", "Feed")
	fmt.Println("--------------------------------------------------------------------------------------------")

	for _, p := range podcasts {
		fmt.Printf("%-5d | %-40s | %s\n", p.ID, p.Title, p.FeedURL)
	}

	return nil
}

func (a *List) listQueue(ctx context.Context, injector do.Injector) error {
	queue := do.MustInvoke[*service.QueueSrv](injector)

	items, err := queue.List(ctx)
	if err != nil {
		return fmt.Errorf("get queue error: %w", err)
	}

	for i, item := range items {
		fmt.Printf("%3d. %s (%s)\n", i+1, item.Episode.Title, item.Episode.GUID)
	}

	fmt.Printf("\nTotal: %d\n", len(items))

	return nil
}

func (a *List) listDownloads(ctx context.Context, injector do.Injector) error {
	downloads := do.MustInvoke[*service.DownloadsSrv](injector)

	total, err := downloads.TotalDownloadSize(ctx)
	if err != nil {
		return fmt.Errorf("get download size error: %w", err)
	}

	for _, guid := range downloads.ActiveDownloads() {
		fmt.Printf("downloading: %s\n", guid)
	}

	fmt.Printf("Total size: %d bytes\n", total)

	return nil
}
