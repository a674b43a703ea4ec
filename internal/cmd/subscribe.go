//
// subscribe.go
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

type Subscribe struct {
	Database string
	MediaDir string
	FeedURL  string
}

func (a *Subscribe) Start(ctx context.Context) error {
	injector := createInjector(ctx, a.MediaDir, nil)

	database, err := connectDatabase(ctx, injector, a.Database)
	if err != nil {
		return err
	}

	defer database.Shutdown(ctx) //nolint:errcheck

	feeds := do.MustInvoke[*service.FeedsSrv](injector)

	podcast, err := feeds.Subscribe(ctx, a.FeedURL)
	if err != nil {
		return fmt.Errorf("subscribe error: %w", err)
	}

	fmt.Printf("Subscribed to %q (id=%d)\n", podcast.Title, podcast.ID)

	return nil
}

//-------------------------------------------------------------

type Unsubscribe struct {
	Database string
	MediaDir string
	FeedURL  string
}

func (a *Unsubscribe) Start(ctx context.Context) error {
	injector := createInjector(ctx, a.MediaDir, nil)

	database, err := connectDatabase(ctx, injector, a.Database)
	if err != nil {
		return err
	}

	defer database.Shutdown(ctx) //nolint:errcheck

	feeds := do.MustInvoke[*service.FeedsSrv](injector)
	if err := feeds.Unsubscribe(ctx, a.FeedURL); err != nil {
		return fmt.Errorf("unsubscribe error: %w", err)
	}

	fmt.Println("Unsubscribed")

	return nil
}
