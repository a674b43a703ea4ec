package cmd

//
// do.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"
	"gitlab.com/kabes/go-cast/internal/api"
	"gitlab.com/kabes/go-cast/internal/config"
	"gitlab.com/kabes/go-cast/internal/db"
	"gitlab.com/kabes/go-cast/internal/events"
	"gitlab.com/kabes/go-cast/internal/netstatus"
	"gitlab.com/kabes/go-cast/internal/player"
	"gitlab.com/kabes/go-cast/internal/repository"
	"gitlab.com/kabes/go-cast/internal/service"
)

func createInjector(ctx context.Context, mediadir string, flags config.DebugFlags) do.Injector {
	injector := do.New(
		db.Package,
		repository.Package,
		events.Package,
		netstatus.Package,
		player.Package,
		service.Package,
		api.Package,
	)

	do.ProvideNamedValue(injector, "mediadir", mediadir)
	do.ProvideNamedValue(injector, "debugflags", flags)

	logger := log.Ctx(ctx)
	logger.Debug().Msgf("Available services: %v", injector.ListProvidedServices())

	return injector
}

func explainInjector(injector do.Injector) {
	explanation := do.ExplainInjector(injector)
	fmt.Println(explanation.String())
}

// connectDatabase open the sqlite database and run pending migrations.
func connectDatabase(ctx context.Context, injector do.Injector, connstr string) (*db.Database, error) {
	database := do.MustInvoke[*db.Database](injector)
	if err := database.Connect(ctx, "sqlite3", connstr); err != nil {
		return nil, fmt.Errorf("connect to database error: %w", err)
	}

	if err := database.Migrate(ctx, "sqlite3"); err != nil {
		return nil, fmt.Errorf("migrate error: %w", err)
	}

	return database, nil
}
