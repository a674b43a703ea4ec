package service

//
// testhelpers_test.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//
import (
	"context"
	stdlog "log"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/samber/do/v2"
	"gitlab.com/kabes/go-cast/internal/db"
	"gitlab.com/kabes/go-cast/internal/events"
	"gitlab.com/kabes/go-cast/internal/netstatus"
	"gitlab.com/kabes/go-cast/internal/repository"
)

func prepareTests(t *testing.T) (context.Context, *do.RootScope) {
	t.Helper()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout}).With().Caller().Stack().Logger()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)

	ctx := log.Logger.WithContext(context.Background())
	i := do.New(Package, db.Package, repository.Package, events.Package, netstatus.Package)
	do.ProvideNamedValue(i, "mediadir", t.TempDir())

	database := do.MustInvoke[*db.Database](i)
	if err := database.Connect(ctx, "sqlite3", ":memory:"); err != nil {
		t.Fatalf("connect to db error: %#+v", err)
	}

	if err := database.Migrate(ctx, "sqlite3"); err != nil {
		t.Fatalf("prepare db error: %#+v", err)
	}

	return ctx, i
}

func prepareTestPodcast(ctx context.Context, t *testing.T, i do.Injector, feedurl string) int64 {
	t.Helper()

	podcastsRepo := do.MustInvoke[repository.PodcastsRepository](i)
	database := do.MustInvoke[*db.Database](i)

	id, err := db.InTransactionR(ctx, database,
		func(dbctx repository.DBContext) (int64, error) {
			return podcastsRepo.SavePodcast(ctx, dbctx, &repository.PodcastDB{
				FeedURL: feedurl,
				Title:   "podcast " + feedurl,
			})
		})
	if err != nil {
		t.Fatalf("create test podcast failed: %#+v", err)
	}

	return id
}

func prepareTestEpisode(ctx context.Context, t *testing.T, i do.Injector,
	eps repository.EpisodeDB,
) {
	t.Helper()

	episodesRepo := do.MustInvoke[repository.EpisodesRepository](i)
	database := do.MustInvoke[*db.Database](i)

	if eps.Title == "" {
		eps.Title = "episode " + eps.GUID
	}

	err := db.InTransaction(ctx, database, func(dbctx repository.DBContext) error {
		return episodesRepo.SaveEpisode(ctx, dbctx, eps)
	})
	if err != nil {
		t.Fatalf("create test episode failed: %#+v", err)
	}
}

func loadTestEpisode(ctx context.Context, t *testing.T, i do.Injector,
	guid string,
) repository.EpisodeDB {
	t.Helper()

	episodesRepo := do.MustInvoke[repository.EpisodesRepository](i)
	database := do.MustInvoke[*db.Database](i)

	eps, err := db.InConnectionR(ctx, database,
		func(dbctx repository.DBContext) (*repository.EpisodeDB, error) {
			return episodesRepo.GetEpisode(ctx, dbctx, guid)
		})
	if err != nil {
		t.Fatalf("load test episode failed: %#+v", err)
	}

	return *eps
}

func insertQueueRow(ctx context.Context, t *testing.T, i do.Injector,
	episodeid, sortorder int64,
) {
	t.Helper()

	queueRepo := do.MustInvoke[repository.QueueRepository](i)
	database := do.MustInvoke[*db.Database](i)

	err := db.InTransaction(ctx, database, func(dbctx repository.DBContext) error {
		return queueRepo.InsertItem(ctx, dbctx, episodeid, sortorder)
	})
	if err != nil {
		t.Fatalf("insert queue row failed: %#+v", err)
	}
}

func saveRawSetting(ctx context.Context, t *testing.T, i do.Injector, key, value string) {
	t.Helper()

	settRepo := do.MustInvoke[repository.SettingsRepository](i)
	database := do.MustInvoke[*db.Database](i)

	err := db.InTransaction(ctx, database, func(dbctx repository.DBContext) error {
		return settRepo.SaveSetting(ctx, dbctx, key, value)
	})
	if err != nil {
		t.Fatalf("save raw setting failed: %#+v", err)
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func floatPtr(f float64) *float64 { return &f }

// waitFor poll cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}

		time.Sleep(10 * time.Millisecond)
	}

	return cond()
}
