package cmd

//
// serve_test.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//
import (
	"context"
	stdlog "log"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"

	"gitlab.com/kabes/go-cast/internal/assert"
	"gitlab.com/kabes/go-cast/internal/db"
	"gitlab.com/kabes/go-cast/internal/events"
	"gitlab.com/kabes/go-cast/internal/model"
	"gitlab.com/kabes/go-cast/internal/repository"
	"gitlab.com/kabes/go-cast/internal/service"
)

func prepareServeTest(t *testing.T) (context.Context, do.Injector, string) {
	t.Helper()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout}).With().Caller().Logger()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)

	ctx := log.Logger.WithContext(context.Background())
	mediadir := t.TempDir()
	injector := createInjector(ctx, mediadir, nil)

	database, err := connectDatabase(ctx, injector, ":memory:")
	if err != nil {
		t.Fatalf("prepare db error: %#+v", err)
	}

	t.Cleanup(func() { _ = database.Shutdown(context.Background()) })

	return ctx, injector, mediadir
}

func insertDownloadedEpisode(ctx context.Context, t *testing.T, injector do.Injector,
	mediadir string, eps repository.EpisodeDB,
) {
	t.Helper()

	if err := os.WriteFile(filepath.Join(mediadir, eps.LocalFile), []byte("audio"), 0o600); err != nil {
		t.Fatalf("write media file failed: %#+v", err)
	}

	database := do.MustInvoke[*db.Database](injector)

	err := db.InTransaction(ctx, database, func(dbctx repository.DBContext) error {
		episodesRepo := do.MustInvoke[repository.EpisodesRepository](injector)
		if eps.PodcastID == 0 {
			podcastsRepo := do.MustInvoke[repository.PodcastsRepository](injector)

			id, err := podcastsRepo.SavePodcast(ctx, dbctx, &repository.PodcastDB{
				FeedURL: "http://example.com/feed-" + eps.GUID,
				Title:   "test podcast",
			})
			if err != nil {
				return err
			}

			eps.PodcastID = id
		}

		return episodesRepo.SaveEpisode(ctx, dbctx, eps)
	})
	if err != nil {
		t.Fatalf("create test episode failed: %#+v", err)
	}
}

func episodeFileGone(injector do.Injector, mediadir, guid string) func() bool {
	database := do.MustInvoke[*db.Database](injector)
	episodesRepo := do.MustInvoke[repository.EpisodesRepository](injector)

	return func() bool {
		eps, err := db.InConnectionR(context.Background(), database,
			func(dbctx repository.DBContext) (*repository.EpisodeDB, error) {
				return episodesRepo.GetEpisode(context.Background(), dbctx, guid)
			})
		if err != nil || eps.LocalFile != "" {
			return false
		}

		_, err = os.Stat(filepath.Join(mediadir, guid+".mp3"))

		return os.IsNotExist(err)
	}
}

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

// playback completion published on the bus must delete the download of a
// non-queued episode.
func TestServeEventsPlaybackCompleted(t *testing.T) {
	ctx, injector, mediadir := prepareServeTest(t)

	insertDownloadedEpisode(ctx, t, injector, mediadir, repository.EpisodeDB{
		GUID:      "done-ep",
		Title:     "finished episode",
		AudioURL:  "http://example.com/done-ep.mp3",
		LocalFile: "done-ep.mp3",
		IsPlayed:  true,
	})

	bus := do.MustInvoke[*events.Bus](injector)
	ch := bus.Subscribe()

	t.Cleanup(func() { _ = bus.Shutdown() })

	s := &Serve{}
	go s.handleEvents(ctx, injector, ch)

	bus.Publish(events.PlaybackCompleted{GUID: "done-ep"})

	assert.True(t, waitFor(t, 2*time.Second, episodeFileGone(injector, mediadir, "done-ep")))
}

// a finished download must trigger the per-podcast limit pass.
func TestServeEventsDownloadCompleted(t *testing.T) {
	ctx, injector, mediadir := prepareServeTest(t)

	old := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 1, 12, 10, 0, 0, 0, time.UTC)

	insertDownloadedEpisode(ctx, t, injector, mediadir, repository.EpisodeDB{
		GUID:      "keep-ep",
		PodcastID: 0,
		Title:     "newest episode",
		AudioURL:  "http://example.com/keep-ep.mp3",
		LocalFile: "keep-ep.mp3",
		Published: &newer,
	})

	// same podcast as keep-ep
	var podcastid int64
	{
		database := do.MustInvoke[*db.Database](injector)
		episodesRepo := do.MustInvoke[repository.EpisodesRepository](injector)

		eps, err := db.InConnectionR(ctx, database,
			func(dbctx repository.DBContext) (*repository.EpisodeDB, error) {
				return episodesRepo.GetEpisode(ctx, dbctx, "keep-ep")
			})
		assert.NoErr(t, err)
		podcastid = eps.PodcastID
	}

	insertDownloadedEpisode(ctx, t, injector, mediadir, repository.EpisodeDB{
		GUID:      "old-ep",
		PodcastID: podcastid,
		Title:     "older episode",
		AudioURL:  "http://example.com/old-ep.mp3",
		LocalFile: "old-ep.mp3",
		Published: &old,
	})

	settings := do.MustInvoke[*service.SettingsSrv](injector)
	sett := model.DefaultSettings()
	sett.KeepLatestPerPodcast = 1
	assert.NoErr(t, settings.SaveSettings(ctx, &sett))

	bus := do.MustInvoke[*events.Bus](injector)
	ch := bus.Subscribe()

	t.Cleanup(func() { _ = bus.Shutdown() })

	s := &Serve{}
	go s.handleEvents(ctx, injector, ch)

	bus.Publish(events.DownloadCompleted{GUID: "keep-ep", Filename: "keep-ep.mp3"})

	assert.True(t, waitFor(t, 2*time.Second, episodeFileGone(injector, mediadir, "old-ep")))

	// the newest download survives the pass
	_, err := os.Stat(filepath.Join(mediadir, "keep-ep.mp3"))
	assert.NoErr(t, err)
}
