package service

//
// cleanup_test.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//
import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/samber/do/v2"

	"gitlab.com/kabes/go-cast/internal/assert"
	"gitlab.com/kabes/go-cast/internal/model"
	"gitlab.com/kabes/go-cast/internal/repository"
)

// prepareDownloadedEpisode create episode eps with a real file of `size`
// bytes in the media dir.
func prepareDownloadedEpisode(ctx context.Context, t *testing.T, i do.Injector,
	eps repository.EpisodeDB, size int,
) {
	t.Helper()

	dlSrv := do.MustInvoke[*DownloadsSrv](i)
	eps.LocalFile = eps.GUID + ".mp3"

	err := os.WriteFile(filepath.Join(dlSrv.mediaDir, eps.LocalFile),
		[]byte(strings.Repeat("x", size)), 0o600)
	if err != nil {
		t.Fatalf("write media file failed: %#+v", err)
	}

	prepareTestEpisode(ctx, t, i, eps)
}

func saveStorageSettings(ctx context.Context, t *testing.T, i do.Injector,
	limitbytes int64, keeplatest int,
) {
	t.Helper()

	settSrv := do.MustInvoke[*SettingsSrv](i)
	sett := model.DefaultSettings()
	sett.StorageLimitBytes = limitbytes
	sett.KeepLatestPerPodcast = keeplatest
	assert.NoErr(t, settSrv.SaveSettings(ctx, &sett))
}

func fileExists(t *testing.T, i do.Injector, name string) bool {
	t.Helper()

	dlSrv := do.MustInvoke[*DownloadsSrv](i)
	_, err := os.Stat(filepath.Join(dlSrv.mediaDir, name))

	return err == nil
}

func TestStorageLimitEviction(t *testing.T) {
	ctx, i := prepareTests(t)
	cleanupSrv := do.MustInvoke[*CleanupSrv](i)

	podcastid := prepareTestPodcast(ctx, t, i, "http://example.com/feed1")
	day := 24 * time.Hour
	now := time.Now().UTC()

	// played: effectively completed, evicted first despite being newest
	prepareDownloadedEpisode(ctx, t, i, repository.EpisodeDB{
		PodcastID: podcastid, GUID: "played", AudioURL: "http://example.com/a.mp3",
		Published: timePtr(now.Add(-day)), IsPlayed: true, Duration: 3600,
	}, 100)
	// oldest unplayed
	prepareDownloadedEpisode(ctx, t, i, repository.EpisodeDB{
		PodcastID: podcastid, GUID: "old", AudioURL: "http://example.com/b.mp3",
		Published: timePtr(now.Add(-10 * day)), Duration: 3600,
	}, 100)
	// newest unplayed, survives
	prepareDownloadedEpisode(ctx, t, i, repository.EpisodeDB{
		PodcastID: podcastid, GUID: "new", AudioURL: "http://example.com/c.mp3",
		Published: timePtr(now.Add(-2 * day)), Duration: 3600,
	}, 100)

	saveStorageSettings(ctx, t, i, 150, 0)

	assert.NoErr(t, cleanupSrv.EnforceStorageLimit(ctx))

	// 300 bytes total, limit 150: completed episode first, then the oldest
	assert.Equal(t, loadTestEpisode(ctx, t, i, "played").LocalFile, "")
	assert.Equal(t, loadTestEpisode(ctx, t, i, "old").LocalFile, "")
	assert.Equal(t, loadTestEpisode(ctx, t, i, "new").LocalFile, "new.mp3")
	assert.True(t, !fileExists(t, i, "played.mp3"))
	assert.True(t, !fileExists(t, i, "old.mp3"))
	assert.True(t, fileExists(t, i, "new.mp3"))
}

func TestStorageLimitQueueProtection(t *testing.T) {
	ctx, i := prepareTests(t)
	cleanupSrv := do.MustInvoke[*CleanupSrv](i)

	podcastid := prepareTestPodcast(ctx, t, i, "http://example.com/feed1")
	now := time.Now().UTC()

	prepareDownloadedEpisode(ctx, t, i, repository.EpisodeDB{
		PodcastID: podcastid, GUID: "queued", AudioURL: "http://example.com/a.mp3",
		Published: timePtr(now.Add(-100 * time.Hour)), IsPlayed: true, Duration: 100,
	}, 100)
	prepareDownloadedEpisode(ctx, t, i, repository.EpisodeDB{
		PodcastID: podcastid, GUID: "free", AudioURL: "http://example.com/b.mp3",
		Published: timePtr(now), Duration: 100,
	}, 100)

	insertQueueRow(ctx, t, i, loadTestEpisode(ctx, t, i, "queued").ID, 1)

	saveStorageSettings(ctx, t, i, 150, 0)

	assert.NoErr(t, cleanupSrv.EnforceStorageLimit(ctx))

	// the queued episode is untouchable even as the best eviction candidate
	assert.Equal(t, loadTestEpisode(ctx, t, i, "queued").LocalFile, "queued.mp3")
	assert.Equal(t, loadTestEpisode(ctx, t, i, "free").LocalFile, "")
}

func TestStorageLimitNearEndCountsCompleted(t *testing.T) {
	ctx, i := prepareTests(t)
	cleanupSrv := do.MustInvoke[*CleanupSrv](i)

	podcastid := prepareTestPodcast(ctx, t, i, "http://example.com/feed1")
	now := time.Now().UTC()

	// unplayed but only 60 s left: effectively completed, evicted before
	// the older episode with real progress remaining
	prepareDownloadedEpisode(ctx, t, i, repository.EpisodeDB{
		PodcastID: podcastid, GUID: "neardone", AudioURL: "http://example.com/a.mp3",
		Published: timePtr(now), Duration: 3600, Position: 3540,
	}, 100)
	prepareDownloadedEpisode(ctx, t, i, repository.EpisodeDB{
		PodcastID: podcastid, GUID: "midway", AudioURL: "http://example.com/b.mp3",
		Published: timePtr(now.Add(-240 * time.Hour)), Duration: 3600, Position: 1800,
	}, 100)

	saveStorageSettings(ctx, t, i, 150, 0)

	assert.NoErr(t, cleanupSrv.EnforceStorageLimit(ctx))

	assert.Equal(t, loadTestEpisode(ctx, t, i, "neardone").LocalFile, "")
	assert.Equal(t, loadTestEpisode(ctx, t, i, "midway").LocalFile, "midway.mp3")
}

func TestStorageLimitDisabled(t *testing.T) {
	ctx, i := prepareTests(t)
	cleanupSrv := do.MustInvoke[*CleanupSrv](i)

	podcastid := prepareTestPodcast(ctx, t, i, "http://example.com/feed1")
	prepareDownloadedEpisode(ctx, t, i, repository.EpisodeDB{
		PodcastID: podcastid, GUID: "ep1", AudioURL: "http://example.com/a.mp3",
		IsPlayed: true,
	}, 1000)

	// limit 0 means unlimited
	assert.NoErr(t, cleanupSrv.EnforceStorageLimit(ctx))
	assert.Equal(t, loadTestEpisode(ctx, t, i, "ep1").LocalFile, "ep1.mp3")
}

func TestPerPodcastLimit(t *testing.T) {
	ctx, i := prepareTests(t)
	cleanupSrv := do.MustInvoke[*CleanupSrv](i)

	podcastid := prepareTestPodcast(ctx, t, i, "http://example.com/feed1")
	otherid := prepareTestPodcast(ctx, t, i, "http://example.com/feed2")
	day := 24 * time.Hour
	now := time.Now().UTC()

	for idx, guid := range []string{"ep1", "ep2", "ep3", "ep4"} {
		prepareDownloadedEpisode(ctx, t, i, repository.EpisodeDB{
			PodcastID: podcastid, GUID: guid,
			AudioURL:  "http://example.com/" + guid + ".mp3",
			Published: timePtr(now.Add(-time.Duration(idx) * day)),
		}, 10)
	}

	// a queued old episode: not counted, not deleted
	prepareDownloadedEpisode(ctx, t, i, repository.EpisodeDB{
		PodcastID: podcastid, GUID: "epq",
		AudioURL:  "http://example.com/epq.mp3",
		Published: timePtr(now.Add(-30 * day)),
	}, 10)
	insertQueueRow(ctx, t, i, loadTestEpisode(ctx, t, i, "epq").ID, 1)

	// another podcast stays untouched by this podcast's pass
	prepareDownloadedEpisode(ctx, t, i, repository.EpisodeDB{
		PodcastID: otherid, GUID: "other1",
		AudioURL:  "http://example.com/other1.mp3",
		Published: timePtr(now.Add(-40 * day)),
	}, 10)

	saveStorageSettings(ctx, t, i, 0, 2)

	assert.NoErr(t, cleanupSrv.EnforcePerPodcastLimit(ctx, podcastid))

	// two newest kept, the rest evicted
	assert.Equal(t, loadTestEpisode(ctx, t, i, "ep1").LocalFile, "ep1.mp3")
	assert.Equal(t, loadTestEpisode(ctx, t, i, "ep2").LocalFile, "ep2.mp3")
	assert.Equal(t, loadTestEpisode(ctx, t, i, "ep3").LocalFile, "")
	assert.Equal(t, loadTestEpisode(ctx, t, i, "ep4").LocalFile, "")
	assert.Equal(t, loadTestEpisode(ctx, t, i, "epq").LocalFile, "epq.mp3")
	assert.Equal(t, loadTestEpisode(ctx, t, i, "other1").LocalFile, "other1.mp3")
}

func TestOnEpisodeCompleted(t *testing.T) {
	ctx, i := prepareTests(t)
	cleanupSrv := do.MustInvoke[*CleanupSrv](i)

	podcastid := prepareTestPodcast(ctx, t, i, "http://example.com/feed1")
	prepareDownloadedEpisode(ctx, t, i, repository.EpisodeDB{
		PodcastID: podcastid, GUID: "done", AudioURL: "http://example.com/a.mp3",
		IsPlayed: true,
	}, 10)
	prepareDownloadedEpisode(ctx, t, i, repository.EpisodeDB{
		PodcastID: podcastid, GUID: "donequeued", AudioURL: "http://example.com/b.mp3",
		IsPlayed: true,
	}, 10)
	insertQueueRow(ctx, t, i, loadTestEpisode(ctx, t, i, "donequeued").ID, 1)

	assert.NoErr(t, cleanupSrv.OnEpisodeCompleted(ctx, "done"))
	assert.Equal(t, loadTestEpisode(ctx, t, i, "done").LocalFile, "")

	// a queued completed episode keeps its file
	assert.NoErr(t, cleanupSrv.OnEpisodeCompleted(ctx, "donequeued"))
	assert.Equal(t, loadTestEpisode(ctx, t, i, "donequeued").LocalFile, "donequeued.mp3")
}

func TestCleanupCompletedOnLaunch(t *testing.T) {
	ctx, i := prepareTests(t)
	cleanupSrv := do.MustInvoke[*CleanupSrv](i)

	podcastid := prepareTestPodcast(ctx, t, i, "http://example.com/feed1")
	prepareDownloadedEpisode(ctx, t, i, repository.EpisodeDB{
		PodcastID: podcastid, GUID: "played", AudioURL: "http://example.com/a.mp3",
		IsPlayed: true,
	}, 10)
	prepareDownloadedEpisode(ctx, t, i, repository.EpisodeDB{
		PodcastID: podcastid, GUID: "playedqueued", AudioURL: "http://example.com/b.mp3",
		IsPlayed: true,
	}, 10)
	prepareDownloadedEpisode(ctx, t, i, repository.EpisodeDB{
		PodcastID: podcastid, GUID: "unplayed", AudioURL: "http://example.com/c.mp3",
	}, 10)
	insertQueueRow(ctx, t, i, loadTestEpisode(ctx, t, i, "playedqueued").ID, 1)

	assert.NoErr(t, cleanupSrv.CleanupCompletedOnLaunch(ctx))

	assert.Equal(t, loadTestEpisode(ctx, t, i, "played").LocalFile, "")
	assert.Equal(t, loadTestEpisode(ctx, t, i, "playedqueued").LocalFile, "playedqueued.mp3")
	assert.Equal(t, loadTestEpisode(ctx, t, i, "unplayed").LocalFile, "unplayed.mp3")
}
