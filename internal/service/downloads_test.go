package service

//
// downloads_test.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//
import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/samber/do/v2"

	"gitlab.com/kabes/go-cast/internal/assert"
	"gitlab.com/kabes/go-cast/internal/model"
	"gitlab.com/kabes/go-cast/internal/netstatus"
	"gitlab.com/kabes/go-cast/internal/repository"
	"gitlab.com/kabes/go-cast/internal/validators"
)

func TestCheckDownloadAllowed(t *testing.T) {
	ctx, i := prepareTests(t)
	dlSrv := do.MustInvoke[*DownloadsSrv](i)
	settSrv := do.MustInvoke[*SettingsSrv](i)
	netstat := do.MustInvoke[*netstatus.Observer](i)

	episode := &model.Episode{GUID: "ep1", AudioURL: "http://example.com/ep1.mp3"}

	// non-metered connection: any policy allows
	netstat.SetOverride(netstatus.ConnectionWifi)

	dec, err := dlSrv.CheckDownloadAllowed(ctx, episode, false)
	assert.NoErr(t, err)
	assert.Equal(t, dec, DownloadStarted)

	// cellular gates on the policy
	netstat.SetOverride(netstatus.ConnectionCellular)

	for _, tc := range []struct {
		policy model.DownloadPolicy
		want   DownloadDecision
	}{
		{model.PolicyWifiOnly, DownloadBlocked},
		{model.PolicyAskOnCellular, DownloadNeedsConfirmation},
		{model.PolicyAlways, DownloadStarted},
	} {
		sett := model.DefaultSettings()
		sett.ManualDownloadPolicy = tc.policy
		assert.NoErr(t, settSrv.SaveSettings(ctx, &sett))

		dec, err = dlSrv.CheckDownloadAllowed(ctx, episode, false)
		assert.NoErr(t, err)
		assert.Equal(t, dec, tc.want)
	}

	// auto downloads use their own policy
	sett := model.DefaultSettings()
	sett.ManualDownloadPolicy = model.PolicyAlways
	sett.AutoDownloadPolicy = model.PolicyWifiOnly
	assert.NoErr(t, settSrv.SaveSettings(ctx, &sett))

	dec, err = dlSrv.CheckDownloadAllowed(ctx, episode, true)
	assert.NoErr(t, err)
	assert.Equal(t, dec, DownloadBlocked)

	// downloaded episodes never start again
	downloaded := &model.Episode{GUID: "ep2", AudioURL: "http://example.com/ep2.mp3", LocalFile: "ep2.mp3"}
	dec, err = dlSrv.CheckDownloadAllowed(ctx, downloaded, false)
	assert.NoErr(t, err)
	assert.Equal(t, dec, DownloadAlreadyDownloaded)

	// invalid url is rejected
	bad := &model.Episode{GUID: "ep3", AudioURL: "ftp://example.com/x"}
	dec, err = dlSrv.CheckDownloadAllowed(ctx, bad, false)
	assert.Err(t, err)
	assert.Equal(t, dec, DownloadBlocked)
}

func TestDownloadCompletes(t *testing.T) {
	ctx, i := prepareTests(t)
	dlSrv := do.MustInvoke[*DownloadsSrv](i)

	body := strings.Repeat("audio-bytes ", 1000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	podcastid := prepareTestPodcast(ctx, t, i, "http://example.com/feed1")
	prepareTestEpisode(ctx, t, i, repository.EpisodeDB{
		PodcastID: podcastid, GUID: "ep1", AudioURL: srv.URL + "/ep1.mp3",
	})

	assert.NoErr(t, dlSrv.Download(ctx, "ep1"))

	ok := waitFor(t, 5*time.Second, func() bool {
		return loadTestEpisode(ctx, t, i, "ep1").LocalFile != ""
	})
	assert.True(t, ok)

	eps := loadTestEpisode(ctx, t, i, "ep1")
	assert.True(t, eps.DownloadProgress == nil)

	data, err := os.ReadFile(dlSrv.FilePath(&model.Episode{LocalFile: eps.LocalFile}))
	assert.NoErr(t, err)
	assert.Equal(t, string(data), body)

	// no leftover part file
	parts, _ := filepath.Glob(filepath.Join(dlSrv.mediaDir, "*"+partSuffix))
	assert.Equal(t, len(parts), 0)

	total, err := dlSrv.TotalDownloadSize(ctx)
	assert.NoErr(t, err)
	assert.Equal(t, total, int64(len(body)))
}

func TestDownloadNoDuplicateTransfers(t *testing.T) {
	ctx, i := prepareTests(t)
	dlSrv := do.MustInvoke[*DownloadsSrv](i)

	requests := make(chan string, 16)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests <- r.URL.Path
		<-release
		_, _ = w.Write([]byte("data"))
	}))
	defer srv.Close()

	podcastid := prepareTestPodcast(ctx, t, i, "http://example.com/feed1")
	prepareTestEpisode(ctx, t, i, repository.EpisodeDB{
		PodcastID: podcastid, GUID: "ep1", AudioURL: srv.URL + "/ep1.mp3",
	})

	assert.NoErr(t, dlSrv.Download(ctx, "ep1"))

	// wait until the first transfer reached the server
	select {
	case <-requests:
	case <-time.After(5 * time.Second):
		t.Fatal("transfer never started")
	}

	// second request for the same episode is a no-op
	assert.NoErr(t, dlSrv.Download(ctx, "ep1"))
	assert.Equal(t, len(dlSrv.ActiveDownloads()), 1)

	select {
	case p := <-requests:
		t.Fatalf("unexpected duplicate transfer: %s", p)
	case <-time.After(100 * time.Millisecond):
	}

	close(release)

	ok := waitFor(t, 5*time.Second, func() bool { return len(dlSrv.ActiveDownloads()) == 0 })
	assert.True(t, ok)
}

func TestDownloadCancel(t *testing.T) {
	ctx, i := prepareTests(t)
	dlSrv := do.MustInvoke[*DownloadsSrv](i)

	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		w.WriteHeader(http.StatusOK)

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		// stall until the client goes away
		<-r.Context().Done()
	}))
	defer srv.Close()

	podcastid := prepareTestPodcast(ctx, t, i, "http://example.com/feed1")
	prepareTestEpisode(ctx, t, i, repository.EpisodeDB{
		PodcastID: podcastid, GUID: "ep1", AudioURL: srv.URL + "/ep1.mp3",
	})

	assert.NoErr(t, dlSrv.Download(ctx, "ep1"))

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("transfer never started")
	}

	assert.NoErr(t, dlSrv.CancelDownload(ctx, "ep1"))

	ok := waitFor(t, 5*time.Second, func() bool { return len(dlSrv.ActiveDownloads()) == 0 })
	assert.True(t, ok)

	// cancelled download leaves no downloading state behind
	eps := loadTestEpisode(ctx, t, i, "ep1")
	assert.Equal(t, eps.LocalFile, "")
	assert.True(t, eps.DownloadProgress == nil)
}

func TestDownloadResumeWithRange(t *testing.T) {
	ctx, i := prepareTests(t)
	dlSrv := do.MustInvoke[*DownloadsSrv](i)

	full := strings.Repeat("0123456789", 100)
	var gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		if gotRange == "" {
			_, _ = w.Write([]byte(full))

			return
		}

		var offset int
		_, _ = fmt.Sscanf(gotRange, "bytes=%d-", &offset)
		w.Header().Set("Content-Range",
			fmt.Sprintf("bytes %d-%d/%d", offset, len(full)-1, len(full)))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte(full[offset:]))
	}))
	defer srv.Close()

	podcastid := prepareTestPodcast(ctx, t, i, "http://example.com/feed1")
	prepareTestEpisode(ctx, t, i, repository.EpisodeDB{
		PodcastID: podcastid, GUID: "ep1", AudioURL: srv.URL + "/ep1.mp3",
	})

	// simulate an interrupted transfer: a .part file with the first 300 bytes
	partfile := filepath.Join(dlSrv.mediaDir, validators.SanitizeFilename("ep1")+partSuffix)
	assert.NoErr(t, os.WriteFile(partfile, []byte(full[:300]), 0o600))

	assert.NoErr(t, dlSrv.Download(ctx, "ep1"))

	ok := waitFor(t, 5*time.Second, func() bool {
		return loadTestEpisode(ctx, t, i, "ep1").LocalFile != ""
	})
	assert.True(t, ok)
	assert.Equal(t, gotRange, "bytes=300-")

	eps := loadTestEpisode(ctx, t, i, "ep1")
	data, err := os.ReadFile(filepath.Join(dlSrv.mediaDir, eps.LocalFile))
	assert.NoErr(t, err)
	assert.Equal(t, string(data), full)
}

func TestDownloadFailureClearsState(t *testing.T) {
	ctx, i := prepareTests(t)
	dlSrv := do.MustInvoke[*DownloadsSrv](i)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	podcastid := prepareTestPodcast(ctx, t, i, "http://example.com/feed1")
	prepareTestEpisode(ctx, t, i, repository.EpisodeDB{
		PodcastID: podcastid, GUID: "ep1", AudioURL: srv.URL + "/ep1.mp3",
	})

	assert.NoErr(t, dlSrv.Download(ctx, "ep1"))

	ok := waitFor(t, 5*time.Second, func() bool { return len(dlSrv.ActiveDownloads()) == 0 })
	assert.True(t, ok)

	eps := loadTestEpisode(ctx, t, i, "ep1")
	assert.Equal(t, eps.LocalFile, "")
	assert.True(t, eps.DownloadProgress == nil)
}

func TestRecoverOnLaunch(t *testing.T) {
	ctx, i := prepareTests(t)
	dlSrv := do.MustInvoke[*DownloadsSrv](i)

	podcastid := prepareTestPodcast(ctx, t, i, "http://example.com/feed1")

	// legacy absolute path with an existing file: rewritten to bare name
	assert.NoErr(t, os.WriteFile(filepath.Join(dlSrv.mediaDir, "legacy.mp3"), []byte("x"), 0o600))
	prepareTestEpisode(ctx, t, i, repository.EpisodeDB{
		PodcastID: podcastid, GUID: "legacy",
		AudioURL:  "http://example.com/legacy.mp3",
		LocalFile: "/old/media/dir/legacy.mp3",
	})

	// recorded file missing on disk: download state cleared
	prepareTestEpisode(ctx, t, i, repository.EpisodeDB{
		PodcastID: podcastid, GUID: "vanished",
		AudioURL:  "http://example.com/vanished.mp3",
		LocalFile: "vanished.mp3",
	})

	// stuck progress marker with no transfer behind it: cleared
	prepareTestEpisode(ctx, t, i, repository.EpisodeDB{
		PodcastID: podcastid, GUID: "stuck",
		AudioURL:         "http://example.com/stuck.mp3",
		DownloadProgress: floatPtr(0.4),
	})

	// orphan part file without a matching episode: removed
	orphan := filepath.Join(dlSrv.mediaDir, "no-such-episode.part")
	assert.NoErr(t, os.WriteFile(orphan, []byte("junk"), 0o600))

	assert.NoErr(t, dlSrv.RecoverOnLaunch(ctx))

	assert.Equal(t, loadTestEpisode(ctx, t, i, "legacy").LocalFile, "legacy.mp3")
	assert.Equal(t, loadTestEpisode(ctx, t, i, "vanished").LocalFile, "")
	assert.True(t, loadTestEpisode(ctx, t, i, "stuck").DownloadProgress == nil)

	_, err := os.Stat(orphan)
	assert.True(t, os.IsNotExist(err))
}
