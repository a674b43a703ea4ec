package api

//
// api_test.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//
import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	stdlog "log"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"

	"gitlab.com/kabes/go-cast/internal/assert"
	"gitlab.com/kabes/go-cast/internal/db"
	"gitlab.com/kabes/go-cast/internal/events"
	"gitlab.com/kabes/go-cast/internal/netstatus"
	"gitlab.com/kabes/go-cast/internal/repository"
	"gitlab.com/kabes/go-cast/internal/service"
)

func prepareAPITests(t *testing.T) (context.Context, *do.RootScope, *chi.Mux) {
	t.Helper()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout}).With().Caller().Logger()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)

	ctx := log.Logger.WithContext(context.Background())
	i := do.New(service.Package, db.Package, repository.Package, events.Package,
		netstatus.Package, Package)
	do.ProvideNamedValue(i, "mediadir", t.TempDir())

	database := do.MustInvoke[*db.Database](i)
	if err := database.Connect(ctx, "sqlite3", ":memory:"); err != nil {
		t.Fatalf("connect to db error: %#+v", err)
	}

	if err := database.Migrate(ctx, "sqlite3"); err != nil {
		t.Fatalf("prepare db error: %#+v", err)
	}

	// player routes need the playback engine loop running, so mount
	// everything but /player here.
	router := chi.NewRouter()
	router.Mount("/podcasts", do.MustInvoke[podcastsResource](i).Routes())
	router.Mount("/queue", do.MustInvoke[queueResource](i).Routes())
	router.Mount("/downloads", do.MustInvoke[downloadsResource](i).Routes())
	router.Mount("/settings", do.MustInvoke[settingsResource](i).Routes())
	router.Mount("/system", do.MustInvoke[systemResource](i).Routes())

	return ctx, i, router
}

func doJSONRequest(t *testing.T, router *chi.Mux, method, target string, payload any,
) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload failed: %#+v", err)
		}

		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	return rec
}

func decodeResponse[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var res T
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response %q failed: %#+v", rec.Body.String(), err)
	}

	return res
}

func prepareTestFeed(t *testing.T, router *chi.Mux) int64 {
	t.Helper()

	feed := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/rss+xml")
			_, _ = w.Write([]byte(testAPIFeed))
		}))
	t.Cleanup(feed.Close)

	rec := doJSONRequest(t, router, http.MethodPost, "/podcasts",
		map[string]string{"feed_url": feed.URL + "/feed.xml"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("subscribe failed: %d %s", rec.Code, rec.Body.String())
	}

	pod := decodeResponse[podcast](t, rec)
	if pod.ID <= 0 {
		t.Fatalf("subscribe returned invalid podcast: %#+v", pod)
	}

	return pod.ID
}

const testAPIFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">
<channel>
<title>Api Cast</title>
<description>feed for api tests</description>
<item>
<title>First</title>
<guid>api-ep-1</guid>
<pubDate>Mon, 05 Jan 2026 10:00:00 GMT</pubDate>
<enclosure url="http://example.com/media/1.mp3" type="audio/mpeg" length="1000"/>
</item>
<item>
<title>Second</title>
<guid>api-ep-2</guid>
<pubDate>Mon, 12 Jan 2026 10:00:00 GMT</pubDate>
<enclosure url="http://example.com/media/2.mp3" type="audio/mpeg" length="1000"/>
</item>
</channel>
</rss>
`

func TestAPIPodcasts(t *testing.T) {
	_, _, router := prepareAPITests(t)

	podcastid := prepareTestFeed(t, router)

	rec := doJSONRequest(t, router, http.MethodGet, "/podcasts", nil)
	assert.Equal(t, rec.Code, http.StatusOK)

	podcasts := decodeResponse[[]podcast](t, rec)
	assert.Equal(t, len(podcasts), 1)
	assert.Equal(t, podcasts[0].Title, "Api Cast")

	rec = doJSONRequest(t, router, http.MethodGet,
		"/podcasts/"+strconv.FormatInt(podcastid, 10)+"/episodes", nil)
	assert.Equal(t, rec.Code, http.StatusOK)

	episodes := decodeResponse[[]episode](t, rec)
	assert.Equal(t, len(episodes), 2)
	// newest first
	assert.Equal(t, episodes[0].GUID, "api-ep-2")

	rec = doJSONRequest(t, router, http.MethodPost,
		"/podcasts/"+strconv.FormatInt(podcastid, 10)+"/refresh", nil)
	assert.Equal(t, rec.Code, http.StatusOK)

	refreshed := decodeResponse[struct {
		NewEpisodes int `json:"new_episodes"`
	}](t, rec)
	assert.Equal(t, refreshed.NewEpisodes, 0)

	// unknown podcast
	rec = doJSONRequest(t, router, http.MethodGet, "/podcasts/9999/episodes", nil)
	assert.Equal(t, rec.Code, http.StatusNotFound)

	// not a valid id
	rec = doJSONRequest(t, router, http.MethodGet, "/podcasts/0/episodes", nil)
	assert.Equal(t, rec.Code, http.StatusBadRequest)

	rec = doJSONRequest(t, router, http.MethodDelete,
		"/podcasts/"+strconv.FormatInt(podcastid, 10), nil)
	assert.Equal(t, rec.Code, http.StatusNoContent)

	rec = doJSONRequest(t, router, http.MethodGet, "/podcasts", nil)
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, len(decodeResponse[[]podcast](t, rec)), 0)
}

func TestAPIQueue(t *testing.T) {
	_, _, router := prepareAPITests(t)

	prepareTestFeed(t, router)

	rec := doJSONRequest(t, router, http.MethodGet, "/queue", nil)
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, len(decodeResponse[[]queueItem](t, rec)), 0)

	rec = doJSONRequest(t, router, http.MethodPost, "/queue",
		map[string]string{"guid": "api-ep-1"})
	assert.Equal(t, rec.Code, http.StatusOK)

	rec = doJSONRequest(t, router, http.MethodPost, "/queue",
		map[string]string{"guid": "api-ep-2"})
	assert.Equal(t, rec.Code, http.StatusOK)

	rec = doJSONRequest(t, router, http.MethodGet, "/queue", nil)
	items := decodeResponse[[]queueItem](t, rec)
	assert.Equal(t, len(items), 2)
	assert.Equal(t, items[0].Episode.GUID, "api-ep-1")

	// play next moves the episode to the front
	rec = doJSONRequest(t, router, http.MethodPost, "/queue/next",
		map[string]string{"guid": "api-ep-2"})
	assert.Equal(t, rec.Code, http.StatusOK)

	rec = doJSONRequest(t, router, http.MethodGet, "/queue", nil)
	items = decodeResponse[[]queueItem](t, rec)
	assert.Equal(t, items[0].Episode.GUID, "api-ep-2")

	rec = doJSONRequest(t, router, http.MethodPost, "/queue/move",
		map[string]int{"from": 0, "to": 1})
	assert.Equal(t, rec.Code, http.StatusOK)

	rec = doJSONRequest(t, router, http.MethodDelete, "/queue/api-ep-1", nil)
	assert.Equal(t, rec.Code, http.StatusNoContent)

	rec = doJSONRequest(t, router, http.MethodDelete, "/queue/no-such-guid", nil)
	assert.Equal(t, rec.Code, http.StatusNotFound)

	rec = doJSONRequest(t, router, http.MethodPost, "/queue",
		map[string]string{"guid": "no-such-guid"})
	assert.Equal(t, rec.Code, http.StatusNotFound)

	rec = doJSONRequest(t, router, http.MethodDelete, "/queue", nil)
	assert.Equal(t, rec.Code, http.StatusNoContent)

	rec = doJSONRequest(t, router, http.MethodGet, "/queue", nil)
	assert.Equal(t, len(decodeResponse[[]queueItem](t, rec)), 0)
}

func TestAPISettings(t *testing.T) {
	_, _, router := prepareAPITests(t)

	rec := doJSONRequest(t, router, http.MethodGet, "/settings", nil)
	assert.Equal(t, rec.Code, http.StatusOK)

	sett := decodeResponse[settings](t, rec)
	assert.Equal(t, sett.PlaybackSpeed, 1.0)
	assert.Equal(t, sett.SkipForwardSec, 30)
	assert.Equal(t, sett.SkipBackwardSec, 15)
	assert.Equal(t, sett.ManualDownloadPolicy, "always")
	assert.Equal(t, sett.AutoDownloadPolicy, "wifi_only")

	// partial update; omitted keys keep their values
	rec = doJSONRequest(t, router, http.MethodPut, "/settings",
		map[string]any{"playback_speed": 1.5, "storage_limit_bytes": 1 << 30})
	assert.Equal(t, rec.Code, http.StatusOK)

	sett = decodeResponse[settings](t, rec)
	assert.Equal(t, sett.PlaybackSpeed, 1.5)
	assert.Equal(t, sett.StorageLimitBytes, int64(1<<30))
	assert.Equal(t, sett.SkipForwardSec, 30)

	rec = doJSONRequest(t, router, http.MethodGet, "/settings", nil)
	sett = decodeResponse[settings](t, rec)
	assert.Equal(t, sett.PlaybackSpeed, 1.5)

	// out-of-range speed is rejected
	rec = doJSONRequest(t, router, http.MethodPut, "/settings",
		map[string]any{"playback_speed": 9.0})
	assert.Equal(t, rec.Code, http.StatusBadRequest)

	rec = doJSONRequest(t, router, http.MethodPut, "/settings",
		map[string]any{"manual_download_policy": "sometimes"})
	assert.Equal(t, rec.Code, http.StatusBadRequest)
}

func TestAPIDownloads(t *testing.T) {
	_, _, router := prepareAPITests(t)

	prepareTestFeed(t, router)

	rec := doJSONRequest(t, router, http.MethodGet, "/downloads", nil)
	assert.Equal(t, rec.Code, http.StatusOK)

	status := decodeResponse[struct {
		Active         []string `json:"active"`
		TotalSizeBytes int64    `json:"total_size_bytes"`
	}](t, rec)
	assert.Equal(t, len(status.Active), 0)
	assert.Equal(t, status.TotalSizeBytes, int64(0))

	rec = doJSONRequest(t, router, http.MethodPost, "/downloads",
		map[string]any{"guid": "no-such-guid"})
	assert.Equal(t, rec.Code, http.StatusNotFound)

	// deleting a never-downloaded episode is a no-op
	rec = doJSONRequest(t, router, http.MethodDelete, "/downloads/api-ep-1", nil)
	assert.Equal(t, rec.Code, http.StatusNoContent)
}

func TestAPISystem(t *testing.T) {
	_, _, router := prepareAPITests(t)

	rec := doJSONRequest(t, router, http.MethodPost, "/system/cleanup", nil)
	assert.Equal(t, rec.Code, http.StatusOK)

	rec = doJSONRequest(t, router, http.MethodGet, "/system/stats", nil)
	assert.Equal(t, rec.Code, http.StatusOK)

	stats := decodeResponse[struct {
		ListenedSec float64 `json:"listened_sec"`
	}](t, rec)
	assert.Equal(t, stats.ListenedSec, 0.0)

	rec = doJSONRequest(t, router, http.MethodGet, "/system/stats?since=123456", nil)
	assert.Equal(t, rec.Code, http.StatusOK)

	rec = doJSONRequest(t, router, http.MethodGet, "/system/stats?since=abc", nil)
	assert.Equal(t, rec.Code, http.StatusBadRequest)
}

func TestGetSinceParameter(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)

	since, err := getSinceParameter(req)
	assert.NoErr(t, err)
	assert.True(t, since.IsZero())

	req = httptest.NewRequest(http.MethodGet, "/stats?since=1767600000", nil)

	since, err = getSinceParameter(req)
	assert.NoErr(t, err)
	assert.Equal(t, since, time.Unix(1767600000, 0).UTC())

	req = httptest.NewRequest(http.MethodGet, "/stats?since=later", nil)

	_, err = getSinceParameter(req)
	assert.Err(t, err)
}
