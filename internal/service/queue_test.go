package service

//
// queue_test.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//
import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/samber/do/v2"

	"gitlab.com/kabes/go-cast/internal/assert"
	"gitlab.com/kabes/go-cast/internal/netstatus"
	"gitlab.com/kabes/go-cast/internal/repository"
)

func prepareQueueEpisodes(ctx context.Context, t *testing.T, i do.Injector, guids ...string) {
	t.Helper()

	podcastid := prepareTestPodcast(ctx, t, i, "http://example.com/feed1")

	for _, guid := range guids {
		// mark downloaded so enqueuing never reaches for the network
		prepareTestEpisode(ctx, t, i, repository.EpisodeDB{
			PodcastID: podcastid, GUID: guid,
			AudioURL:  "http://example.com/" + guid + ".mp3",
			LocalFile: guid + ".mp3",
		})
	}
}

func queueGUIDs(ctx context.Context, t *testing.T, q *QueueSrv) []string {
	t.Helper()

	items, err := q.List(ctx)
	assert.NoErr(t, err)

	res := make([]string, len(items))
	for i, item := range items {
		res[i] = item.Episode.GUID
	}

	return res
}

func TestQueueFIFO(t *testing.T) {
	ctx, i := prepareTests(t)
	queueSrv := do.MustInvoke[*QueueSrv](i)
	prepareQueueEpisodes(ctx, t, i, "ep1", "ep2", "ep3")

	assert.NoErr(t, queueSrv.Add(ctx, "ep1"))
	assert.NoErr(t, queueSrv.Add(ctx, "ep2"))
	assert.NoErr(t, queueSrv.Add(ctx, "ep3"))

	// duplicates are no-ops
	assert.NoErr(t, queueSrv.Add(ctx, "ep2"))
	assert.Equal(t, queueGUIDs(ctx, t, queueSrv), []string{"ep1", "ep2", "ep3"})

	eps, err := queueSrv.Pop(ctx)
	assert.NoErr(t, err)
	assert.Equal(t, eps.GUID, "ep1")

	eps, err = queueSrv.Pop(ctx)
	assert.NoErr(t, err)
	assert.Equal(t, eps.GUID, "ep2")

	eps, err = queueSrv.Pop(ctx)
	assert.NoErr(t, err)
	assert.Equal(t, eps.GUID, "ep3")

	eps, err = queueSrv.Pop(ctx)
	assert.NoErr(t, err)
	assert.True(t, eps == nil)
}

func TestQueuePlayNext(t *testing.T) {
	ctx, i := prepareTests(t)
	queueSrv := do.MustInvoke[*QueueSrv](i)
	prepareQueueEpisodes(ctx, t, i, "ep1", "ep2", "ep3")

	assert.NoErr(t, queueSrv.Add(ctx, "ep1"))
	assert.NoErr(t, queueSrv.Add(ctx, "ep2"))

	// a fresh episode lands at the front
	assert.NoErr(t, queueSrv.PlayNext(ctx, "ep3"))
	assert.Equal(t, queueGUIDs(ctx, t, queueSrv), []string{"ep3", "ep1", "ep2"})

	// an already queued episode moves, not duplicates
	assert.NoErr(t, queueSrv.PlayNext(ctx, "ep2"))
	assert.Equal(t, queueGUIDs(ctx, t, queueSrv), []string{"ep2", "ep3", "ep1"})

	head, err := queueSrv.Peek(ctx)
	assert.NoErr(t, err)
	assert.Equal(t, head.GUID, "ep2")
}

func TestQueueRemoveAndClear(t *testing.T) {
	ctx, i := prepareTests(t)
	queueSrv := do.MustInvoke[*QueueSrv](i)
	prepareQueueEpisodes(ctx, t, i, "ep1", "ep2")

	assert.NoErr(t, queueSrv.Add(ctx, "ep1"))
	assert.NoErr(t, queueSrv.Add(ctx, "ep2"))

	assert.True(t, queueSrv.IsQueued(ctx, "ep1"))
	assert.NoErr(t, queueSrv.Remove(ctx, "ep1"))
	assert.True(t, !queueSrv.IsQueued(ctx, "ep1"))

	// removing a not-queued episode is a no-op
	assert.NoErr(t, queueSrv.Remove(ctx, "ep1"))
	assert.Equal(t, queueGUIDs(ctx, t, queueSrv), []string{"ep2"})

	assert.NoErr(t, queueSrv.Clear(ctx))
	assert.Equal(t, len(queueGUIDs(ctx, t, queueSrv)), 0)
	assert.True(t, !queueSrv.IsQueued(ctx, "ep2"))
}

func TestQueueMove(t *testing.T) {
	ctx, i := prepareTests(t)
	queueSrv := do.MustInvoke[*QueueSrv](i)
	prepareQueueEpisodes(ctx, t, i, "ep1", "ep2", "ep3", "ep4")

	for _, guid := range []string{"ep1", "ep2", "ep3", "ep4"} {
		assert.NoErr(t, queueSrv.Add(ctx, guid))
	}

	assert.NoErr(t, queueSrv.Move(ctx, 0, 2))
	assert.Equal(t, queueGUIDs(ctx, t, queueSrv), []string{"ep2", "ep3", "ep1", "ep4"})

	assert.NoErr(t, queueSrv.Move(ctx, 3, 0))
	assert.Equal(t, queueGUIDs(ctx, t, queueSrv), []string{"ep4", "ep2", "ep3", "ep1"})

	assert.Err(t, queueSrv.Move(ctx, 0, 7))
	assert.Err(t, queueSrv.Move(ctx, -1, 0))
}

func TestQueueAddStartsDownload(t *testing.T) {
	ctx, i := prepareTests(t)
	queueSrv := do.MustInvoke[*QueueSrv](i)
	do.MustInvoke[*netstatus.Observer](i).SetOverride(netstatus.ConnectionWifi)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("audio"))
	}))
	defer srv.Close()

	podcastid := prepareTestPodcast(ctx, t, i, "http://example.com/feed1")
	prepareTestEpisode(ctx, t, i, repository.EpisodeDB{
		PodcastID: podcastid, GUID: "ep1", AudioURL: srv.URL + "/ep1.mp3",
	})

	assert.NoErr(t, queueSrv.Add(ctx, "ep1"))

	ok := waitFor(t, 5*time.Second, func() bool {
		return loadTestEpisode(ctx, t, i, "ep1").LocalFile != ""
	})
	assert.True(t, ok)
	assert.True(t, queueSrv.IsQueued(ctx, "ep1"))
}

func TestQueueMembershipLoadedFromDB(t *testing.T) {
	ctx, i := prepareTests(t)
	queueSrv := do.MustInvoke[*QueueSrv](i)
	prepareQueueEpisodes(ctx, t, i, "ep1")

	// row written directly, bypassing the service
	eps := loadTestEpisode(ctx, t, i, "ep1")
	insertQueueRow(ctx, t, i, eps.ID, 1)

	// membership set is rebuilt lazily from the table
	assert.True(t, queueSrv.IsQueued(ctx, "ep1"))
}
