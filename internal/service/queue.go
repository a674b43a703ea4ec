package service

//
// queue.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"
	"gitlab.com/kabes/go-cast/internal/aerr"
	"gitlab.com/kabes/go-cast/internal/db"
	"gitlab.com/kabes/go-cast/internal/model"
	"gitlab.com/kabes/go-cast/internal/repository"
)

// QueueSrv maintain the ordered "up next" list. A guid set is kept in
// sync with every mutation so queue-membership checks don't scan the
// table.
type QueueSrv struct {
	db           *db.Database
	queueRepo    repository.QueueRepository
	episodesRepo repository.EpisodesRepository
	downloads    *DownloadsSrv

	mu       sync.Mutex
	queued   map[string]bool
	loadOnce sync.Once
}

func NewQueueSrv(i do.Injector) (*QueueSrv, error) {
	return &QueueSrv{
		db:           do.MustInvoke[*db.Database](i),
		queueRepo:    do.MustInvoke[repository.QueueRepository](i),
		episodesRepo: do.MustInvoke[repository.EpisodesRepository](i),
		downloads:    do.MustInvoke[*DownloadsSrv](i),
		queued:       make(map[string]bool),
	}, nil
}

// List return the queue in play order.
func (q *QueueSrv) List(ctx context.Context) ([]model.QueueItem, error) {
	items, err := db.InConnectionR(ctx, q.db,
		func(dbctx repository.DBContext) ([]repository.QueueItemDB, error) {
			return q.queueRepo.ListQueue(ctx, dbctx)
		})
	if err != nil {
		return nil, aerr.ApplyFor(ErrRepositoryError, err)
	}

	res := make([]model.QueueItem, len(items))
	for i := range items {
		res[i] = items[i].ToModel()
	}

	return res, nil
}

// Add append an episode at the end of the queue; no-op when already
// queued. Starts a best-effort download for episodes without a local
// file; a blocked or failed download never fails the enqueue.
func (q *QueueSrv) Add(ctx context.Context, guid string) error {
	logger := log.Ctx(ctx)

	episode, err := q.downloads.getEpisode(ctx, guid)
	if err != nil {
		return err
	}

	if q.IsQueued(ctx, guid) {
		logger.Debug().Str("guid", guid).Msg("already queued")

		return nil
	}

	err = db.InTransaction(ctx, q.db, func(dbctx repository.DBContext) error {
		maxOrder, err := q.queueRepo.GetMaxSortOrder(ctx, dbctx)
		if err != nil {
			return err
		}

		return q.queueRepo.InsertItem(ctx, dbctx, episode.ID, maxOrder+1)
	})
	if err != nil {
		return aerr.ApplyFor(ErrRepositoryError, err)
	}

	q.markQueued(guid, true)
	logger.Info().Str("guid", guid).Msg("episode queued")

	if !episode.IsDownloaded() {
		q.requestDownload(ctx, episode)
	}

	return nil
}

// PlayNext put an episode at the front of the queue, removing any
// existing entry for it first.
func (q *QueueSrv) PlayNext(ctx context.Context, guid string) error {
	episode, err := q.downloads.getEpisode(ctx, guid)
	if err != nil {
		return err
	}

	err = db.InTransaction(ctx, q.db, func(dbctx repository.DBContext) error {
		err := q.queueRepo.DeleteItemByEpisode(ctx, dbctx, episode.ID)
		if err != nil && !errors.Is(err, repository.ErrNoData) {
			return err
		}

		if err := q.queueRepo.ShiftSortOrders(ctx, dbctx, 1); err != nil {
			return err
		}

		return q.queueRepo.InsertItem(ctx, dbctx, episode.ID, 0)
	})
	if err != nil {
		return aerr.ApplyFor(ErrRepositoryError, err)
	}

	q.markQueued(guid, true)
	log.Ctx(ctx).Info().Str("guid", guid).Msg("episode queued to play next")

	if !episode.IsDownloaded() {
		q.requestDownload(ctx, episode)
	}

	return nil
}

func (q *QueueSrv) Remove(ctx context.Context, guid string) error {
	episode, err := q.downloads.getEpisode(ctx, guid)
	if err != nil {
		return err
	}

	err = db.InTransaction(ctx, q.db, func(dbctx repository.DBContext) error {
		return q.queueRepo.DeleteItemByEpisode(ctx, dbctx, episode.ID)
	})

	switch {
	case errors.Is(err, repository.ErrNoData):
		return nil
	case err != nil:
		return aerr.ApplyFor(ErrRepositoryError, err)
	}

	q.markQueued(guid, false)

	return nil
}

// IsQueued check queue membership by guid against the maintained set.
func (q *QueueSrv) IsQueued(ctx context.Context, guid string) bool {
	q.ensureLoaded(ctx)

	q.mu.Lock()
	defer q.mu.Unlock()

	return q.queued[guid]
}

// Pop return and remove the head of the queue; nil when empty. The sole
// auto-advance mechanism of the playback engine.
func (q *QueueSrv) Pop(ctx context.Context) (*model.Episode, error) {
	var episode *model.Episode

	err := db.InTransaction(ctx, q.db, func(dbctx repository.DBContext) error {
		items, err := q.queueRepo.ListQueue(ctx, dbctx)
		if err != nil {
			return err
		}

		if len(items) == 0 {
			return nil
		}

		head := items[0].ToModel()
		episode = &head.Episode

		return q.queueRepo.DeleteItemByEpisode(ctx, dbctx, head.EpisodeID)
	})
	if err != nil {
		return nil, aerr.ApplyFor(ErrRepositoryError, err)
	}

	if episode != nil {
		q.markQueued(episode.GUID, false)
	}

	return episode, nil
}

// Peek return the head of the queue without removing it; nil when empty.
func (q *QueueSrv) Peek(ctx context.Context) (*model.Episode, error) {
	items, err := q.List(ctx)
	if err != nil {
		return nil, err
	}

	if len(items) == 0 {
		return nil, nil //nolint:nilnil
	}

	return &items[0].Episode, nil
}

// Move reposition the item currently at offset `from` to offset `to` and
// renumber the whole queue. Queues are small; full renumbering is the
// simplest correct approach.
func (q *QueueSrv) Move(ctx context.Context, from, to int) error {
	//nolint:wrapcheck
	return db.InTransaction(ctx, q.db, func(dbctx repository.DBContext) error {
		items, err := q.queueRepo.ListQueue(ctx, dbctx)
		if err != nil {
			return aerr.ApplyFor(ErrRepositoryError, err)
		}

		if from < 0 || from >= len(items) || to < 0 || to >= len(items) {
			return aerr.ErrValidation.WithUserMsg("invalid queue position").
				WithMeta("from", from, "to", to)
		}

		item := items[from]
		items = append(items[:from], items[from+1:]...)
		items = append(items[:to], append([]repository.QueueItemDB{item}, items[to:]...)...)

		for idx := range items {
			if err := q.queueRepo.UpdateSortOrder(ctx, dbctx, items[idx].ID, int64(idx)); err != nil {
				return aerr.ApplyFor(ErrRepositoryError, err)
			}
		}

		return nil
	})
}

func (q *QueueSrv) Clear(ctx context.Context) error {
	err := db.InTransaction(ctx, q.db, func(dbctx repository.DBContext) error {
		return q.queueRepo.DeleteAll(ctx, dbctx)
	})
	if err != nil {
		return aerr.ApplyFor(ErrRepositoryError, err)
	}

	q.mu.Lock()
	q.queued = make(map[string]bool)
	q.mu.Unlock()

	return nil
}

//------------------------------------------------------------------------------

func (q *QueueSrv) requestDownload(ctx context.Context, episode *model.Episode) {
	logger := log.Ctx(ctx)

	decision, err := q.downloads.CheckDownloadAllowed(ctx, episode, false)
	if err != nil {
		logger.Warn().Err(err).Str("guid", episode.GUID).Msg("queue download check failed")

		return
	}

	if decision != DownloadStarted {
		logger.Debug().Str("guid", episode.GUID).Str("decision", string(decision)).
			Msg("queue download not started")

		return
	}

	if err := q.downloads.Download(ctx, episode.GUID); err != nil {
		logger.Warn().Err(err).Str("guid", episode.GUID).Msg("queue download failed to start")
	}
}

func (q *QueueSrv) markQueued(guid string, queued bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if queued {
		q.queued[guid] = true
	} else {
		delete(q.queued, guid)
	}
}

func (q *QueueSrv) ensureLoaded(ctx context.Context) {
	q.loadOnce.Do(func() {
		items, err := q.List(ctx)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("load queue membership failed")

			return
		}

		q.mu.Lock()
		defer q.mu.Unlock()

		for _, item := range items {
			q.queued[item.Episode.GUID] = true
		}
	})
}
