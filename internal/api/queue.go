package api

// queue.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/rs/zerolog"
	"github.com/samber/do/v2"
	"gitlab.com/kabes/go-cast/internal/aerr"
	"gitlab.com/kabes/go-cast/internal/model"
	"gitlab.com/kabes/go-cast/internal/server/srvsupport"
	"gitlab.com/kabes/go-cast/internal/service"
)

// queueResource handle request to /api/1/queue resource.
type queueResource struct {
	queueSrv *service.QueueSrv
}

func newQueueResource(i do.Injector) (queueResource, error) {
	return queueResource{
		queueSrv: do.MustInvoke[*service.QueueSrv](i),
	}, nil
}

func (q queueResource) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Get("/", srvsupport.WrapNamed(q.list, "api_queue_list"))
	r.Post("/", srvsupport.WrapNamed(q.add, "api_queue_add"))
	r.Post("/next", srvsupport.WrapNamed(q.playNext, "api_queue_next"))
	r.Post("/move", srvsupport.WrapNamed(q.move, "api_queue_move"))
	r.Delete("/", srvsupport.WrapNamed(q.clear, "api_queue_clear"))
	r.Delete("/{guid}", srvsupport.WrapNamed(q.remove, "api_queue_remove"))

	return r
}

func (q queueResource) list(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
) {
	items, err := q.queueSrv.List(ctx)
	if err != nil {
		srvsupport.CheckAndWriteError(w, r, err)
		logger.WithLevel(aerr.LogLevelForError(err)).Err(err).Msg("list queue error")

		return
	}

	render.Status(r, http.StatusOK)
	srvsupport.RenderJSON(w, r, mapSlice(items, newQueueItemFromModel))
}

func (q queueResource) add(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
) {
	q.guidCommand(ctx, w, r, logger, q.queueSrv.Add, "add to queue error")
}

func (q queueResource) playNext(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
) {
	q.guidCommand(ctx, w, r, logger, q.queueSrv.PlayNext, "queue play next error")
}

func (q queueResource) move(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
) {
	var reqData struct {
		From int `json:"from"`
		To   int `json:"to"`
	}

	if err := render.DecodeJSON(r.Body, &reqData); err != nil {
		logger.Debug().Err(err).Msg("error decoding json payload")
		srvsupport.WriteError(w, r, http.StatusBadRequest, "")

		return
	}

	if err := q.queueSrv.Move(ctx, reqData.From, reqData.To); err != nil {
		srvsupport.CheckAndWriteError(w, r, err)
		logger.WithLevel(aerr.LogLevelForError(err)).Err(err).
			Int("from", reqData.From).Int("to", reqData.To).Msg("move queue item error")

		return
	}

	w.WriteHeader(http.StatusOK)
}

func (q queueResource) remove(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
) {
	guid := chi.URLParam(r, "guid")

	if err := q.queueSrv.Remove(ctx, guid); err != nil {
		srvsupport.CheckAndWriteError(w, r, err)
		logger.WithLevel(aerr.LogLevelForError(err)).Err(err).
			Str("guid", guid).Msg("remove from queue error")

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (q queueResource) clear(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
) {
	if err := q.queueSrv.Clear(ctx); err != nil {
		srvsupport.CheckAndWriteError(w, r, err)
		logger.WithLevel(aerr.LogLevelForError(err)).Err(err).Msg("clear queue error")

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// guidCommand decode a `{"guid": ...}` payload and run cmd on it.
func (q queueResource) guidCommand(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
	cmd func(ctx context.Context, guid string) error,
	errmsg string,
) {
	var reqData struct {
		GUID string `json:"guid"`
	}

	if err := render.DecodeJSON(r.Body, &reqData); err != nil {
		logger.Debug().Err(err).Msg("error decoding json payload")
		srvsupport.WriteError(w, r, http.StatusBadRequest, "")

		return
	}

	if err := cmd(ctx, reqData.GUID); err != nil {
		srvsupport.CheckAndWriteError(w, r, err)
		logger.WithLevel(aerr.LogLevelForError(err)).Err(err).
			Str("guid", reqData.GUID).Msg(errmsg)

		return
	}

	w.WriteHeader(http.StatusOK)
}

//-------------------------------------------------------------

type queueItem struct {
	SortOrder int64   `json:"sort_order"`
	Episode   episode `json:"episode"`
}

func newQueueItemFromModel(q *model.QueueItem) queueItem {
	return queueItem{
		SortOrder: q.SortOrder,
		Episode:   newEpisodeFromModel(&q.Episode),
	}
}
