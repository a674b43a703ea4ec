package api

// downloads.go
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
	"gitlab.com/kabes/go-cast/internal/server/srvsupport"
	"gitlab.com/kabes/go-cast/internal/service"
)

// downloadsResource handle request to /api/1/downloads resource.
type downloadsResource struct {
	downloadsSrv *service.DownloadsSrv
}

func newDownloadsResource(i do.Injector) (downloadsResource, error) {
	return downloadsResource{
		downloadsSrv: do.MustInvoke[*service.DownloadsSrv](i),
	}, nil
}

func (d downloadsResource) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Get("/", srvsupport.WrapNamed(d.list, "api_downloads_list"))
	r.Post("/", srvsupport.WrapNamed(d.start, "api_downloads_start"))
	r.Post("/{guid}/cancel", srvsupport.WrapNamed(d.cancel, "api_downloads_cancel"))
	r.Delete("/{guid}", srvsupport.WrapNamed(d.delete, "api_downloads_delete"))

	return r
}

func (d downloadsResource) list(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
) {
	total, err := d.downloadsSrv.TotalDownloadSize(ctx)
	if err != nil {
		srvsupport.CheckAndWriteError(w, r, err)
		logger.WithLevel(aerr.LogLevelForError(err)).Err(err).Msg("get download size error")

		return
	}

	res := struct {
		Active         []string `json:"active"`
		TotalSizeBytes int64    `json:"total_size_bytes"`
	}{
		Active:         d.downloadsSrv.ActiveDownloads(),
		TotalSizeBytes: total,
	}

	render.Status(r, http.StatusOK)
	srvsupport.RenderJSON(w, r, &res)
}

func (d downloadsResource) start(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
) {
	var reqData struct {
		GUID      string `json:"guid"`
		Confirmed bool   `json:"confirmed"`
	}

	if err := render.DecodeJSON(r.Body, &reqData); err != nil {
		logger.Debug().Err(err).Msg("error decoding json payload")
		srvsupport.WriteError(w, r, http.StatusBadRequest, "")

		return
	}

	decision, err := d.downloadsSrv.RequestDownload(ctx, reqData.GUID, reqData.Confirmed)
	if err != nil {
		srvsupport.CheckAndWriteError(w, r, err)
		logger.WithLevel(aerr.LogLevelForError(err)).Err(err).
			Str("guid", reqData.GUID).Msg("start download error")

		return
	}

	res := struct {
		Decision service.DownloadDecision `json:"decision"`
	}{decision}

	render.Status(r, http.StatusAccepted)
	srvsupport.RenderJSON(w, r, &res)
}

func (d downloadsResource) cancel(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
) {
	guid := chi.URLParam(r, "guid")

	if err := d.downloadsSrv.CancelDownload(ctx, guid); err != nil {
		srvsupport.CheckAndWriteError(w, r, err)
		logger.WithLevel(aerr.LogLevelForError(err)).Err(err).
			Str("guid", guid).Msg("cancel download error")

		return
	}

	w.WriteHeader(http.StatusOK)
}

func (d downloadsResource) delete(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
) {
	guid := chi.URLParam(r, "guid")

	if err := d.downloadsSrv.DeleteDownload(ctx, guid); err != nil {
		srvsupport.CheckAndWriteError(w, r, err)
		logger.WithLevel(aerr.LogLevelForError(err)).Err(err).
			Str("guid", guid).Msg("delete download error")

		return
	}

	w.WriteHeader(http.StatusNoContent)
}
