package api

// system.go
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

// systemResource handle request to /api/1/system resource.
type systemResource struct {
	cleanupSrv *service.CleanupSrv
	statsSrv   *service.StatsSrv
}

func newSystemResource(i do.Injector) (systemResource, error) {
	return systemResource{
		cleanupSrv: do.MustInvoke[*service.CleanupSrv](i),
		statsSrv:   do.MustInvoke[*service.StatsSrv](i),
	}, nil
}

func (s systemResource) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Post("/cleanup", srvsupport.WrapNamed(s.cleanup, "api_system_cleanup"))
	r.Get("/stats", srvsupport.WrapNamed(s.stats, "api_system_stats"))

	return r
}

func (s systemResource) cleanup(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
) {
	if err := s.cleanupSrv.EnforceAllLimits(ctx); err != nil {
		srvsupport.CheckAndWriteError(w, r, err)
		logger.WithLevel(aerr.LogLevelForError(err)).Err(err).Msg("cleanup error")

		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s systemResource) stats(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
) {
	since, err := getSinceParameter(r)
	if err != nil {
		logger.Debug().Err(err).Msg("invalid since parameter")
		srvsupport.WriteError(w, r, http.StatusBadRequest, "")

		return
	}

	listened, err := s.statsSrv.ListenedSince(ctx, since)
	if err != nil {
		srvsupport.CheckAndWriteError(w, r, err)
		logger.WithLevel(aerr.LogLevelForError(err)).Err(err).Msg("get listening stats error")

		return
	}

	res := struct {
		ListenedSec float64 `json:"listened_sec"`
	}{listened}

	render.Status(r, http.StatusOK)
	srvsupport.RenderJSON(w, r, &res)
}
