package api

// player.go
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

// playerResource handle request to /api/1/player resource.
type playerResource struct {
	playbackSrv *service.PlaybackSrv
}

func newPlayerResource(i do.Injector) (playerResource, error) {
	return playerResource{
		playbackSrv: do.MustInvoke[*service.PlaybackSrv](i),
	}, nil
}

func (p playerResource) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Get("/", srvsupport.WrapNamed(p.status, "api_player_status"))
	r.Post("/play", srvsupport.WrapNamed(p.play, "api_player_play"))
	r.Post("/pause", srvsupport.WrapNamed(p.pause, "api_player_pause"))
	r.Post("/resume", srvsupport.WrapNamed(p.resume, "api_player_resume"))
	r.Post("/toggle", srvsupport.WrapNamed(p.toggle, "api_player_toggle"))
	r.Post("/stop", srvsupport.WrapNamed(p.stop, "api_player_stop"))
	r.Post("/seek", srvsupport.WrapNamed(p.seek, "api_player_seek"))
	r.Post("/skip-forward", srvsupport.WrapNamed(p.skipForward, "api_player_skip_fwd"))
	r.Post("/skip-backward", srvsupport.WrapNamed(p.skipBackward, "api_player_skip_back"))
	r.Put("/sleep", srvsupport.WrapNamed(p.setSleep, "api_player_sleep_put"))
	r.Delete("/sleep", srvsupport.WrapNamed(p.cancelSleep, "api_player_sleep_del"))

	return r
}

func (p playerResource) status(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
) {
	status, err := p.playbackSrv.Status(ctx)
	if err != nil {
		srvsupport.CheckAndWriteError(w, r, err)
		logger.WithLevel(aerr.LogLevelForError(err)).Err(err).Msg("get playback status error")

		return
	}

	render.Status(r, http.StatusOK)
	srvsupport.RenderJSON(w, r, status)
}

func (p playerResource) play(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
) {
	var reqData struct {
		GUID string `json:"guid"`
	}

	if err := render.DecodeJSON(r.Body, &reqData); err != nil {
		logger.Debug().Err(err).Msg("error decoding json payload")
		srvsupport.WriteError(w, r, http.StatusBadRequest, "")

		return
	}

	if err := p.playbackSrv.Play(ctx, reqData.GUID); err != nil {
		srvsupport.CheckAndWriteError(w, r, err)
		logger.WithLevel(aerr.LogLevelForError(err)).Err(err).
			Str("guid", reqData.GUID).Msg("play error")

		return
	}

	w.WriteHeader(http.StatusOK)
}

func (p playerResource) pause(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
) {
	p.simpleCommand(ctx, w, r, logger, p.playbackSrv.Pause, "pause error")
}

func (p playerResource) resume(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
) {
	p.simpleCommand(ctx, w, r, logger, p.playbackSrv.Resume, "resume error")
}

func (p playerResource) toggle(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
) {
	p.simpleCommand(ctx, w, r, logger, p.playbackSrv.TogglePause, "toggle pause error")
}

func (p playerResource) stop(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
) {
	p.simpleCommand(ctx, w, r, logger, p.playbackSrv.Stop, "stop error")
}

func (p playerResource) skipForward(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
) {
	p.simpleCommand(ctx, w, r, logger, p.playbackSrv.SkipForward, "skip forward error")
}

func (p playerResource) skipBackward(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
) {
	p.simpleCommand(ctx, w, r, logger, p.playbackSrv.SkipBackward, "skip backward error")
}

func (p playerResource) seek(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
) {
	var reqData struct {
		Position float64 `json:"position"`
	}

	if err := render.DecodeJSON(r.Body, &reqData); err != nil {
		logger.Debug().Err(err).Msg("error decoding json payload")
		srvsupport.WriteError(w, r, http.StatusBadRequest, "")

		return
	}

	if err := p.playbackSrv.SeekTo(ctx, reqData.Position); err != nil {
		srvsupport.CheckAndWriteError(w, r, err)
		logger.WithLevel(aerr.LogLevelForError(err)).Err(err).
			Float64("position", reqData.Position).Msg("seek error")

		return
	}

	w.WriteHeader(http.StatusOK)
}

func (p playerResource) setSleep(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
) {
	var reqData struct {
		Minutes int  `json:"minutes"`
		AtEnd   bool `json:"at_end"`
	}

	if err := render.DecodeJSON(r.Body, &reqData); err != nil {
		logger.Debug().Err(err).Msg("error decoding json payload")
		srvsupport.WriteError(w, r, http.StatusBadRequest, "")

		return
	}

	var err error
	if reqData.AtEnd {
		err = p.playbackSrv.SetSleepAtEnd(ctx)
	} else {
		err = p.playbackSrv.SetSleepTimer(ctx, reqData.Minutes)
	}

	if err != nil {
		srvsupport.CheckAndWriteError(w, r, err)
		logger.WithLevel(aerr.LogLevelForError(err)).Err(err).Msg("set sleep timer error")

		return
	}

	w.WriteHeader(http.StatusOK)
}

func (p playerResource) cancelSleep(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
) {
	p.simpleCommand(ctx, w, r, logger, p.playbackSrv.CancelSleepTimer, "cancel sleep timer error")
}

// simpleCommand run a no-argument player command and report the result.
func (p playerResource) simpleCommand(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
	cmd func(ctx context.Context) error,
	errmsg string,
) {
	if err := cmd(ctx); err != nil {
		srvsupport.CheckAndWriteError(w, r, err)
		logger.WithLevel(aerr.LogLevelForError(err)).Err(err).Msg(errmsg)

		return
	}

	w.WriteHeader(http.StatusOK)
}
