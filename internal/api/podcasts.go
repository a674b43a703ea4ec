package api

// podcasts.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/rs/zerolog"
	"github.com/samber/do/v2"
	"gitlab.com/kabes/go-cast/internal/aerr"
	"gitlab.com/kabes/go-cast/internal/model"
	"gitlab.com/kabes/go-cast/internal/server/srvsupport"
	"gitlab.com/kabes/go-cast/internal/service"
)

// podcastsResource handle request to /api/1/podcasts resource.
type podcastsResource struct {
	feedsSrv *service.FeedsSrv
}

func newPodcastsResource(i do.Injector) (podcastsResource, error) {
	return podcastsResource{
		feedsSrv: do.MustInvoke[*service.FeedsSrv](i),
	}, nil
}

func (p podcastsResource) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Get("/", srvsupport.WrapNamed(p.listPodcasts, "api_podcasts_list"))
	r.Post("/", srvsupport.WrapNamed(p.subscribe, "api_podcasts_subscribe"))
	r.Post("/refresh", srvsupport.WrapNamed(p.refreshAll, "api_podcasts_refresh_all"))
	r.Delete(`/{podcastid:\d+}`, srvsupport.WrapNamed(p.unsubscribe, "api_podcasts_unsubscribe"))
	r.Post(`/{podcastid:\d+}/refresh`, srvsupport.WrapNamed(p.refresh, "api_podcasts_refresh"))
	r.Get(`/{podcastid:\d+}/episodes`, srvsupport.WrapNamed(p.listEpisodes, "api_podcasts_episodes"))

	return r
}

func (p podcastsResource) listPodcasts(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
) {
	podcasts, err := p.feedsSrv.ListPodcasts(ctx)
	if err != nil {
		srvsupport.CheckAndWriteError(w, r, err)
		logger.WithLevel(aerr.LogLevelForError(err)).Err(err).Msg("list podcasts error")

		return
	}

	render.Status(r, http.StatusOK)
	srvsupport.RenderJSON(w, r, mapSlice(podcasts, newPodcastFromModel))
}

func (p podcastsResource) subscribe(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
) {
	var reqData struct {
		FeedURL string `json:"feed_url"`
	}

	if err := render.DecodeJSON(r.Body, &reqData); err != nil {
		logger.Debug().Err(err).Msg("error decoding json payload")
		srvsupport.WriteError(w, r, http.StatusBadRequest, "")

		return
	}

	pod, err := p.feedsSrv.Subscribe(ctx, reqData.FeedURL)
	if err != nil {
		srvsupport.CheckAndWriteError(w, r, err)
		logger.WithLevel(aerr.LogLevelForError(err)).Err(err).
			Str("feed_url", reqData.FeedURL).Msg("subscribe error")

		return
	}

	render.Status(r, http.StatusCreated)
	srvsupport.RenderJSON(w, r, newPodcastFromModel(pod))
}

func (p podcastsResource) unsubscribe(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
) {
	podcastid, err := getPodcastIDParam(r)
	if err != nil {
		logger.Debug().Err(err).Msg("invalid podcast id")
		srvsupport.WriteError(w, r, http.StatusBadRequest, "")

		return
	}

	pod, err := p.feedsSrv.GetPodcast(ctx, podcastid)
	if err == nil {
		err = p.feedsSrv.Unsubscribe(ctx, pod.FeedURL)
	}

	if err != nil {
		srvsupport.CheckAndWriteError(w, r, err)
		logger.WithLevel(aerr.LogLevelForError(err)).Err(err).
			Int64("podcast_id", podcastid).Msg("unsubscribe error")

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (p podcastsResource) refresh(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
) {
	podcastid, err := getPodcastIDParam(r)
	if err != nil {
		logger.Debug().Err(err).Msg("invalid podcast id")
		srvsupport.WriteError(w, r, http.StatusBadRequest, "")

		return
	}

	newEpisodes, err := p.feedsSrv.RefreshByID(ctx, podcastid)
	if err != nil {
		srvsupport.CheckAndWriteError(w, r, err)
		logger.WithLevel(aerr.LogLevelForError(err)).Err(err).
			Int64("podcast_id", podcastid).Msg("refresh podcast error")

		return
	}

	res := struct {
		NewEpisodes int `json:"new_episodes"`
	}{newEpisodes}

	render.Status(r, http.StatusOK)
	srvsupport.RenderJSON(w, r, &res)
}

func (p podcastsResource) refreshAll(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
) {
	if err := p.feedsSrv.RefreshAll(ctx); err != nil {
		srvsupport.CheckAndWriteError(w, r, err)
		logger.WithLevel(aerr.LogLevelForError(err)).Err(err).Msg("refresh all error")

		return
	}

	w.WriteHeader(http.StatusOK)
}

func (p podcastsResource) listEpisodes(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
) {
	podcastid, err := getPodcastIDParam(r)
	if err != nil {
		logger.Debug().Err(err).Msg("invalid podcast id")
		srvsupport.WriteError(w, r, http.StatusBadRequest, "")

		return
	}

	episodes, err := p.feedsSrv.ListEpisodes(ctx, podcastid)
	if err != nil {
		srvsupport.CheckAndWriteError(w, r, err)
		logger.WithLevel(aerr.LogLevelForError(err)).Err(err).
			Int64("podcast_id", podcastid).Msg("list episodes error")

		return
	}

	render.Status(r, http.StatusOK)
	srvsupport.RenderJSON(w, r, mapSlice(episodes, newEpisodeFromModel))
}

//-------------------------------------------------------------

type podcast struct {
	ID            int64      `json:"id"`
	FeedURL       string     `json:"feed_url"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	ArtworkURL    string     `json:"artwork_url,omitempty"`
	Author        string     `json:"author,omitempty"`
	SpeedOverride *float64   `json:"speed_override,omitempty"`
	AutoDownload  bool       `json:"auto_download"`
	LastRefreshed *time.Time `json:"last_refreshed,omitempty"`
}

func newPodcastFromModel(p *model.Podcast) podcast {
	res := podcast{
		ID:            p.ID,
		FeedURL:       p.FeedURL,
		Title:         p.Title,
		Description:   p.Description,
		ArtworkURL:    p.ArtworkURL,
		Author:        p.Author,
		SpeedOverride: p.SpeedOverride,
		AutoDownload:  p.AutoDownload,
	}

	if !p.LastRefreshed.IsZero() {
		lr := p.LastRefreshed
		res.LastRefreshed = &lr
	}

	return res
}

type episode struct {
	GUID             string     `json:"guid"`
	PodcastID        int64      `json:"podcast_id"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	AudioURL         string     `json:"audio_url"`
	ArtworkURL       string     `json:"artwork_url,omitempty"`
	Duration         float64    `json:"duration"`
	Published        *time.Time `json:"published,omitempty"`
	IsPlayed         bool       `json:"is_played"`
	IsStarred        bool       `json:"is_starred"`
	Position         float64    `json:"position"`
	Downloaded       bool       `json:"downloaded"`
	DownloadProgress *float64   `json:"download_progress,omitempty"`
}

func newEpisodeFromModel(e *model.Episode) episode {
	res := episode{
		GUID:             e.GUID,
		PodcastID:        e.PodcastID,
		Title:            e.Title,
		Description:      e.Description,
		AudioURL:         e.AudioURL,
		ArtworkURL:       e.ArtworkURL,
		Duration:         e.Duration,
		IsPlayed:         e.IsPlayed,
		IsStarred:        e.IsStarred,
		Position:         e.Position,
		Downloaded:       e.IsDownloaded(),
		DownloadProgress: e.DownloadProgress,
	}

	if !e.Published.IsZero() {
		pub := e.Published
		res.Published = &pub
	}

	return res
}
