package api

// settings.go
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

// settingsResource handle request to /api/1/settings resource.
type settingsResource struct {
	settingsSrv *service.SettingsSrv
}

func newSettingsResource(i do.Injector) (settingsResource, error) {
	return settingsResource{
		settingsSrv: do.MustInvoke[*service.SettingsSrv](i),
	}, nil
}

func (s settingsResource) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Get("/", srvsupport.WrapNamed(s.get, "api_settings_get"))
	r.Put("/", srvsupport.WrapNamed(s.put, "api_settings_put"))

	return r
}

func (s settingsResource) get(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
) {
	sett, err := s.settingsSrv.GetSettings(ctx)
	if err != nil {
		srvsupport.CheckAndWriteError(w, r, err)
		logger.WithLevel(aerr.LogLevelForError(err)).Err(err).Msg("get settings error")

		return
	}

	render.Status(r, http.StatusOK)
	srvsupport.RenderJSON(w, r, newSettingsFromModel(&sett))
}

// put update settings; omitted fields keep their current values.
func (s settingsResource) put(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *zerolog.Logger,
) {
	sett, err := s.settingsSrv.GetSettings(ctx)
	if err != nil {
		srvsupport.CheckAndWriteError(w, r, err)
		logger.WithLevel(aerr.LogLevelForError(err)).Err(err).Msg("get settings error")

		return
	}

	reqData := newSettingsFromModel(&sett)
	if err := render.DecodeJSON(r.Body, &reqData); err != nil {
		logger.Debug().Err(err).Msg("error decoding json payload")
		srvsupport.WriteError(w, r, http.StatusBadRequest, "")

		return
	}

	newSett := reqData.toModel()
	if err := s.settingsSrv.SaveSettings(ctx, &newSett); err != nil {
		srvsupport.CheckAndWriteError(w, r, err)
		logger.WithLevel(aerr.LogLevelForError(err)).Err(err).Msg("save settings error")

		return
	}

	render.Status(r, http.StatusOK)
	srvsupport.RenderJSON(w, r, newSettingsFromModel(&newSett))
}

//-------------------------------------------------------------

type settings struct {
	StorageLimitBytes    int64   `json:"storage_limit_bytes"`
	KeepLatestPerPodcast int     `json:"keep_latest_per_podcast"`
	ManualDownloadPolicy string  `json:"manual_download_policy"`
	AutoDownloadPolicy   string  `json:"auto_download_policy"`
	PlaybackSpeed        float64 `json:"playback_speed"`
	SkipForwardSec       int     `json:"skip_forward_s"`
	SkipBackwardSec      int     `json:"skip_backward_s"`
}

func newSettingsFromModel(s *model.Settings) settings {
	return settings{
		StorageLimitBytes:    s.StorageLimitBytes,
		KeepLatestPerPodcast: s.KeepLatestPerPodcast,
		ManualDownloadPolicy: string(s.ManualDownloadPolicy),
		AutoDownloadPolicy:   string(s.AutoDownloadPolicy),
		PlaybackSpeed:        s.PlaybackSpeed,
		SkipForwardSec:       s.SkipForwardSec,
		SkipBackwardSec:      s.SkipBackwardSec,
	}
}

func (s *settings) toModel() model.Settings {
	return model.Settings{
		StorageLimitBytes:    s.StorageLimitBytes,
		KeepLatestPerPodcast: s.KeepLatestPerPodcast,
		ManualDownloadPolicy: model.DownloadPolicy(s.ManualDownloadPolicy),
		AutoDownloadPolicy:   model.DownloadPolicy(s.AutoDownloadPolicy),
		PlaybackSpeed:        s.PlaybackSpeed,
		SkipForwardSec:       s.SkipForwardSec,
		SkipBackwardSec:      s.SkipBackwardSec,
	}
}
