package service

//
// settings.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

import (
	"context"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"
	"gitlab.com/kabes/go-cast/internal/aerr"
	"gitlab.com/kabes/go-cast/internal/db"
	"gitlab.com/kabes/go-cast/internal/model"
	"gitlab.com/kabes/go-cast/internal/repository"
)

const (
	settStorageLimitBytes    = "storage_limit_bytes"
	settKeepLatestPerPodcast = "keep_latest_per_podcast"
	settManualDownloadPolicy = "manual_download_policy"
	settAutoDownloadPolicy   = "auto_download_policy"
	settPlaybackSpeed        = "playback_speed"
	settSkipForwardSec       = "skip_forward_s"
	settSkipBackwardSec      = "skip_backward_s"
)

// SettingsSrv expose the durable policy store. Missing keys fall back to
// defaults, so an empty database is a valid configuration.
type SettingsSrv struct {
	db       *db.Database
	settRepo repository.SettingsRepository
}

func NewSettingsSrv(i do.Injector) (*SettingsSrv, error) {
	return &SettingsSrv{
		db:       do.MustInvoke[*db.Database](i),
		settRepo: do.MustInvoke[repository.SettingsRepository](i),
	}, nil
}

func (s *SettingsSrv) GetSettings(ctx context.Context) (model.Settings, error) {
	//nolint:wrapcheck
	return db.InConnectionR(ctx, s.db, func(dbctx repository.DBContext) (model.Settings, error) {
		raw, err := s.settRepo.ListSettings(ctx, dbctx)
		if err != nil {
			return model.Settings{}, aerr.ApplyFor(ErrRepositoryError, err)
		}

		return settingsFromMap(raw), nil
	})
}

func (s *SettingsSrv) SaveSettings(ctx context.Context, sett *model.Settings) error {
	log.Ctx(ctx).Debug().Object("settings", sett).Msg("save settings")

	if err := sett.Validate(); err != nil {
		return aerr.Wrapf(err, "validate settings failed")
	}

	//nolint:wrapcheck
	return db.InTransaction(ctx, s.db, func(dbctx repository.DBContext) error {
		for key, value := range settingsToMap(sett) {
			if err := s.settRepo.SaveSetting(ctx, dbctx, key, value); err != nil {
				return aerr.ApplyFor(ErrRepositoryError, err)
			}
		}

		return nil
	})
}

func settingsFromMap(raw map[string]string) model.Settings {
	sett := model.DefaultSettings()

	if v, ok := raw[settStorageLimitBytes]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			sett.StorageLimitBytes = n
		}
	}

	if v, ok := raw[settKeepLatestPerPodcast]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			sett.KeepLatestPerPodcast = n
		}
	}

	if v := model.DownloadPolicy(raw[settManualDownloadPolicy]); v.Valid() {
		sett.ManualDownloadPolicy = v
	}

	if v := model.DownloadPolicy(raw[settAutoDownloadPolicy]); v.Valid() {
		sett.AutoDownloadPolicy = v
	}

	if v, ok := raw[settPlaybackSpeed]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f <= 4 {
			sett.PlaybackSpeed = f
		}
	}

	if v, ok := raw[settSkipForwardSec]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			sett.SkipForwardSec = n
		}
	}

	if v, ok := raw[settSkipBackwardSec]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			sett.SkipBackwardSec = n
		}
	}

	return sett
}

func settingsToMap(sett *model.Settings) map[string]string {
	return map[string]string{
		settStorageLimitBytes:    strconv.FormatInt(sett.StorageLimitBytes, 10),
		settKeepLatestPerPodcast: strconv.Itoa(sett.KeepLatestPerPodcast),
		settManualDownloadPolicy: string(sett.ManualDownloadPolicy),
		settAutoDownloadPolicy:   string(sett.AutoDownloadPolicy),
		settPlaybackSpeed:        strconv.FormatFloat(sett.PlaybackSpeed, 'f', -1, 64),
		settSkipForwardSec:       strconv.Itoa(sett.SkipForwardSec),
		settSkipBackwardSec:      strconv.Itoa(sett.SkipBackwardSec),
	}
}
