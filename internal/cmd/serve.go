//
// serve.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

package cmd

import (
	"context"
	"time"

	"github.com/Merovius/systemd"
	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"
	"gitlab.com/kabes/go-cast/internal/config"
	"gitlab.com/kabes/go-cast/internal/events"
	"gitlab.com/kabes/go-cast/internal/server"
	"gitlab.com/kabes/go-cast/internal/service"
)

const shutdownTimeout = 10 * time.Second

type Serve struct {
	Database string
	MediaDir string
	Listen   string

	EnableMetrics   bool
	RefreshInterval time.Duration

	DebugFlags config.DebugFlags
}

func (s *Serve) Start(ctx context.Context) error { //nolint:funlen
	logger := log.Ctx(ctx)
	logger.Log().Msgf("Starting go-cast on %q...", s.Listen)

	injector := createInjector(ctx, s.MediaDir, s.DebugFlags)

	if s.DebugFlags.HasFlag(config.DebugDo) {
		explainInjector(injector)
	}

	if ok, dur, err := systemd.AutoWatchdog(); ok {
		logger.Info().Msgf("systemd autowatchdog started; duration=%s", dur)
	} else if err != nil {
		logger.Warn().Err(err).Msg("systemd autowatchdog start error")
	}

	database, err := connectDatabase(ctx, injector, s.Database)
	if err != nil {
		return err
	}

	if s.EnableMetrics {
		database.RegisterMetrics(s.DebugFlags.HasFlag(config.DebugDBQueryMetrics))
	}

	if err := database.StartBackgroundMaintenance(ctx); err != nil {
		logger.Warn().Err(err).Msg("start background maintenance failed")
	}

	s.recoverOnLaunch(ctx, injector)

	srvcfg := &server.Configuration{
		Listen:        s.Listen,
		EnableMetrics: s.EnableMetrics,
		DebugFlags:    s.DebugFlags,
	}
	if err := srvcfg.Validate(); err != nil {
		return err
	}

	do.ProvideValue(injector, srvcfg)
	do.Provide(injector, server.New)

	// subscribe before anything can publish
	busEvents := do.MustInvoke[*events.Bus](injector).Subscribe()
	go s.handleEvents(ctx, injector, busEvents)

	playback := do.MustInvoke[*service.PlaybackSrv](injector)
	playbackDone := make(chan error, 1)

	go func() {
		playbackDone <- playback.Run(ctx)
	}()

	go s.refreshLoop(ctx, injector)

	srv := do.MustInvoke[*server.Server](injector)
	if err := srv.Start(ctx); err != nil {
		return err
	}

	systemd.NotifyReady()           //nolint:errcheck
	systemd.NotifyStatus("running") //nolint:errcheck

	<-ctx.Done()

	systemd.NotifyStatus("stopping") //nolint:errcheck

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(sctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}

	if err := <-playbackDone; err != nil {
		logger.Error().Err(err).Msg("playback engine stopped with error")
	}

	downloads := do.MustInvoke[*service.DownloadsSrv](injector)
	if err := downloads.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("downloads shutdown failed")
	}

	if err := database.Shutdown(sctx); err != nil {
		logger.Error().Err(err).Msg("database shutdown failed")
	}

	systemd.NotifyStatus("stopped") //nolint:errcheck

	return nil
}

// recoverOnLaunch repair state left behind by a killed process before the
// api is reachable.
func (s *Serve) recoverOnLaunch(ctx context.Context, injector do.Injector) {
	logger := log.Ctx(ctx)

	downloads := do.MustInvoke[*service.DownloadsSrv](injector)
	if err := downloads.RecoverOnLaunch(ctx); err != nil {
		logger.Error().Err(err).Msg("download recovery failed")
	}

	cleanup := do.MustInvoke[*service.CleanupSrv](injector)
	if err := cleanup.CleanupCompletedOnLaunch(ctx); err != nil {
		logger.Error().Err(err).Msg("launch cleanup failed")
	}

	if err := cleanup.EnforceAllLimits(ctx); err != nil {
		logger.Error().Err(err).Msg("launch limit enforcement failed")
	}
}

// handleEvents connect the download manager and the playback engine to
// the cleanup service.
func (s *Serve) handleEvents(ctx context.Context, injector do.Injector, ch <-chan events.Event) {
	logger := log.Ctx(ctx)
	cleanup := do.MustInvoke[*service.CleanupSrv](injector)

	for event := range ch {
		switch ev := event.(type) {
		case events.DownloadCompleted:
			if err := cleanup.OnDownloadCompleted(ctx, ev.GUID); err != nil {
				logger.Error().Err(err).Str("guid", ev.GUID).
					Msg("cleanup after download failed")
			}

		case events.PlaybackCompleted:
			if err := cleanup.OnEpisodeCompleted(ctx, ev.GUID); err != nil {
				logger.Error().Err(err).Str("guid", ev.GUID).
					Msg("cleanup after playback failed")
			}

		case events.DownloadFailed:
			logger.Warn().Err(ev.Err).Str("guid", ev.GUID).Str("url", ev.URL).
				Msg("download failed")
		}
	}
}

// refreshLoop periodically re-fetch all subscribed feeds.
func (s *Serve) refreshLoop(ctx context.Context, injector do.Injector) {
	if s.RefreshInterval <= 0 {
		return
	}

	logger := log.Ctx(ctx)
	feeds := do.MustInvoke[*service.FeedsSrv](injector)

	ticker := time.NewTicker(s.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if err := feeds.RefreshAll(ctx); err != nil {
				logger.Error().Err(err).Msg("periodic feed refresh failed")
			}
		}
	}
}
