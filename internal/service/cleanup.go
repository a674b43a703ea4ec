package service

//
// cleanup.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"
	"gitlab.com/kabes/go-cast/internal/aerr"
	"gitlab.com/kabes/go-cast/internal/db"
	"gitlab.com/kabes/go-cast/internal/model"
	"gitlab.com/kabes/go-cast/internal/repository"
)

// CleanupSrv enforce the storage caps over downloaded episodes. The only
// protection from automatic deletion is queue membership; starred marks a
// favorite, not "keep the file".
type CleanupSrv struct {
	db           *db.Database
	episodesRepo repository.EpisodesRepository
	podcastsRepo repository.PodcastsRepository
	queueRepo    repository.QueueRepository
	settings     *SettingsSrv
	downloads    *DownloadsSrv
}

func NewCleanupSrv(i do.Injector) (*CleanupSrv, error) {
	return &CleanupSrv{
		db:           do.MustInvoke[*db.Database](i),
		episodesRepo: do.MustInvoke[repository.EpisodesRepository](i),
		podcastsRepo: do.MustInvoke[repository.PodcastsRepository](i),
		queueRepo:    do.MustInvoke[repository.QueueRepository](i),
		settings:     do.MustInvoke[*SettingsSrv](i),
		downloads:    do.MustInvoke[*DownloadsSrv](i),
	}, nil
}

// OnEpisodeCompleted run after playback finishes or an episode is marked
// played: drop its download unless queued, then re-check the global cap.
func (c *CleanupSrv) OnEpisodeCompleted(ctx context.Context, guid string) error {
	logger := log.Ctx(ctx)

	episode, err := c.downloads.getEpisode(ctx, guid)
	if err != nil {
		return err
	}

	queued, err := c.queuedEpisodeIDs(ctx)
	if err != nil {
		return err
	}

	if episode.IsDownloaded() && !queued[episode.ID] {
		logger.Info().Str("guid", guid).Msg("deleting download of completed episode")

		if err := c.deleteDownload(ctx, episode); err != nil {
			return err
		}
	}

	return c.EnforceStorageLimit(ctx)
}

// OnDownloadCompleted run after a transfer finishes: re-check the limits
// the new file may have pushed over.
func (c *CleanupSrv) OnDownloadCompleted(ctx context.Context, guid string) error {
	episode, err := c.downloads.getEpisode(ctx, guid)
	if err != nil {
		return err
	}

	if err := c.EnforcePerPodcastLimit(ctx, episode.PodcastID); err != nil {
		log.Ctx(ctx).Error().Err(err).Int64("podcast_id", episode.PodcastID).
			Msg("per-podcast limit enforcement failed")
	}

	return c.EnforceStorageLimit(ctx)
}

// EnforceStorageLimit delete unprotected downloads until total size fits
// under the configured cap. Effectively-completed episodes go first, then
// oldest published first; missing dates count as oldest.
func (c *CleanupSrv) EnforceStorageLimit(ctx context.Context) error {
	logger := log.Ctx(ctx)

	sett, err := c.settings.GetSettings(ctx)
	if err != nil {
		return err
	}

	if sett.StorageLimitBytes == 0 {
		return nil
	}

	total, err := c.downloads.TotalDownloadSize(ctx)
	if err != nil {
		return err
	}

	if total <= sett.StorageLimitBytes {
		return nil
	}

	toFree := total - sett.StorageLimitBytes

	logger.Info().Int64("total", total).Int64("limit", sett.StorageLimitBytes).
		Int64("to_free", toFree).Msg("storage limit exceeded; evicting")

	candidates, err := c.unprotectedDownloaded(ctx)
	if err != nil {
		return err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ci, cj := candidates[i].EffectivelyCompleted(), candidates[j].EffectivelyCompleted()
		if ci != cj {
			return ci
		}

		// zero time sorts first, i.e. oldest
		return candidates[i].Published.Before(candidates[j].Published)
	})

	var freed int64

	for i := range candidates {
		if freed >= toFree {
			break
		}

		episode := &candidates[i]
		size := c.downloads.FileSize(episode)

		if err := c.deleteDownload(ctx, episode); err != nil {
			logger.Error().Err(err).Str("guid", episode.GUID).Msg("evict download failed")

			continue
		}

		freed += size
	}

	logger.Info().Int64("freed", freed).Msg("storage limit enforcement finished")

	return nil
}

// EnforcePerPodcastLimit keep only the N newest non-queued downloads of
// one podcast. Queued episodes are neither counted nor deleted.
func (c *CleanupSrv) EnforcePerPodcastLimit(ctx context.Context, podcastid int64) error {
	logger := log.Ctx(ctx)

	sett, err := c.settings.GetSettings(ctx)
	if err != nil {
		return err
	}

	if sett.KeepLatestPerPodcast == 0 {
		return nil
	}

	episodes, err := db.InConnectionR(ctx, c.db,
		func(dbctx repository.DBContext) ([]repository.EpisodeDB, error) {
			return c.episodesRepo.ListDownloadedEpisodes(ctx, dbctx, podcastid)
		})
	if err != nil {
		return aerr.ApplyFor(ErrRepositoryError, err)
	}

	queued, err := c.queuedEpisodeIDs(ctx)
	if err != nil {
		return err
	}

	downloaded := toModels(episodes)

	// newest published first
	sort.SliceStable(downloaded, func(i, j int) bool {
		return downloaded[i].Published.After(downloaded[j].Published)
	})

	kept := 0

	for i := range downloaded {
		episode := &downloaded[i]
		if queued[episode.ID] {
			continue
		}

		kept++
		if kept <= sett.KeepLatestPerPodcast {
			continue
		}

		logger.Info().Str("guid", episode.GUID).Int64("podcast_id", podcastid).
			Msg("deleting download over per-podcast limit")

		if err := c.deleteDownload(ctx, episode); err != nil {
			logger.Error().Err(err).Str("guid", episode.GUID).Msg("delete download failed")
		}
	}

	return nil
}

// EnforceAllLimits run the per-podcast pass over every podcast, then the
// global pass. The order matters and is fixed: per-podcast first.
func (c *CleanupSrv) EnforceAllLimits(ctx context.Context) error {
	podcasts, err := db.InConnectionR(ctx, c.db,
		func(dbctx repository.DBContext) (repository.PodcastsDB, error) {
			return c.podcastsRepo.ListPodcasts(ctx, dbctx)
		})
	if err != nil {
		return aerr.ApplyFor(ErrRepositoryError, err)
	}

	for _, podcast := range podcasts {
		if err := c.EnforcePerPodcastLimit(ctx, podcast.ID); err != nil {
			log.Ctx(ctx).Error().Err(err).Int64("podcast_id", podcast.ID).
				Msg("per-podcast limit enforcement failed")
		}
	}

	return c.EnforceStorageLimit(ctx)
}

// CleanupCompletedOnLaunch delete unprotected downloads of episodes both
// downloaded and played; recovers from crashes that skipped the normal
// completion hook.
func (c *CleanupSrv) CleanupCompletedOnLaunch(ctx context.Context) error {
	logger := log.Ctx(ctx)

	episodes, err := db.InConnectionR(ctx, c.db,
		func(dbctx repository.DBContext) ([]repository.EpisodeDB, error) {
			return c.episodesRepo.ListDownloadedPlayedEpisodes(ctx, dbctx)
		})
	if err != nil {
		return aerr.ApplyFor(ErrRepositoryError, err)
	}

	queued, err := c.queuedEpisodeIDs(ctx)
	if err != nil {
		return err
	}

	for _, eps := range episodes {
		if queued[eps.ID] {
			continue
		}

		episode := eps.ToModel()

		logger.Info().Str("guid", episode.GUID).Msg("removing played download on launch")

		if err := c.deleteDownload(ctx, &episode); err != nil {
			logger.Error().Err(err).Str("guid", episode.GUID).Msg("delete download failed")
		}
	}

	return nil
}

// DeleteAllUnprotected remove every downloaded episode not currently
// queued; explicit user action.
func (c *CleanupSrv) DeleteAllUnprotected(ctx context.Context) error {
	candidates, err := c.unprotectedDownloaded(ctx)
	if err != nil {
		return err
	}

	for i := range candidates {
		if err := c.deleteDownload(ctx, &candidates[i]); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("guid", candidates[i].GUID).
				Msg("delete download failed")
		}
	}

	return nil
}

//------------------------------------------------------------------------------

func (c *CleanupSrv) deleteDownload(ctx context.Context, episode *model.Episode) error {
	metricEvictedBytes.Add(float64(c.downloads.FileSize(episode)))

	return c.downloads.deleteEpisodeFile(ctx, episode)
}

func (c *CleanupSrv) unprotectedDownloaded(ctx context.Context) ([]model.Episode, error) {
	episodes, err := db.InConnectionR(ctx, c.db,
		func(dbctx repository.DBContext) ([]repository.EpisodeDB, error) {
			return c.episodesRepo.ListDownloadedEpisodes(ctx, dbctx, 0)
		})
	if err != nil {
		return nil, aerr.ApplyFor(ErrRepositoryError, err)
	}

	queued, err := c.queuedEpisodeIDs(ctx)
	if err != nil {
		return nil, err
	}

	res := make([]model.Episode, 0, len(episodes))

	for _, eps := range episodes {
		if !queued[eps.ID] {
			res = append(res, eps.ToModel())
		}
	}

	return res, nil
}

func (c *CleanupSrv) queuedEpisodeIDs(ctx context.Context) (map[int64]bool, error) {
	items, err := db.InConnectionR(ctx, c.db,
		func(dbctx repository.DBContext) ([]repository.QueueItemDB, error) {
			return c.queueRepo.ListQueue(ctx, dbctx)
		})
	if err != nil {
		return nil, aerr.ApplyFor(ErrRepositoryError, err)
	}

	res := make(map[int64]bool, len(items))
	for _, item := range items {
		res[item.EpisodeID] = true
	}

	return res, nil
}

func toModels(episodes []repository.EpisodeDB) []model.Episode {
	res := make([]model.Episode, len(episodes))
	for i := range episodes {
		res[i] = episodes[i].ToModel()
	}

	return res
}
