package service

//
// feeds.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"
	"gitlab.com/kabes/go-cast/internal/aerr"
	"gitlab.com/kabes/go-cast/internal/db"
	"gitlab.com/kabes/go-cast/internal/model"
	"gitlab.com/kabes/go-cast/internal/repository"
	"gitlab.com/kabes/go-cast/internal/validators"
)

const (
	fetchFeedTimeout   = 30 * time.Second
	refreshWorkerCount = 5
)

// FeedsSrv fetch and parse podcast feeds, keep episode rows in sync and
// kick off auto-downloads for podcasts that want them.
type FeedsSrv struct {
	db           *db.Database
	podcastsRepo repository.PodcastsRepository
	episodesRepo repository.EpisodesRepository
	downloads    *DownloadsSrv
}

func NewFeedsSrv(i do.Injector) (*FeedsSrv, error) {
	return &FeedsSrv{
		db:           do.MustInvoke[*db.Database](i),
		podcastsRepo: do.MustInvoke[repository.PodcastsRepository](i),
		episodesRepo: do.MustInvoke[repository.EpisodesRepository](i),
		downloads:    do.MustInvoke[*DownloadsSrv](i),
	}, nil
}

// Subscribe fetch the feed at url and create the podcast with its
// episodes. Subscribing twice to the same url refreshes instead.
func (f *FeedsSrv) Subscribe(ctx context.Context, feedurl string) (*model.Podcast, error) {
	logger := log.Ctx(ctx)

	feedurl = validators.SanitizeURL(feedurl)
	if feedurl == "" {
		return nil, aerr.ErrValidation.WithUserMsg("invalid feed url")
	}

	existing, err := db.InConnectionR(ctx, f.db,
		func(dbctx repository.DBContext) (*repository.PodcastDB, error) {
			return f.podcastsRepo.GetPodcast(ctx, dbctx, feedurl)
		})

	switch {
	case err == nil:
		logger.Info().Str("feed_url", feedurl).Msg("already subscribed; refreshing")

		podcast := existing.ToModel()
		if _, err := f.RefreshPodcast(ctx, &podcast); err != nil {
			return nil, err
		}

		return &podcast, nil

	case errors.Is(err, repository.ErrNoData):
		// new subscription

	default:
		return nil, aerr.ApplyFor(ErrRepositoryError, err)
	}

	feed, err := f.fetchFeed(ctx, feedurl)
	if err != nil {
		return nil, err
	}

	podcast := podcastFromFeed(feedurl, feed)

	err = db.InTransaction(ctx, f.db, func(dbctx repository.DBContext) error {
		poddb := repository.NewPodcastDB(podcast)

		id, err := f.podcastsRepo.SavePodcast(ctx, dbctx, &poddb)
		if err != nil {
			return err
		}

		podcast.ID = id

		return f.saveFeedEpisodes(ctx, dbctx, id, feed)
	})
	if err != nil {
		return nil, aerr.ApplyFor(ErrRepositoryError, err)
	}

	logger.Info().Str("feed_url", feedurl).Str("title", podcast.Title).
		Int("episodes", len(feed.Items)).Msg("subscribed to podcast")

	return podcast, nil
}

// Unsubscribe delete the podcast, its episodes (cascade) and their files.
func (f *FeedsSrv) Unsubscribe(ctx context.Context, feedurl string) error {
	podcast, err := db.InConnectionR(ctx, f.db,
		func(dbctx repository.DBContext) (*repository.PodcastDB, error) {
			return f.podcastsRepo.GetPodcast(ctx, dbctx, validators.SanitizeURL(feedurl))
		})
	if errors.Is(err, repository.ErrNoData) {
		return ErrUnknownPodcast
	} else if err != nil {
		return aerr.ApplyFor(ErrRepositoryError, err)
	}

	if err := f.downloads.DeleteDownloadsForPodcast(ctx, podcast.ID); err != nil {
		log.Ctx(ctx).Error().Err(err).Int64("podcast_id", podcast.ID).
			Msg("delete podcast downloads failed")
	}

	err = db.InTransaction(ctx, f.db, func(dbctx repository.DBContext) error {
		return f.podcastsRepo.DeletePodcast(ctx, dbctx, podcast.ID)
	})
	if err != nil {
		return aerr.ApplyFor(ErrRepositoryError, err)
	}

	log.Ctx(ctx).Info().Str("feed_url", podcast.FeedURL).Msg("unsubscribed from podcast")

	return nil
}

// RefreshPodcast re-fetch one feed and insert episodes not seen before.
// Returns the number of new episodes.
func (f *FeedsSrv) RefreshPodcast(ctx context.Context, podcast *model.Podcast) (int, error) {
	logger := log.Ctx(ctx)

	feed, err := f.fetchFeed(ctx, podcast.FeedURL)
	if err != nil {
		return 0, err
	}

	known, err := db.InConnectionR(ctx, f.db,
		func(dbctx repository.DBContext) ([]repository.EpisodeDB, error) {
			return f.episodesRepo.ListEpisodes(ctx, dbctx, podcast.ID)
		})
	if err != nil {
		return 0, aerr.ApplyFor(ErrRepositoryError, err)
	}

	knownGUIDs := make(map[string]bool, len(known))
	for _, eps := range known {
		knownGUIDs[eps.GUID] = true
	}

	var newEpisodes []repository.EpisodeDB

	for _, item := range feed.Items {
		episode := episodeFromItem(podcast.ID, item)
		if episode == nil || knownGUIDs[episode.GUID] {
			continue
		}

		newEpisodes = append(newEpisodes, *episode)
	}

	err = db.InTransaction(ctx, f.db, func(dbctx repository.DBContext) error {
		if len(newEpisodes) > 0 {
			if err := f.episodesRepo.SaveEpisode(ctx, dbctx, newEpisodes...); err != nil {
				return err
			}
		}

		poddb := repository.NewPodcastDB(podcast)
		poddb.Title = feed.Title
		poddb.Description = feed.Description
		now := time.Now().UTC()
		poddb.LastRefreshed = &now

		_, err := f.podcastsRepo.SavePodcast(ctx, dbctx, &poddb)

		return err
	})
	if err != nil {
		return 0, aerr.ApplyFor(ErrRepositoryError, err)
	}

	logger.Info().Str("feed_url", podcast.FeedURL).Int("new_episodes", len(newEpisodes)).
		Msg("podcast refreshed")

	if podcast.AutoDownload {
		f.autoDownload(ctx, newEpisodes)
	}

	return len(newEpisodes), nil
}

// RefreshAll refresh every subscribed podcast with a small worker pool.
func (f *FeedsSrv) RefreshAll(ctx context.Context) error {
	logger := log.Ctx(ctx)

	podcasts, err := db.InConnectionR(ctx, f.db,
		func(dbctx repository.DBContext) (repository.PodcastsDB, error) {
			return f.podcastsRepo.ListPodcasts(ctx, dbctx)
		})
	if err != nil {
		return aerr.ApplyFor(ErrRepositoryError, err)
	}

	if len(podcasts) == 0 {
		return nil
	}

	tasks := make(chan model.Podcast, len(podcasts))

	var wg sync.WaitGroup
	for range min(len(podcasts), refreshWorkerCount) {
		wg.Go(func() {
			for podcast := range tasks {
				if _, err := f.RefreshPodcast(ctx, &podcast); err != nil {
					logger.Warn().Err(err).Str("feed_url", podcast.FeedURL).
						Msg("refresh podcast failed")
				}
			}
		})
	}

	for _, poddb := range podcasts {
		tasks <- poddb.ToModel()
	}

	close(tasks)
	wg.Wait()

	logger.Info().Int("podcasts", len(podcasts)).Msg("feed refresh finished")

	return nil
}

// ListPodcasts return all subscriptions.
func (f *FeedsSrv) ListPodcasts(ctx context.Context) ([]model.Podcast, error) {
	podcasts, err := db.InConnectionR(ctx, f.db,
		func(dbctx repository.DBContext) (repository.PodcastsDB, error) {
			return f.podcastsRepo.ListPodcasts(ctx, dbctx)
		})
	if err != nil {
		return nil, aerr.ApplyFor(ErrRepositoryError, err)
	}

	res := make([]model.Podcast, len(podcasts))
	for i := range podcasts {
		res[i] = podcasts[i].ToModel()
	}

	return res, nil
}

// GetPodcast by id.
func (f *FeedsSrv) GetPodcast(ctx context.Context, podcastid int64) (*model.Podcast, error) {
	poddb, err := db.InConnectionR(ctx, f.db,
		func(dbctx repository.DBContext) (*repository.PodcastDB, error) {
			return f.podcastsRepo.GetPodcastByID(ctx, dbctx, podcastid)
		})
	if errors.Is(err, repository.ErrNoData) {
		return nil, ErrUnknownPodcast
	} else if err != nil {
		return nil, aerr.ApplyFor(ErrRepositoryError, err)
	}

	podcast := poddb.ToModel()

	return &podcast, nil
}

// RefreshByID refresh one podcast selected by id.
func (f *FeedsSrv) RefreshByID(ctx context.Context, podcastid int64) (int, error) {
	podcast, err := f.GetPodcast(ctx, podcastid)
	if err != nil {
		return 0, err
	}

	return f.RefreshPodcast(ctx, podcast)
}

// ListEpisodes return all episodes of one podcast, newest first.
func (f *FeedsSrv) ListEpisodes(ctx context.Context, podcastid int64) ([]model.Episode, error) {
	if _, err := f.GetPodcast(ctx, podcastid); err != nil {
		return nil, err
	}

	episodes, err := db.InConnectionR(ctx, f.db,
		func(dbctx repository.DBContext) ([]repository.EpisodeDB, error) {
			return f.episodesRepo.ListEpisodes(ctx, dbctx, podcastid)
		})
	if err != nil {
		return nil, aerr.ApplyFor(ErrRepositoryError, err)
	}

	res := make([]model.Episode, len(episodes))
	for i := range episodes {
		res[i] = episodes[i].ToModel()
	}

	return res, nil
}

//------------------------------------------------------------------------------

func (f *FeedsSrv) fetchFeed(ctx context.Context, feedurl string) (*gofeed.Feed, error) {
	fctx, cancel := context.WithTimeout(ctx, fetchFeedTimeout)
	defer cancel()

	fp := gofeed.NewParser()

	feed, err := fp.ParseURLWithContext(feedurl, fctx)
	if err != nil {
		return nil, aerr.Wrapf(err, "fetch feed failed").WithTag(aerr.TransferError).
			WithUserMsg("feed download failed").WithMeta("url", feedurl)
	}

	return feed, nil
}

func (f *FeedsSrv) saveFeedEpisodes(ctx context.Context, dbctx repository.DBContext,
	podcastid int64, feed *gofeed.Feed,
) error {
	episodes := make([]repository.EpisodeDB, 0, len(feed.Items))

	for _, item := range feed.Items {
		if episode := episodeFromItem(podcastid, item); episode != nil {
			episodes = append(episodes, *episode)
		}
	}

	if len(episodes) == 0 {
		return nil
	}

	return f.episodesRepo.SaveEpisode(ctx, dbctx, episodes...)
}

func (f *FeedsSrv) autoDownload(ctx context.Context, episodes []repository.EpisodeDB) {
	logger := log.Ctx(ctx)

	for _, eps := range episodes {
		episode := eps.ToModel()

		decision, err := f.downloads.CheckDownloadAllowed(ctx, &episode, true)
		if err != nil || decision != DownloadStarted {
			logger.Debug().Str("guid", episode.GUID).Str("decision", string(decision)).
				Msg("auto-download not started")

			continue
		}

		if err := f.downloads.Download(ctx, episode.GUID); err != nil {
			logger.Warn().Err(err).Str("guid", episode.GUID).Msg("auto-download failed to start")
		}
	}
}

func podcastFromFeed(feedurl string, feed *gofeed.Feed) *model.Podcast {
	title := feed.Title
	if title == "" {
		title = "<no title>"
	}

	podcast := &model.Podcast{
		FeedURL:       feedurl,
		Title:         title,
		Description:   feed.Description,
		LastRefreshed: time.Now().UTC(),
	}

	if feed.Image != nil {
		podcast.ArtworkURL = feed.Image.URL
	}

	if len(feed.Authors) > 0 && feed.Authors[0] != nil {
		podcast.Author = feed.Authors[0].Name
	}

	return podcast
}

func episodeFromItem(podcastid int64, item *gofeed.Item) *repository.EpisodeDB {
	var audioURL string

	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" {
			audioURL = enc.URL

			break
		}
	}

	if audioURL == "" {
		// not a playable item
		return nil
	}

	guid := item.GUID
	if guid == "" {
		guid = audioURL
	}

	episode := &repository.EpisodeDB{
		PodcastID:   podcastid,
		GUID:        guid,
		Title:       item.Title,
		Description: item.Description,
		AudioURL:    audioURL,
		Published:   item.PublishedParsed,
	}

	if item.Image != nil {
		episode.ArtworkURL = item.Image.URL
	}

	if item.ITunesExt != nil {
		if dur := parseITunesDuration(item.ITunesExt.Duration); dur > 0 {
			episode.Duration = dur
		}
	}

	return episode
}

// parseITunesDuration accept "SS", "MM:SS" or "HH:MM:SS".
func parseITunesDuration(raw string) float64 {
	if raw == "" {
		return 0
	}

	var parts [3]float64

	idx := 0

	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			parts[idx] = parts[idx]*10 + float64(r-'0')
		case r == ':' && idx < 2:
			idx++
		default:
			return 0
		}
	}

	switch idx {
	case 0:
		return parts[0]
	case 1:
		return parts[0]*60 + parts[1]
	default:
		return parts[0]*3600 + parts[1]*60 + parts[2]
	}
}
