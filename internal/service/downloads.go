package service

//
// downloads.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"
	"gitlab.com/kabes/go-cast/internal/aerr"
	"gitlab.com/kabes/go-cast/internal/db"
	"gitlab.com/kabes/go-cast/internal/events"
	"gitlab.com/kabes/go-cast/internal/model"
	"gitlab.com/kabes/go-cast/internal/netstatus"
	"gitlab.com/kabes/go-cast/internal/repository"
	"gitlab.com/kabes/go-cast/internal/validators"
)

// DownloadDecision is the outcome of the pre-download gate.
type DownloadDecision string

const (
	DownloadStarted            = DownloadDecision("started")
	DownloadAlreadyDownloaded  = DownloadDecision("already_downloaded")
	DownloadAlreadyDownloading = DownloadDecision("already_downloading")
	DownloadBlocked            = DownloadDecision("blocked")
	DownloadNeedsConfirmation  = DownloadDecision("needs_confirmation")
)

const partSuffix = ".part"

type inflightTransfer struct {
	guid   string
	url    string
	cancel context.CancelFunc
}

// DownloadsSrv own all download transfers: at most one in-flight transfer
// per audio url, resumable .part files in the media directory, and
// launch-time repair of state left behind by a killed process.
type DownloadsSrv struct {
	db           *db.Database
	episodesRepo repository.EpisodesRepository
	settings     *SettingsSrv
	netstat      *netstatus.Observer
	bus          *events.Bus

	mediaDir string
	transfer *transferClient

	// guards inflight; the map is the single source of truth for "is this
	// url downloading right now"
	mu       sync.Mutex
	inflight map[string]*inflightTransfer
	wg       sync.WaitGroup
}

func NewDownloadsSrv(i do.Injector) (*DownloadsSrv, error) {
	return &DownloadsSrv{
		db:           do.MustInvoke[*db.Database](i),
		episodesRepo: do.MustInvoke[repository.EpisodesRepository](i),
		settings:     do.MustInvoke[*SettingsSrv](i),
		netstat:      do.MustInvoke[*netstatus.Observer](i),
		bus:          do.MustInvoke[*events.Bus](i),
		mediaDir:     do.MustInvokeNamed[string](i, "mediadir"),
		transfer:     newTransferClient(),
		inflight:     make(map[string]*inflightTransfer),
	}, nil
}

// CheckDownloadAllowed gate a download on the current connection and the
// configured policy. It never starts anything itself.
func (d *DownloadsSrv) CheckDownloadAllowed(ctx context.Context, episode *model.Episode,
	isAutoDownload bool,
) (DownloadDecision, error) {
	if validators.SanitizeURL(episode.AudioURL) == "" {
		return DownloadBlocked, aerr.ErrValidation.WithUserMsg("invalid audio url").
			WithMeta("url", episode.AudioURL)
	}

	if episode.IsDownloaded() {
		return DownloadAlreadyDownloaded, nil
	}

	if d.isInflight(episode.AudioURL) {
		return DownloadAlreadyDownloading, nil
	}

	sett, err := d.settings.GetSettings(ctx)
	if err != nil {
		return DownloadBlocked, err
	}

	policy := sett.ManualDownloadPolicy
	if isAutoDownload {
		policy = sett.AutoDownloadPolicy
	}

	if !d.netstat.ConnectionType().Metered() {
		return DownloadStarted, nil
	}

	switch policy {
	case model.PolicyWifiOnly:
		return DownloadBlocked, nil
	case model.PolicyAskOnCellular:
		return DownloadNeedsConfirmation, nil
	case model.PolicyAlways:
		return DownloadStarted, nil
	default:
		return DownloadBlocked, nil
	}
}

// Download enqueue a transfer for guid. Idempotent: a second call for an
// episode already downloaded or already in flight is a no-op. Callers are
// expected to have gated via CheckDownloadAllowed.
func (d *DownloadsSrv) Download(ctx context.Context, guid string) error {
	logger := log.Ctx(ctx)

	episode, err := d.getEpisode(ctx, guid)
	if err != nil {
		return err
	}

	if episode.IsDownloaded() {
		logger.Debug().Str("guid", guid).Msg("already downloaded; skipping")

		return nil
	}

	if validators.SanitizeURL(episode.AudioURL) == "" {
		return aerr.ErrValidation.WithUserMsg("invalid audio url").WithMeta("url", episode.AudioURL)
	}

	d.mu.Lock()

	if _, ok := d.inflight[episode.AudioURL]; ok {
		d.mu.Unlock()
		logger.Debug().Str("guid", guid).Msg("already downloading; skipping")

		return nil
	}

	// the transfer outlives the caller's request context
	tctx, cancel := context.WithCancel(log.Ctx(ctx).WithContext(context.WithoutCancel(ctx)))
	d.inflight[episode.AudioURL] = &inflightTransfer{guid: guid, url: episode.AudioURL, cancel: cancel}
	d.mu.Unlock()

	// progress 0 right away so the state reads "downloading" before any
	// bytes arrive
	if err := d.storeProgress(tctx, guid, 0); err != nil {
		logger.Warn().Err(err).Str("guid", guid).Msg("store initial progress failed")
	}

	metricDownloadsStarted.Inc()

	d.wg.Add(1)

	go d.runTransfer(tctx, episode)

	return nil
}

// RequestDownload gate a manual download and start it when allowed.
// `confirmed` accepts the needs_confirmation outcome on metered
// connections.
func (d *DownloadsSrv) RequestDownload(ctx context.Context, guid string, confirmed bool,
) (DownloadDecision, error) {
	episode, err := d.getEpisode(ctx, guid)
	if err != nil {
		return DownloadBlocked, err
	}

	decision, err := d.CheckDownloadAllowed(ctx, episode, false)
	if err != nil {
		return decision, err
	}

	if decision == DownloadNeedsConfirmation && confirmed {
		decision = DownloadStarted
	}

	if decision == DownloadStarted {
		if err := d.Download(ctx, guid); err != nil {
			return DownloadBlocked, err
		}
	}

	return decision, nil
}

// CancelDownload stop an in-flight transfer and clear its transient state.
// Safe to race with the transfer's own completion; whoever removes the
// map entry first wins.
func (d *DownloadsSrv) CancelDownload(ctx context.Context, guid string) error {
	episode, err := d.getEpisode(ctx, guid)
	if err != nil {
		return err
	}

	entry := d.removeInflight(episode.AudioURL)
	if entry == nil {
		return nil
	}

	entry.cancel()
	log.Ctx(ctx).Info().Str("guid", guid).Msg("download cancelled")

	return d.clearDownloadState(ctx, guid)
}

// DeleteDownload remove the episode's local file and downloading state.
// A missing file is not an error.
func (d *DownloadsSrv) DeleteDownload(ctx context.Context, guid string) error {
	episode, err := d.getEpisode(ctx, guid)
	if err != nil {
		return err
	}

	return d.deleteEpisodeFile(ctx, episode)
}

// DeleteDownloadsForPodcast remove every downloaded file of one podcast;
// used on unsubscribe.
func (d *DownloadsSrv) DeleteDownloadsForPodcast(ctx context.Context, podcastid int64) error {
	episodes, err := db.InConnectionR(ctx, d.db,
		func(dbctx repository.DBContext) ([]repository.EpisodeDB, error) {
			return d.episodesRepo.ListDownloadedEpisodes(ctx, dbctx, podcastid)
		})
	if err != nil {
		return aerr.ApplyFor(ErrRepositoryError, err)
	}

	for _, eps := range episodes {
		episode := eps.ToModel()
		if err := d.deleteEpisodeFile(ctx, &episode); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("guid", episode.GUID).Msg("delete download failed")
		}
	}

	return nil
}

// TotalDownloadSize sum the on-disk sizes of all downloaded episodes.
// Missing files contribute zero.
func (d *DownloadsSrv) TotalDownloadSize(ctx context.Context) (int64, error) {
	episodes, err := db.InConnectionR(ctx, d.db,
		func(dbctx repository.DBContext) ([]repository.EpisodeDB, error) {
			return d.episodesRepo.ListDownloadedEpisodes(ctx, dbctx, 0)
		})
	if err != nil {
		return 0, aerr.ApplyFor(ErrRepositoryError, err)
	}

	var total int64

	for _, eps := range episodes {
		if fi, err := os.Stat(filepath.Join(d.mediaDir, eps.LocalFile)); err == nil {
			total += fi.Size()
		}
	}

	return total, nil
}

// FileSize return the size of one episode's download; 0 when missing.
func (d *DownloadsSrv) FileSize(episode *model.Episode) int64 {
	if episode.LocalFile == "" {
		return 0
	}

	if fi, err := os.Stat(filepath.Join(d.mediaDir, episode.LocalFile)); err == nil {
		return fi.Size()
	}

	return 0
}

// FilePath resolve an episode's bare filename against the media
// directory; empty when not downloaded.
func (d *DownloadsSrv) FilePath(episode *model.Episode) string {
	if episode.LocalFile == "" {
		return ""
	}

	return filepath.Join(d.mediaDir, episode.LocalFile)
}

// ActiveDownloads return the guids currently in flight.
func (d *DownloadsSrv) ActiveDownloads() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	res := make([]string, 0, len(d.inflight))
	for _, entry := range d.inflight {
		res = append(res, entry.guid)
	}

	return res
}

// RecoverOnLaunch repair download state after restart or crash: rewrite
// legacy absolute paths, clear recorded files that no longer exist on
// disk, resume transfers with a .part checkpoint, drop orphan parts and
// reset stuck progress markers.
func (d *DownloadsSrv) RecoverOnLaunch(ctx context.Context) error {
	logger := log.Ctx(ctx)

	episodes, err := db.InConnectionR(ctx, d.db,
		func(dbctx repository.DBContext) ([]repository.EpisodeDB, error) {
			return d.episodesRepo.ListDownloadedEpisodes(ctx, dbctx, 0)
		})
	if err != nil {
		return aerr.ApplyFor(ErrRepositoryError, err)
	}

	for _, eps := range episodes {
		if err := d.repairEpisodePath(ctx, &eps); err != nil {
			logger.Error().Err(err).Str("guid", eps.GUID).Msg("repair episode path failed")
		}
	}

	if err := d.resumePartFiles(ctx); err != nil {
		logger.Error().Err(err).Msg("resume part files failed")
	}

	return d.repairOrphanProgress(ctx)
}

func (d *DownloadsSrv) repairEpisodePath(ctx context.Context, eps *repository.EpisodeDB) error {
	logger := log.Ctx(ctx)
	localfile := eps.LocalFile

	// legacy absolute paths; only the bare name is stable across moves of
	// the media directory
	if strings.ContainsRune(localfile, os.PathSeparator) {
		localfile = filepath.Base(localfile)
		logger.Info().Str("guid", eps.GUID).Str("local_file", localfile).
			Msg("migrated legacy download path")
	}

	if _, err := os.Stat(filepath.Join(d.mediaDir, localfile)); err != nil {
		// recorded file is gone; never trust the path blindly
		logger.Warn().Str("guid", eps.GUID).Str("local_file", localfile).
			Msg("recorded download missing on disk; clearing")

		localfile = ""
	}

	if localfile == eps.LocalFile {
		return nil
	}

	//nolint:wrapcheck
	return db.InTransaction(ctx, d.db, func(dbctx repository.DBContext) error {
		return d.episodesRepo.UpdateDownloadState(ctx, dbctx, eps.GUID, localfile, eps.DownloadProgress)
	})
}

func (d *DownloadsSrv) resumePartFiles(ctx context.Context) error {
	logger := log.Ctx(ctx)

	parts, err := filepath.Glob(filepath.Join(d.mediaDir, "*"+partSuffix))
	if err != nil {
		return aerr.Wrapf(err, "scan media dir failed")
	}

	for _, part := range parts {
		sanitized := strings.TrimSuffix(filepath.Base(part), partSuffix)

		episode, err := d.findEpisodeForPart(ctx, sanitized)
		if err != nil {
			logger.Error().Err(err).Str("part", part).Msg("lookup part owner failed")

			continue
		}

		if episode == nil || episode.IsDownloaded() {
			// no matching episode wants this checkpoint
			logger.Info().Str("part", part).Msg("removing orphan part file")

			_ = os.Remove(part)

			continue
		}

		logger.Info().Str("guid", episode.GUID).Str("part", part).Msg("resuming interrupted download")

		if err := d.Download(ctx, episode.GUID); err != nil {
			logger.Error().Err(err).Str("guid", episode.GUID).Msg("resume download failed")
		}
	}

	return nil
}

func (d *DownloadsSrv) findEpisodeForPart(ctx context.Context, sanitizedGUID string,
) (*model.Episode, error) {
	episodes, err := db.InConnectionR(ctx, d.db,
		func(dbctx repository.DBContext) ([]repository.EpisodeDB, error) {
			return d.episodesRepo.ListEpisodesWithProgress(ctx, dbctx)
		})
	if err != nil {
		return nil, aerr.ApplyFor(ErrRepositoryError, err)
	}

	for _, eps := range episodes {
		if validators.SanitizeFilename(eps.GUID) == sanitizedGUID {
			episode := eps.ToModel()

			return &episode, nil
		}
	}

	return nil, nil //nolint:nilnil
}

func (d *DownloadsSrv) repairOrphanProgress(ctx context.Context) error {
	logger := log.Ctx(ctx)

	episodes, err := db.InConnectionR(ctx, d.db,
		func(dbctx repository.DBContext) ([]repository.EpisodeDB, error) {
			return d.episodesRepo.ListEpisodesWithProgress(ctx, dbctx)
		})
	if err != nil {
		return aerr.ApplyFor(ErrRepositoryError, err)
	}

	for _, eps := range episodes {
		if d.isInflight(eps.AudioURL) {
			continue
		}

		logger.Info().Str("guid", eps.GUID).Msg("clearing stuck download progress")

		err := db.InTransaction(ctx, d.db, func(dbctx repository.DBContext) error {
			return d.episodesRepo.UpdateDownloadState(ctx, dbctx, eps.GUID, eps.LocalFile, nil)
		})
		if err != nil {
			logger.Error().Err(err).Str("guid", eps.GUID).Msg("clear stuck progress failed")
		}
	}

	return nil
}

// Wait block until every in-flight transfer finished on its own.
func (d *DownloadsSrv) Wait() {
	d.wg.Wait()
}

// Shutdown cancel in-flight transfers and wait for their goroutines.
// Part files stay on disk for the next launch to resume.
func (d *DownloadsSrv) Shutdown() error {
	d.mu.Lock()
	for _, entry := range d.inflight {
		entry.cancel()
	}
	d.mu.Unlock()

	d.wg.Wait()

	return nil
}

//------------------------------------------------------------------------------

func (d *DownloadsSrv) runTransfer(ctx context.Context, episode *model.Episode) {
	defer d.wg.Done()

	logger := log.Ctx(ctx)
	sanitized := validators.SanitizeFilename(episode.GUID)
	partfile := filepath.Join(d.mediaDir, sanitized+partSuffix)

	logger.Info().Str("guid", episode.GUID).Str("url", episode.AudioURL).Msg("download started")

	err := d.transfer.Fetch(ctx, episode.AudioURL, partfile, func(received, total int64) {
		if total <= 0 {
			return
		}

		fraction := min(float64(received)/float64(total), 1.0)
		if err := d.storeProgress(ctx, episode.GUID, fraction); err != nil {
			logger.Warn().Err(err).Str("guid", episode.GUID).Msg("store progress failed")
		}
	})

	// the map entry decides who processes the outcome; cancel may have
	// removed it already
	if entry := d.removeInflight(episode.AudioURL); entry == nil {
		logger.Debug().Str("guid", episode.GUID).Msg("transfer already cancelled; dropping result")

		return
	}

	if err != nil {
		d.finishFailed(ctx, episode, err)

		return
	}

	d.finishCompleted(ctx, episode, partfile, sanitized)
}

func (d *DownloadsSrv) finishCompleted(ctx context.Context, episode *model.Episode,
	partfile, sanitized string,
) {
	logger := log.Ctx(ctx)

	// the part file can be gone (cleaned up under disk pressure); a
	// failure, not a crash
	if _, err := os.Stat(partfile); err != nil {
		d.finishFailed(ctx, episode, aerr.ErrTransfer.WithMsg("downloaded file vanished").
			WithMeta("file", partfile))

		return
	}

	filename := sanitized + episodeExt(episode.AudioURL)

	if err := os.Rename(partfile, filepath.Join(d.mediaDir, filename)); err != nil {
		d.finishFailed(ctx, episode, aerr.ApplyFor(aerr.ErrTransfer, err, "move downloaded file failed"))

		return
	}

	err := db.InTransaction(ctx, d.db, func(dbctx repository.DBContext) error {
		return d.episodesRepo.UpdateDownloadState(ctx, dbctx, episode.GUID, filename, nil)
	})
	if err != nil {
		logger.Error().Err(err).Str("guid", episode.GUID).Msg("record download failed")
	}

	metricDownloadsCompleted.Inc()
	logger.Info().Str("guid", episode.GUID).Str("local_file", filename).Msg("download completed")

	d.bus.Publish(events.DownloadCompleted{GUID: episode.GUID, Filename: filename})
	d.signalIdle()
}

func (d *DownloadsSrv) finishFailed(ctx context.Context, episode *model.Episode, err error) {
	log.Ctx(ctx).Warn().Err(err).Str("guid", episode.GUID).Str("url", episode.AudioURL).
		Msg("download failed")

	metricDownloadsFailed.Inc()

	if cerr := d.clearDownloadState(ctx, episode.GUID); cerr != nil {
		log.Ctx(ctx).Error().Err(cerr).Str("guid", episode.GUID).Msg("clear download state failed")
	}

	d.bus.Publish(events.DownloadFailed{GUID: episode.GUID, URL: episode.AudioURL, Err: err})
	d.signalIdle()
}

// signalIdle publish DownloadsIdle when the last transfer finished.
func (d *DownloadsSrv) signalIdle() {
	d.mu.Lock()
	idle := len(d.inflight) == 0
	d.mu.Unlock()

	if idle {
		d.bus.Publish(events.DownloadsIdle{})
	}
}

func (d *DownloadsSrv) isInflight(url string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.inflight[url]

	return ok
}

func (d *DownloadsSrv) removeInflight(url string) *inflightTransfer {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry := d.inflight[url]
	delete(d.inflight, url)

	return entry
}

func (d *DownloadsSrv) getEpisode(ctx context.Context, guid string) (*model.Episode, error) {
	eps, err := db.InConnectionR(ctx, d.db,
		func(dbctx repository.DBContext) (*repository.EpisodeDB, error) {
			return d.episodesRepo.GetEpisode(ctx, dbctx, guid)
		})
	if errors.Is(err, repository.ErrNoData) {
		return nil, ErrUnknownEpisode
	} else if err != nil {
		return nil, aerr.ApplyFor(ErrRepositoryError, err)
	}

	episode := eps.ToModel()

	return &episode, nil
}

func (d *DownloadsSrv) storeProgress(ctx context.Context, guid string, fraction float64) error {
	//nolint:wrapcheck
	return db.InTransaction(ctx, d.db, func(dbctx repository.DBContext) error {
		return d.episodesRepo.UpdateDownloadState(ctx, dbctx, guid, "", &fraction)
	})
}

func (d *DownloadsSrv) clearDownloadState(ctx context.Context, guid string) error {
	//nolint:wrapcheck
	return db.InTransaction(ctx, d.db, func(dbctx repository.DBContext) error {
		return d.episodesRepo.UpdateDownloadState(ctx, dbctx, guid, "", nil)
	})
}

func (d *DownloadsSrv) deleteEpisodeFile(ctx context.Context, episode *model.Episode) error {
	if episode.LocalFile != "" {
		err := os.Remove(filepath.Join(d.mediaDir, episode.LocalFile))
		if err != nil && !os.IsNotExist(err) {
			log.Ctx(ctx).Error().Err(err).Str("guid", episode.GUID).Msg("remove download file failed")
		}
	}

	return d.clearDownloadState(ctx, episode.GUID)
}

// episodeExt derive the local file extension from the source url; mp3
// when the url has none.
func episodeExt(audiourl string) string {
	u := validators.SanitizeURL(audiourl)

	if idx := strings.IndexAny(u, "?#"); idx >= 0 {
		u = u[:idx]
	}

	if ext := path.Ext(u); ext != "" && len(ext) <= 5 {
		return ext
	}

	return ".mp3"
}
