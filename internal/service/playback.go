package service

//
// playback.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

import (
	"context"
	"errors"
	"math"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"
	"gitlab.com/kabes/go-cast/internal/aerr"
	"gitlab.com/kabes/go-cast/internal/db"
	"gitlab.com/kabes/go-cast/internal/events"
	"gitlab.com/kabes/go-cast/internal/model"
	"gitlab.com/kabes/go-cast/internal/netstatus"
	"gitlab.com/kabes/go-cast/internal/player"
	"gitlab.com/kabes/go-cast/internal/repository"
	"gitlab.com/kabes/go-cast/internal/validators"
)

type PlayerState string

const (
	StateIdle    = PlayerState("idle")
	StateLoading = PlayerState("loading")
	StatePlaying = PlayerState("playing")
	StatePaused  = PlayerState("paused")
)

const (
	// positions closer than this to the end are saved as "played, start
	// over" instead of a near-end checkpoint
	nearEndThreshold = 30.0

	// pause between natural end and auto-advancing into the next episode
	autoAdvanceDelay = 500 * time.Millisecond

	// periodic durable checkpoint so a killed process loses little
	checkpointInterval = time.Minute
)

// sleepAtEndOfEpisode is the sentinel deadline for the "stop after this
// episode" sleep-timer mode; it is checked only at natural completion.
var sleepAtEndOfEpisode = time.Unix(0, 0) //nolint:gochecknoglobals

// PlaybackStatus is a snapshot of the engine state.
type PlaybackStatus struct {
	State        PlayerState `json:"state"`
	EpisodeGUID  string      `json:"episode_guid,omitempty"`
	EpisodeTitle string      `json:"episode_title,omitempty"`
	Position     float64     `json:"position"`
	Duration     float64     `json:"duration"`
	Speed        float64     `json:"speed"`
	SleepAtEnd   bool        `json:"sleep_at_end,omitempty"`
	SleepIn      float64     `json:"sleep_in_s,omitempty"`
}

// PlaybackSrv own the single active playback session. Every entry point
// posts onto one engine goroutine; all session fields are touched only
// there, so there is no locking.
type PlaybackSrv struct {
	db           *db.Database
	episodesRepo repository.EpisodesRepository
	podcastsRepo repository.PodcastsRepository
	queue        *QueueSrv
	downloads    *DownloadsSrv
	settings     *SettingsSrv
	netstat      *netstatus.Observer
	stats        *StatsSrv
	bus          *events.Bus
	backend      player.Backend

	commands chan func()
	quit     chan struct{}

	// engine-goroutine state
	current        *model.Episode
	state          PlayerState
	position       float64
	duration       float64
	speed          float64
	sleepDeadline  time.Time
	lastCheckpoint time.Time
}

func NewPlaybackSrv(i do.Injector) (*PlaybackSrv, error) {
	return &PlaybackSrv{
		db:           do.MustInvoke[*db.Database](i),
		episodesRepo: do.MustInvoke[repository.EpisodesRepository](i),
		podcastsRepo: do.MustInvoke[repository.PodcastsRepository](i),
		queue:        do.MustInvoke[*QueueSrv](i),
		downloads:    do.MustInvoke[*DownloadsSrv](i),
		settings:     do.MustInvoke[*SettingsSrv](i),
		netstat:      do.MustInvoke[*netstatus.Observer](i),
		stats:        do.MustInvoke[*StatsSrv](i),
		bus:          do.MustInvoke[*events.Bus](i),
		backend:      do.MustInvoke[player.Backend](i),
		commands:     make(chan func()),
		quit:         make(chan struct{}),
		state:        StateIdle,
		speed:        1.0,
	}, nil
}

// Run drive the engine until ctx is cancelled. Must be running before
// any other operation is called.
func (p *PlaybackSrv) Run(ctx context.Context) error {
	defer close(p.quit)

	logger := log.Ctx(ctx)
	logger.Info().Msg("playback engine started")

	if err := p.backend.Start(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.checkpoint(ctx)

			if err := p.stats.EndCurrentSession(ctx); err != nil {
				logger.Error().Err(err).Msg("end listening session failed")
			}

			if err := p.backend.Shutdown(); err != nil {
				logger.Error().Err(err).Msg("player backend shutdown failed")
			}

			logger.Info().Msg("playback engine stopped")

			return nil

		case cmd := <-p.commands:
			cmd()

		case event, ok := <-p.backend.Events():
			if !ok {
				return nil
			}

			p.handleBackendEvent(ctx, event)

		case now := <-ticker.C:
			p.checkSleepTimer(ctx, now)
		}
	}
}

//------------------------------------------------------------------------------

// Play start playback of the episode with guid, replacing any current
// session.
func (p *PlaybackSrv) Play(ctx context.Context, guid string) error {
	episode, err := p.downloads.getEpisode(ctx, guid)
	if err != nil {
		return err
	}

	return p.exec(ctx, func() error { return p.play(ctx, episode) })
}

func (p *PlaybackSrv) Pause(ctx context.Context) error {
	return p.exec(ctx, func() error { return p.pause(ctx) })
}

func (p *PlaybackSrv) Resume(ctx context.Context) error {
	return p.exec(ctx, func() error { return p.resume(ctx) })
}

func (p *PlaybackSrv) TogglePause(ctx context.Context) error {
	return p.exec(ctx, func() error {
		if p.state == StatePlaying {
			return p.pause(ctx)
		}

		return p.resume(ctx)
	})
}

// Stop tear the session down to idle, checkpointing first.
func (p *PlaybackSrv) Stop(ctx context.Context) error {
	return p.exec(ctx, func() error {
		if p.current == nil {
			return nil
		}

		p.checkpoint(ctx)

		if err := p.stats.EndCurrentSession(ctx); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("end listening session failed")
		}

		if err := p.backend.Stop(); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("stop backend failed")
		}

		p.teardown()

		return nil
	})
}

// SeekTo jump to an absolute position in seconds. Invalid input is
// rejected, out-of-range input is clamped.
func (p *PlaybackSrv) SeekTo(ctx context.Context, sec float64) error {
	return p.exec(ctx, func() error { return p.seek(ctx, sec) })
}

func (p *PlaybackSrv) SkipForward(ctx context.Context) error {
	sett, err := p.settings.GetSettings(ctx)
	if err != nil {
		return err
	}

	return p.exec(ctx, func() error {
		return p.seek(ctx, p.position+float64(sett.SkipForwardSec))
	})
}

func (p *PlaybackSrv) SkipBackward(ctx context.Context) error {
	sett, err := p.settings.GetSettings(ctx)
	if err != nil {
		return err
	}

	return p.exec(ctx, func() error {
		return p.seek(ctx, p.position-float64(sett.SkipBackwardSec))
	})
}

// SetSleepTimer pause playback after the given number of minutes.
// Cancels an end-of-episode timer if one is set.
func (p *PlaybackSrv) SetSleepTimer(ctx context.Context, minutes int) error {
	if minutes <= 0 {
		return aerr.ErrValidation.WithUserMsg("sleep timer must be > 0 minutes")
	}

	return p.exec(ctx, func() error {
		p.sleepDeadline = time.Now().Add(time.Duration(minutes) * time.Minute)
		log.Ctx(ctx).Info().Time("deadline", p.sleepDeadline).Msg("sleep timer set")

		return nil
	})
}

// SetSleepAtEnd stop playback at the natural end of the current episode
// instead of auto-advancing. Cancels a countdown timer if one is set.
func (p *PlaybackSrv) SetSleepAtEnd(ctx context.Context) error {
	return p.exec(ctx, func() error {
		p.sleepDeadline = sleepAtEndOfEpisode
		log.Ctx(ctx).Info().Msg("sleep timer set to end of episode")

		return nil
	})
}

func (p *PlaybackSrv) CancelSleepTimer(ctx context.Context) error {
	return p.exec(ctx, func() error {
		p.sleepDeadline = time.Time{}

		return nil
	})
}

func (p *PlaybackSrv) Status(ctx context.Context) (PlaybackStatus, error) {
	var status PlaybackStatus

	err := p.exec(ctx, func() error {
		status = PlaybackStatus{
			State:    p.state,
			Position: p.position,
			Duration: p.duration,
			Speed:    p.speed,
		}

		if p.current != nil {
			status.EpisodeGUID = p.current.GUID
			status.EpisodeTitle = p.current.Title
		}

		switch {
		case p.sleepDeadline.Equal(sleepAtEndOfEpisode):
			status.SleepAtEnd = true
		case !p.sleepDeadline.IsZero():
			status.SleepIn = time.Until(p.sleepDeadline).Seconds()
		}

		return nil
	})

	return status, err
}

// exec run fn on the engine goroutine and wait for its result.
func (p *PlaybackSrv) exec(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)

	select {
	case p.commands <- func() { errc <- fn() }:
	case <-ctx.Done():
		return ctx.Err() //nolint:wrapcheck
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err() //nolint:wrapcheck
	}
}

// post schedule fn on the engine goroutine without waiting; dropped when
// the engine already stopped (a timer may fire during shutdown).
func (p *PlaybackSrv) post(fn func()) {
	go func() {
		select {
		case p.commands <- fn:
		case <-p.quit:
		}
	}()
}

//------------------------------------------------------------------------------
// engine-goroutine internals

func (p *PlaybackSrv) play(ctx context.Context, episode *model.Episode) error {
	logger := log.Ctx(ctx)

	// resolve the source before touching any state; a bad url must not
	// leave the engine half torn down
	source, err := p.resolveSource(episode)
	if err != nil {
		return err
	}

	if p.current != nil {
		p.checkpoint(ctx)

		if err := p.stats.EndCurrentSession(ctx); err != nil {
			logger.Error().Err(err).Msg("end listening session failed")
		}
	}

	if err := p.stats.StartListening(ctx, episode.GUID); err != nil {
		logger.Error().Err(err).Msg("start listening session failed")
	}

	startpos := clampPosition(episode.Position, episode.Duration)

	p.current = episode
	p.state = StateLoading
	p.position = startpos
	p.duration = episode.Duration
	p.lastCheckpoint = time.Now()

	logger.Info().Str("guid", episode.GUID).Str("source", source).
		Float64("start", startpos).Msg("loading episode")

	if err := p.backend.Load(source, startpos); err != nil {
		if serr := p.stats.EndCurrentSession(ctx); serr != nil {
			logger.Error().Err(serr).Msg("end listening session failed")
		}

		p.teardown()

		return err
	}

	return nil
}

func (p *PlaybackSrv) pause(ctx context.Context) error {
	if p.state != StatePlaying {
		return nil
	}

	if err := p.backend.Pause(true); err != nil {
		return err
	}

	p.state = StatePaused
	p.checkpoint(ctx)
	p.stats.PauseListening()

	return nil
}

func (p *PlaybackSrv) resume(ctx context.Context) error {
	if p.state != StatePaused {
		return nil
	}

	// speed may have changed while paused; re-apply the effective value
	p.applySpeed(ctx)

	if err := p.backend.Pause(false); err != nil {
		return err
	}

	p.state = StatePlaying
	p.stats.ResumeListening()

	return nil
}

func (p *PlaybackSrv) seek(ctx context.Context, sec float64) error {
	if p.current == nil {
		return nil
	}

	if math.IsNaN(sec) || math.IsInf(sec, 0) {
		log.Ctx(ctx).Warn().Float64("sec", sec).Msg("rejecting invalid seek")

		return aerr.ErrValidation.WithUserMsg("invalid seek position")
	}

	sec = max(sec, 0)
	if p.duration > 0 {
		sec = min(sec, p.duration)
	}

	// update the observable position optimistically
	p.position = sec

	return p.backend.SeekTo(sec)
}

func (p *PlaybackSrv) handleBackendEvent(ctx context.Context, event player.Event) {
	logger := log.Ctx(ctx)

	switch ev := event.(type) {
	case player.Ready:
		if p.current == nil {
			return
		}

		p.duration = sanitizeFloat(ev.Duration)
		p.state = StatePlaying
		p.applySpeed(ctx)
		metricPlaybackSessions.Inc()

		logger.Info().Str("guid", p.current.GUID).Float64("duration", p.duration).
			Msg("playback started")

	case player.Failed:
		if p.current == nil {
			return
		}

		// a failed load is not retried; back to idle
		logger.Error().Err(ev.Err).Str("guid", p.current.GUID).Msg("playback failed")

		if err := p.stats.EndCurrentSession(ctx); err != nil {
			logger.Error().Err(err).Msg("end listening session failed")
		}

		p.teardown()

	case player.Position:
		if p.current == nil || math.IsNaN(ev.Pos) || math.IsInf(ev.Pos, 0) {
			return
		}

		p.position = ev.Pos

		if time.Since(p.lastCheckpoint) >= checkpointInterval {
			p.checkpoint(ctx)
		}

	case player.Ended:
		p.handlePlaybackEnded(ctx)
	}
}

// handlePlaybackEnded run the natural-completion path.
func (p *PlaybackSrv) handlePlaybackEnded(ctx context.Context) {
	if p.current == nil {
		return
	}

	logger := log.Ctx(ctx)
	guid := p.current.GUID

	logger.Info().Str("guid", guid).Msg("episode finished")

	if err := p.storePlaybackState(ctx, guid, 0, true); err != nil {
		logger.Error().Err(err).Str("guid", guid).Msg("mark episode played failed")
	}

	if err := p.stats.EndCurrentSession(ctx); err != nil {
		logger.Error().Err(err).Msg("end listening session failed")
	}

	p.teardown()
	p.bus.Publish(events.PlaybackCompleted{GUID: guid})

	// the end-of-episode sleep mode overrides the queue: stop here
	if p.sleepDeadline.Equal(sleepAtEndOfEpisode) {
		logger.Info().Msg("sleep timer: stopping at end of episode")
		p.sleepDeadline = time.Time{}

		return
	}

	next, err := p.queue.Pop(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("pop queue failed")

		return
	}

	if next == nil {
		return
	}

	logger.Info().Str("guid", next.GUID).Msg("auto-advancing to next queued episode")

	// brief settle delay before the next session
	time.AfterFunc(autoAdvanceDelay, func() {
		p.post(func() {
			if err := p.play(ctx, next); err != nil {
				logger.Error().Err(err).Str("guid", next.GUID).Msg("auto-advance failed")
			}
		})
	})
}

func (p *PlaybackSrv) checkSleepTimer(ctx context.Context, now time.Time) {
	if p.sleepDeadline.IsZero() || p.sleepDeadline.Equal(sleepAtEndOfEpisode) {
		return
	}

	if now.Before(p.sleepDeadline) {
		return
	}

	log.Ctx(ctx).Info().Msg("sleep timer expired; pausing")

	p.sleepDeadline = time.Time{}

	if err := p.pause(ctx); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("sleep timer pause failed")
	}
}

// checkpoint persist the current position. Positions at zero are not
// saved; positions within nearEndThreshold of the end are normalized to
// "played, position zero" so playback never sticks at 99%.
func (p *PlaybackSrv) checkpoint(ctx context.Context) {
	if p.current == nil || p.position <= 0 {
		return
	}

	position := p.position
	played := p.current.IsPlayed

	if p.duration > 0 && p.duration-position <= nearEndThreshold {
		position = 0
		played = true
	}

	if err := p.storePlaybackState(ctx, p.current.GUID, position, played); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("guid", p.current.GUID).Msg("checkpoint failed")

		return
	}

	p.current.Position = position
	p.current.IsPlayed = played
	p.lastCheckpoint = time.Now()
}

func (p *PlaybackSrv) storePlaybackState(ctx context.Context, guid string,
	position float64, played bool,
) error {
	//nolint:wrapcheck
	return db.InTransaction(ctx, p.db, func(dbctx repository.DBContext) error {
		return p.episodesRepo.UpdatePlaybackState(ctx, dbctx, guid, position, played)
	})
}

func (p *PlaybackSrv) teardown() {
	p.current = nil
	p.state = StateIdle
	p.position = 0
	p.duration = 0
}

// resolveSource prefer the local file when it verifiably exists; fall
// back to the remote url only when online.
func (p *PlaybackSrv) resolveSource(episode *model.Episode) (string, error) {
	if local := p.downloads.FilePath(episode); local != "" {
		if _, err := os.Stat(local); err == nil {
			return local, nil
		}
	}

	remote := validators.SanitizeURL(episode.AudioURL)
	if remote != "" && p.netstat.IsConnected() {
		return remote, nil
	}

	return "", ErrNoSource
}

// applySpeed set the effective playback speed: per-podcast override when
// set, else the global setting.
func (p *PlaybackSrv) applySpeed(ctx context.Context) {
	logger := log.Ctx(ctx)

	sett, err := p.settings.GetSettings(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("get settings failed")

		return
	}

	speed := sett.PlaybackSpeed

	if p.current != nil {
		podcast, err := db.InConnectionR(ctx, p.db,
			func(dbctx repository.DBContext) (*repository.PodcastDB, error) {
				return p.podcastsRepo.GetPodcastByID(ctx, dbctx, p.current.PodcastID)
			})

		switch {
		case err == nil:
			pod := podcast.ToModel()
			speed = pod.EffectiveSpeed(sett.PlaybackSpeed)
		case !errors.Is(err, repository.ErrNoData):
			logger.Error().Err(err).Msg("get podcast failed")
		}
	}

	if err := p.backend.SetSpeed(speed); err != nil {
		logger.Warn().Err(err).Float64("speed", speed).Msg("set playback speed failed")

		return
	}

	p.speed = speed
}

func clampPosition(position, duration float64) float64 {
	if math.IsNaN(position) || math.IsInf(position, 0) || position < 0 {
		return 0
	}

	if duration > 0 {
		return min(position, max(duration-1, 0))
	}

	return position
}

func sanitizeFloat(val float64) float64 {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return 0
	}

	return val
}
