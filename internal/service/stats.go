package service

//
// stats.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

import (
	"context"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"
	"gitlab.com/kabes/go-cast/internal/aerr"
	"gitlab.com/kabes/go-cast/internal/db"
	"gitlab.com/kabes/go-cast/internal/repository"
)

// StatsSrv record listening sessions. One session spans one stretch of
// listening to one episode; pauses stop the clock without ending the
// session.
type StatsSrv struct {
	db            *db.Database
	listeningRepo repository.ListeningRepository

	mu      sync.Mutex
	current *activeSession
}

type activeSession struct {
	id          string
	episodeGUID string
	startedAt   time.Time

	listened  time.Duration
	segment   time.Time
	listening bool
}

func NewStatsSrv(i do.Injector) (*StatsSrv, error) {
	return &StatsSrv{
		db:            do.MustInvoke[*db.Database](i),
		listeningRepo: do.MustInvoke[repository.ListeningRepository](i),
	}, nil
}

// StartListening end any current session and open a new one for guid.
func (s *StatsSrv) StartListening(ctx context.Context, guid string) error {
	if err := s.EndCurrentSession(ctx); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("end previous listening session failed")
	}

	now := time.Now().UTC()
	session := &activeSession{
		id:          xid.New().String(),
		episodeGUID: guid,
		startedAt:   now,
		segment:     now,
		listening:   true,
	}

	s.mu.Lock()
	s.current = session
	s.mu.Unlock()

	//nolint:wrapcheck
	return db.InTransaction(ctx, s.db, func(dbctx repository.DBContext) error {
		return s.listeningRepo.InsertSession(ctx, dbctx, &repository.ListeningSessionDB{
			ID:          session.id,
			EpisodeGUID: guid,
			StartedAt:   now,
		})
	})
}

// PauseListening stop counting time; the session stays open.
func (s *StatsSrv) PauseListening() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || !s.current.listening {
		return
	}

	s.current.listened += time.Since(s.current.segment)
	s.current.listening = false
}

func (s *StatsSrv) ResumeListening() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || s.current.listening {
		return
	}

	s.current.segment = time.Now().UTC()
	s.current.listening = true
}

// EndCurrentSession close the open session and persist total listened
// time; no-op when no session is open.
func (s *StatsSrv) EndCurrentSession(ctx context.Context) error {
	s.mu.Lock()

	session := s.current
	s.current = nil

	if session == nil {
		s.mu.Unlock()

		return nil
	}

	if session.listening {
		session.listened += time.Since(session.segment)
	}

	s.mu.Unlock()

	log.Ctx(ctx).Debug().Str("guid", session.episodeGUID).
		Dur("listened", session.listened).Msg("listening session ended")

	err := db.InTransaction(ctx, s.db, func(dbctx repository.DBContext) error {
		return s.listeningRepo.CloseSession(ctx, dbctx, session.id,
			time.Now().UTC(), session.listened.Seconds())
	})
	if err != nil {
		return aerr.ApplyFor(ErrRepositoryError, err)
	}

	return nil
}

// ListenedSince return total listened seconds for sessions started after
// the given moment.
func (s *StatsSrv) ListenedSince(ctx context.Context, since time.Time) (float64, error) {
	//nolint:wrapcheck
	return db.InConnectionR(ctx, s.db, func(dbctx repository.DBContext) (float64, error) {
		total, err := s.listeningRepo.SumListened(ctx, dbctx, since)
		if err != nil {
			return 0, aerr.ApplyFor(ErrRepositoryError, err)
		}

		return total, nil
	})
}
