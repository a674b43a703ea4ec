package model

//
// sessions.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

import (
	"time"

	"github.com/rs/zerolog"
)

// ListeningSession is one span of listening to a single episode, used for
// listening statistics. Ended is nil while the session is open.
type ListeningSession struct {
	ID          string
	EpisodeGUID string
	StartedAt   time.Time
	EndedAt     *time.Time
	// ListenedSec is accumulated actual listening time, excluding pauses.
	ListenedSec float64
}

func (l *ListeningSession) MarshalZerologObject(event *zerolog.Event) {
	event.Str("id", l.ID).
		Str("guid", l.EpisodeGUID).
		Time("started_at", l.StartedAt).
		Float64("listened_s", l.ListenedSec)
}
