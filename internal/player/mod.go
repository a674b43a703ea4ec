// Package player define the audio backend contract used by the playback
// engine and its mpv implementation.
package player

//
// mod.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

import "context"

// Event is sent by the backend to the playback engine. Exactly one of
// Ready, Failed or Ended is reported per loaded file; Position ticks
// arrive while playing.
type Event any

// Ready - media loaded and playing; Duration in seconds.
type Ready struct {
	Duration float64
}

// Failed - media could not be loaded or playback broke down.
type Failed struct {
	Err error
}

// Ended - media played to its natural end.
type Ended struct{}

// Position - periodic playback position report in seconds.
type Position struct {
	Pos float64
}

// Backend is an audio player controlled by the playback engine. All
// methods are safe for concurrent use; results of Load are reported
// asynchronously on Events.
type Backend interface {
	// Start launch the backend process; must be called before Load.
	Start(ctx context.Context) error
	// Load start playing given url or file from startpos seconds.
	Load(url string, startpos float64) error
	Pause(paused bool) error
	// SeekTo jump to absolute position in seconds.
	SeekTo(sec float64) error
	SetSpeed(speed float64) error
	// Stop end current playback but keep the backend running.
	Stop() error
	// Events return the backend event stream; closed on Shutdown.
	Events() <-chan Event

	Shutdown() error
}
