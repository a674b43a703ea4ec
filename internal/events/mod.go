// Package events provide a small in-process publish/subscribe bus used to
// decouple the download manager, cleanup and playback services.
package events

//
// mod.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"
)

type Event any

// DownloadCompleted is published after an episode file is fully
// downloaded and recorded in the database.
type DownloadCompleted struct {
	GUID     string
	Filename string
}

// DownloadFailed is published when a transfer gives up.
type DownloadFailed struct {
	GUID string
	URL  string
	Err  error
}

// DownloadsIdle is published when the last in-flight download finishes.
type DownloadsIdle struct{}

// PlaybackCompleted is published when an episode reaches its natural end.
type PlaybackCompleted struct {
	GUID string
}

const chanBuffer = 16

type Bus struct {
	mu   sync.Mutex
	subs []chan Event
}

func NewBusI(_ do.Injector) (*Bus, error) {
	return &Bus{}, nil
}

// Subscribe return a new channel receiving all future events. The channel
// is buffered; a subscriber that stops draining loses events instead of
// blocking publishers.
func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, chanBuffer)
	b.subs = append(b.subs, ch)

	return ch
}

func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			log.Logger.Warn().Any("event", event).Msg("event dropped; subscriber not draining")
		}
	}
}

func (b *Bus) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		close(ch)
	}

	b.subs = nil

	return nil
}

var Package = do.Package(
	do.Lazy(NewBusI),
)
