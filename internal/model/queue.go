package model

//
// queue.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

import (
	"time"

	"github.com/rs/zerolog"
)

// QueueItem is one "up next" entry; it references an episode by identity
// and orders the queue by SortOrder. Order values are only relatively
// ordered, not necessarily contiguous.
type QueueItem struct {
	ID        int64
	EpisodeID int64
	SortOrder int64
	CreatedAt time.Time

	Episode Episode
}

func (q *QueueItem) MarshalZerologObject(event *zerolog.Event) {
	event.Int64("id", q.ID).
		Int64("episode_id", q.EpisodeID).
		Int64("sort_order", q.SortOrder).
		Str("guid", q.Episode.GUID)
}
