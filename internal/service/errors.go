package service

//
// errors.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

import (
	"gitlab.com/kabes/go-cast/internal/aerr"
)

var (
	ErrRepositoryError = aerr.New("database error").
				WithTag(aerr.InternalError).
				WithUserMsg("database error")

	ErrUnknownPodcast = aerr.NewSimple("unknown podcast").
				WithTag(aerr.DataError).
				WithUserMsg("podcast not found")

	ErrUnknownEpisode = aerr.NewSimple("unknown episode").
				WithTag(aerr.DataError).
				WithUserMsg("episode not found")

	// ErrNoSource - no local file and no usable remote source for playback.
	ErrNoSource = aerr.NewSimple("no playable source").
			WithTag(aerr.DataError).
			WithUserMsg("episode has no playable source")
)
