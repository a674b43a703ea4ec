package service

//
// package.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

import "github.com/samber/do/v2"

var Package = do.Package( //nolint:gochecknoglobals
	do.Lazy(NewSettingsSrv),
	do.Lazy(NewDownloadsSrv),
	do.Lazy(NewCleanupSrv),
	do.Lazy(NewQueueSrv),
	do.Lazy(NewStatsSrv),
	do.Lazy(NewFeedsSrv),
	do.Lazy(NewPlaybackSrv),
)
