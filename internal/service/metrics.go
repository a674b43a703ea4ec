package service

//
// metrics.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals
var (
	metricDownloadsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "downloads_started_total",
		Help: "Number of download transfers started.",
	})
	metricDownloadsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "downloads_completed_total",
		Help: "Number of download transfers finished successfully.",
	})
	metricDownloadsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "downloads_failed_total",
		Help: "Number of download transfers failed or cancelled.",
	})
	metricDownloadedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "downloads_bytes_total",
		Help: "Bytes received by download transfers.",
	})
	metricEvictedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cleanup_evicted_bytes_total",
		Help: "Bytes freed by the download cleanup service.",
	})
	metricPlaybackSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playback_sessions_total",
		Help: "Number of playback sessions started.",
	})
)
