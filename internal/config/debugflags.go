package config

//
// debugflags.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

import (
	"slices"
	"strings"
)

//-------------------------------------------------------------

type DebugFlag string

const (
	// DebugMsgBody enable logging request and response body and headers.
	DebugMsgBody = DebugFlag("logbody")
	// DebugDo enable logging samber/do container details.
	DebugDo = DebugFlag("do")
	// DebugRouter show defined routes.
	DebugRouter = DebugFlag("router")
	// DebugGo mount net/http/pprof profiler.
	DebugGo = DebugFlag("go")
	// DebugDBQueryMetrics enable per-query duration metrics.
	DebugDBQueryMetrics = DebugFlag("querymetrics")
	// DebugIPC enable logging raw player ipc traffic.
	DebugIPC = DebugFlag("ipc")

	// DebugAll enable all debug flags.
	DebugAll = DebugFlag("all")
	// DebugNone disable all debug flags.
	DebugNone = DebugFlag("")
)

type DebugFlags []string

func NewDebugFLags(flags string) DebugFlags {
	return DebugFlags(strings.Split(flags, ","))
}

func (d DebugFlags) HasFlag(flag DebugFlag) bool {
	return slices.Contains(d, "all") || slices.Contains(d, string(flag))
}
