package config

//
// debugflags_test.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

import (
	"fmt"
	"testing"

	"gitlab.com/kabes/go-cast/internal/assert"
)

func TestDebugFlags(t *testing.T) {
	tests := []struct {
		input       string
		expected    []DebugFlag
		notexpected []DebugFlag
	}{
		{"", []DebugFlag{}, []DebugFlag{DebugMsgBody, DebugDo, DebugRouter, DebugIPC}},
		{"xxx", []DebugFlag{}, []DebugFlag{DebugMsgBody, DebugDo, DebugRouter, DebugIPC}},
		{"all", []DebugFlag{DebugMsgBody, DebugDo, DebugRouter, DebugIPC}, []DebugFlag{}},
		{"all,do,ipc", []DebugFlag{DebugMsgBody, DebugDo, DebugRouter, DebugIPC}, []DebugFlag{}},
		{"do,ipc", []DebugFlag{DebugDo, DebugIPC}, []DebugFlag{DebugMsgBody, DebugRouter}},
		{"ipc,do,router", []DebugFlag{DebugDo, DebugIPC, DebugRouter}, []DebugFlag{DebugMsgBody}},
		{"ipc,do,router,logbody", []DebugFlag{DebugDo, DebugIPC, DebugRouter, DebugMsgBody}, []DebugFlag{}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v", tt.input), func(t *testing.T) {
			df := NewDebugFLags(tt.input)
			for _, e := range tt.expected {
				assert.True(t, df.HasFlag(e))
			}
			for _, e := range tt.notexpected {
				assert.True(t, !df.HasFlag(e))
			}
		})
	}
}
