package server

//
// config.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

import (
	"net"

	"gitlab.com/kabes/go-cast/internal/aerr"
	"gitlab.com/kabes/go-cast/internal/config"
)

// Configuration for the management http server.
type Configuration struct {
	// Listen address; the server is meant for localhost use.
	Listen string

	EnableMetrics bool

	DebugFlags config.DebugFlags
}

func (c *Configuration) Validate() error {
	if c.Listen == "" {
		return aerr.ErrInvalidConf.WithUserMsg("empty listen address")
	}

	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return aerr.ErrInvalidConf.WithError(err).
			WithUserMsg("invalid listen address").
			WithMeta("listen", c.Listen)
	}

	return nil
}
