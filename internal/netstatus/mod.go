// Package netstatus report current network connectivity and connection
// type; the download manager uses it to apply download policies.
package netstatus

//
// mod.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

import (
	"net"
	"strings"
	"sync"

	"github.com/samber/do/v2"
)

type ConnectionType string

const (
	ConnectionNone     ConnectionType = "none"
	ConnectionWifi     ConnectionType = "wifi"
	ConnectionCellular ConnectionType = "cellular"
	ConnectionWired    ConnectionType = "wired"
	ConnectionUnknown  ConnectionType = "unknown"
)

// Metered report whether transfers on this connection may cost the user.
func (c ConnectionType) Metered() bool {
	return c == ConnectionCellular
}

// Observer answer "are we online and on what kind of link". The default
// implementation inspects local interfaces; tests and the simulated-offline
// switch override the result.
type Observer struct {
	mu       sync.Mutex
	override *ConnectionType
}

func NewObserverI(_ do.Injector) (*Observer, error) {
	return &Observer{}, nil
}

func (o *Observer) ConnectionType() ConnectionType {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.override != nil {
		return *o.override
	}

	return detect()
}

func (o *Observer) IsConnected() bool {
	return o.ConnectionType() != ConnectionNone
}

// SetOverride force a connection type; used by the simulated-offline
// switch and by tests. Pass empty string to restore detection.
func (o *Observer) SetOverride(conntype ConnectionType) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if conntype == "" {
		o.override = nil

		return
	}

	o.override = &conntype
}

func detect() ConnectionType {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ConnectionUnknown
	}

	res := ConnectionNone

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil || len(addrs) == 0 {
			continue
		}

		name := strings.ToLower(iface.Name)

		switch {
		case strings.HasPrefix(name, "wl"):
			return ConnectionWifi
		case strings.HasPrefix(name, "ww"), strings.HasPrefix(name, "rmnet"):
			res = ConnectionCellular
		case strings.HasPrefix(name, "en"), strings.HasPrefix(name, "eth"):
			if res == ConnectionNone {
				res = ConnectionWired
			}
		default:
			if res == ConnectionNone {
				res = ConnectionUnknown
			}
		}
	}

	return res
}

var Package = do.Package(
	do.Lazy(NewObserverI),
)
