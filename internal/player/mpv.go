package player

//
// mpv.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"
	"gitlab.com/kabes/go-cast/internal/aerr"
	"gitlab.com/kabes/go-cast/internal/config"
)

const (
	socketWaitAttempts = 20
	socketWaitInterval = 100 * time.Millisecond
	commandTimeout     = 2 * time.Second
	// positions arrive with every mpv tick; report at most twice a second
	positionInterval = 500 * time.Millisecond
)

type mpvCommand struct {
	Command   []any `json:"command"`
	RequestID int   `json:"request_id,omitempty"`
}

type mpvResponse struct {
	Data      any    `json:"data"`
	RequestID int    `json:"request_id"`
	Error     string `json:"error"`
}

type mpvEvent struct {
	Event  string `json:"event"`
	ID     int    `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Data   any    `json:"data,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// MPV drive an external mpv process over its JSON IPC socket.
type MPV struct {
	mu         sync.Mutex
	cmd        *exec.Cmd
	socketPath string
	eventConn  net.Conn
	events     chan Event
	closeOnce  sync.Once

	loaded   bool
	lastPos  time.Time
	debugIPC bool
}

func NewMPVI(i do.Injector) (Backend, error) {
	flags, _ := do.InvokeNamed[config.DebugFlags](i, "debugflags")

	return &MPV{
		socketPath: filepath.Join(os.TempDir(), fmt.Sprintf("go-cast-mpv-%d.sock", os.Getpid())),
		events:     make(chan Event, 16), //nolint:mnd
		debugIPC:   flags.HasFlag(config.DebugIPC),
	}, nil
}

func (m *MPV) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cmd != nil {
		return nil
	}

	// stale socket from a crashed run
	_ = os.Remove(m.socketPath)

	m.cmd = exec.Command("mpv",
		"--no-video",
		"--really-quiet",
		"--no-terminal",
		"--idle=yes",
		"--force-window=no",
		"--keep-open=no",
		"--input-ipc-server="+m.socketPath,
	)

	if err := m.cmd.Start(); err != nil {
		m.cmd = nil

		return aerr.Wrapf(err, "start mpv failed").WithTag(aerr.InternalError)
	}

	if err := m.waitForSocket(); err != nil {
		_ = m.cmd.Process.Kill()
		_ = m.cmd.Wait()
		m.cmd = nil

		return err
	}

	if err := m.startEventListener(ctx); err != nil {
		_ = m.cmd.Process.Kill()
		_ = m.cmd.Wait()
		m.cmd = nil

		return err
	}

	log.Ctx(ctx).Debug().Str("socket", m.socketPath).Msg("mpv started")

	return nil
}

func (m *MPV) Load(url string, startpos float64) error {
	args := []any{"loadfile", url, "replace"}
	if startpos > 0 {
		args = append(args, fmt.Sprintf("start=+%.3f", startpos))
	}

	if _, err := m.send(mpvCommand{Command: args}); err != nil {
		return err
	}

	return m.setProperty("pause", false)
}

func (m *MPV) Pause(paused bool) error {
	return m.setProperty("pause", paused)
}

func (m *MPV) SeekTo(sec float64) error {
	_, err := m.send(mpvCommand{Command: []any{"seek", sec, "absolute"}})

	return err
}

func (m *MPV) SetSpeed(speed float64) error {
	return m.setProperty("speed", speed)
}

func (m *MPV) Stop() error {
	m.mu.Lock()
	m.loaded = false
	m.mu.Unlock()

	_, err := m.send(mpvCommand{Command: []any{"stop"}})

	return err
}

func (m *MPV) Events() <-chan Event {
	return m.events
}

func (m *MPV) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cmd == nil {
		return nil
	}

	_, _ = m.send(mpvCommand{Command: []any{"quit"}})

	if m.eventConn != nil {
		_ = m.eventConn.Close()
		m.eventConn = nil
	}

	done := make(chan error, 1)
	go func() { done <- m.cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(time.Second):
		_ = m.cmd.Process.Kill()
		<-done
	}

	m.cmd = nil

	_ = os.Remove(m.socketPath)

	m.closeOnce.Do(func() { close(m.events) })

	return nil
}

func (m *MPV) waitForSocket() error {
	for range socketWaitAttempts {
		if _, err := os.Stat(m.socketPath); err == nil {
			return nil
		}

		time.Sleep(socketWaitInterval)
	}

	return aerr.New("mpv socket not created").WithTag(aerr.InternalError).
		WithMeta("socket", m.socketPath)
}

func (m *MPV) setProperty(name string, value any) error {
	_, err := m.send(mpvCommand{Command: []any{"set_property", name, value}})

	return err
}

func (m *MPV) getPropertyFloat(name string) (float64, error) {
	resp, err := m.send(mpvCommand{Command: []any{"get_property", name}})
	if err != nil {
		return 0, err
	}

	val, ok := resp.Data.(float64)
	if !ok {
		return 0, aerr.Newf("unexpected mpv property type for %q", name)
	}

	return val, nil
}

// send open a short-lived connection, write one command and read its
// response. Events use a separate, persistent connection.
func (m *MPV) send(cmd mpvCommand) (*mpvResponse, error) {
	conn, err := net.Dial("unix", m.socketPath)
	if err != nil {
		return nil, aerr.Wrapf(err, "connect to mpv failed").WithTag(aerr.InternalError)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(commandTimeout))

	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("marshal mpv command error: %w", err)
	}

	data = append(data, '\n')

	if _, err := conn.Write(data); err != nil {
		return nil, aerr.Wrapf(err, "write mpv command failed").WithTag(aerr.InternalError)
	}

	reader := bufio.NewReader(conn)

	// the socket also carries events; skip them until the response arrives
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return nil, aerr.Wrapf(err, "read mpv response failed").WithTag(aerr.InternalError)
		}

		var resp mpvResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			continue
		}

		if resp.Error == "" {
			continue // an event, not a response
		}

		if resp.Error != "success" {
			return &resp, aerr.Newf("mpv error: %s", resp.Error).WithTag(aerr.InternalError)
		}

		return &resp, nil
	}
}

func (m *MPV) startEventListener(ctx context.Context) error {
	conn, err := net.Dial("unix", m.socketPath)
	if err != nil {
		return aerr.Wrapf(err, "connect to mpv for events failed").WithTag(aerr.InternalError)
	}

	observe := mpvCommand{Command: []any{"observe_property", 1, "time-pos"}}

	data, err := json.Marshal(observe)
	if err != nil {
		panic(err)
	}

	if _, err := conn.Write(append(data, '\n')); err != nil {
		_ = conn.Close()

		return aerr.Wrapf(err, "enable mpv events failed").WithTag(aerr.InternalError)
	}

	m.eventConn = conn

	go m.handleEvents(ctx, conn)

	return nil
}

func (m *MPV) handleEvents(ctx context.Context, conn net.Conn) {
	logger := log.Ctx(ctx)
	reader := bufio.NewReader(conn)

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			logger.Debug().Err(err).Msg("mpv event stream closed")

			return
		}

		if m.debugIPC {
			logger.Debug().Bytes("event", line).Msg("mpv event")
		}

		var event mpvEvent
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}

		switch event.Event {
		case "file-loaded":
			m.onFileLoaded(logger)

		case "property-change":
			if event.Name != "time-pos" {
				continue
			}

			pos, ok := event.Data.(float64)
			if !ok {
				continue
			}

			m.mu.Lock()
			throttled := time.Since(m.lastPos) < positionInterval
			if !throttled {
				m.lastPos = time.Now()
			}
			m.mu.Unlock()

			if !throttled {
				m.emit(Position{Pos: pos})
			}

		case "end-file":
			m.onEndFile(event)
		}
	}
}

func (m *MPV) onFileLoaded(logger *zerolog.Logger) {
	// set here, not in Load: a mid-play replace makes mpv emit end-file
	// for the old file after Load returned, which must not clear the
	// flag of the file that replaced it
	m.mu.Lock()
	m.loaded = true
	m.mu.Unlock()

	duration, err := m.getPropertyFloat("duration")
	if err != nil {
		logger.Warn().Err(err).Msg("get mpv duration failed")
	}

	m.emit(Ready{Duration: duration})
}

func (m *MPV) onEndFile(event mpvEvent) {
	m.mu.Lock()
	loaded := m.loaded
	m.loaded = false
	m.mu.Unlock()

	switch event.Reason {
	case "error":
		m.emit(Failed{Err: aerr.New("mpv playback failed").WithTag(aerr.InternalError)})
	case "eof", "":
		if loaded {
			m.emit(Ended{})
		}
	default:
		// "stop", "quit", "redirect" - not a natural end
	}
}

func (m *MPV) emit(event Event) {
	select {
	case m.events <- event:
	default:
		log.Logger.Warn().Any("event", event).Msg("player event dropped")
	}
}

var Package = do.Package(
	do.Lazy(NewMPVI),
)
