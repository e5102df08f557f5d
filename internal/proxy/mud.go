// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package proxy

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/prismmud/prism/internal/event"
	"github.com/prismmud/prism/internal/pipeline"
	"github.com/prismmud/prism/internal/record"
)

// Events raised by the upstream shim.
const (
	EventMudConnected    = "ev_mud_connected"
	EventMudDisconnected = "ev_mud_disconnected"
)

// Telnet protocol bytes the shim must frame around. Negotiation itself
// happens in plugins; the shim only carries the frames intact.
const (
	telnetSE   = 240
	telnetGA   = 249
	telnetSB   = 250
	telnetWILL = 251
	telnetDO   = 253
	telnetDONT = 254
	telnetIAC  = 255

	telnetNAWS = 31
)

// dialCap bounds the fibonacci backoff between dial attempts.
const dialCap = 30 * time.Second

// MudConn is the upstream shim: it dials the mud with backoff, parses
// the byte stream into io lines and telnet-command frames, and feeds
// them to the pipeline on the dispatcher.
type MudConn struct {
	addr     string
	dispatch *Dispatcher
	pipe     *pipeline.Pipeline
	bus      *event.Bus
	log      *slog.Logger
	actor    string

	out chan string

	mu        sync.Mutex
	connected bool
}

// MudOption configures a MudConn.
type MudOption func(*MudConn)

// WithMudLogger overrides the shim's logger.
func WithMudLogger(log *slog.Logger) MudOption {
	return func(m *MudConn) { m.log = log }
}

// NewMudConn creates the upstream shim and registers its events.
func NewMudConn(addr, actor string, d *Dispatcher, p *pipeline.Pipeline, bus *event.Bus, opts ...MudOption) *MudConn {
	m := &MudConn{
		addr:     addr,
		dispatch: d,
		pipe:     p,
		bus:      bus,
		log:      slog.Default(),
		actor:    actor,
		out:      make(chan string, 256),
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, ev := range []struct{ name, desc string }{
		{EventMudConnected, "the upstream mud connection is established"},
		{EventMudDisconnected, "the upstream mud connection dropped"},
	} {
		if err := bus.Register(ev.name, actor, ev.desc, map[string]string{"addr": "mud address"}); err != nil {
			m.log.Warn("registering mud event", "event", ev.name, "error", err)
		}
	}
	return m
}

// Connected reports whether the upstream link is up.
func (m *MudConn) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Send queues one already-formatted payload for the mud socket. This is
// the pipeline's mud sink.
func (m *MudConn) Send(text string) {
	select {
	case m.out <- text:
	default:
		m.log.Warn("mud outbound queue full, dropping line")
	}
}

// Run dials and serves the upstream connection until the context ends,
// redialing with backoff after a disconnect.
func (m *MudConn) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		conn, err := m.dial(ctx)
		if err != nil {
			return err
		}
		m.setConnected(true)
		m.raise(EventMudConnected)
		m.serve(ctx, conn)
		m.setConnected(false)
		m.raise(EventMudDisconnected)
	}
	return nil
}

func (m *MudConn) dial(ctx context.Context) (net.Conn, error) {
	backoff := retry.WithCappedDuration(dialCap, retry.NewFibonacci(time.Second))
	var conn net.Conn
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, dialErr := (&net.Dialer{}).DialContext(ctx, "tcp", m.addr)
		if dialErr != nil {
			m.log.Warn("mud dial failed", "addr", m.addr, "error", dialErr)
			return retry.RetryableError(dialErr)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("connected to mud", "addr", m.addr)
	return conn, nil
}

// serve runs the read and write loops until either side fails.
func (m *MudConn) serve(ctx context.Context, conn net.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer conn.Close()
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case text := <-m.out:
				if _, err := io.WriteString(conn, text); err != nil {
					m.log.Warn("mud write failed", "error", err)
					conn.Close()
					return
				}
			}
		}
	}()

	reader := bufio.NewReader(conn)
	var text []byte
	for {
		b, err := reader.ReadByte()
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				m.log.Warn("mud read failed", "error", err)
			}
			break
		}
		switch b {
		case telnetIAC:
			frame, frameErr := readTelnetFrame(reader)
			if frameErr != nil {
				break
			}
			if len(frame) == 2 && frame[1] == telnetIAC {
				// Escaped literal 0xFF.
				text = append(text, telnetIAC)
				continue
			}
			if len(frame) == 2 && frame[1] == telnetGA {
				// IAC GA terminates a prompt: flush pending text as one.
				line := strings.TrimSuffix(string(text), "\r")
				text = nil
				m.emitPrompt(line)
				continue
			}
			m.emit(string(frame), record.KindTelnetCommand)
		case '\n':
			// LF-only from the mud is tolerated.
			line := strings.TrimSuffix(string(text), "\r")
			text = nil
			m.emit(line, record.KindIO)
		default:
			text = append(text, b)
		}
	}
	conn.Close()
	cancel()
	<-writerDone
}

// readTelnetFrame consumes the remainder of a frame after IAC.
func readTelnetFrame(r *bufio.Reader) ([]byte, error) {
	cmd, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	frame := []byte{telnetIAC, cmd}
	switch {
	case cmd >= telnetWILL && cmd <= telnetDONT:
		opt, optErr := r.ReadByte()
		if optErr != nil {
			return nil, optErr
		}
		return append(frame, opt), nil
	case cmd == telnetSB:
		for {
			b, subErr := r.ReadByte()
			if subErr != nil {
				return nil, subErr
			}
			frame = append(frame, b)
			if b == telnetSE && len(frame) >= 2 && frame[len(frame)-2] == telnetIAC {
				return frame, nil
			}
		}
	default:
		return frame, nil
	}
}

func (m *MudConn) emitPrompt(text string) {
	m.dispatch.Submit(func() {
		ln := record.New(text, record.OriginMud, record.KindIO)
		if err := ln.SetPrompt(true, m.actor); err != nil {
			m.log.Warn("marking prompt", "error", err)
		}
		c, err := record.NewContainer(record.OriginMud, ln)
		if err != nil {
			m.log.Warn("building prompt container", "error", err)
			return
		}
		if err := m.pipe.ProcessMudToClient(c, pipeline.SendOptions{}); err != nil {
			m.log.Warn("prompt processing failed", "error", err)
		}
	})
}

// emit hands one parsed line to the pipeline on the dispatcher.
func (m *MudConn) emit(text string, kind record.Kind) {
	m.dispatch.Submit(func() {
		c, err := record.NewContainer(record.OriginMud,
			record.New(text, record.OriginMud, kind))
		if err != nil {
			m.log.Warn("building mud container", "error", err)
			return
		}
		if err := m.pipe.ProcessMudToClient(c, pipeline.SendOptions{}); err != nil {
			m.log.Warn("mud line processing failed", "error", err)
		}
	})
}

func (m *MudConn) raise(name string) {
	m.dispatch.Submit(func() {
		if _, err := m.bus.Raise(name, map[string]any{"addr": m.addr}, m.actor); err != nil {
			m.log.Warn("raising mud event", "event", name, "error", err)
		}
	})
}

func (m *MudConn) setConnected(up bool) {
	m.mu.Lock()
	m.connected = up
	m.mu.Unlock()
}
