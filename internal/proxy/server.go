// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package proxy

import (
	"context"
	"log/slog"
	"net"
	"sort"
	"sync"

	"github.com/prismmud/prism/internal/event"
	"github.com/prismmud/prism/internal/pipeline"
	"github.com/prismmud/prism/internal/record"
)

// Events raised by the downstream shim.
const (
	EventClientConnected    = "ev_client_connected"
	EventClientLoggedIn     = "ev_client_logged_in"
	EventClientDisconnected = "ev_client_disconnected"
)

// maxLoginAttempts closes a client after this many wrong passwords.
const maxLoginAttempts = 3

// Server accepts client connections and keeps the recipient table the
// pipeline delivers to.
type Server struct {
	addr         string
	password     string
	viewPassword string
	banner       []string

	dispatch *Dispatcher
	pipe     *pipeline.Pipeline
	bus      *event.Bus
	log      *slog.Logger
	actor    string

	mu       sync.RWMutex
	listener net.Listener
	clients  map[string]*ClientConn
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithBanner sets the lines shown to a client before login.
func WithBanner(lines ...string) ServerOption {
	return func(s *Server) { s.banner = lines }
}

// WithViewPassword enables the view-only login password.
func WithViewPassword(pw string) ServerOption {
	return func(s *Server) { s.viewPassword = pw }
}

// WithServerLogger overrides the server's logger.
func WithServerLogger(log *slog.Logger) ServerOption {
	return func(s *Server) { s.log = log }
}

// NewServer creates the downstream shim and registers its events.
func NewServer(addr, password, actor string, d *Dispatcher, p *pipeline.Pipeline,
	bus *event.Bus, opts ...ServerOption) *Server {
	s := &Server{
		addr:     addr,
		password: password,
		dispatch: d,
		pipe:     p,
		bus:      bus,
		log:      slog.Default(),
		actor:    actor,
		clients:  make(map[string]*ClientConn),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, ev := range []struct{ name, desc string }{
		{EventClientConnected, "a client connected"},
		{EventClientLoggedIn, "a client authenticated"},
		{EventClientDisconnected, "a client disconnected"},
	} {
		if err := bus.Register(ev.name, actor, ev.desc,
			map[string]string{"client_id": "client id", "addr": "remote address"}); err != nil {
			s.log.Warn("registering client event", "event", ev.name, "error", err)
		}
	}
	return s
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run accepts connections until the context ends.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	s.log.Info("client listener started", "addr", listener.Addr())

	go func() {
		<-ctx.Done()
		if closeErr := listener.Close(); closeErr != nil {
			s.log.Debug("closing listener", "error", closeErr)
		}
	}()

	for {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.Error("accept failed", "error", acceptErr)
				continue
			}
		}
		client := newClientConn(conn, s)
		s.add(client)
		s.raiseClient(EventClientConnected, client)
		go client.handle(ctx)
	}
}

// Recipients snapshots the current client set for the pipeline.
func (s *Server) Recipients() []pipeline.Recipient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]pipeline.Recipient, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c.recipient())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Clients returns a snapshot of per-connection state for listing
// surfaces.
func (s *Server) Clients() []ClientInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ClientInfo, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Server) add(c *ClientConn) {
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
}

func (s *Server) remove(id string) {
	s.mu.Lock()
	delete(s.clients, id)
	s.mu.Unlock()
}

func (s *Server) raiseClient(name string, c *ClientConn) {
	s.dispatch.Submit(func() {
		if _, err := s.bus.Raise(name, map[string]any{
			"client_id": c.id,
			"addr":      c.remote,
		}, s.actor); err != nil {
			s.log.Warn("raising client event", "event", name, "error", err)
		}
	})
}

// internal sends proxy lines to one client through the pipeline.
func (s *Server) internal(clientID string, prelogin bool, messages ...string) {
	s.dispatch.Submit(func() {
		err := s.pipe.SendInternal(messages, pipeline.InternalOptions{
			NoPreamble: true,
			Prelogin:   prelogin,
			Send:       pipeline.SendOptions{Include: []string{clientID}},
		})
		if err != nil {
			s.log.Warn("sending internal lines", "client_id", clientID, "error", err)
		}
	})
}

// submitClientLine routes one authenticated client line into the to-mud
// pipeline. Command lines take the same path: the engine runs as a
// callback on the modify event and clears the send flag on a hit.
func (s *Server) submitClientLine(clientID, line string) {
	s.dispatch.Submit(func() {
		c, err := record.NewContainer(record.OriginClient,
			record.New(line, record.OriginClient, record.KindIO))
		if err != nil {
			s.log.Warn("building client container", "error", err)
			return
		}
		if err := s.pipe.ProcessClientToMud(c, clientID); err != nil {
			s.log.Warn("client line processing failed", "error", err)
		}
	})
}
