// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package proxy

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/prismmud/prism/internal/pipeline"
	"github.com/prismmud/prism/internal/record"
)

// ClientInfo is the per-connection state exposed to listing surfaces.
type ClientInfo struct {
	ID       string
	Remote   string
	Rows     int
	LoggedIn bool
	ViewOnly bool
}

// ClientConn is one downstream connection. Until the password matches it
// sits in the prelogin subset and only receives prelogin-flagged lines.
type ClientConn struct {
	id     string
	remote string
	conn   net.Conn
	server *Server
	out    chan string

	mu       sync.Mutex
	rows     int
	loggedIn bool
	viewOnly bool
	attempts int
	quitting bool
}

func newClientConn(conn net.Conn, s *Server) *ClientConn {
	return &ClientConn{
		id:     record.NewULID().String(),
		remote: conn.RemoteAddr().String(),
		conn:   conn,
		server: s,
		out:    make(chan string, 256),
		rows:   24,
	}
}

// Deliver queues one formatted line for this client. This is the
// pipeline's per-recipient sink; a stalled client drops rather than
// blocking the dispatcher.
func (c *ClientConn) Deliver(text string) {
	select {
	case c.out <- text:
	default:
		c.server.log.Warn("client outbound queue full, dropping line", "client_id", c.id)
	}
}

func (c *ClientConn) recipient() pipeline.Recipient {
	c.mu.Lock()
	defer c.mu.Unlock()
	return pipeline.Recipient{
		ID:       c.id,
		LoggedIn: c.loggedIn,
		ViewOnly: c.viewOnly,
		Deliver:  c.Deliver,
	}
}

func (c *ClientConn) info() ClientInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ClientInfo{
		ID:       c.id,
		Remote:   c.remote,
		Rows:     c.rows,
		LoggedIn: c.loggedIn,
		ViewOnly: c.viewOnly,
	}
}

// handle runs the connection until it closes.
func (c *ClientConn) handle(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() {
		c.conn.Close()
		c.server.remove(c.id)
		c.server.raiseClient(EventClientDisconnected, c)
	}()

	banner := append(append([]string(nil), c.server.banner...), "password:")
	c.server.internal(c.id, true, banner...)

	lineCh := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		reader := bufio.NewReader(c.conn)
		var text []byte
		for {
			b, err := reader.ReadByte()
			if err != nil {
				errCh <- err
				return
			}
			switch b {
			case telnetIAC:
				frame, frameErr := readTelnetFrame(reader)
				if frameErr != nil {
					errCh <- frameErr
					return
				}
				if len(frame) == 2 && frame[1] == telnetIAC {
					// Escaped literal 0xFF.
					text = append(text, telnetIAC)
					continue
				}
				c.handleTelnet(frame)
			case '\n':
				line := strings.TrimSuffix(string(text), "\r")
				text = nil
				select {
				case lineCh <- line:
				case <-ctx.Done():
					return
				}
			default:
				text = append(text, b)
			}
		}
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case text := <-c.out:
				if _, err := io.WriteString(c.conn, text); err != nil {
					c.server.log.Debug("client write failed", "client_id", c.id, "error", err)
					c.conn.Close()
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				c.server.log.Debug("client read error", "client_id", c.id, "error", err)
			}
			return
		case line := <-lineCh:
			c.processLine(line)
			if c.isQuitting() {
				return
			}
		}
	}
}

// handleTelnet answers the one negotiation the proxy tracks itself,
// NAWS, and swallows the rest so negotiation bytes never leak into the
// line stream. A client offering NAWS gets a DO back; its subnegotiated
// window height lands in rows.
func (c *ClientConn) handleTelnet(frame []byte) {
	switch {
	case len(frame) == 3 && frame[1] == telnetWILL && frame[2] == telnetNAWS:
		c.Deliver(string([]byte{telnetIAC, telnetDO, telnetNAWS}))
	case len(frame) >= 5 && frame[1] == telnetSB && frame[2] == telnetNAWS:
		if rows, ok := nawsRows(frame); ok && rows > 0 {
			c.mu.Lock()
			c.rows = rows
			c.mu.Unlock()
		}
	}
}

// nawsRows extracts the window height from IAC SB NAWS w1 w2 h1 h2 IAC
// SE, unescaping doubled IACs in the payload.
func nawsRows(frame []byte) (int, bool) {
	payload := frame[3 : len(frame)-2]
	var b []byte
	for i := 0; i < len(payload); i++ {
		b = append(b, payload[i])
		if payload[i] == telnetIAC && i+1 < len(payload) && payload[i+1] == telnetIAC {
			i++
		}
	}
	if len(b) != 4 {
		return 0, false
	}
	return int(b[2])<<8 | int(b[3]), true
}

func (c *ClientConn) processLine(line string) {
	c.mu.Lock()
	loggedIn := c.loggedIn
	viewOnly := c.viewOnly
	c.mu.Unlock()

	if !loggedIn {
		c.tryLogin(line)
		return
	}
	if viewOnly {
		c.server.internal(c.id, false, "view-only clients cannot send commands")
		return
	}
	if line == "" {
		return
	}
	c.server.submitClientLine(c.id, line)
}

// tryLogin matches the submitted password, with a view-only variant.
// Too many failures close the connection.
func (c *ClientConn) tryLogin(password string) {
	switch {
	case password == c.server.password:
		c.setLoggedIn(false)
		c.server.log.Info("client logged in", "client_id", c.id, "addr", c.remote)
		c.server.raiseClient(EventClientLoggedIn, c)
		c.server.internal(c.id, false, "welcome to the proxy")
	case c.server.viewPassword != "" && password == c.server.viewPassword:
		c.setLoggedIn(true)
		c.server.log.Info("view-only client logged in", "client_id", c.id, "addr", c.remote)
		c.server.raiseClient(EventClientLoggedIn, c)
		c.server.internal(c.id, false, "welcome, view-only session")
	default:
		c.mu.Lock()
		c.attempts++
		failed := c.attempts >= maxLoginAttempts
		c.quitting = failed
		c.mu.Unlock()
		if failed {
			c.server.log.Warn("client failed login", "client_id", c.id, "addr", c.remote)
			return
		}
		c.server.internal(c.id, true, "wrong password, try again:")
	}
}

func (c *ClientConn) setLoggedIn(viewOnly bool) {
	c.mu.Lock()
	c.loggedIn = true
	c.viewOnly = viewOnly
	c.mu.Unlock()
}

func (c *ClientConn) isQuitting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quitting
}
