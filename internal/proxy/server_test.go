// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package proxy

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismmud/prism/internal/command"
	"github.com/prismmud/prism/internal/event"
	"github.com/prismmud/prism/internal/pipeline"
)

type mudCapture struct {
	mu    sync.Mutex
	lines []string
}

func (m *mudCapture) send(text string) {
	m.mu.Lock()
	m.lines = append(m.lines, text)
	m.mu.Unlock()
}

func (m *mudCapture) snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lines...)
}

type harness struct {
	server *Server
	mud    *mudCapture
	bus    *event.Bus
	cancel context.CancelFunc
}

func startHarness(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	d := NewDispatcher()
	go d.Run(ctx)

	bus := event.NewBus()
	mud := &mudCapture{}

	var server *Server
	pipe := pipeline.New(bus, "plugins.core.proxy",
		pipeline.WithMudSink(mud.send),
		pipeline.WithClients(func() []pipeline.Recipient { return server.Recipients() }))

	engine := command.NewEngine(nil, func(r command.Response) {
		err := pipe.SendInternal(r.Messages, pipeline.InternalOptions{
			Send: pipeline.SendOptions{Include: []string{r.ClientID}},
		})
		require.NoError(t, err)
	})
	require.NoError(t, engine.Add(command.Spec{
		Plugin: "plugins.core.proxy",
		Name:   "ping",
		Fn:     func(*command.Invocation) (bool, []string) { return true, []string{"pong"} },
	}))

	require.NoError(t, pipe.RegisterCommandDispatch(engine))

	server = NewServer("127.0.0.1:0", "secret", "plugins.core.proxy", d, pipe, bus,
		WithBanner("prism proxy"),
		WithViewPassword("peek"))
	go func() {
		if err := server.Run(ctx); err != nil {
			t.Errorf("server run: %v", err)
		}
	}()
	require.Eventually(t, func() bool { return server.Addr() != "" },
		2*time.Second, 10*time.Millisecond)

	t.Cleanup(cancel)
	return &harness{server: server, mud: mud, bus: bus, cancel: cancel}
}

func dialClient(t *testing.T, h *harness) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", h.server.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, bufio.NewReader(conn)
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	return strings.TrimRight(line, "\r\n")
}

func sendLine(t *testing.T, conn net.Conn, text string) {
	t.Helper()
	_, err := conn.Write([]byte(text + "\r\n"))
	require.NoError(t, err)
}

func TestLoginAndForwardToMud(t *testing.T) {
	h := startHarness(t)
	conn, r := dialClient(t, h)

	assert.Equal(t, "prism proxy", readLine(t, r))
	assert.Equal(t, "password:", readLine(t, r))

	sendLine(t, conn, "secret")
	assert.Contains(t, readLine(t, r), "welcome")

	sendLine(t, conn, "north")
	require.Eventually(t, func() bool {
		return len(h.mud.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"north\r\n"}, h.mud.snapshot())
}

func TestCommandLineIsConsumedByEngine(t *testing.T) {
	h := startHarness(t)
	conn, r := dialClient(t, h)
	readLine(t, r)
	readLine(t, r)
	sendLine(t, conn, "secret")
	readLine(t, r)

	sendLine(t, conn, "#bp.proxy.ping")
	assert.Contains(t, readLine(t, r), "pong")
	assert.Empty(t, h.mud.snapshot(), "command lines never reach the mud")
}

func TestCommandLineRaisesToMudModify(t *testing.T) {
	h := startHarness(t)

	type seen struct {
		text     string
		send     bool
		clientID string
	}
	var mu sync.Mutex
	var observed []seen
	_, err := h.bus.RegisterCallback(pipeline.EventToMudModify, event.Callback{
		Name:  "watch_to_mud",
		Owner: "plugins.test.watcher",
		Fn: func(d *event.DataRecord) error {
			ln := d.Line("line")
			if ln == nil {
				return nil
			}
			mu.Lock()
			observed = append(observed, seen{
				text:     ln.Text(),
				send:     ln.Send(),
				clientID: d.GetString("client_id"),
			})
			mu.Unlock()
			return nil
		},
	}, event.DefaultPriority)
	require.NoError(t, err)

	conn, r := dialClient(t, h)
	readLine(t, r)
	readLine(t, r)
	sendLine(t, conn, "secret")
	readLine(t, r)

	sendLine(t, conn, "#bp.proxy.ping")
	assert.Contains(t, readLine(t, r), "pong")

	// The command line still travels the modify event, gagged by the
	// engine before default-priority callbacks run.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(observed) == 1
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "#bp.proxy.ping", observed[0].text)
	assert.False(t, observed[0].send)
	assert.NotEmpty(t, observed[0].clientID)
	assert.Empty(t, h.mud.snapshot())
}

func TestClientNawsNegotiationUpdatesRows(t *testing.T) {
	h := startHarness(t)
	conn, r := dialClient(t, h)
	readLine(t, r)
	readLine(t, r)

	// A negotiation frame spliced into the middle of the password line
	// must not corrupt it.
	_, err := conn.Write([]byte{'s', 'e', 'c', telnetIAC, telnetWILL, telnetNAWS, 'r', 'e', 't', '\r', '\n'})
	require.NoError(t, err)

	// The option is acknowledged before any later output.
	ack := make([]byte, 3)
	_, err = io.ReadFull(r, ack)
	require.NoError(t, err)
	assert.Equal(t, []byte{telnetIAC, telnetDO, telnetNAWS}, ack)
	assert.Contains(t, readLine(t, r), "welcome")

	_, err = conn.Write([]byte{telnetIAC, telnetSB, telnetNAWS, 0, 120, 0, 50, telnetIAC, telnetSE})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		clients := h.server.Clients()
		return len(clients) == 1 && clients[0].Rows == 50
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWrongPasswordClosesAfterThreeAttempts(t *testing.T) {
	h := startHarness(t)
	conn, r := dialClient(t, h)
	readLine(t, r)
	readLine(t, r)

	sendLine(t, conn, "nope")
	assert.Contains(t, readLine(t, r), "wrong password")
	sendLine(t, conn, "still nope")
	assert.Contains(t, readLine(t, r), "wrong password")
	sendLine(t, conn, "third strike")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := r.ReadString('\n')
	assert.Error(t, err, "connection closes after the third failure")
}

func TestViewOnlyClientCannotSend(t *testing.T) {
	h := startHarness(t)
	conn, r := dialClient(t, h)
	readLine(t, r)
	readLine(t, r)

	sendLine(t, conn, "peek")
	assert.Contains(t, readLine(t, r), "view-only")

	sendLine(t, conn, "north")
	assert.Contains(t, readLine(t, r), "view-only clients cannot send")
	assert.Empty(t, h.mud.snapshot())
}

func TestClientLifecycleEvents(t *testing.T) {
	h := startHarness(t)

	var mu sync.Mutex
	var seen []string
	for _, name := range []string{EventClientConnected, EventClientLoggedIn, EventClientDisconnected} {
		name := name
		_, err := h.bus.RegisterCallback(name, event.Callback{
			Name:  "watch_" + name,
			Owner: "plugins.test.watcher",
			Fn: func(*event.DataRecord) error {
				mu.Lock()
				seen = append(seen, name)
				mu.Unlock()
				return nil
			},
		}, event.DefaultPriority)
		require.NoError(t, err)
	}

	conn, r := dialClient(t, h)
	readLine(t, r)
	readLine(t, r)
	sendLine(t, conn, "secret")
	readLine(t, r)
	conn.Close()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{EventClientConnected, EventClientLoggedIn, EventClientDisconnected}, seen)
}
