package ws_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/wizwac/internal/config"
	"github.com/cory-johannsen/wizwac/internal/frontend/ws"
	"github.com/cory-johannsen/wizwac/internal/game/board"
	"github.com/cory-johannsen/wizwac/internal/game/room"
	"github.com/cory-johannsen/wizwac/internal/game/roomcode"
	"github.com/cory-johannsen/wizwac/internal/gateway"
	"github.com/cory-johannsen/wizwac/internal/session"
	"github.com/cory-johannsen/wizwac/internal/testutil"
)

const wait = 2 * time.Second

func testConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		Host:            "127.0.0.1",
		Port:            0,
		Path:            "/ws",
		MaxMessageSize:  4096,
		PongWait:        time.Minute,
		WriteWait:       5 * time.Second,
		OutboxSize:      16,
		ShutdownTimeout: time.Second,
	}
}

// echoHandler echoes every frame back and records disconnects.
type echoHandler struct {
	mu           sync.Mutex
	outs         map[string]chan []byte
	disconnected []string
}

func newEchoHandler() *echoHandler {
	return &echoHandler{outs: make(map[string]chan []byte)}
}

func (h *echoHandler) Connect(connID, _ string) (<-chan []byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(chan []byte, 8)
	h.outs[connID] = out
	return out, nil
}

func (h *echoHandler) HandleFrame(connID string, frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.outs[connID] <- frame
}

func (h *echoHandler) Disconnect(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	close(h.outs[connID])
	delete(h.outs, connID)
	h.disconnected = append(h.disconnected, connID)
}

func (h *echoHandler) disconnects() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.disconnected)
}

func startAcceptor(t *testing.T, h ws.Handler) *ws.Acceptor {
	t.Helper()
	acc := ws.NewAcceptor(testConfig(), h, zaptest.NewLogger(t))

	errCh := make(chan error, 1)
	go func() { errCh <- acc.ListenAndServe() }()

	require.Eventually(t, func() bool { return acc.IsRunning() && acc.Addr() != "" }, wait, 10*time.Millisecond,
		"acceptor did not start in time")

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), wait)
		defer cancel()
		_ = acc.Stop(ctx)
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(wait):
			t.Error("ListenAndServe did not return")
		}
	})
	return acc
}

func wsURL(acc *ws.Acceptor) string {
	return "ws://" + acc.Addr() + "/ws"
}

func TestAcceptorEchoAndDisconnect(t *testing.T) {
	h := newEchoHandler()
	acc := startAcceptor(t, h)

	c := testutil.NewWSClient(t, wsURL(acc))
	c.Send("ping", "hello")
	f := c.Next(wait)
	assert.Equal(t, "ping", f.Event)
	assert.JSONEq(t, `"hello"`, string(f.Data))

	require.Eventually(t, func() bool { return acc.ConnCount() == 1 }, wait, 10*time.Millisecond)
	c.Close()
	require.Eventually(t, func() bool { return h.disconnects() == 1 }, wait, 10*time.Millisecond)
	require.Eventually(t, func() bool { return acc.ConnCount() == 0 }, wait, 10*time.Millisecond)
}

func TestAcceptorHealthz(t *testing.T) {
	acc := startAcceptor(t, newEchoHandler())

	resp, err := http.Get("http://" + acc.Addr() + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", strings.TrimSpace(string(body)))
}

func TestAcceptorRejectsPlainHTTPOnWSPath(t *testing.T) {
	acc := startAcceptor(t, newEchoHandler())

	resp, err := http.Get("http://" + acc.Addr() + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAcceptorStopClosesSockets(t *testing.T) {
	h := newEchoHandler()
	acc := ws.NewAcceptor(testConfig(), h, zaptest.NewLogger(t))
	errCh := make(chan error, 1)
	go func() { errCh <- acc.ListenAndServe() }()
	require.Eventually(t, func() bool { return acc.IsRunning() && acc.Addr() != "" }, wait, 10*time.Millisecond)

	c := testutil.NewWSClient(t, wsURL(acc))
	require.Eventually(t, func() bool { return acc.ConnCount() == 1 }, wait, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	require.NoError(t, acc.Stop(ctx))

	assert.False(t, acc.IsRunning())
	assert.Equal(t, 1, h.disconnects())
	c.ReadClosed(wait)
	require.NoError(t, <-errCh)
}

func TestAcceptorStopBeforeStart(t *testing.T) {
	acc := ws.NewAcceptor(testConfig(), newEchoHandler(), zaptest.NewLogger(t))
	require.NoError(t, acc.Stop(context.Background()))
	assert.NoError(t, acc.ListenAndServe(), "a stopped acceptor returns immediately")
	assert.False(t, acc.IsRunning())
}

func TestEndToEndGame(t *testing.T) {
	logger := zaptest.NewLogger(t)
	rooms := room.NewRegistry(roomcode.Fixed("ABCD"), 1, logger)
	gw := gateway.New(rooms, session.NewManager(16, logger), nil, logger)
	acc := startAcceptor(t, gw)

	alice := testutil.NewWSClient(t, wsURL(acc))
	bob := testutil.NewWSClient(t, wsURL(acc))

	alice.Send(gateway.EventCreateRoom, "Alice")
	var created gateway.RoomAssigned
	alice.Expect(gateway.EventRoomCreated, &created, wait)
	assert.Equal(t, "ABCD", created.RoomCode)
	assert.Equal(t, board.Wand, created.Symbol)

	bob.Send(gateway.EventJoinRoom, gateway.JoinRoomRequest{RoomCode: "ABCD", PlayerName: "Bob"})
	bob.Expect(gateway.EventRoomJoined, nil, wait)
	var start gateway.GameStart
	bob.Expect(gateway.EventGameStart, &start, wait)
	assert.Equal(t, gateway.GameStart{PlayerX: "Alice", PlayerO: "Bob", CurrentPlayer: board.Wand}, start)
	alice.Expect(gateway.EventGameStart, nil, wait)

	play := func(c *testutil.WSClient, idx int) {
		c.Send(gateway.EventMakeMove, map[string]any{"roomCode": "ABCD", "index": idx})
	}
	for _, m := range []struct {
		c   *testutil.WSClient
		idx int
	}{{alice, 0}, {bob, 3}, {alice, 1}, {bob, 4}} {
		play(m.c, m.idx)
		alice.Expect(gateway.EventMoveMade, nil, wait)
		bob.Expect(gateway.EventMoveMade, nil, wait)
	}

	play(bob, 8)
	var rejected gateway.ErrorMessage
	bob.Expect(gateway.EventError, &rejected, wait)
	assert.Equal(t, "Not your turn", rejected.Message)

	play(alice, 2)
	var over gateway.GameOver
	alice.Expect(gateway.EventGameOver, &over, wait)
	assert.Equal(t, board.Wand, over.Winner)
	assert.Equal(t, "Alice", over.WinnerName)
	bob.Expect(gateway.EventGameOver, nil, wait)

	alice.Close()
	var gone gateway.PlayerDisconnected
	bob.Expect(gateway.EventPlayerDisconnected, &gone, wait)
	assert.Equal(t, "Alice", gone.Name)
	require.Eventually(t, func() bool { return rooms.Count() == 0 }, wait, 10*time.Millisecond)
}
