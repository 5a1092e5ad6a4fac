package testutil

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Frame is a decoded server frame.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// WSClient is a WebSocket test client speaking the event envelope protocol.
type WSClient struct {
	conn *websocket.Conn
	t    *testing.T
}

// NewWSClient dials url (ws://host:port/path) and returns a test client.
//
// Precondition: url must point at a listening acceptor.
// Postcondition: Returns a connected WSClient or fails the test.
func NewWSClient(t *testing.T, url string) *WSClient {
	t.Helper()
	start := time.Now()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", url, err, time.Since(start))
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("connecting to %s: status %d", url, resp.StatusCode)
	}

	t.Cleanup(func() { _ = conn.Close() })
	t.Logf("websocket client connected to %s [%s]", url, time.Since(start))
	return &WSClient{conn: conn, t: t}
}

// Send writes one event frame. data is JSON-encoded.
func (c *WSClient) Send(event string, data any) {
	c.t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		c.t.Fatalf("encoding %s payload: %v", event, err)
	}
	c.SendRaw(mustJSON(c.t, Frame{Event: event, Data: raw}))
}

// SendRaw writes frame verbatim as a text message.
func (c *WSClient) SendRaw(frame []byte) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.t.Fatalf("sending frame: %v", err)
	}
}

// Next reads the next frame or fails the test after timeout.
func (c *WSClient) Next(timeout time.Duration) Frame {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("reading frame: %v", err)
	}
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		c.t.Fatalf("decoding frame %q: %v", msg, err)
	}
	return f
}

// Expect reads the next frame, checks its event name, and decodes its data into v (if non-nil).
func (c *WSClient) Expect(event string, v any, timeout time.Duration) {
	c.t.Helper()
	f := c.Next(timeout)
	if f.Event != event {
		c.t.Fatalf("got event %q (%s), want %q", f.Event, f.Data, event)
	}
	if v != nil {
		if err := json.Unmarshal(f.Data, v); err != nil {
			c.t.Fatalf("decoding %s payload: %v", event, err)
		}
	}
}

// ReadClosed waits for the server to drop the socket and fails the test if a
// data frame arrives first.
func (c *WSClient) ReadClosed(timeout time.Duration) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	_, msg, err := c.conn.ReadMessage()
	if err == nil {
		c.t.Fatalf("expected close, got frame %q", msg)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		c.t.Fatalf("socket still open after %s", timeout)
	}
}

// Close closes the underlying connection without a close handshake.
func (c *WSClient) Close() {
	_ = c.conn.Close()
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("encoding frame: %v", err)
	}
	return b
}
