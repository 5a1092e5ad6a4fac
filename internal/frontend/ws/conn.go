package ws

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/wizwac/internal/config"
)

// conn pumps frames for one socket: a read loop on the calling goroutine and a
// write pump on its own goroutine. gorilla/websocket allows one concurrent
// reader and one concurrent writer, and these are the only two.
type conn struct {
	id         string
	ws         *websocket.Conn
	pongWait   time.Duration
	pingPeriod time.Duration
	writeWait  time.Duration
	logger     *zap.Logger
}

func newConn(id string, ws *websocket.Conn, cfg config.WebSocketConfig, logger *zap.Logger) *conn {
	ws.SetReadLimit(cfg.MaxMessageSize)
	return &conn{
		id:         id,
		ws:         ws,
		pongWait:   cfg.PongWait,
		pingPeriod: cfg.PingPeriod(),
		writeWait:  cfg.WriteWait,
		logger:     logger.With(zap.String("conn_id", id)),
	}
}

// serve blocks until the socket stops reading, then disconnects the handler
// and waits for the write pump to drain.
func (c *conn) serve(frames <-chan []byte, h Handler) {
	start := time.Now()
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump(frames)
	}()

	c.readLoop(h)
	h.Disconnect(c.id)
	<-done
	_ = c.ws.Close()

	c.logger.Info("socket closed", zap.Duration("duration", time.Since(start)))
}

func (c *conn) readLoop(h Handler) {
	extend := func() {
		if err := c.ws.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
			c.logger.Debug("setting read deadline", zap.Error(err))
		}
	}
	extend()
	c.ws.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		kind, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		extend()
		if kind != websocket.TextMessage {
			c.logger.Debug("ignoring non-text frame", zap.Int("type", kind))
			continue
		}
		h.HandleFrame(c.id, msg)
	}
}

// writePump drains frames to the socket and sends keepalive pings. It returns
// when frames is closed or a write fails; a failed write closes the socket so
// the read loop ends too.
func (c *conn) writePump(frames <-chan []byte) {
	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-frames:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				_ = c.ws.Close()
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("websocket write error", zap.Error(err))
				_ = c.ws.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("websocket ping error", zap.Error(err))
				_ = c.ws.Close()
				return
			}
		}
	}
}
