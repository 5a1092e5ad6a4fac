// Package ws is the WebSocket front end: it upgrades HTTP requests, assigns
// each connection an id, and pumps JSON frames between the socket and a Handler.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/wizwac/internal/config"
)

// Handler consumes connection events. Calls for one connection never overlap.
type Handler interface {
	// Connect registers connID and returns its outbound frames. The channel is
	// closed once the connection should be shut down.
	Connect(connID, remoteAddr string) (<-chan []byte, error)
	// HandleFrame processes one inbound text frame.
	HandleFrame(connID string, frame []byte)
	// Disconnect is called exactly once after the socket stops reading.
	Disconnect(connID string)
}

// Acceptor serves WebSocket upgrades on cfg.Path and a liveness check on /healthz.
type Acceptor struct {
	cfg      config.WebSocketConfig
	handler  Handler
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	listener net.Listener
	srv      *http.Server
	running  bool
	stopped  bool
	conns    map[*websocket.Conn]string
	wg       sync.WaitGroup
}

// NewAcceptor creates a WebSocket acceptor with the given configuration.
//
// Precondition: cfg must pass config validation; handler and logger must be non-nil.
// Postcondition: Returns an Acceptor ready to be started with ListenAndServe.
func NewAcceptor(cfg config.WebSocketConfig, handler Handler, logger *zap.Logger) *Acceptor {
	return &Acceptor{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			// Browser clients are served from any origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]string),
	}
}

// ListenAndServe starts the HTTP listener and serves until Stop is called.
// This method blocks until the acceptor is stopped.
//
// Precondition: The acceptor must not already be running.
// Postcondition: Returns nil after Stop, or the listen/serve error.
func (a *Acceptor) ListenAndServe() error {
	start := time.Now()

	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(a.cfg.Path, a.serveWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		_ = listener.Close()
		return nil
	}
	a.listener = listener
	a.srv = srv
	a.running = true
	a.mu.Unlock()

	a.logger.Info("websocket acceptor listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", a.cfg.Path),
		zap.Duration("startup", time.Since(start)),
	)

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving websocket: %w", err)
	}
	return nil
}

// Start runs ListenAndServe; it lets the Acceptor be managed as a lifecycle service.
func (a *Acceptor) Start(context.Context) error {
	return a.ListenAndServe()
}

// Stop shuts the HTTP server down, closes every open socket, and waits for
// their Disconnect calls to finish or ctx to expire.
//
// Postcondition: No new connections are accepted.
func (a *Acceptor) Stop(ctx context.Context) error {
	a.mu.Lock()
	a.stopped = true
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	srv := a.srv
	a.mu.Unlock()

	shutdownErr := srv.Shutdown(ctx)

	a.mu.Lock()
	for c := range a.conns {
		_ = c.Close()
	}
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(shutdownErr, fmt.Errorf("waiting for connections: %w", ctx.Err()))
	}

	a.logger.Info("websocket acceptor stopped")
	return shutdownErr
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}

// IsRunning returns whether the acceptor is currently accepting connections.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// ConnCount returns the number of open sockets.
func (a *Acceptor) ConnCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.conns)
}

func (a *Acceptor) serveWS(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	a.wg.Add(1)
	a.mu.Unlock()
	defer a.wg.Done()

	ws, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Debug("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	id := uuid.NewString()
	frames, err := a.handler.Connect(id, r.RemoteAddr)
	if err != nil {
		a.logger.Error("registering connection", zap.String("conn_id", id), zap.Error(err))
		_ = ws.Close()
		return
	}

	a.mu.Lock()
	a.conns[ws] = id
	a.mu.Unlock()

	c := newConn(id, ws, a.cfg, a.logger)
	c.serve(frames, a.handler)

	a.mu.Lock()
	delete(a.conns, ws)
	a.mu.Unlock()
}
