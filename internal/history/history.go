// Package history records finished matches asynchronously so that storage
// latency never reaches a room's critical section.
package history

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MatchResult is the outcome of one finished game.
type MatchResult struct {
	RoomCode string
	// PlayerA and PlayerB are the display names in seat order.
	PlayerA string
	PlayerB string
	// Winner is a player symbol or "draw".
	Winner     string
	WinnerName string
	Board      []string
	Moves      int
	FinishedAt time.Time
}

// Store persists match results.
type Store interface {
	// Save writes one result.
	Save(ctx context.Context, m MatchResult) error
	// Recent returns up to limit results, newest first.
	Recent(ctx context.Context, limit int) ([]MatchResult, error)
}

// Options tune a Recorder.
type Options struct {
	// QueueSize bounds the number of results awaiting a write.
	QueueSize int
	// WriteTimeout bounds each Store.Save call.
	WriteTimeout time.Duration
}

// Recorder queues results and writes them to a Store on a background goroutine.
// Record never blocks; a full queue drops the result with a warning.
type Recorder struct {
	store  Store
	opts   Options
	queue  chan MatchResult
	logger *zap.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	done    chan struct{}
}

// NewRecorder creates a Recorder writing to store.
//
// Precondition: store and logger must be non-nil.
// Postcondition: Non-positive options fall back to a queue of 128 and a 5s timeout.
func NewRecorder(store Store, opts Options, logger *zap.Logger) *Recorder {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 128
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	return &Recorder{
		store:  store,
		opts:   opts,
		queue:  make(chan MatchResult, opts.QueueSize),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Record enqueues m without blocking.
//
// Postcondition: Returns false if the result was dropped.
func (r *Recorder) Record(m MatchResult) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		r.logger.Warn("match recorder stopped, dropping result", zap.String("room", m.RoomCode))
		return false
	}
	select {
	case r.queue <- m:
		return true
	default:
		r.logger.Warn("match queue full, dropping result", zap.String("room", m.RoomCode))
		return false
	}
}

// Start launches the writer goroutine. It returns immediately.
//
// Postcondition: Returns nil; calling Start twice is a no-op.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	r.started = true
	go r.run(context.WithoutCancel(ctx))
	return nil
}

// Stop closes the queue and waits for pending results to be written or ctx to end.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	close(r.queue)
	started := r.started
	r.mu.Unlock()

	if !started {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) run(ctx context.Context) {
	defer close(r.done)
	for m := range r.queue {
		wctx, cancel := context.WithTimeout(ctx, r.opts.WriteTimeout)
		err := r.store.Save(wctx, m)
		cancel()
		if err != nil {
			r.logger.Error("saving match result",
				zap.String("room", m.RoomCode),
				zap.Error(err),
			)
			continue
		}
		r.logger.Debug("match result saved",
			zap.String("room", m.RoomCode),
			zap.String("winner", m.Winner),
		)
	}
}

// Recent reads from the underlying store.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]MatchResult, error) {
	return r.store.Recent(ctx, limit)
}

// Nop discards every result. It stands in for a Recorder when storage is disabled.
type Nop struct{}

// Record accepts and discards m.
func (Nop) Record(MatchResult) bool { return true }
