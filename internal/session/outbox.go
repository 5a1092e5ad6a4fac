// Package session tracks live connections and the broadcast groups they
// subscribe to.
package session

import (
	"fmt"
	"sync"
)

// DefaultOutboxSize is the frame capacity used when a non-positive size is requested.
const DefaultOutboxSize = 64

// Outbox is a bounded queue of encoded frames awaiting delivery to one connection.
// The transport's write pump drains Frames.
type Outbox struct {
	id     string
	frames chan []byte
	mu     sync.Mutex
	closed bool
}

// NewOutbox creates an Outbox for the given connection id.
//
// Precondition: id must be non-empty.
// Postcondition: Returns an Outbox with an open frames channel.
func NewOutbox(id string, size int) *Outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	return &Outbox{
		id:     id,
		frames: make(chan []byte, size),
	}
}

// ID returns the connection id.
func (o *Outbox) ID() string {
	return o.id
}

// Push enqueues frame without blocking.
//
// Postcondition: frame is enqueued, or an error is returned if the outbox is closed or full.
func (o *Outbox) Push(frame []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("outbox %s is closed", o.id)
	}
	select {
	case o.frames <- frame:
		return nil
	default:
		return fmt.Errorf("outbox %s buffer full", o.id)
	}
}

// Frames returns the read-only frame channel. It is closed by Close.
func (o *Outbox) Frames() <-chan []byte {
	return o.frames
}

// Close closes the frame channel. Safe to call more than once.
//
// Postcondition: Further Push calls return an error.
func (o *Outbox) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		close(o.frames)
	}
	return nil
}

// IsClosed reports whether the outbox has been closed.
func (o *Outbox) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
