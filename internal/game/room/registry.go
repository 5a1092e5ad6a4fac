package room

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/cory-johannsen/wizwac/internal/game/board"
	"github.com/cory-johannsen/wizwac/internal/game/roomcode"
)

// DefaultCodeAttempts is the number of codes tried before Create gives up.
const DefaultCodeAttempts = 8

// Registry is the process-wide owner of all rooms.
//
// Every mutation of a room happens inside that room's mutex, so read-modify-write
// of board, turn, and seats is atomic per room. The code map and the connection
// index are guarded by a separate RWMutex. Lock order is always room, then
// registry; the registry lock is never held while acquiring a room lock.
//
// All methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]*Room               // code → room
	byConn   map[string]map[string]struct{} // connID → set of codes
	src      roomcode.Source
	attempts int
	now      func() time.Time
	logger   *zap.Logger
}

// NewRegistry creates an empty Registry drawing codes from src.
//
// Precondition: src and logger must be non-nil. attempts < 1 selects DefaultCodeAttempts.
func NewRegistry(src roomcode.Source, attempts int, logger *zap.Logger) *Registry {
	if attempts < 1 {
		attempts = DefaultCodeAttempts
	}
	return &Registry{
		rooms:    make(map[string]*Room),
		byConn:   make(map[string]map[string]struct{}),
		src:      src,
		attempts: attempts,
		now:      time.Now,
		logger:   logger,
	}
}

// Create opens a room seated with its creator as board.Wand.
//
// onCreate, when non-nil, runs inside the new room's critical section after the
// room is registered.
//
// Postcondition: Returns the new code and board.Wand, or ErrCodeSpaceExhausted when
// every attempted code was taken. An existing room is never replaced.
func (r *Registry) Create(connID, name string, onCreate func(*Room)) (string, board.Symbol, error) {
	rm := newRoom("", r.now())
	rm.mu.Lock()
	defer rm.mu.Unlock()

	r.mu.Lock()
	code := ""
	for i := 0; i < r.attempts; i++ {
		candidate := roomcode.Generate(r.src)
		if _, taken := r.rooms[candidate]; !taken {
			code = candidate
			break
		}
		r.logger.Debug("room code collision", zap.String("room", candidate), zap.Int("attempt", i+1))
	}
	if code == "" {
		r.mu.Unlock()
		return "", board.None, fmt.Errorf("creating room after %d attempts: %w", r.attempts, ErrCodeSpaceExhausted)
	}
	rm.code = code
	p, _ := rm.seat(connID, name)
	r.rooms[code] = rm
	r.indexLocked(connID, code)
	r.mu.Unlock()

	if onCreate != nil {
		onCreate(rm)
	}
	return code, p.Symbol, nil
}

// Join seats connID in the room with the given code as board.Wizard.
//
// onJoin, when non-nil, runs inside the room's critical section after seating.
//
// Postcondition: Returns the assigned symbol, ErrRoomNotFound, or ErrRoomFull.
func (r *Registry) Join(code, connID, name string, onJoin func(*Room)) (board.Symbol, error) {
	var sym board.Symbol
	err := r.Update(code, func(rm *Room) error {
		p, err := rm.seat(connID, name)
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.indexLocked(connID, rm.code)
		r.mu.Unlock()
		sym = p.Symbol
		if onJoin != nil {
			onJoin(rm)
		}
		return nil
	})
	if err != nil {
		return board.None, err
	}
	return sym, nil
}

// Update runs fn inside the critical section of the room with the given code.
// The code is matched case-insensitively.
//
// Postcondition: Returns ErrRoomNotFound when no live room matches; otherwise
// returns fn's error.
func (r *Registry) Update(code string, fn func(*Room) error) error {
	code = roomcode.Normalize(code)

	r.mu.RLock()
	rm, ok := r.rooms[code]
	r.mu.RUnlock()
	if !ok {
		return ErrRoomNotFound
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.closed {
		return ErrRoomNotFound
	}
	return fn(rm)
}

// Lookup returns a snapshot of the room with the given code.
//
// Postcondition: Returns (snapshot, true) if a live room matches, or (Snapshot{}, false).
func (r *Registry) Lookup(code string) (Snapshot, bool) {
	var snap Snapshot
	err := r.Update(code, func(rm *Room) error {
		snap = rm.Snapshot()
		return nil
	})
	return snap, err == nil
}

// Remove destroys the room with the given code.
//
// onRemove, when non-nil, runs inside the room's critical section after the room
// is closed and before its code is released; operations on the closed room
// report ErrRoomNotFound, and Create skips the code until onRemove returns.
//
// Postcondition: Returns true if this call destroyed the room.
func (r *Registry) Remove(code string, onRemove func(*Room)) bool {
	code = roomcode.Normalize(code)

	r.mu.RLock()
	rm, ok := r.rooms[code]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.closed {
		return false
	}
	rm.closed = true

	// The code stays registered until onRemove returns so Create cannot reuse it
	// while the old room's subscribers are still being torn down.
	if onRemove != nil {
		onRemove(rm)
	}

	r.mu.Lock()
	if cur, ok := r.rooms[code]; ok && cur == rm {
		delete(r.rooms, code)
	}
	for _, p := range rm.players {
		r.unindexLocked(p.ConnID, code)
	}
	r.mu.Unlock()
	return true
}

// FindByConnection returns a room in which connID holds a seat. When the
// connection sits in several rooms, the lowest code is returned.
//
// Postcondition: Returns (code, snapshot, true), or ("", Snapshot{}, false).
func (r *Registry) FindByConnection(connID string) (string, Snapshot, bool) {
	for {
		r.mu.Lock()
		codes := lo.Keys(r.byConn[connID])
		if len(codes) == 0 {
			r.mu.Unlock()
			return "", Snapshot{}, false
		}
		slices.Sort(codes)
		code := codes[0]
		rm, ok := r.rooms[code]
		if !ok {
			r.unindexLocked(connID, code)
			r.mu.Unlock()
			continue
		}
		r.mu.Unlock()

		rm.mu.Lock()
		snap, closed := rm.Snapshot(), rm.closed
		rm.mu.Unlock()
		if closed {
			continue
		}
		return code, snap, true
	}
}

// Count returns the number of live rooms.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// indexLocked records that connID sits in code. Caller holds r.mu.
func (r *Registry) indexLocked(connID, code string) {
	set, ok := r.byConn[connID]
	if !ok {
		set = make(map[string]struct{})
		r.byConn[connID] = set
	}
	set[code] = struct{}{}
}

// unindexLocked forgets that connID sits in code. Caller holds r.mu.
func (r *Registry) unindexLocked(connID, code string) {
	set, ok := r.byConn[connID]
	if !ok {
		return
	}
	delete(set, code)
	if len(set) == 0 {
		delete(r.byConn, connID)
	}
}
