package session

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Conn is a registered transport connection.
type Conn struct {
	// ID is the opaque connection identity minted by the transport.
	ID string
	// RemoteAddr is the peer address, for logging.
	RemoteAddr string
	// ConnectedAt is when the connection was registered.
	ConnectedAt time.Time
	// Outbox carries frames to the connection's write pump.
	Outbox *Outbox
}

// Manager tracks all live connections and room broadcast groups.
// All methods are safe for concurrent use.
type Manager struct {
	mu         sync.RWMutex
	conns      map[string]*Conn           // id → connection
	groups     map[string]map[string]bool // room code → set of connection ids
	outboxSize int
	logger     *zap.Logger
}

// NewManager creates an empty Manager.
//
// Precondition: logger must be non-nil.
func NewManager(outboxSize int, logger *zap.Logger) *Manager {
	return &Manager{
		conns:      make(map[string]*Conn),
		groups:     make(map[string]map[string]bool),
		outboxSize: outboxSize,
		logger:     logger,
	}
}

// Connect registers a new connection.
//
// Precondition: id must be non-empty.
// Postcondition: Returns the registered Conn, or an error if id is already connected.
func (m *Manager) Connect(id, remoteAddr string) (*Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conns[id]; exists {
		return nil, fmt.Errorf("connection %q already registered", id)
	}
	c := &Conn{
		ID:          id,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
		Outbox:      NewOutbox(id, m.outboxSize),
	}
	m.conns[id] = c
	return c, nil
}

// Disconnect removes a connection from every group and closes its outbox.
//
// Postcondition: Returns an error if id is not registered.
func (m *Manager) Disconnect(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, exists := m.conns[id]
	if !exists {
		return fmt.Errorf("connection %q not found", id)
	}
	for code, members := range m.groups {
		delete(members, id)
		if len(members) == 0 {
			delete(m.groups, code)
		}
	}
	_ = c.Outbox.Close()
	delete(m.conns, id)
	return nil
}

// Subscribe adds a connection to the broadcast group for code.
//
// Postcondition: Returns an error if id is not registered.
func (m *Manager) Subscribe(id, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conns[id]; !exists {
		return fmt.Errorf("connection %q not found", id)
	}
	if m.groups[code] == nil {
		m.groups[code] = make(map[string]bool)
	}
	m.groups[code][id] = true
	return nil
}

// DropGroup removes the broadcast group for code. Members stay connected.
func (m *Manager) DropGroup(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.groups, code)
}

// Members returns the sorted connection ids subscribed to code.
//
// Postcondition: Returns a slice of ids (may be empty).
func (m *Manager) Members(code string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := lo.Keys(m.groups[code])
	slices.Sort(ids)
	return ids
}

// Send pushes frame to a single connection.
//
// Postcondition: Returns an error if id is unknown or its outbox rejects the frame.
func (m *Manager) Send(id string, frame []byte) error {
	m.mu.RLock()
	c, ok := m.conns[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("connection %q not found", id)
	}
	return c.Outbox.Push(frame)
}

// Broadcast pushes frame to every member of the group for code.
// A member whose outbox rejects the frame is skipped with a warning.
//
// Postcondition: Returns the number of members the frame was delivered to.
func (m *Manager) Broadcast(code string, frame []byte) int {
	m.mu.RLock()
	targets := make([]*Conn, 0, len(m.groups[code]))
	for id := range m.groups[code] {
		if c, ok := m.conns[id]; ok {
			targets = append(targets, c)
		}
	}
	m.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if err := c.Outbox.Push(frame); err != nil {
			m.logger.Warn("dropping frame",
				zap.String("room", code),
				zap.String("conn_id", c.ID),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	return delivered
}

// Get returns the connection registered under id.
//
// Postcondition: Returns (conn, true) if found, or (nil, false) otherwise.
func (m *Manager) Get(id string) (*Conn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[id]
	return c, ok
}

// Count returns the number of live connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}
