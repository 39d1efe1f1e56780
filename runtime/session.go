package runtime

import (
	"context"
	"log/slog"
	"sync"

	"chat-broker/contract"
	"chat-broker/domain"

	"github.com/google/uuid"
)

// Connection is one live transport session. Identity starts unresolved and
// is set at most once; chat operations are rejected until then. A
// connection's own operations are serialized against each other by its
// mutex, never against other connections.
type Connection struct {
	ID   uuid.UUID
	sink contract.EventSink

	mu       sync.Mutex
	username string
	rooms    map[domain.RoomID]struct{}
}

func (c *Connection) Sink() contract.EventSink {
	return c.sink
}

// Username returns the resolved identity, or false while unresolved.
func (c *Connection) Username() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username, c.username != ""
}

// Rooms snapshots the set of rooms this connection has joined.
func (c *Connection) Rooms() []domain.RoomID {
	c.mu.Lock()
	defer c.mu.Unlock()
	joined := make([]domain.RoomID, 0, len(c.rooms))
	for roomID := range c.rooms {
		joined = append(joined, roomID)
	}
	return joined
}

func (c *Connection) trackRoom(roomID domain.RoomID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[roomID] = struct{}{}
}

// untrackRoom removes the room from the joined set and reports whether the
// connection was a member.
func (c *Connection) untrackRoom(roomID domain.RoomID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, member := c.rooms[roomID]; !member {
		return false
	}
	delete(c.rooms, roomID)
	return true
}

func (c *Connection) resolve(username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.username == "" {
		c.username = username
	}
}

// Manager owns connection lifecycle: allocation on transport connect,
// identity resolution, and disconnect cleanup.
type Manager struct {
	log         *slog.Logger
	coordinator *Coordinator
	registry    *Registry

	mu    sync.Mutex
	conns map[uuid.UUID]*Connection
}

func NewManager(log *slog.Logger, coordinator *Coordinator, registry *Registry) *Manager {
	return &Manager{
		log:         log,
		coordinator: coordinator,
		registry:    registry,
		conns:       make(map[uuid.UUID]*Connection),
	}
}

// OnConnect allocates a connection record with null identity.
func (m *Manager) OnConnect(sink contract.EventSink) *Connection {
	conn := &Connection{
		ID:    uuid.New(),
		sink:  sink,
		rooms: make(map[domain.RoomID]struct{}),
	}
	m.mu.Lock()
	m.conns[conn.ID] = conn
	m.mu.Unlock()
	m.log.Debug("connection opened", "connection", conn.ID)
	return conn
}

// ResolveIdentity sets the connection's username once the Identity Resolver
// verified the session.
func (m *Manager) ResolveIdentity(conn *Connection, username string) {
	conn.resolve(username)
	m.log.Debug("identity resolved", "connection", conn.ID, "username", username)
}

// OnDisconnect performs the same membership removal and departure
// broadcast as an explicit leave, for every joined room, then discards the
// record. Safe to invoke when identity was never resolved: there is no
// membership to clean up and no username to announce.
func (m *Manager) OnDisconnect(ctx context.Context, conn *Connection) {
	for _, roomID := range conn.Rooms() {
		m.coordinator.HandleLeave(ctx, conn, roomID)
	}
	m.mu.Lock()
	delete(m.conns, conn.ID)
	m.mu.Unlock()
	m.log.Debug("connection closed", "connection", conn.ID)
}

// Gauges implements the health monitor's stats source.
func (m *Manager) Gauges() (rooms, members, connections int) {
	rooms, members = m.registry.Gauges()
	m.mu.Lock()
	connections = len(m.conns)
	m.mu.Unlock()
	return rooms, members, connections
}
