// Package realtime is the websocket side of projecthub: a per-process
// registry of rooms (one per project), the connection pumps, and the brokers
// that carry room events between processes.
package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/projecthub/projecthub/internal/services"
	"github.com/projecthub/projecthub/internal/telemetry"
)

// ErrConnectionClosed is returned by Join for a connection that has been
// disconnected or was never registered.
var ErrConnectionClosed = errors.New("connection is closed")

// MembershipChecker answers whether a user belongs to a project.
// *services.ProjectService satisfies it.
type MembershipChecker interface {
	IsMember(ctx context.Context, projectID, userID int64) (bool, error)
}

// Hub tracks which connections are subscribed to which project rooms. A
// connection may be in any number of rooms. Delivery never blocks: a frame
// for a connection whose send buffer is full is dropped.
type Hub struct {
	members MembershipChecker

	mu      sync.RWMutex
	rooms   map[int64]map[*Client]struct{}
	clients map[*Client]struct{}
	closed  bool
}

// NewHub creates an empty Hub that authorizes joins against members.
func NewHub(members MembershipChecker) *Hub {
	return &Hub{
		members: members,
		rooms:   make(map[int64]map[*Client]struct{}),
		clients: make(map[*Client]struct{}),
	}
}

// register adds a connection. It returns false once the hub is shut down.
func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	telemetry.ChatWSConnections.Inc()
	return true
}

// Join subscribes c to projectID's room after checking membership. Non-members
// get services.ErrForbidden and are not subscribed; a connection no longer in
// the hub gets ErrConnectionClosed. Joining twice is a no-op.
func (h *Hub) Join(ctx context.Context, c *Client, projectID int64) error {
	ok, err := h.members.IsMember(ctx, projectID, c.userID)
	if err != nil {
		return err
	}
	if !ok {
		return services.ErrForbidden
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, live := h.clients[c]; !live {
		return ErrConnectionClosed
	}
	room := h.rooms[projectID]
	if room == nil {
		room = make(map[*Client]struct{})
		h.rooms[projectID] = room
	}
	if _, already := room[c]; !already {
		room[c] = struct{}{}
		c.rooms[projectID] = struct{}{}
		telemetry.ChatRoomConnections.Inc()
	}
	return nil
}

// Leave unsubscribes c from projectID's room. It is a no-op when c is not in
// the room.
func (h *Hub) Leave(c *Client, projectID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, projectID)
}

func (h *Hub) leaveLocked(c *Client, projectID int64) {
	room := h.rooms[projectID]
	if _, ok := room[c]; !ok {
		return
	}
	delete(room, c)
	delete(c.rooms, projectID)
	if len(room) == 0 {
		delete(h.rooms, projectID)
	}
	telemetry.ChatRoomConnections.Dec()
}

// InRoom reports whether c is subscribed to projectID's room.
func (h *Hub) InRoom(c *Client, projectID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[projectID][c]
	return ok
}

// Disconnect removes c from every room and closes its send buffer. It is safe
// to call more than once.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnectLocked(c)
}

func (h *Hub) disconnectLocked(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	for projectID := range c.rooms {
		h.leaveLocked(c, projectID)
	}
	delete(h.clients, c)
	close(c.send)
	telemetry.ChatWSConnections.Dec()
}

// Deliver queues frame on every connection in projectID's room except the
// one whose id equals exclude. It returns the number of connections the frame
// was queued for.
func (h *Hub) Deliver(projectID int64, frame []byte, exclude string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.rooms[projectID] {
		if exclude != "" && c.id == exclude {
			continue
		}
		select {
		case c.send <- frame:
			delivered++
			telemetry.ChatFanoutDeliveriesTotal.WithLabelValues("delivered").Inc()
		default:
			telemetry.ChatFanoutDeliveriesTotal.WithLabelValues("dropped").Inc()
		}
	}
	return delivered
}

// sendTo queues a frame for a single connection, typically an ack.
func (h *Hub) sendTo(c *Client, frame []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// RoomSize returns the number of connections in projectID's room.
func (h *Hub) RoomSize(projectID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[projectID])
}

// Connections returns the number of registered connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown disconnects every connection and refuses new ones. Write pumps
// send a close frame when their buffer is closed.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.disconnectLocked(c)
	}
}
