package realtime

import (
	"log/slog"
	"sync"

	"campusmart/metrics"
	"campusmart/models"
)

// Hub keeps the live connections and their room memberships
type Hub struct {
	mu      sync.RWMutex
	log     *slog.Logger
	clients map[string]*Client
	rooms   map[string]map[string]struct{} // room -> conn ids
	joined  map[string]map[string]struct{} // conn id -> rooms
}

var _ Router = (*Hub)(nil)

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]struct{}),
		joined:  make(map[string]map[string]struct{}),
	}
}

// Attach makes c reachable by SendToConnection and Broadcast
func (h *Hub) Attach(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.joined[c.ID] = make(map[string]struct{})
	h.mu.Unlock()

	metrics.LiveConnections.Inc()
	h.log.Debug("Client attached", "conn_id", c.ID, "user_id", c.UserID)
}

// Detach removes a connection from every room and closes its queue
func (h *Hub) Detach(connID string) {
	h.mu.Lock()
	c, ok := h.clients[connID]
	if !ok {
		h.mu.Unlock()
		return
	}
	for room := range h.joined[connID] {
		h.removeFromRoom(connID, room)
	}
	delete(h.joined, connID)
	delete(h.clients, connID)
	h.mu.Unlock()

	c.close()
	metrics.LiveConnections.Dec()
	h.log.Debug("Client detached", "conn_id", connID, "user_id", c.UserID)
}

// Close detaches every connection
func (h *Hub) Close() {
	h.mu.RLock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.Detach(id)
	}
}

func (h *Hub) JoinRoom(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rooms, ok := h.joined[connID]
	if !ok {
		return
	}
	rooms[room] = struct{}{}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		h.rooms[room] = members
	}
	members[connID] = struct{}{}
}

func (h *Hub) LeaveRoom(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromRoom(connID, room)
	if rooms, ok := h.joined[connID]; ok {
		delete(rooms, room)
	}
}

// removeFromRoom expects h.mu to be held
func (h *Hub) removeFromRoom(connID, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// InRoom reports whether the connection joined room
func (h *Hub) InRoom(connID, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][connID]
	return ok
}

// ConnectionCount returns the number of attached connections
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) BroadcastToRoom(room string, event models.ServerEvent, exceptConnID string) {
	data, ok := h.encode(event)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for connID := range h.rooms[room] {
		if connID == exceptConnID {
			continue
		}
		h.deliver(h.clients[connID], event, data)
	}
}

func (h *Hub) SendToConnection(connID string, event models.ServerEvent) {
	data, ok := h.encode(event)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.deliver(h.clients[connID], event, data)
}

func (h *Hub) Broadcast(event models.ServerEvent, exceptConnID string) {
	data, ok := h.encode(event)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for connID, c := range h.clients {
		if connID == exceptConnID {
			continue
		}
		h.deliver(c, event, data)
	}
}

func (h *Hub) encode(event models.ServerEvent) ([]byte, bool) {
	data, err := models.EncodeServerEvent(event)
	if err != nil {
		h.log.Error("Failed to encode event", "event", event.EventName(), "error", err)
		return nil, false
	}
	return data, true
}

func (h *Hub) deliver(c *Client, event models.ServerEvent, data []byte) {
	if c == nil {
		return
	}
	if !c.enqueue(data) {
		metrics.EventsDropped.Inc()
		h.log.Warn("Dropped event for slow connection", "event", event.EventName(), "conn_id", c.ID, "user_id", c.UserID)
	}
}
