package ws

import (
	"encoding/json"
	"strings"
	"sync"

	"tutorhub/internal/events"
	pkglog "tutorhub/internal/log"
)

const userRoomPrefix = "user_"

// Hub is the connection registry: live clients and the logical rooms they joined.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client
	joined  map[string]map[string]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
		joined:  make(map[string]map[string]struct{}),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
	h.joined[c.ID] = make(map[string]struct{})
}

// Unregister removes the client from every room and closes its send queue.
// It returns the rooms the client was in.
func (h *Hub) Unregister(c *Client) []string {
	h.mu.Lock()
	var left []string
	if _, ok := h.clients[c.ID]; ok {
		for room := range h.joined[c.ID] {
			left = append(left, room)
			h.removeLocked(c.ID, room)
		}
		delete(h.joined, c.ID)
		delete(h.clients, c.ID)
	}
	h.mu.Unlock()

	c.closeSend()
	return left
}

// Join adds a registered connection to room. Joining twice is a no-op.
func (h *Hub) Join(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	members := h.rooms[room]
	if members == nil {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[connID] = c
	h.joined[connID][room] = struct{}{}
}

func (h *Hub) Leave(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(connID, room)
}

func (h *Hub) removeLocked(connID, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if rooms, ok := h.joined[connID]; ok {
		delete(rooms, room)
	}
}

func (h *Hub) InRoom(connID, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][connID]
	return ok
}

// RoomSize is the number of connections in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Len is the number of registered connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// UserIDs returns the users whose rooms connID joined.
func (h *Hub) UserIDs(connID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return userIDsOf(h.joined[connID])
}

func userIDsOf(rooms map[string]struct{}) []string {
	ids := []string{}
	for room := range rooms {
		if id, ok := strings.CutPrefix(room, userRoomPrefix); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// EmitToRoom sends one event to every connection in room. An empty room is not an error.
func (h *Hub) EmitToRoom(room, event string, data any) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[room]))
	for _, c := range h.rooms[room] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}
	payload, ok := encode(event, data)
	if !ok {
		return
	}
	for _, c := range targets {
		c.enqueue(payload)
	}
}

// EmitToConn sends one event to a single connection if it is still registered.
func (h *Hub) EmitToConn(connID, event string, data any) {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if payload, ok := encode(event, data); ok {
		c.enqueue(payload)
	}
}

func encode(event string, data any) ([]byte, bool) {
	payload, err := json.Marshal(events.Outbound{Event: event, Data: data})
	if err != nil {
		l := pkglog.L()
		l.Error().Err(err).Str(pkglog.FieldEvent, event).Msg("encode outbound event")
		return nil, false
	}
	return payload, true
}
