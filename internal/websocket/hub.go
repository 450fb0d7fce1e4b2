package websocket

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Hub indexes every connected client by participant so session events can be
// pushed outside of any signaling room. Delivery is best effort: an offline
// participant or a full buffer drops the event.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[uuid.UUID]*Client // participant -> connection id -> client
	log     zerolog.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]map[uuid.UUID]*Client),
		log:     log.With().Str("component", "hub").Logger(),
	}
}

// Register makes client reachable through Notify.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.clients[client.ParticipantID]
	if !ok {
		conns = make(map[uuid.UUID]*Client)
		h.clients[client.ParticipantID] = conns
	}
	conns[client.ID] = client
}

// Unregister removes client from the index.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.clients[client.ParticipantID]
	if !ok {
		return
	}
	delete(conns, client.ID)
	if len(conns) == 0 {
		delete(h.clients, client.ParticipantID)
	}
}

// Notify sends an event to every connection of participantID and returns how
// many connections accepted it.
func (h *Hub) Notify(participantID uuid.UUID, eventType string, payload any) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients[participantID]))
	for _, c := range h.clients[participantID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	msg := OutboundMessage{Type: eventType, Payload: payload}
	sent := 0
	for _, c := range targets {
		if c.Enqueue(msg) {
			sent++
		}
	}
	if sent == 0 {
		h.log.Debug().
			Str("participant_id", participantID.String()).
			Str("type", eventType).
			Msg("event dropped, participant not reachable")
	}
	return sent
}

// BroadcastRole sends an event to every connection with the given role.
func (h *Hub) BroadcastRole(role, eventType string, payload any) int {
	h.mu.RLock()
	var targets []*Client
	for _, conns := range h.clients {
		for _, c := range conns {
			if c.Role == role {
				targets = append(targets, c)
			}
		}
	}
	h.mu.RUnlock()

	msg := OutboundMessage{Type: eventType, Payload: payload}
	sent := 0
	for _, c := range targets {
		if c.Enqueue(msg) {
			sent++
		}
	}
	return sent
}

// isOnline reports whether participantID has at least one connection.
func (h *Hub) isOnline(participantID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[participantID]) > 0
}
