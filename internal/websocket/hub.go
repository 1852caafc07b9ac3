package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukerupert/chorly/internal/model"
)

// Message represents a real-time sync notification broadcast to a tenant's
// clients.
type Message struct {
	Type   string         `json:"type"`
	Entity string         `json:"entity"`
	Action string         `json:"action"`
	ID     string         `json:"id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(entity, action, id string, extra map[string]any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// Hub maintains the set of active WebSocket clients per tenant and
// broadcasts messages to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to its tenant's set.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.tenantID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.tenantID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if set, ok := h.clients[c.tenantID]; ok {
		if _, ok := set[c]; ok {
			delete(set, c)
			close(c.send)
		}
		if len(set) == 0 {
			delete(h.clients, c.tenantID)
		}
	}
	h.mu.Unlock()
}

// Broadcast sends a message to every client of tenantID.
func (h *Hub) Broadcast(tenantID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[tenantID] {
		select {
		case c.send <- data:
		default:
			// Client buffer full, drop message to avoid blocking
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// OccurrenceCreated implements chore.Events.
func (h *Hub) OccurrenceCreated(tenantID string, occ model.Occurrence) {
	h.Broadcast(tenantID, occurrenceMessage("created", occ))
}

// OccurrenceUpdated implements chore.Events.
func (h *Hub) OccurrenceUpdated(tenantID string, occ model.Occurrence) {
	h.Broadcast(tenantID, occurrenceMessage("status", occ))
}

// OccurrenceDeleted implements chore.Events.
func (h *Hub) OccurrenceDeleted(tenantID string, occ model.Occurrence) {
	h.Broadcast(tenantID, occurrenceMessage("deleted", occ))
}

func occurrenceMessage(action string, occ model.Occurrence) Message {
	return NewMessage("occurrence", action, occ.ID, map[string]any{
		"chore_id":     occ.ChoreID,
		"due_at":       occ.DueAt,
		"status":       occ.Status,
		"assignee_ids": occ.AssigneeIDs,
	})
}
