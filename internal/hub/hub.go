// Package hub is the in-memory publish/subscribe registry that pushes
// conversation events to connected operator clients.
package hub

import (
	"encoding/json"
	"sync"

	"github.com/capitalize-ai/whatsapp-platform/pkg/logger"
)

// Conn is one real-time subscriber. The hub only needs to write text
// frames; transport specifics live with the caller.
type Conn interface {
	WriteText(data []byte) error
}

// Hub tracks subscribers per conversation id. Callers must authorize a
// connection before registering it; the hub itself performs no access
// checks. Safe for concurrent use.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string][]Conn
	logger *logger.Logger
}

// New creates an empty hub.
func New(log *logger.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string][]Conn),
		logger: log,
	}
}

// Register adds a connection to a conversation's subscriber list.
func (h *Hub) Register(conversationID string, conn Conn) {
	h.mu.Lock()
	h.rooms[conversationID] = append(h.rooms[conversationID], conn)
	count := len(h.rooms[conversationID])
	h.mu.Unlock()

	h.logger.Infow("client subscribed", "conversation_id", conversationID, "subscribers", count)
}

// Unregister removes a connection from a conversation's subscriber list.
// Called on detected disconnect; a missing connection is a no-op.
func (h *Hub) Unregister(conversationID string, conn Conn) {
	h.mu.Lock()
	subs := h.rooms[conversationID]
	for i, c := range subs {
		if c == conn {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(h.rooms, conversationID)
	} else {
		h.rooms[conversationID] = subs
	}
	h.mu.Unlock()

	h.logger.Infow("client unsubscribed", "conversation_id", conversationID)
}

// Broadcast delivers a payload to every current subscriber of the
// conversation. The subscriber list is snapshotted before iterating, so
// concurrent register/unregister cannot corrupt delivery. A failed
// delivery is logged and does not abort delivery to the others or
// unregister the failed subscriber.
func (h *Hub) Broadcast(conversationID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Errorw("failed to marshal broadcast payload", "conversation_id", conversationID, "error", err)
		return
	}

	h.mu.RLock()
	subs := make([]Conn, len(h.rooms[conversationID]))
	copy(subs, h.rooms[conversationID])
	h.mu.RUnlock()

	if len(subs) == 0 {
		return
	}

	for _, conn := range subs {
		if err := conn.WriteText(data); err != nil {
			h.logger.Warnw("failed to deliver broadcast", "conversation_id", conversationID, "error", err)
		}
	}
}

// Subscribers returns the current subscriber count for a conversation.
func (h *Hub) Subscribers(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}
