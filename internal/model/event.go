package model

import (
	"time"
)

// EventType represents the type of conversation event fanned out to
// operator clients.
type EventType string

const (
	EventNewMessage    EventType = "new_message"
	EventModeChanged   EventType = "mode_changed"
	EventStatusChanged EventType = "status_changed"
)

// Event is the payload broadcast to operator clients watching a
// conversation, and mirrored to the durable event stream.
type Event struct {
	Type           EventType   `json:"broadcast_type"`
	ConversationID string      `json:"conversation_id"`
	Content        string      `json:"content,omitempty"`
	ContentType    ContentType `json:"content_type,omitempty"`
	Role           Role        `json:"role,omitempty"`
	Mode           string      `json:"mode,omitempty"`
	Status         string      `json:"status,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}
