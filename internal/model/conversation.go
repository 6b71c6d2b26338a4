// Package model defines data structures for the WhatsApp platform.
package model

import (
	"time"
)

// ConversationStatus represents the lifecycle status of a conversation.
type ConversationStatus string

const (
	StatusActive   ConversationStatus = "active"
	StatusInactive ConversationStatus = "inactive"
)

// ConversationMode represents who is responsible for replying.
type ConversationMode string

const (
	ModeAI    ConversationMode = "ai"
	ModeHuman ConversationMode = "human"
)

// Conversation represents one interaction session between a contact and an
// organization. The conversation id doubles as the assistant thread id.
type Conversation struct {
	ID        string             `json:"id"`
	ContactID string             `json:"contact_id"`
	Status    ConversationStatus `json:"status"`
	Mode      ConversationMode   `json:"mode"`
	Opened    bool               `json:"opened"`
	CreatedAt time.Time          `json:"created_at"`
}

// ConversationFilter narrows conversation listings for operators.
type ConversationFilter struct {
	Mode   ConversationMode   `json:"mode,omitempty"`
	Status ConversationStatus `json:"status,omitempty"`
	Opened *bool              `json:"opened,omitempty"`
	Limit  int                `json:"limit,omitempty"`
	Offset int                `json:"offset,omitempty"`
}

// UpdateModeRequest is the request to switch a conversation between AI and human mode.
type UpdateModeRequest struct {
	Mode ConversationMode `json:"mode"`
}

// UpdateStatusRequest is the request to activate or close a conversation.
type UpdateStatusRequest struct {
	Status ConversationStatus `json:"status"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
}

// ConversationDetail is a conversation with its contact attached, returned
// when operators fetch a single conversation.
type ConversationDetail struct {
	Conversation
	Contact *Contact `json:"contact,omitempty"`
}
