package model

import (
	"time"
)

// Role represents the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleAdmin     Role = "admin"
)

// ContentType tags the payload kind of a message or content part.
type ContentType string

const (
	ContentText      ContentType = "text"
	ContentImageFile ContentType = "image_file"
)

// Message is one content unit inside a conversation. Append-only; ordered
// by CreatedAt within a conversation.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	Content        string      `json:"content"`
	ContentType    ContentType `json:"content_type"`
	Role           Role        `json:"role"`
	Remark         string      `json:"remark,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// ContentPart is one typed unit of an inbound batch or assistant submission.
// Text carries the body for text parts; FileID references an uploaded image
// on the AI provider for image parts.
type ContentPart struct {
	Type   ContentType `json:"type"`
	Text   string      `json:"text,omitempty"`
	FileID string      `json:"file_id,omitempty"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: ContentText, Text: text}
}

// ImagePart builds an image-reference content part.
func ImagePart(fileID string) ContentPart {
	return ContentPart{Type: ContentImageFile, FileID: fileID}
}

// Body returns the persistable content of a part: the text for text parts,
// the file reference for image parts.
func (p ContentPart) Body() string {
	if p.Type == ContentImageFile {
		return p.FileID
	}
	return p.Text
}

// CreateMessageRequest is the operator reply request body.
type CreateMessageRequest struct {
	ConversationID string      `json:"conversation_id"`
	Content        string      `json:"content"`
	ContentType    ContentType `json:"content_type,omitempty"`
}

// ListMessagesResponse is the response for listing conversation messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
}
