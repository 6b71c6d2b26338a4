package middleware

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// ValidateMessageContent validates message content.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return errors.New("content cannot be empty")
	}
	if len(content) > 100000 {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateConversationID validates a conversation ID. Conversation ids
// are provider thread ids, not UUIDs.
func ValidateConversationID(id string) error {
	if len(id) == 0 {
		return errors.New("conversation ID cannot be empty")
	}
	if len(id) > 128 {
		return errors.New("conversation ID exceeds maximum length")
	}
	if strings.ContainsAny(id, " \t\n/") {
		return errors.New("invalid conversation ID format")
	}
	return nil
}

// ValidateMode validates a conversation mode value.
func ValidateMode(mode string) error {
	if mode != "ai" && mode != "human" {
		return errors.New("mode must be ai or human")
	}
	return nil
}

// ValidateStatus validates a conversation status value.
func ValidateStatus(status string) error {
	if status != "active" && status != "inactive" {
		return errors.New("status must be active or inactive")
	}
	return nil
}
