package service

import (
	"context"
	"fmt"
	"time"

	"github.com/capitalize-ai/whatsapp-platform/internal/model"
	"github.com/capitalize-ai/whatsapp-platform/pkg/logger"
)

// OperatorDirectory resolves an operator's phone number within an
// organization.
type OperatorDirectory interface {
	OperatorPhone(ctx context.Context, orgID, userID string) (string, error)
}

// MessageRepo persists conversation messages.
type MessageRepo interface {
	InsertParts(ctx context.Context, conversationID string, parts []model.ContentPart, role model.Role, remark string) error
	List(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error)
	Count(ctx context.Context, conversationID string) (int, error)
}

// TextSender delivers outbound text messages.
type TextSender interface {
	SendText(ctx context.Context, phoneNumberID, to, body string) error
}

// Replies sends operator messages to customers and records them in the
// conversation history.
type Replies struct {
	conversations ConversationRepo
	operators     OperatorDirectory
	messages      MessageRepo
	sender        TextSender
	notifier      Notifier
	events        EventPublisher
	logger        *logger.Logger
}

// NewReplies creates the reply service. events may be nil.
func NewReplies(
	conversations ConversationRepo,
	operators OperatorDirectory,
	messages MessageRepo,
	sender TextSender,
	notifier Notifier,
	events EventPublisher,
	log *logger.Logger,
) *Replies {
	return &Replies{
		conversations: conversations,
		operators:     operators,
		messages:      messages,
		sender:        sender,
		notifier:      notifier,
		events:        events,
		logger:        log,
	}
}

// Send delivers an operator reply to the conversation's customer. The
// stored message is attributed to the operator's phone number in the
// remark.
func (s *Replies) Send(ctx context.Context, conversationID, userID, content string) error {
	orgID, orgPhoneID, contactPhone, err := s.conversations.Routing(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("failed to resolve routing: %w", err)
	}

	operatorPhone, err := s.operators.OperatorPhone(ctx, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to resolve operator: %w", err)
	}

	if err := s.sender.SendText(ctx, orgPhoneID, contactPhone, content); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}

	parts := []model.ContentPart{model.TextPart(content)}
	remark := "admin:" + operatorPhone
	if err := s.messages.InsertParts(ctx, conversationID, parts, model.RoleAdmin, remark); err != nil {
		return fmt.Errorf("failed to store reply: %w", err)
	}

	event := model.Event{
		Type:           model.EventNewMessage,
		ConversationID: conversationID,
		Content:        content,
		ContentType:    model.ContentText,
		Role:           model.RoleAdmin,
		Timestamp:      time.Now().UTC(),
	}
	s.notifier.Broadcast(conversationID, event)
	if s.events != nil {
		if err := s.events.PublishConversationEvent(ctx, orgID, event); err != nil {
			s.logger.Warnw("failed to publish conversation event",
				"conversation_id", conversationID,
				"error", err,
			)
		}
	}
	return nil
}

// History returns a page of conversation messages together with the
// total count.
func (s *Replies) History(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, int, error) {
	messages, err := s.messages.List(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.messages.Count(ctx, conversationID)
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}
