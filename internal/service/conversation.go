// Package service implements the operator-facing operations on top of
// the stores: conversation lifecycle transitions and outbound replies.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/capitalize-ai/whatsapp-platform/internal/model"
	"github.com/capitalize-ai/whatsapp-platform/pkg/logger"
	"github.com/capitalize-ai/whatsapp-platform/pkg/metrics"
)

// ErrNotAllowed is returned when a user may not claim a conversation.
var ErrNotAllowed = errors.New("not allowed to open this conversation")

// ConversationRepo is the slice of the conversation store the services
// depend on.
type ConversationRepo interface {
	Get(ctx context.Context, id string) (*model.Conversation, error)
	SetMode(ctx context.Context, id string, mode model.ConversationMode) error
	SetStatus(ctx context.Context, id string, status model.ConversationStatus) error
	SetOpened(ctx context.Context, id string, opened bool) error
	CanOpen(ctx context.Context, conversationID, userID string) (bool, error)
	OrganizationID(ctx context.Context, conversationID string) (string, error)
	Routing(ctx context.Context, conversationID string) (orgID, orgPhoneID, contactPhone string, err error)
	List(ctx context.Context, orgID string, filter model.ConversationFilter) ([]model.Conversation, error)
}

// Notifier fans conversation events out to connected operator clients.
type Notifier interface {
	Broadcast(conversationID string, payload any)
}

// EventPublisher mirrors conversation events to a durable stream.
type EventPublisher interface {
	PublishConversationEvent(ctx context.Context, orgID string, event model.Event) error
}

// Conversations manages mode, status, and claim transitions, emitting
// an event for every change so watching operators stay current.
type Conversations struct {
	repo     ConversationRepo
	notifier Notifier
	events   EventPublisher
	logger   *logger.Logger
}

// NewConversations creates the conversation service. events may be nil.
func NewConversations(repo ConversationRepo, notifier Notifier, events EventPublisher, log *logger.Logger) *Conversations {
	return &Conversations{
		repo:     repo,
		notifier: notifier,
		events:   events,
		logger:   log,
	}
}

// Get returns one conversation.
func (s *Conversations) Get(ctx context.Context, id string) (*model.Conversation, error) {
	return s.repo.Get(ctx, id)
}

// List returns an organization's conversations matching the filter.
func (s *Conversations) List(ctx context.Context, orgID string, filter model.ConversationFilter) ([]model.Conversation, error) {
	return s.repo.List(ctx, orgID, filter)
}

// SetMode switches a conversation between ai and human handling.
// Switching to human also clears the opened flag so the next operator
// must claim it.
func (s *Conversations) SetMode(ctx context.Context, id string, mode model.ConversationMode) error {
	if mode != model.ModeAI && mode != model.ModeHuman {
		return fmt.Errorf("invalid mode %q", mode)
	}
	if err := s.repo.SetMode(ctx, id, mode); err != nil {
		return err
	}
	metrics.ConversationsTotal.WithLabelValues(string(mode)).Inc()
	s.emit(ctx, id, model.Event{
		Type:           model.EventModeChanged,
		ConversationID: id,
		Mode:           string(mode),
	})
	return nil
}

// SetStatus activates or deactivates a conversation. Activation is
// refused when the contact already has another active conversation.
func (s *Conversations) SetStatus(ctx context.Context, id string, status model.ConversationStatus) error {
	if status != model.StatusActive && status != model.StatusInactive {
		return fmt.Errorf("invalid status %q", status)
	}
	if err := s.repo.SetStatus(ctx, id, status); err != nil {
		return err
	}
	s.emit(ctx, id, model.Event{
		Type:           model.EventStatusChanged,
		ConversationID: id,
		Status:         string(status),
	})
	return nil
}

// Claim marks a human-mode conversation as opened by the given user.
// Only one operator holds a conversation at a time; the claim is
// refused when the conversation is not claimable or the user lacks the
// takeover permission.
func (s *Conversations) Claim(ctx context.Context, id, userID string) error {
	ok, err := s.repo.CanOpen(ctx, id, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAllowed
	}
	if err := s.repo.SetOpened(ctx, id, true); err != nil {
		return err
	}
	s.emit(ctx, id, model.Event{
		Type:           model.EventStatusChanged,
		ConversationID: id,
		Status:         "opened",
	})
	return nil
}

// Release clears the opened flag so another operator can claim the
// conversation.
func (s *Conversations) Release(ctx context.Context, id string) error {
	if err := s.repo.SetOpened(ctx, id, false); err != nil {
		return err
	}
	s.emit(ctx, id, model.Event{
		Type:           model.EventStatusChanged,
		ConversationID: id,
		Status:         "released",
	})
	return nil
}

func (s *Conversations) emit(ctx context.Context, conversationID string, event model.Event) {
	event.Timestamp = time.Now().UTC()
	s.notifier.Broadcast(conversationID, event)

	if s.events == nil {
		return
	}
	orgID, err := s.repo.OrganizationID(ctx, conversationID)
	if err != nil {
		s.logger.Warnw("failed to resolve organization for event",
			"conversation_id", conversationID,
			"error", err,
		)
		return
	}
	if err := s.events.PublishConversationEvent(ctx, orgID, event); err != nil {
		s.logger.Warnw("failed to publish conversation event",
			"conversation_id", conversationID,
			"error", err,
		)
	}
}
