package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/whatsapp-platform/internal/model"
	"github.com/capitalize-ai/whatsapp-platform/pkg/logger"
)

type fakeRepo struct {
	conversation *model.Conversation
	canOpen      bool
	canOpenErr   error
	modes        []model.ConversationMode
	statuses     []model.ConversationStatus
	opened       []bool
	setModeErr   error
	setStatusErr error

	orgID        string
	orgPhoneID   string
	contactPhone string
}

func (f *fakeRepo) Get(ctx context.Context, id string) (*model.Conversation, error) {
	return f.conversation, nil
}

func (f *fakeRepo) SetMode(ctx context.Context, id string, mode model.ConversationMode) error {
	if f.setModeErr != nil {
		return f.setModeErr
	}
	f.modes = append(f.modes, mode)
	return nil
}

func (f *fakeRepo) SetStatus(ctx context.Context, id string, status model.ConversationStatus) error {
	if f.setStatusErr != nil {
		return f.setStatusErr
	}
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeRepo) SetOpened(ctx context.Context, id string, opened bool) error {
	f.opened = append(f.opened, opened)
	return nil
}

func (f *fakeRepo) CanOpen(ctx context.Context, conversationID, userID string) (bool, error) {
	return f.canOpen, f.canOpenErr
}

func (f *fakeRepo) OrganizationID(ctx context.Context, conversationID string) (string, error) {
	return f.orgID, nil
}

func (f *fakeRepo) Routing(ctx context.Context, conversationID string) (string, string, string, error) {
	return f.orgID, f.orgPhoneID, f.contactPhone, nil
}

func (f *fakeRepo) List(ctx context.Context, orgID string, filter model.ConversationFilter) ([]model.Conversation, error) {
	return nil, nil
}

type fakeNotifier struct {
	events []model.Event
}

func (f *fakeNotifier) Broadcast(conversationID string, payload any) {
	if ev, ok := payload.(model.Event); ok {
		f.events = append(f.events, ev)
	}
}

func TestSetModeBroadcastsChange(t *testing.T) {
	repo := &fakeRepo{}
	notifier := &fakeNotifier{}
	svc := NewConversations(repo, notifier, nil, logger.NewNop())

	require.NoError(t, svc.SetMode(context.Background(), "conv-1", model.ModeHuman))

	assert.Equal(t, []model.ConversationMode{model.ModeHuman}, repo.modes)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, model.EventModeChanged, notifier.events[0].Type)
	assert.Equal(t, "human", notifier.events[0].Mode)
	assert.False(t, notifier.events[0].Timestamp.IsZero())
}

func TestSetModeRejectsUnknownMode(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewConversations(repo, &fakeNotifier{}, nil, logger.NewNop())

	err := svc.SetMode(context.Background(), "conv-1", model.ConversationMode("paused"))
	assert.Error(t, err)
	assert.Empty(t, repo.modes)
}

func TestSetModeStoreFailureSuppressesEvent(t *testing.T) {
	repo := &fakeRepo{setModeErr: errors.New("db down")}
	notifier := &fakeNotifier{}
	svc := NewConversations(repo, notifier, nil, logger.NewNop())

	err := svc.SetMode(context.Background(), "conv-1", model.ModeAI)
	assert.Error(t, err)
	assert.Empty(t, notifier.events)
}

func TestSetStatusBroadcastsChange(t *testing.T) {
	repo := &fakeRepo{}
	notifier := &fakeNotifier{}
	svc := NewConversations(repo, notifier, nil, logger.NewNop())

	require.NoError(t, svc.SetStatus(context.Background(), "conv-1", model.StatusInactive))
	require.Len(t, notifier.events, 1)
	assert.Equal(t, model.EventStatusChanged, notifier.events[0].Type)
	assert.Equal(t, "inactive", notifier.events[0].Status)
}

func TestClaimAllowed(t *testing.T) {
	repo := &fakeRepo{canOpen: true}
	notifier := &fakeNotifier{}
	svc := NewConversations(repo, notifier, nil, logger.NewNop())

	require.NoError(t, svc.Claim(context.Background(), "conv-1", "user-1"))
	assert.Equal(t, []bool{true}, repo.opened)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, "opened", notifier.events[0].Status)
}

func TestClaimRefused(t *testing.T) {
	repo := &fakeRepo{canOpen: false}
	svc := NewConversations(repo, &fakeNotifier{}, nil, logger.NewNop())

	err := svc.Claim(context.Background(), "conv-1", "user-1")
	assert.ErrorIs(t, err, ErrNotAllowed)
	assert.Empty(t, repo.opened)
}

func TestReleaseClearsOpened(t *testing.T) {
	repo := &fakeRepo{}
	notifier := &fakeNotifier{}
	svc := NewConversations(repo, notifier, nil, logger.NewNop())

	require.NoError(t, svc.Release(context.Background(), "conv-1"))
	assert.Equal(t, []bool{false}, repo.opened)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, "released", notifier.events[0].Status)
}
