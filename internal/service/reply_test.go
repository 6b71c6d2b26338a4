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

type fakeOperators struct {
	phone string
	err   error
}

func (f *fakeOperators) OperatorPhone(ctx context.Context, orgID, userID string) (string, error) {
	return f.phone, f.err
}

type storedReply struct {
	conversationID string
	parts          []model.ContentPart
	role           model.Role
	remark         string
}

type fakeMessageRepo struct {
	stored []storedReply
}

func (f *fakeMessageRepo) InsertParts(ctx context.Context, conversationID string, parts []model.ContentPart, role model.Role, remark string) error {
	f.stored = append(f.stored, storedReply{conversationID, parts, role, remark})
	return nil
}

func (f *fakeMessageRepo) List(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error) {
	return []model.Message{{ID: "m-1", ConversationID: conversationID}}, nil
}

func (f *fakeMessageRepo) Count(ctx context.Context, conversationID string) (int, error) {
	return 7, nil
}

type fakeTextSender struct {
	sent []string
	err  error
}

func (f *fakeTextSender) SendText(ctx context.Context, phoneNumberID, to, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, phoneNumberID+"|"+to+"|"+body)
	return nil
}

func TestSendOperatorReply(t *testing.T) {
	repo := &fakeRepo{orgID: "org-1", orgPhoneID: "phone-1", contactPhone: "+628123"}
	messages := &fakeMessageRepo{}
	sender := &fakeTextSender{}
	notifier := &fakeNotifier{}
	svc := NewReplies(repo, &fakeOperators{phone: "+628777"}, messages, sender, notifier, nil, logger.NewNop())

	require.NoError(t, svc.Send(context.Background(), "conv-1", "user-1", "sebentar ya"))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "phone-1|+628123|sebentar ya", sender.sent[0])

	require.Len(t, messages.stored, 1)
	assert.Equal(t, model.RoleAdmin, messages.stored[0].role)
	assert.Equal(t, "admin:+628777", messages.stored[0].remark)
	require.Len(t, messages.stored[0].parts, 1)
	assert.Equal(t, "sebentar ya", messages.stored[0].parts[0].Text)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, model.EventNewMessage, notifier.events[0].Type)
	assert.Equal(t, model.RoleAdmin, notifier.events[0].Role)
}

func TestSendFailureSkipsPersistence(t *testing.T) {
	repo := &fakeRepo{orgID: "org-1", orgPhoneID: "phone-1", contactPhone: "+628123"}
	messages := &fakeMessageRepo{}
	sender := &fakeTextSender{err: errors.New("provider down")}
	notifier := &fakeNotifier{}
	svc := NewReplies(repo, &fakeOperators{phone: "+628777"}, messages, sender, notifier, nil, logger.NewNop())

	err := svc.Send(context.Background(), "conv-1", "user-1", "halo")
	assert.Error(t, err)
	assert.Empty(t, messages.stored)
	assert.Empty(t, notifier.events)
}

func TestSendUnknownOperator(t *testing.T) {
	repo := &fakeRepo{orgID: "org-1", orgPhoneID: "phone-1", contactPhone: "+628123"}
	sender := &fakeTextSender{}
	svc := NewReplies(repo, &fakeOperators{err: errors.New("no rows")}, &fakeMessageRepo{}, sender, &fakeNotifier{}, nil, logger.NewNop())

	err := svc.Send(context.Background(), "conv-1", "user-x", "halo")
	assert.Error(t, err)
	assert.Empty(t, sender.sent)
}

func TestHistory(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewReplies(repo, &fakeOperators{}, &fakeMessageRepo{}, &fakeTextSender{}, &fakeNotifier{}, nil, logger.NewNop())

	messages, total, err := svc.History(context.Background(), "conv-1", 50, 0)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
	assert.Equal(t, 7, total)
}
