package whatsapp

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/capitalize-ai/whatsapp-platform/internal/assistant"
	"github.com/capitalize-ai/whatsapp-platform/internal/model"
	"github.com/capitalize-ai/whatsapp-platform/pkg/logger"
	"github.com/capitalize-ai/whatsapp-platform/pkg/metrics"
)

// imageApology is sent to the customer when inbound media cannot be
// processed.
const imageApology = "Maaf, terjadi kesalahan saat memproses gambar. Mohon coba lagi."

// OrgResolver maps a business phone number id to its organization.
type OrgResolver interface {
	GetByPhoneID(ctx context.Context, phoneID string) (*model.Organization, error)
}

// ContactResolver finds or creates the sending contact.
type ContactResolver interface {
	Resolve(ctx context.Context, phoneNumber, name, organizationID string) (*model.Contact, error)
	UpdateThreadID(ctx context.Context, contactID, threadID string) error
}

// ConversationStore reads and creates conversations for a contact.
type ConversationStore interface {
	GetActive(ctx context.Context, contactID string) (*model.Conversation, error)
	Create(ctx context.Context, id, contactID string, mode model.ConversationMode) (*model.Conversation, error)
}

// MessageStore persists conversation messages.
type MessageStore interface {
	InsertParts(ctx context.Context, conversationID string, parts []model.ContentPart, role model.Role, remark string) error
}

// Assistant produces AI replies and stores uploaded media.
type Assistant interface {
	Converse(ctx context.Context, req assistant.ConverseRequest) (assistant.ConverseResult, error)
	UploadImage(ctx context.Context, name string, data []byte) (string, error)
}

// Sender delivers outbound messages and fetches inbound media.
type Sender interface {
	SendText(ctx context.Context, phoneNumberID, to, body string) error
	DownloadMedia(ctx context.Context, mediaID string) (Media, error)
}

// Notifier fans conversation events out to connected operator clients.
type Notifier interface {
	Broadcast(conversationID string, payload any)
}

// EventPublisher mirrors conversation events to a durable stream.
type EventPublisher interface {
	PublishConversationEvent(ctx context.Context, orgID string, event model.Event) error
}

// Deduper admits each inbound message id at most once.
type Deduper interface {
	Admit(messageID string) bool
}

// PipelineConfig carries the tunable webhook processing settings.
type PipelineConfig struct {
	AssistantID string
	AdminNumber string
	// MaxTimestampSkew bounds how far an inbound unit's timestamp may
	// drift from the current time before the delivery is rejected.
	MaxTimestampSkew time.Duration
}

// Pipeline turns a validated webhook delivery into persisted messages,
// an assistant reply, and an outbound send. Every outcome is reported
// in the acknowledgement body; the transport always answers 200.
type Pipeline struct {
	orgs          OrgResolver
	contacts      ContactResolver
	conversations ConversationStore
	messages      MessageStore
	assistant     Assistant
	sender        Sender
	notifier      Notifier
	events        EventPublisher
	dedup         Deduper
	cfg           PipelineConfig
	logger        *logger.Logger

	now func() time.Time
}

// NewPipeline wires the webhook processing pipeline. events may be nil
// when no durable stream is configured.
func NewPipeline(
	orgs OrgResolver,
	contacts ContactResolver,
	conversations ConversationStore,
	messages MessageStore,
	gateway Assistant,
	sender Sender,
	notifier Notifier,
	events EventPublisher,
	dedup Deduper,
	cfg PipelineConfig,
	log *logger.Logger,
) *Pipeline {
	if cfg.MaxTimestampSkew <= 0 {
		cfg.MaxTimestampSkew = 24 * time.Hour
	}
	return &Pipeline{
		orgs:          orgs,
		contacts:      contacts,
		conversations: conversations,
		messages:      messages,
		assistant:     gateway,
		sender:        sender,
		notifier:      notifier,
		events:        events,
		dedup:         dedup,
		cfg:           cfg,
		logger:        log,
		now:           time.Now,
	}
}

// Process handles one webhook delivery end to end and returns the
// acknowledgement to embed in the 200 response.
func (p *Pipeline) Process(ctx context.Context, payload model.WebhookPayload) model.WebhookResult {
	start := time.Now()
	result := p.process(ctx, payload)
	metrics.RecordWebhook(result.Status, time.Since(start).Seconds())
	return result
}

func (p *Pipeline) process(ctx context.Context, payload model.WebhookPayload) model.WebhookResult {
	if len(payload.Entries) == 0 || len(payload.Entries[0].Changes) == 0 {
		return model.WebhookResult{Status: "success", Message: "No messages to process"}
	}
	value := payload.Entries[0].Changes[0].Value

	if len(value.Statuses) > 0 {
		p.logger.Infow("delivery status received",
			"recipient", value.Statuses[0].RecipientID,
			"status", value.Statuses[0].Status,
		)
		return model.WebhookResult{Status: "success", Message: "Status update received"}
	}

	if len(value.Messages) == 0 {
		return model.WebhookResult{Status: "success", Message: "No messages to process"}
	}
	messages := value.Messages
	from := messages[0].From

	org, err := p.orgs.GetByPhoneID(ctx, value.Metadata.PhoneNumberID)
	if err != nil {
		return model.WebhookResult{Status: "error", Message: "Organization not found"}
	}

	if reject := p.checkTimestamp(messages[0]); reject != nil {
		return *reject
	}

	// Deliveries are retried with the same ids; the first unit's id
	// keys the whole batch.
	if !p.dedup.Admit(messages[0].ID) {
		metrics.DedupHitsTotal.Inc()
		p.logger.Infow("skipping duplicate message", "message_id", messages[0].ID)
		return model.WebhookResult{Status: "success", Message: "Duplicate message skipped"}
	}

	senderName := from
	if len(value.Contacts) > 0 && value.Contacts[0].Profile.Name != "" {
		senderName = value.Contacts[0].Profile.Name
	}

	contact, err := p.contacts.Resolve(ctx, from, senderName, org.ID)
	if err != nil {
		return p.fail(from, fmt.Errorf("failed to resolve contact: %w", err))
	}

	conversation, err := p.conversations.GetActive(ctx, contact.ID)
	if err != nil {
		return p.fail(from, fmt.Errorf("failed to load conversation: %w", err))
	}

	parts, apologize, err := p.buildParts(ctx, messages)
	if err != nil {
		if apologize {
			routing := value.Metadata.PhoneNumberID
			if sendErr := p.sender.SendText(ctx, routing, from, imageApology); sendErr != nil {
				p.logger.Errorw("failed to send media apology", "phone_number", from, "error", sendErr)
			}
		}
		return p.fail(from, err)
	}

	// A conversation in human mode is handled by an operator; the
	// customer's message is stored and fanned out but no AI reply is
	// produced. The configured admin number bypasses the gate.
	isAdmin := p.cfg.AdminNumber != "" && from == p.cfg.AdminNumber
	if conversation != nil && conversation.Mode == model.ModeHuman && !isAdmin {
		if err := p.messages.InsertParts(ctx, conversation.ID, parts, model.RoleUser, ""); err != nil {
			return p.fail(from, fmt.Errorf("failed to store message: %w", err))
		}
		p.publish(ctx, org.ID, conversation.ID, parts, model.RoleUser)
		p.logger.Infow("human mode active, skipping AI processing", "phone_number", from)
		return model.WebhookResult{Status: "success", Message: "human mode active - AI processing skipped"}
	}

	threadID := ""
	if conversation != nil {
		threadID = conversation.ID
	}

	converseParts := append([]model.ContentPart{
		model.TextPart(fmt.Sprintf("Customer: %s, Phone: %s", senderName, from)),
	}, parts...)

	reply, err := p.assistant.Converse(ctx, assistant.ConverseRequest{
		ThreadID:    threadID,
		AssistantID: p.cfg.AssistantID,
		Parts:       converseParts,
	})
	if err != nil {
		return p.fail(from, fmt.Errorf("assistant request failed: %w", err))
	}

	// Conversation creation is deferred until the assistant returns a
	// thread id, which doubles as the conversation id.
	if conversation == nil {
		var createErr error
		conversation, createErr = p.conversations.Create(ctx, reply.ThreadID, contact.ID, model.ModeAI)
		if createErr != nil {
			// A concurrent delivery may have created the conversation
			// first; the re-read picks up the winner.
			conversation, err = p.conversations.GetActive(ctx, contact.ID)
			if err != nil || conversation == nil {
				return p.fail(from, fmt.Errorf("failed to create conversation: %w", createErr))
			}
		}
		if err := p.contacts.UpdateThreadID(ctx, contact.ID, reply.ThreadID); err != nil {
			p.logger.Warnw("failed to record thread id", "contact_id", contact.ID, "error", err)
		}
	}

	if err := p.messages.InsertParts(ctx, conversation.ID, parts, model.RoleUser, ""); err != nil {
		return p.fail(from, fmt.Errorf("failed to store message: %w", err))
	}
	p.publish(ctx, org.ID, conversation.ID, parts, model.RoleUser)

	if reply.Status != assistant.StatusCompleted || reply.ReplyText == "" {
		p.logger.Errorw("no assistant reply produced",
			"phone_number", from,
			"status", reply.Status,
			"error_code", reply.ErrCode,
			"error_message", reply.ErrMsg,
		)
		return model.WebhookResult{Status: "success"}
	}

	if err := p.sender.SendText(ctx, org.PhoneID, from, reply.ReplyText); err != nil {
		return p.fail(from, fmt.Errorf("failed to send reply: %w", err))
	}

	replyParts := []model.ContentPart{model.TextPart(reply.ReplyText)}
	if err := p.messages.InsertParts(ctx, conversation.ID, replyParts, model.RoleAssistant, ""); err != nil {
		return p.fail(from, fmt.Errorf("failed to store reply: %w", err))
	}
	p.publish(ctx, org.ID, conversation.ID, replyParts, model.RoleAssistant)

	return model.WebhookResult{Status: "success"}
}

// checkTimestamp rejects units whose timestamp drifts too far from the
// current time. An unparsable timestamp is tolerated.
func (p *Pipeline) checkTimestamp(msg model.InboundMessage) *model.WebhookResult {
	ts, err := strconv.ParseInt(msg.Timestamp, 10, 64)
	if err != nil {
		p.logger.Warnw("unparsable message timestamp",
			"phone_number", msg.From,
			"timestamp", msg.Timestamp,
		)
		return nil
	}

	drift := p.now().Sub(time.Unix(ts, 0))
	if drift < 0 {
		drift = -drift
	}
	if drift > p.cfg.MaxTimestampSkew {
		p.logger.Warnw("suspicious message timestamp rejected",
			"phone_number", msg.From,
			"message_time", ts,
			"drift_hours", drift.Hours(),
		)
		return &model.WebhookResult{Status: "success", Message: "Message with invalid timestamp rejected"}
	}
	return nil
}

// buildParts converts inbound units into content parts, downloading and
// uploading any media. The second return reports whether the customer
// should receive an apology for a media failure.
func (p *Pipeline) buildParts(ctx context.Context, messages []model.InboundMessage) ([]model.ContentPart, bool, error) {
	var parts []model.ContentPart
	for _, msg := range messages {
		switch msg.Type {
		case "text":
			if msg.Text != nil {
				parts = append(parts, model.TextPart(msg.Text.Body))
			}
		case "image":
			if msg.Image == nil {
				continue
			}
			media, err := p.sender.DownloadMedia(ctx, msg.Image.ID)
			if err != nil {
				return nil, true, fmt.Errorf("failed to download image %s: %w", msg.Image.ID, err)
			}
			fileID, err := p.assistant.UploadImage(ctx, fmt.Sprintf("whatsapp_image_%s.jpg", msg.Image.ID), media.Data)
			if err != nil {
				return nil, true, fmt.Errorf("failed to upload image %s: %w", msg.Image.ID, err)
			}
			parts = append(parts, model.ImagePart(fileID))
			if msg.Image.Caption != "" {
				parts = append(parts, model.TextPart("Caption: "+msg.Image.Caption))
			}
		default:
			p.logger.Infow("ignoring unsupported message type",
				"phone_number", msg.From,
				"type", msg.Type,
			)
		}
	}
	if len(parts) == 0 {
		return nil, false, fmt.Errorf("delivery contained no processable content")
	}
	return parts, false, nil
}

func (p *Pipeline) publish(ctx context.Context, orgID, conversationID string, parts []model.ContentPart, role model.Role) {
	for _, part := range parts {
		event := model.Event{
			Type:           model.EventNewMessage,
			ConversationID: conversationID,
			Content:        part.Body(),
			ContentType:    part.Type,
			Role:           role,
			Timestamp:      p.now().UTC(),
		}
		p.notifier.Broadcast(conversationID, event)
		if p.events != nil {
			if err := p.events.PublishConversationEvent(ctx, orgID, event); err != nil {
				p.logger.Warnw("failed to publish conversation event",
					"conversation_id", conversationID,
					"error", err,
				)
			}
		}
	}
}

func (p *Pipeline) fail(phoneNumber string, err error) model.WebhookResult {
	p.logger.Errorw("webhook processing failed", "phone_number", phoneNumber, "error", err)
	return model.WebhookResult{Status: "error", Message: err.Error()}
}
