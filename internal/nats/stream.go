package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/whatsapp-platform/internal/model"
)

const (
	// StreamName is the name of the conversation events stream.
	StreamName = "WA_EVENTS"

	// SubjectPrefix is the prefix for all conversation subjects.
	SubjectPrefix = "wa"
)

// StreamManager persists conversation events to JetStream so operator
// clients can replay what they missed while disconnected.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream creates the events stream if it does not exist yet.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Conversation events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// EventSubject returns the subject for one conversation event.
func EventSubject(orgID, conversationID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.%s.%s", SubjectPrefix, orgID, conversationID, eventType)
}

// ConversationFilter returns the filter subject matching every event in
// a conversation.
func ConversationFilter(orgID, conversationID string) string {
	return fmt.Sprintf("%s.%s.%s.>", SubjectPrefix, orgID, conversationID)
}

// PublishConversationEvent appends the event to the stream.
func (m *StreamManager) PublishConversationEvent(ctx context.Context, orgID string, event model.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := EventSubject(orgID, event.ConversationID, event.Type)
	if _, err := m.client.JetStream().Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// ReplayEvents fetches up to limit stored events for a conversation,
// starting after the given stream sequence. It returns the events, the
// last sequence seen, and whether more may remain.
func (m *StreamManager) ReplayEvents(ctx context.Context, orgID, conversationID string, afterSequence uint64, limit int) ([]model.Event, uint64, bool, error) {
	js := m.client.JetStream()

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: ConversationFilter(orgID, conversationID),
		AckPolicy:     jetstream.AckNonePolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	}
	if afterSequence > 0 {
		consumerConfig.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		consumerConfig.OptStartSeq = afterSequence + 1
	}

	consumer, err := js.CreateConsumer(ctx, StreamName, consumerConfig)
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to fetch events: %w", err)
	}

	var events []model.Event
	var lastSequence uint64
	for msg := range batch.Messages() {
		var event model.Event
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			continue
		}
		if meta, err := msg.Metadata(); err == nil {
			lastSequence = meta.Sequence.Stream
		}
		events = append(events, event)
	}
	if batch.Error() != nil && batch.Error() != context.DeadlineExceeded {
		return nil, 0, false, fmt.Errorf("batch error: %w", batch.Error())
	}

	return events, lastSequence, len(events) == limit, nil
}
