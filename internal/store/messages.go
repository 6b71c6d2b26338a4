package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/capitalize-ai/whatsapp-platform/internal/model"
	"github.com/capitalize-ai/whatsapp-platform/pkg/metrics"
)

// Messages is the append-only message store.
type Messages struct {
	db DBTX
}

// NewMessages creates a message store.
func NewMessages(db DBTX) *Messages {
	return &Messages{db: db}
}

// batcher is implemented by *pgxpool.Pool and pgx.Tx. Single inserts go
// through Exec so the store stays usable behind a plain DBTX in tests.
type batcher interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// InsertParts persists one row per content part, preserving part order.
// Uses a pgx batch when the connection supports it.
func (s *Messages) InsertParts(ctx context.Context, conversationID string, parts []model.ContentPart, role model.Role, remark string) error {
	if len(parts) == 0 {
		return nil
	}

	const insertSQL = `INSERT INTO messages (id, conversation_id, content, content_type, role, remark)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))`

	if b, ok := s.db.(batcher); ok && len(parts) > 1 {
		batch := &pgx.Batch{}
		for _, part := range parts {
			id := uuid.Must(uuid.NewV7()).String()
			batch.Queue(insertSQL, id, conversationID, part.Body(), part.Type, role, remark)
		}
		results := b.SendBatch(ctx, batch)
		defer results.Close()
		for range parts {
			if _, err := results.Exec(); err != nil {
				return fmt.Errorf("failed to insert message batch: %w", err)
			}
		}
		metrics.MessagesTotal.WithLabelValues(string(role)).Add(float64(len(parts)))
		return nil
	}

	for _, part := range parts {
		id := uuid.Must(uuid.NewV7()).String()
		_, err := s.db.Exec(ctx, insertSQL,
			id, conversationID, part.Body(), part.Type, role, remark)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}
	metrics.MessagesTotal.WithLabelValues(string(role)).Add(float64(len(parts)))
	return nil
}

// List returns a conversation's messages in creation order.
func (s *Messages) List(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, conversation_id, content, content_type, role, COALESCE(remark, ''), created_at
		 FROM messages
		 WHERE conversation_id = $1
		 ORDER BY created_at ASC
		 LIMIT $2 OFFSET $3`,
		conversationID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Content, &m.ContentType, &m.Role, &m.Remark, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}

// Count returns the number of messages in a conversation.
func (s *Messages) Count(ctx context.Context, conversationID string) (int, error) {
	row := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = $1`, conversationID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}
