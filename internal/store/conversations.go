package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/capitalize-ai/whatsapp-platform/internal/model"
	"github.com/capitalize-ai/whatsapp-platform/internal/rbac"
)

// Conversations maintains conversation state. The single invariant it
// guards: at most one active conversation per contact, backed by a partial
// unique index on (contact_id) WHERE status = 'active'.
type Conversations struct {
	db   DBTX
	rbac rbac.Checker
}

// NewConversations creates a conversation store.
func NewConversations(db DBTX, checker rbac.Checker) *Conversations {
	return &Conversations{db: db, rbac: checker}
}

const conversationColumns = `id, contact_id, status, mode, opened, created_at`

func scanConversation(row pgx.Row) (*model.Conversation, error) {
	var c model.Conversation
	err := row.Scan(&c.ID, &c.ContactID, &c.Status, &c.Mode, &c.Opened, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Get looks up a conversation by id.
func (s *Conversations) Get(ctx context.Context, id string) (*model.Conversation, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

// GetActive returns the active conversation for a contact, or nil when the
// contact has none.
func (s *Conversations) GetActive(ctx context.Context, contactID string) (*model.Conversation, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE contact_id = $1 AND status = 'active'`,
		contactID,
	)
	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active conversation: %w", err)
	}
	return conv, nil
}

// Create inserts a new active conversation. The id is the assistant thread
// id. Returns ErrConversationActive when the contact already has an active
// conversation; the caller re-fetches the existing one instead of failing.
func (s *Conversations) Create(ctx context.Context, id, contactID string, mode model.ConversationMode) (*model.Conversation, error) {
	_, err := s.db.Exec(ctx,
		`INSERT INTO conversations (id, contact_id, status, mode, opened)
		 VALUES ($1, $2, 'active', $3, false)`,
		id, contactID, mode,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConversationActive
		}
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return s.Get(ctx, id)
}

// SetMode updates the conversation mode. A transition to human resets
// opened to false so operators see the conversation as new. Setting the
// same mode twice is a no-op at the row level.
func (s *Conversations) SetMode(ctx context.Context, id string, mode model.ConversationMode) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE conversations
		 SET mode = $1, opened = CASE WHEN $1 = 'human' THEN false ELSE opened END
		 WHERE id = $2`,
		mode, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set conversation mode: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus updates the conversation status. Transitioning to active fails
// with ErrConversationActive while another conversation for the same
// contact is active; transitioning to inactive always succeeds.
func (s *Conversations) SetStatus(ctx context.Context, id string, status model.ConversationStatus) error {
	if status == model.StatusActive {
		row := s.db.QueryRow(ctx,
			`SELECT EXISTS (
				SELECT 1 FROM conversations other
				JOIN conversations target ON target.contact_id = other.contact_id
				WHERE target.id = $1 AND other.status = 'active' AND other.id <> $1
			)`,
			id,
		)
		var conflict bool
		if err := row.Scan(&conflict); err != nil {
			return fmt.Errorf("failed to verify active conversations: %w", err)
		}
		if conflict {
			return ErrConversationActive
		}
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE conversations SET status = $1 WHERE id = $2`,
		status, id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConversationActive
		}
		return fmt.Errorf("failed to set conversation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetOpened marks the operator-viewed state.
func (s *Conversations) SetOpened(ctx context.Context, id string, opened bool) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE conversations SET opened = $1 WHERE id = $2`,
		opened, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set conversation opened: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CanOpen reports whether userID may claim the conversation: it must be
// active, in human mode, not yet opened, and the user must hold the
// organization's takeover permission or be an organization admin. It does
// not mutate state; callers still call SetOpened.
func (s *Conversations) CanOpen(ctx context.Context, conversationID, userID string) (bool, error) {
	conv, err := s.Get(ctx, conversationID)
	if err != nil {
		return false, err
	}
	if conv.Status != model.StatusActive || conv.Mode != model.ModeHuman || conv.Opened {
		return false, nil
	}

	orgID, err := s.OrganizationID(ctx, conversationID)
	if err != nil {
		return false, err
	}

	admin, err := s.rbac.IsOrgAdmin(ctx, orgID, userID)
	if err != nil {
		return false, err
	}
	if admin {
		return true, nil
	}
	return s.rbac.HasOrgPermission(ctx, orgID, userID, rbac.PermissionTakeover)
}

// OrganizationID resolves the organization owning a conversation.
func (s *Conversations) OrganizationID(ctx context.Context, conversationID string) (string, error) {
	row := s.db.QueryRow(ctx,
		`SELECT c.organization_id
		 FROM conversations conv
		 JOIN contacts c ON c.id = conv.contact_id
		 WHERE conv.id = $1`,
		conversationID,
	)
	var orgID string
	if err := row.Scan(&orgID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to resolve conversation organization: %w", err)
	}
	return orgID, nil
}

// Routing returns the provider routing row for a conversation: the owning
// organization, its provider phone id, and the contact's phone number.
func (s *Conversations) Routing(ctx context.Context, conversationID string) (orgID, orgPhoneID, contactPhone string, err error) {
	row := s.db.QueryRow(ctx,
		`SELECT o.id, o.phone_id, c.phone_number
		 FROM organizations o
		 JOIN contacts c ON o.id = c.organization_id
		 JOIN conversations conv ON c.id = conv.contact_id
		 WHERE conv.id = $1`,
		conversationID,
	)
	if scanErr := row.Scan(&orgID, &orgPhoneID, &contactPhone); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return "", "", "", ErrNotFound
		}
		return "", "", "", fmt.Errorf("failed to resolve conversation routing: %w", scanErr)
	}
	return orgID, orgPhoneID, contactPhone, nil
}

// List returns an organization's conversations newest first, narrowed by
// the filter.
func (s *Conversations) List(ctx context.Context, orgID string, filter model.ConversationFilter) ([]model.Conversation, error) {
	query := `SELECT conv.id, conv.contact_id, conv.status, conv.mode, conv.opened, conv.created_at
		FROM conversations conv
		JOIN contacts c ON c.id = conv.contact_id
		WHERE c.organization_id = $1`
	args := []any{orgID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += ` AND conv.status = $` + strconv.Itoa(len(args))
	}
	if filter.Mode != "" {
		args = append(args, filter.Mode)
		query += ` AND conv.mode = $` + strconv.Itoa(len(args))
	}
	if filter.Opened != nil {
		args = append(args, *filter.Opened)
		query += ` AND conv.opened = $` + strconv.Itoa(len(args))
	}

	query += ` ORDER BY conv.created_at DESC`

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []model.Conversation
	for rows.Next() {
		var c model.Conversation
		if err := rows.Scan(&c.ID, &c.ContactID, &c.Status, &c.Mode, &c.Opened, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}
	return conversations, nil
}
