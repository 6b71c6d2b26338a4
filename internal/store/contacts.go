package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/capitalize-ai/whatsapp-platform/internal/model"
	"github.com/capitalize-ai/whatsapp-platform/pkg/logger"
)

// Contacts maps messaging identities to durable contact records.
type Contacts struct {
	db     DBTX
	logger *logger.Logger
}

// NewContacts creates a contact store.
func NewContacts(db DBTX, log *logger.Logger) *Contacts {
	return &Contacts{db: db, logger: log}
}

const contactColumns = `id, name, phone_number, organization_id,
	COALESCE(chat_status, ''), COALESCE(thread_id, ''), created_at`

func scanContact(row pgx.Row) (*model.Contact, error) {
	var c model.Contact
	err := row.Scan(&c.ID, &c.Name, &c.PhoneNumber, &c.OrganizationID,
		&c.ChatStatus, &c.ThreadID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Resolve returns the contact for (phoneNumber, organizationID), creating
// one with the given display name if absent. A concurrent creator losing
// the insert race re-reads the winner's row. When the stored name differs
// from the provider's current profile name, the name is refreshed
// opportunistically; a refresh failure is logged, never surfaced.
func (s *Contacts) Resolve(ctx context.Context, phoneNumber, name, organizationID string) (*model.Contact, error) {
	contact, err := s.getByPhone(ctx, phoneNumber, organizationID)
	if err == nil {
		if name != "" && contact.Name != name {
			s.refreshName(ctx, contact.ID, name)
			contact.Name = name
		}
		return contact, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	id := uuid.Must(uuid.NewV7()).String()
	_, err = s.db.Exec(ctx,
		`INSERT INTO contacts (id, name, phone_number, organization_id) VALUES ($1, $2, $3, $4)`,
		id, name, phoneNumber, organizationID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the race; the winner's row is authoritative.
			return s.getByPhone(ctx, phoneNumber, organizationID)
		}
		return nil, fmt.Errorf("failed to create contact: %w", err)
	}

	return s.getByPhone(ctx, phoneNumber, organizationID)
}

// GetByID looks up a contact by primary key.
func (s *Contacts) GetByID(ctx context.Context, id string) (*model.Contact, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id)
	contact, err := scanContact(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	return contact, nil
}

// UpdateThreadID records the most recent assistant thread for a contact.
// A matching value is left untouched.
func (s *Contacts) UpdateThreadID(ctx context.Context, contactID, threadID string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE contacts SET thread_id = $1, updated_at = now()
		 WHERE id = $2 AND (thread_id IS DISTINCT FROM $1)`,
		threadID, contactID,
	)
	if err != nil {
		return fmt.Errorf("failed to update thread id: %w", err)
	}
	return nil
}

// SetChatStatus updates the contact's escalation marker.
func (s *Contacts) SetChatStatus(ctx context.Context, contactID, status string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE contacts SET chat_status = $1, updated_at = now() WHERE id = $2`,
		status, contactID,
	)
	if err != nil {
		return fmt.Errorf("failed to set chat status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Contacts) getByPhone(ctx context.Context, phoneNumber, organizationID string) (*model.Contact, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+contactColumns+` FROM contacts
		 WHERE phone_number = $1 AND organization_id = $2`,
		phoneNumber, organizationID,
	)
	contact, err := scanContact(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get contact by phone: %w", err)
	}
	return contact, nil
}

func (s *Contacts) refreshName(ctx context.Context, contactID, name string) {
	_, err := s.db.Exec(ctx,
		`UPDATE contacts SET name = $1, updated_at = now() WHERE id = $2`,
		name, contactID,
	)
	if err != nil {
		s.logger.Warnw("failed to refresh contact name", "contact_id", contactID, "error", err)
	}
}
