package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/capitalize-ai/whatsapp-platform/internal/model"
)

// Organizations resolves tenants from provider routing identifiers.
type Organizations struct {
	db DBTX
}

// NewOrganizations creates an organization store.
func NewOrganizations(db DBTX) *Organizations {
	return &Organizations{db: db}
}

// GetByPhoneID looks up the organization owning a provider phone-number-id.
func (s *Organizations) GetByPhoneID(ctx context.Context, phoneID string) (*model.Organization, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, name, phone_id, status FROM organizations WHERE phone_id = $1`,
		phoneID,
	)

	var org model.Organization
	if err := row.Scan(&org.ID, &org.Name, &org.PhoneID, &org.Status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get organization by phone id: %w", err)
	}
	return &org, nil
}

// OperatorPhone returns the phone number an operator is registered under in
// an organization. Used to stamp the admin identity on operator replies.
func (s *Organizations) OperatorPhone(ctx context.Context, orgID, userID string) (string, error) {
	row := s.db.QueryRow(ctx,
		`SELECT phone_number FROM organization_users WHERE organization_id = $1 AND user_id = $2`,
		orgID, userID,
	)

	var phone string
	if err := row.Scan(&phone); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get operator phone: %w", err)
	}
	return phone, nil
}
