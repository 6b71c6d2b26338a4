// Package rbac answers organization-scoped permission questions.
package rbac

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// PermissionTakeover gates claiming a freshly escalated human-mode
// conversation.
const PermissionTakeover = "takeover"

// Checker answers permission questions for the conversation store and the
// real-time connection authorization gate.
type Checker interface {
	IsOrgMember(ctx context.Context, orgID, userID string) (bool, error)
	IsOrgAdmin(ctx context.Context, orgID, userID string) (bool, error)
	HasOrgPermission(ctx context.Context, orgID, userID, permission string) (bool, error)
}

// querier is the single pgx operation the service needs. *pgxpool.Pool
// satisfies it.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Service is the relational Checker implementation.
type Service struct {
	db querier
}

// NewService creates an RBAC service.
func NewService(db querier) *Service {
	return &Service{db: db}
}

// IsOrgMember reports whether the user belongs to the organization.
func (s *Service) IsOrgMember(ctx context.Context, orgID, userID string) (bool, error) {
	row := s.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM organization_users
			WHERE organization_id = $1 AND user_id = $2
		)`,
		orgID, userID,
	)
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check org membership: %w", err)
	}
	return ok, nil
}

// IsOrgAdmin reports whether the user is an admin of the organization.
func (s *Service) IsOrgAdmin(ctx context.Context, orgID, userID string) (bool, error) {
	row := s.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM organization_users
			WHERE organization_id = $1 AND user_id = $2 AND role = 'admin'
		)`,
		orgID, userID,
	)
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check org admin: %w", err)
	}
	return ok, nil
}

// HasOrgPermission reports whether the user holds a named permission in the
// organization.
func (s *Service) HasOrgPermission(ctx context.Context, orgID, userID, permission string) (bool, error) {
	row := s.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM organization_user_permissions
			WHERE organization_id = $1 AND user_id = $2 AND permission = $3
		)`,
		orgID, userID, permission,
	)
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check org permission: %w", err)
	}
	return ok, nil
}
