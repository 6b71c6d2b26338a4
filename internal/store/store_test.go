package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/capitalize-ai/whatsapp-platform/internal/model"
)

// fakeRow satisfies pgx.Row with a programmable scan.
type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error {
	return r.scan(dest...)
}

func noRows(dest ...any) error {
	return pgx.ErrNoRows
}

type execCall struct {
	sql  string
	args []any
}

// fakeDBTX serves queued responses in call order.
type fakeDBTX struct {
	t *testing.T

	rows []fakeRow
	tags []pgconn.CommandTag
	errs []error

	execs  []execCall
	qrSQL  []string
	qrArgs [][]any
}

func (f *fakeDBTX) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	var tag pgconn.CommandTag
	if len(f.tags) > 0 {
		tag = f.tags[0]
		f.tags = f.tags[1:]
	}
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	return tag, err
}

func (f *fakeDBTX) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("unexpected Query")
}

func (f *fakeDBTX) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.qrSQL = append(f.qrSQL, sql)
	f.qrArgs = append(f.qrArgs, args)
	if len(f.rows) == 0 {
		f.t.Fatalf("unexpected QueryRow: %s", sql)
	}
	row := f.rows[0]
	f.rows = f.rows[1:]
	return row
}

func tag(s string) pgconn.CommandTag {
	return pgconn.NewCommandTag(s)
}

func uniqueViolation() error {
	return &pgconn.PgError{Code: "23505"}
}

// conversationRow builds a fakeRow yielding the given conversation.
func conversationRow(c model.Conversation) fakeRow {
	return fakeRow{scan: func(dest ...any) error {
		*dest[0].(*string) = c.ID
		*dest[1].(*string) = c.ContactID
		*dest[2].(*model.ConversationStatus) = c.Status
		*dest[3].(*model.ConversationMode) = c.Mode
		*dest[4].(*bool) = c.Opened
		*dest[5].(*time.Time) = c.CreatedAt
		return nil
	}}
}

// contactRow builds a fakeRow yielding the given contact.
func contactRow(c model.Contact) fakeRow {
	return fakeRow{scan: func(dest ...any) error {
		*dest[0].(*string) = c.ID
		*dest[1].(*string) = c.Name
		*dest[2].(*string) = c.PhoneNumber
		*dest[3].(*string) = c.OrganizationID
		*dest[4].(*string) = c.ChatStatus
		*dest[5].(*string) = c.ThreadID
		*dest[6].(*time.Time) = c.CreatedAt
		return nil
	}}
}

func boolRow(v bool) fakeRow {
	return fakeRow{scan: func(dest ...any) error {
		*dest[0].(*bool) = v
		return nil
	}}
}

func stringRow(v string) fakeRow {
	return fakeRow{scan: func(dest ...any) error {
		*dest[0].(*string) = v
		return nil
	}}
}

// fakeChecker satisfies rbac.Checker.
type fakeChecker struct {
	member bool
	admin  bool
	perms  map[string]bool
}

func (f *fakeChecker) IsOrgMember(ctx context.Context, orgID, userID string) (bool, error) {
	return f.member, nil
}

func (f *fakeChecker) IsOrgAdmin(ctx context.Context, orgID, userID string) (bool, error) {
	return f.admin, nil
}

func (f *fakeChecker) HasOrgPermission(ctx context.Context, orgID, userID, permission string) (bool, error) {
	return f.perms[permission], nil
}
