package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/whatsapp-platform/internal/model"
)

func organizationRow(o model.Organization) fakeRow {
	return fakeRow{scan: func(dest ...any) error {
		*dest[0].(*string) = o.ID
		*dest[1].(*string) = o.Name
		*dest[2].(*string) = o.PhoneID
		*dest[3].(*string) = o.Status
		return nil
	}}
}

func TestGetByPhoneID(t *testing.T) {
	db := &fakeDBTX{t: t, rows: []fakeRow{organizationRow(model.Organization{
		ID: "org-1", Name: "Acme", PhoneID: "phone-1", Status: "active",
	})}}
	s := NewOrganizations(db)

	org, err := s.GetByPhoneID(context.Background(), "phone-1")
	require.NoError(t, err)
	assert.Equal(t, "org-1", org.ID)
	require.Len(t, db.qrArgs, 1)
	assert.Equal(t, []any{"phone-1"}, db.qrArgs[0])
}

func TestGetByPhoneIDUnknown(t *testing.T) {
	db := &fakeDBTX{t: t, rows: []fakeRow{{scan: noRows}}}
	s := NewOrganizations(db)

	_, err := s.GetByPhoneID(context.Background(), "phone-x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOperatorPhone(t *testing.T) {
	db := &fakeDBTX{t: t, rows: []fakeRow{stringRow("+628777")}}
	s := NewOrganizations(db)

	phone, err := s.OperatorPhone(context.Background(), "org-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "+628777", phone)
}
