package model

import (
	"time"
)

// Contact represents a WhatsApp messaging identity scoped to one organization.
// (phone_number, organization_id) is unique.
type Contact struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	PhoneNumber    string    `json:"phone_number"`
	OrganizationID string    `json:"organization_id"`
	ChatStatus     string    `json:"chat_status,omitempty"`
	ThreadID       string    `json:"thread_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Organization is the tenant owning contacts and conversations. PhoneID is
// the messaging provider's phone-number-id used to route inbound webhooks.
type Organization struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	PhoneID string `json:"phone_id"`
	Status  string `json:"status"`
}
