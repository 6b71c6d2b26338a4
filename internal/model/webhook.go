package model

// Inbound webhook envelope from the messaging provider:
// entries -> changes -> value -> {messages, statuses, contacts, metadata}.

// WebhookPayload is the top-level webhook request body.
type WebhookPayload struct {
	Object  string         `json:"object"`
	Entries []WebhookEntry `json:"entry"`
}

// WebhookEntry is one account-level entry in a webhook delivery.
type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

// WebhookChange wraps a single value change notification.
type WebhookChange struct {
	Value WebhookValue `json:"value"`
	Field string       `json:"field"`
}

// WebhookValue carries the actual inbound units.
type WebhookValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         WebhookMetadata   `json:"metadata"`
	Contacts         []InboundContact  `json:"contacts,omitempty"`
	Messages         []InboundMessage  `json:"messages,omitempty"`
	Statuses         []DeliveryStatus  `json:"statuses,omitempty"`
}

// WebhookMetadata identifies the receiving business phone number.
type WebhookMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// InboundContact is the sender profile attached to a delivery.
type InboundContact struct {
	WaID    string         `json:"wa_id,omitempty"`
	Profile InboundProfile `json:"profile"`
}

// InboundProfile holds the sender's display name.
type InboundProfile struct {
	Name string `json:"name"`
}

// InboundMessage is one inbound unit. Timestamp is the provider's unix
// seconds value, delivered as a string.
type InboundMessage struct {
	From      string        `json:"from"`
	ID        string        `json:"id"`
	Timestamp string        `json:"timestamp"`
	Type      string        `json:"type"`
	Text      *InboundText  `json:"text,omitempty"`
	Image     *InboundImage `json:"image,omitempty"`
}

// InboundText is the body of a text unit.
type InboundText struct {
	Body string `json:"body"`
}

// InboundImage references provider-hosted media.
type InboundImage struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	Caption  string `json:"caption,omitempty"`
}

// DeliveryStatus is an outbound message status notification.
type DeliveryStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

// WebhookResult is the acknowledgement body embedded in the always-200
// webhook response.
type WebhookResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
