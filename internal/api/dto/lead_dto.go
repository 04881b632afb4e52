package dto

import "time"

// CreateLeadRequest is the website form intake payload.
type CreateLeadRequest struct {
	FullName    string            `json:"full_name"`
	PhoneNumber string            `json:"phone_number"`
	Email       string            `json:"email"`
	Message     string            `json:"message"`
	Marketing   map[string]string `json:"marketing"`
	ExternalID  *string           `json:"external_id"`
}

// TrackingCallRequest is the phone tracking provider's webhook payload.
type TrackingCallRequest struct {
	CallerName  string            `json:"caller_name"`
	PhoneNumber string            `json:"phone_number"`
	Marketing   map[string]string `json:"marketing"`
	ExternalID  *string           `json:"external_id"`
	CallAsset   bool              `json:"call_asset"`
}

// InboundMessageRequest is the messaging provider's inbound webhook
// payload.
type InboundMessageRequest struct {
	MessageID   string `json:"message_id"`
	PhoneNumber string `json:"phone_number"`
	Body        string `json:"body"`
}

// LeadSummary is the lead representation returned by the API.
type LeadSummary struct {
	ID          string            `json:"id"`
	FullName    string            `json:"full_name"`
	PhoneNumber string            `json:"phone_number"`
	Email       string            `json:"email,omitempty"`
	Message     string            `json:"message,omitempty"`
	Origin      string            `json:"origin"`
	Status      *string           `json:"status"`
	Marketing   map[string]string `json:"marketing,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// EngagementSummary is the outreach loop representation returned by the
// API.
type EngagementSummary struct {
	LeadID           string     `json:"lead_id"`
	State            string     `json:"state"`
	FollowUpAttempts int        `json:"follow_up_attempts"`
	RetryCycles      int        `json:"retry_cycles"`
	LastContactedAt  *time.Time `json:"last_contacted_at,omitempty"`
	LastRespondedAt  *time.Time `json:"last_responded_at,omitempty"`
	PausedUntil      *time.Time `json:"paused_until,omitempty"`
}

// HistoryEntry is one state change record.
type HistoryEntry struct {
	State     string         `json:"state"`
	Actor     *string        `json:"actor,omitempty"`
	Cause     string         `json:"cause,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
