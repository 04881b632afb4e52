package domain

import "time"

// EngagementState enumerates outreach cadence states for a lead.
type EngagementState string

const (
	EngagementIdle         EngagementState = "IDLE"
	EngagementFirstContact EngagementState = "FIRST_CONTACT"
	EngagementFollowUp1    EngagementState = "FOLLOW_UP_1"
	EngagementFollowUp2    EngagementState = "FOLLOW_UP_2"
	EngagementResponded    EngagementState = "RESPONDED"
	EngagementNoResponse   EngagementState = "NO_RESPONSE"
)

// Engagement tracks the outreach cadence for one lead. Created lazily on
// first access and mutated only through the engagement service.
type Engagement struct {
	ID               string
	LeadID           string
	State            EngagementState
	LastContactedAt  *time.Time
	LastRespondedAt  *time.Time
	FollowUpAttempts int
	RetryCycles      int
	PausedUntil      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
