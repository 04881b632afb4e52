package events

import (
	"time"

	"github.com/festivo/ops-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventLeadCreated          EventType = "lead_created"
	EventLeadStatusChanged    EventType = "lead_status_changed"
	EventOrderStatusChanged   EventType = "order_status_changed"
	EventTaskStatusChanged    EventType = "task_status_changed"
	EventBookingStatusChanged EventType = "booking_status_changed"
	EventEngagementAdvanced   EventType = "engagement_advanced"
	EventInventoryReserved    EventType = "inventory_reserved"
	EventInventoryReleased    EventType = "inventory_released"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Source string  `json:"source"`
	UserID *string `json:"user_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	EntityID  string      `json:"entity_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// LeadCreatedPayload payload.
type LeadCreatedPayload struct {
	FullName    string            `json:"full_name"`
	PhoneNumber string            `json:"phone_number"`
	Origin      domain.LeadOrigin `json:"origin"`
}

// StatusChangedPayload payload shared by lead, order, task and booking
// status events.
type StatusChangedPayload struct {
	OldStatus string `json:"old_status,omitempty"`
	NewStatus string `json:"new_status"`
	Cause     string `json:"cause,omitempty"`
}

// EngagementAdvancedPayload payload.
type EngagementAdvancedPayload struct {
	FromState        domain.EngagementState `json:"from_state"`
	ToState          domain.EngagementState `json:"to_state"`
	FollowUpAttempts int                    `json:"follow_up_attempts"`
	RetryCycles      int                    `json:"retry_cycles"`
	TriggeredBy      string                 `json:"triggered_by"`
}

// InventoryPayload payload for reservation and release events.
type InventoryPayload struct {
	ItemID     string            `json:"item_id"`
	OrderID    *string           `json:"order_id,omitempty"`
	Kind       domain.LedgerKind `json:"kind"`
	Quantity   int               `json:"quantity"`
	TargetDate time.Time         `json:"target_date"`
}
