package domain

import "time"

// EventStatus enumerates lifecycle states for booked events.
type EventStatus string

const (
	EventStatusBooked              EventStatus = "BOOKED"
	EventStatusOnboarding          EventStatus = "ONBOARDING"
	EventStatusAwaitingClient      EventStatus = "AWAITING_CLIENT_CONFIRMATION"
	EventStatusConfirmed           EventStatus = "CONFIRMED"
	EventStatusAwaitingStaff       EventStatus = "AWAITING_STAFF_ASSIGNMENT"
	EventStatusOnboardingCompleted EventStatus = "ONBOARDING_COMPLETED"
	EventStatusInProgress          EventStatus = "IN_PROGRESS"
	EventStatusExtended            EventStatus = "EXTENDED"
	EventStatusServiceCompleted    EventStatus = "SERVICE_COMPLETED"
	EventStatusCancelled           EventStatus = "CANCELLED"
)

// Event is the aggregate for a booked engagement (the party itself, as
// opposed to the rental order that supplies it).
type Event struct {
	ID        string
	LeadID    string
	Date      time.Time
	EndTime   time.Time
	Amount    float64
	Status    *EventStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
