package dto

import "time"

// BookEventRequest books an event for a lead.
type BookEventRequest struct {
	LeadID  string    `json:"lead_id"`
	Date    time.Time `json:"date"`
	EndTime time.Time `json:"end_time"`
	Amount  float64   `json:"amount"`
}

// UpdateEventStatusRequest moves an event along its graph.
type UpdateEventStatusRequest struct {
	Status string  `json:"status"`
	Actor  *string `json:"actor"`
	Reason string  `json:"reason,omitempty"`
}

// EventSummary is the event representation returned by the API.
type EventSummary struct {
	ID        string    `json:"id"`
	LeadID    string    `json:"lead_id"`
	Date      time.Time `json:"date"`
	EndTime   time.Time `json:"end_time"`
	Amount    float64   `json:"amount"`
	Status    *string   `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
