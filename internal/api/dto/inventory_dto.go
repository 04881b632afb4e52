package dto

import "time"

// CreateItemRequest registers a rentable item.
type CreateItemRequest struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// ItemSummary is the item representation returned by the API.
type ItemSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// LedgerMutationRequest appends a purchase, sale or decommission entry.
type LedgerMutationRequest struct {
	Quantity   int       `json:"quantity"`
	TargetDate time.Time `json:"target_date"`
	OrderID    *string   `json:"order_id"`
}

// AvailabilityResponse reports availability for a date or range.
type AvailabilityResponse struct {
	ItemID    string     `json:"item_id"`
	Available int        `json:"available"`
	Date      *time.Time `json:"date,omitempty"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

// LedgerEntrySummary is one appended ledger row.
type LedgerEntrySummary struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Quantity   int       `json:"quantity"`
	OrderID    *string   `json:"order_id,omitempty"`
	TargetDate time.Time `json:"target_date"`
	CreatedAt  time.Time `json:"created_at"`
}
