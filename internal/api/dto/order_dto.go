package dto

import "time"

// PlaceOrderRequest creates a rental order.
type PlaceOrderRequest struct {
	LeadID      string           `json:"lead_id"`
	StartDate   time.Time        `json:"start_date"`
	EndDate     time.Time        `json:"end_date"`
	HasDelivery bool             `json:"has_delivery"`
	Lines       []OrderLineInput `json:"lines"`
}

// OrderLineInput is one requested item.
type OrderLineInput struct {
	ItemID string `json:"item_id"`
	Units  int    `json:"units"`
}

// UpdateOrderStatusRequest moves an order along its flow.
type UpdateOrderStatusRequest struct {
	Status string  `json:"status"`
	Actor  *string `json:"actor"`
}

// CancelOrderRequest aborts an order.
type CancelOrderRequest struct {
	Actor  *string `json:"actor"`
	Reason string  `json:"reason"`
}

// OrderSummary is the order representation returned by the API.
type OrderSummary struct {
	ID          string             `json:"id"`
	Code        string             `json:"code"`
	LeadID      string             `json:"lead_id"`
	StartDate   time.Time          `json:"start_date"`
	EndDate     time.Time          `json:"end_date"`
	HasDelivery bool               `json:"has_delivery"`
	Status      *string            `json:"status"`
	Items       []OrderItemSummary `json:"items,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// OrderItemSummary is one order line.
type OrderItemSummary struct {
	ItemID       string  `json:"item_id"`
	Units        int     `json:"units"`
	PricePerUnit float64 `json:"price_per_unit"`
}

// TaskSummary is the warehouse task representation returned by the API.
type TaskSummary struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"order_id"`
	Kind       string    `json:"kind"`
	Status     string    `json:"status,omitempty"`
	AssigneeID *string   `json:"assignee_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TaskActionRequest carries the acting user for a task transition.
type TaskActionRequest struct {
	Actor  *string `json:"actor"`
	Reason string  `json:"reason,omitempty"`
}

// CreateTaskRequest opens a warehouse task for an order.
type CreateTaskRequest struct {
	Kind       string  `json:"kind"`
	AssigneeID *string `json:"assignee_id"`
}
