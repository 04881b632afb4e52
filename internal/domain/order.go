package domain

import "time"

// OrderStatus enumerates fulfillment states for rental orders.
type OrderStatus string

const (
	OrderStatusPlaced              OrderStatus = "ORDER_PLACED"
	OrderStatusAwaitingPreparation OrderStatus = "AWAITING_PREPARATION"
	OrderStatusReadyForDispatch    OrderStatus = "READY_FOR_DISPATCH"
	OrderStatusDispatched          OrderStatus = "DISPATCHED"
	OrderStatusDelivered           OrderStatus = "DELIVERED"
	OrderStatusPendingPickUp       OrderStatus = "PENDING_PICK_UP"
	OrderStatusPickedUp            OrderStatus = "PICKED_UP"
	OrderStatusCustomerPickedUp    OrderStatus = "CUSTOMER_PICKED_UP"
	OrderStatusCustomerReturned    OrderStatus = "CUSTOMER_RETURNED"
	OrderStatusFinalized           OrderStatus = "FINALIZED"
	OrderStatusCancelled           OrderStatus = "ORDER_CANCELLED"
)

// Order is the aggregate for a rental order placed against a lead. The
// fulfillment path after DISPATCHED depends on HasDelivery: delivery orders
// go through driver delivery and pick up, counter orders through customer
// pick up and return.
type Order struct {
	ID          string
	Code        string
	LeadID      string
	StartDate   time.Time
	EndDate     time.Time
	HasDelivery bool
	Status      *OrderStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OrderItem is one reserved line on an order.
type OrderItem struct {
	ID           string
	OrderID      string
	ItemID       string
	Units        int
	PricePerUnit float64
	CreatedAt    time.Time
}
