package domain

import "time"

// OrderTaskStatus enumerates assignment states for warehouse tasks.
type OrderTaskStatus string

const (
	TaskStatusAssigned   OrderTaskStatus = "ASSIGNED"
	TaskStatusInProgress OrderTaskStatus = "IN_PROGRESS"
	TaskStatusCompleted  OrderTaskStatus = "COMPLETED"
	TaskStatusUnable     OrderTaskStatus = "UNABLE_TO_COMPLETE"
)

// OrderTaskKind identifies the work a task represents.
type OrderTaskKind string

const (
	TaskLoadOrderItems   OrderTaskKind = "LOAD_ORDER_ITEMS"
	TaskUnloadOrderItems OrderTaskKind = "UNLOAD_ORDER_ITEMS"
)

// OrderTask is a unit of warehouse work attached to an order. Tasks carry no
// status pointer: the current status is derived from the newest
// order_task_logs row for the task.
type OrderTask struct {
	ID         string
	OrderID    string
	Kind       OrderTaskKind
	AssigneeID *string
	CreatedAt  time.Time
}
