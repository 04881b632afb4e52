package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/festivo/ops-service/internal/api/dto"
	"github.com/festivo/ops-service/internal/domain"
	"github.com/festivo/ops-service/internal/service"
	apperrors "github.com/festivo/ops-service/pkg/util"
)

// OrdersHandler manages rental order and warehouse task endpoints.
type OrdersHandler struct {
	orders *service.OrderService
	tasks  *service.OrderTaskService
}

// NewOrdersHandler constructs handler.
func NewOrdersHandler(orders *service.OrderService, tasks *service.OrderTaskService) *OrdersHandler {
	return &OrdersHandler{orders: orders, tasks: tasks}
}

// PlaceOrder POST /orders.
func (h *OrdersHandler) PlaceOrder(c *fiber.Ctx) error {
	var req dto.PlaceOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.LeadID == "" || len(req.Lines) == 0 {
		return apperrors.NewValidationError("lead_id and lines required", nil)
	}
	lines := make([]service.OrderLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, service.OrderLine{ItemID: line.ItemID, Units: line.Units})
	}
	order, err := h.orders.PlaceOrder(c.Context(), service.PlaceOrderInput{
		LeadID:      req.LeadID,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		HasDelivery: req.HasDelivery,
		Lines:       lines,
	})
	if err != nil {
		return err
	}
	items, err := h.orders.Items(c.Context(), order.ID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": orderSummary(order, items)})
}

// GetOrder GET /orders/:id.
func (h *OrdersHandler) GetOrder(c *fiber.Ctx) error {
	order, err := h.orders.Get(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	items, err := h.orders.Items(c.Context(), order.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": orderSummary(order, items)})
}

// GetOrderByCode GET /orders/code/:code. The code is the human-facing
// reference printed on confirmations, so operators look orders up by it.
func (h *OrdersHandler) GetOrderByCode(c *fiber.Ctx) error {
	order, err := h.orders.GetByCode(c.Context(), c.Params("code"))
	if err != nil {
		return err
	}
	items, err := h.orders.Items(c.Context(), order.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": orderSummary(order, items)})
}

// GetHistory GET /orders/:id/history.
func (h *OrdersHandler) GetHistory(c *fiber.Ctx) error {
	recs, err := h.orders.StatusHistory(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	entries := make([]dto.HistoryEntry, 0, len(recs))
	for _, rec := range recs {
		entries = append(entries, historyEntry(string(rec.State), rec.Actor, rec.Cause, rec.Meta, rec.CreatedAt))
	}
	return c.JSON(fiber.Map{"data": entries})
}

// UpdateStatus PATCH /orders/:id/status.
func (h *OrdersHandler) UpdateStatus(c *fiber.Ctx) error {
	var req dto.UpdateOrderStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Status == "" {
		return apperrors.NewValidationError("status required", nil)
	}
	if err := h.orders.Transition(c.Context(), c.Params("id"), domain.OrderStatus(req.Status), req.Actor); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"status": req.Status}})
}

// CancelOrder POST /orders/:id/cancel.
func (h *OrdersHandler) CancelOrder(c *fiber.Ctx) error {
	var req dto.CancelOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.orders.Cancel(c.Context(), c.Params("id"), req.Actor, req.Reason); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"status": string(domain.OrderStatusCancelled)}})
}

// ListTasks GET /orders/:id/tasks.
func (h *OrdersHandler) ListTasks(c *fiber.Ctx) error {
	tasks, err := h.tasks.ListByOrder(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.TaskSummary, 0, len(tasks))
	for i := range tasks {
		summary, err := h.taskSummary(c, &tasks[i])
		if err != nil {
			return err
		}
		items = append(items, summary)
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreateTask POST /orders/:id/tasks.
func (h *OrdersHandler) CreateTask(c *fiber.Ctx) error {
	var req dto.CreateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	kind := domain.OrderTaskKind(req.Kind)
	if kind != domain.TaskLoadOrderItems && kind != domain.TaskUnloadOrderItems {
		return apperrors.NewValidationError("unknown task kind", map[string]any{"kind": req.Kind})
	}
	task, err := h.tasks.CreateTask(c.Context(), c.Params("id"), kind, req.AssigneeID)
	if err != nil {
		return err
	}
	summary, err := h.taskSummary(c, task)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": summary})
}

// StartTask POST /tasks/:id/start.
func (h *OrdersHandler) StartTask(c *fiber.Ctx) error {
	var req dto.TaskActionRequest
	_ = c.BodyParser(&req)
	if err := h.tasks.Start(c.Context(), c.Params("id"), req.Actor); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"status": string(domain.TaskStatusInProgress)}})
}

// CompleteTask POST /tasks/:id/complete.
func (h *OrdersHandler) CompleteTask(c *fiber.Ctx) error {
	var req dto.TaskActionRequest
	_ = c.BodyParser(&req)
	if err := h.tasks.Complete(c.Context(), c.Params("id"), req.Actor); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"status": string(domain.TaskStatusCompleted)}})
}

// MarkTaskUnable POST /tasks/:id/unable.
func (h *OrdersHandler) MarkTaskUnable(c *fiber.Ctx) error {
	var req dto.TaskActionRequest
	_ = c.BodyParser(&req)
	if err := h.tasks.MarkUnable(c.Context(), c.Params("id"), req.Actor, req.Reason); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"status": string(domain.TaskStatusUnable)}})
}

// GetTaskLogs GET /tasks/:id/logs.
func (h *OrdersHandler) GetTaskLogs(c *fiber.Ctx) error {
	logs, err := h.tasks.Logs(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	entries := make([]dto.HistoryEntry, 0, len(logs))
	for _, rec := range logs {
		entries = append(entries, historyEntry(string(rec.State), rec.Actor, rec.Cause, rec.Meta, rec.CreatedAt))
	}
	return c.JSON(fiber.Map{"data": entries})
}

func (h *OrdersHandler) taskSummary(c *fiber.Ctx, task *domain.OrderTask) (dto.TaskSummary, error) {
	status, ok, err := h.tasks.CurrentStatus(c.Context(), task.ID)
	if err != nil {
		return dto.TaskSummary{}, err
	}
	summary := dto.TaskSummary{
		ID:         task.ID,
		OrderID:    task.OrderID,
		Kind:       string(task.Kind),
		AssigneeID: task.AssigneeID,
		CreatedAt:  task.CreatedAt,
	}
	if ok {
		summary.Status = string(status)
	}
	return summary, nil
}

func orderSummary(order *domain.Order, items []domain.OrderItem) dto.OrderSummary {
	var status *string
	if order.Status != nil {
		s := string(*order.Status)
		status = &s
	}
	lines := make([]dto.OrderItemSummary, 0, len(items))
	for _, item := range items {
		lines = append(lines, dto.OrderItemSummary{
			ItemID:       item.ItemID,
			Units:        item.Units,
			PricePerUnit: item.PricePerUnit,
		})
	}
	return dto.OrderSummary{
		ID:          order.ID,
		Code:        order.Code,
		LeadID:      order.LeadID,
		StartDate:   order.StartDate,
		EndDate:     order.EndDate,
		HasDelivery: order.HasDelivery,
		Status:      status,
		Items:       lines,
		CreatedAt:   order.CreatedAt,
	}
}
