package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/festivo/ops-service/internal/api/dto"
	"github.com/festivo/ops-service/internal/domain"
	"github.com/festivo/ops-service/internal/service"
	apperrors "github.com/festivo/ops-service/pkg/util"
)

// EventsHandler manages booked event endpoints.
type EventsHandler struct {
	events *service.EventService
}

// NewEventsHandler constructs handler.
func NewEventsHandler(events *service.EventService) *EventsHandler {
	return &EventsHandler{events: events}
}

// BookEvent POST /events.
func (h *EventsHandler) BookEvent(c *fiber.Ctx) error {
	var req dto.BookEventRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.LeadID == "" {
		return apperrors.NewValidationError("lead_id required", nil)
	}
	ev, err := h.events.Book(c.Context(), service.BookEventInput{
		LeadID:  req.LeadID,
		Date:    req.Date,
		EndTime: req.EndTime,
		Amount:  req.Amount,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": eventSummary(ev)})
}

// GetEvent GET /events/:id.
func (h *EventsHandler) GetEvent(c *fiber.Ctx) error {
	ev, err := h.events.Get(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": eventSummary(ev)})
}

// GetHistory GET /events/:id/history.
func (h *EventsHandler) GetHistory(c *fiber.Ctx) error {
	recs, err := h.events.StatusHistory(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	entries := make([]dto.HistoryEntry, 0, len(recs))
	for _, rec := range recs {
		entries = append(entries, historyEntry(string(rec.State), rec.Actor, rec.Cause, rec.Meta, rec.CreatedAt))
	}
	return c.JSON(fiber.Map{"data": entries})
}

// UpdateStatus PATCH /events/:id/status.
func (h *EventsHandler) UpdateStatus(c *fiber.Ctx) error {
	var req dto.UpdateEventStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Status == "" {
		return apperrors.NewValidationError("status required", nil)
	}
	target := domain.EventStatus(req.Status)
	var err error
	if target == domain.EventStatusCancelled {
		err = h.events.Cancel(c.Context(), c.Params("id"), req.Actor, req.Reason)
	} else {
		err = h.events.Transition(c.Context(), c.Params("id"), target, req.Actor)
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"status": req.Status}})
}

func eventSummary(ev *domain.Event) dto.EventSummary {
	var status *string
	if ev.Status != nil {
		s := string(*ev.Status)
		status = &s
	}
	return dto.EventSummary{
		ID:        ev.ID,
		LeadID:    ev.LeadID,
		Date:      ev.Date,
		EndTime:   ev.EndTime,
		Amount:    ev.Amount,
		Status:    status,
		CreatedAt: ev.CreatedAt,
	}
}
