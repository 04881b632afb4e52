package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/festivo/ops-service/internal/api/dto"
	"github.com/festivo/ops-service/internal/domain"
	"github.com/festivo/ops-service/internal/lifecycle"
	"github.com/festivo/ops-service/internal/service"
	apperrors "github.com/festivo/ops-service/pkg/util"
)

// LeadsHandler manages lead intake and lifecycle endpoints.
type LeadsHandler struct {
	leads       *service.LeadService
	engagements *service.EngagementService
}

// NewLeadsHandler constructs handler.
func NewLeadsHandler(leads *service.LeadService, engagements *service.EngagementService) *LeadsHandler {
	return &LeadsHandler{leads: leads, engagements: engagements}
}

// CreateLead POST /leads.
func (h *LeadsHandler) CreateLead(c *fiber.Ctx) error {
	var req dto.CreateLeadRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.PhoneNumber) == "" {
		return apperrors.NewValidationError("phone_number required", nil)
	}
	lead, err := h.leads.CreateFromForm(c.Context(), service.LeadIntakeInput{
		FullName:    req.FullName,
		PhoneNumber: req.PhoneNumber,
		Email:       req.Email,
		Message:     req.Message,
		Marketing:   req.Marketing,
		ExternalID:  req.ExternalID,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": leadSummary(lead)})
}

// GetLead GET /leads/:id.
func (h *LeadsHandler) GetLead(c *fiber.Ctx) error {
	lead, err := h.leads.Get(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": leadSummary(lead)})
}

// GetHistory GET /leads/:id/history.
func (h *LeadsHandler) GetHistory(c *fiber.Ctx) error {
	recs, err := h.leads.StatusHistory(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": leadHistory(recs)})
}

// SendInvoice POST /leads/:id/invoice.
func (h *LeadsHandler) SendInvoice(c *fiber.Ctx) error {
	if err := h.leads.SendInvoice(c.Context(), c.Params("id"), actorFromHeader(c)); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"status": string(domain.LeadStatusInvoiceSent)}})
}

// Archive POST /leads/:id/archive.
func (h *LeadsHandler) Archive(c *fiber.Ctx) error {
	if err := h.leads.ArchiveLead(c.Context(), c.Params("id"), "manual_archive"); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"status": string(domain.LeadStatusArchived)}})
}

// GetEngagement GET /leads/:id/engagement.
func (h *LeadsHandler) GetEngagement(c *fiber.Ctx) error {
	eng, err := h.engagements.Get(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": engagementSummary(eng)})
}

// GetEngagementHistory GET /leads/:id/engagement/history.
func (h *LeadsHandler) GetEngagementHistory(c *fiber.Ctx) error {
	recs, err := h.engagements.History(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	entries := make([]dto.HistoryEntry, 0, len(recs))
	for _, rec := range recs {
		entries = append(entries, historyEntry(string(rec.State), rec.Actor, rec.Cause, rec.Meta, rec.CreatedAt))
	}
	return c.JSON(fiber.Map{"data": entries})
}

// StartContact POST /leads/:id/engagement/contact.
func (h *LeadsHandler) StartContact(c *fiber.Ctx) error {
	if err := h.engagements.StartContact(c.Context(), c.Params("id"), "manual"); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"state": string(domain.EngagementFirstContact)}})
}

// RecordResponse POST /leads/:id/engagement/response.
func (h *LeadsHandler) RecordResponse(c *fiber.Ctx) error {
	if err := h.engagements.RecordResponse(c.Context(), c.Params("id"), "manual"); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"state": string(domain.EngagementResponded)}})
}

func leadSummary(lead *domain.Lead) dto.LeadSummary {
	var status *string
	if lead.Status != nil {
		s := string(*lead.Status)
		status = &s
	}
	return dto.LeadSummary{
		ID:          lead.ID,
		FullName:    lead.FullName,
		PhoneNumber: lead.PhoneNumber,
		Email:       lead.Email,
		Message:     lead.Message,
		Origin:      string(lead.Origin),
		Status:      status,
		Marketing:   lead.Marketing,
		CreatedAt:   lead.CreatedAt,
	}
}

func engagementSummary(eng *domain.Engagement) dto.EngagementSummary {
	return dto.EngagementSummary{
		LeadID:           eng.LeadID,
		State:            string(eng.State),
		FollowUpAttempts: eng.FollowUpAttempts,
		RetryCycles:      eng.RetryCycles,
		LastContactedAt:  eng.LastContactedAt,
		LastRespondedAt:  eng.LastRespondedAt,
		PausedUntil:      eng.PausedUntil,
	}
}

func leadHistory(recs []lifecycle.Record[domain.LeadStatus]) []dto.HistoryEntry {
	entries := make([]dto.HistoryEntry, 0, len(recs))
	for _, rec := range recs {
		entries = append(entries, historyEntry(string(rec.State), rec.Actor, rec.Cause, rec.Meta, rec.CreatedAt))
	}
	return entries
}
