package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/festivo/ops-service/internal/api/dto"
	"github.com/festivo/ops-service/internal/service"
	apperrors "github.com/festivo/ops-service/pkg/util"
)

// WebhooksHandler receives inbound provider callbacks: tracking calls that
// become leads and inbound text messages that feed the engagement loop.
type WebhooksHandler struct {
	leads       *service.LeadService
	engagements *service.EngagementService
	logger      *zap.Logger
}

// NewWebhooksHandler constructs handler.
func NewWebhooksHandler(leads *service.LeadService, engagements *service.EngagementService, logger *zap.Logger) *WebhooksHandler {
	return &WebhooksHandler{leads: leads, engagements: engagements, logger: logger}
}

// TrackingCall POST /webhooks/tracking-call.
func (h *WebhooksHandler) TrackingCall(c *fiber.Ctx) error {
	var req dto.TrackingCallRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.PhoneNumber) == "" {
		return apperrors.NewValidationError("phone_number required", nil)
	}
	lead, err := h.leads.CreateFromTrackingCall(c.Context(), service.LeadIntakeInput{
		FullName:      req.CallerName,
		PhoneNumber:   req.PhoneNumber,
		Marketing:     req.Marketing,
		ExternalID:    req.ExternalID,
		CallAssetCall: req.CallAsset,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": leadSummary(lead)})
}

// InboundMessage POST /webhooks/inbound-message. Providers redeliver on
// slow responses, so the message id deduplicates and unknown senders are
// acknowledged rather than errored.
func (h *WebhooksHandler) InboundMessage(c *fiber.Ctx) error {
	var req dto.InboundMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.PhoneNumber) == "" {
		return apperrors.NewValidationError("phone_number required", nil)
	}

	lead, err := h.leads.GetByPhone(c.Context(), req.PhoneNumber)
	if err != nil {
		var domainErr *apperrors.DomainError
		if errors.As(err, &domainErr) && domainErr.Code == "NOT_FOUND" {
			h.logger.Info("inbound message from unknown number", zap.String("phone_number", req.PhoneNumber))
			return c.JSON(fiber.Map{"data": fiber.Map{"handled": false}})
		}
		return err
	}

	if err := h.engagements.RecordInbound(c.Context(), lead.ID, req.MessageID, "inbound_message"); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"handled": true}})
}
