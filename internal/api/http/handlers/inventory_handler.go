package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/festivo/ops-service/internal/api/dto"
	"github.com/festivo/ops-service/internal/domain"
	"github.com/festivo/ops-service/internal/service"
	apperrors "github.com/festivo/ops-service/pkg/util"
)

// InventoryHandler manages item and ledger endpoints.
type InventoryHandler struct {
	inventory *service.InventoryService
}

// NewInventoryHandler constructs handler.
func NewInventoryHandler(inventory *service.InventoryService) *InventoryHandler {
	return &InventoryHandler{inventory: inventory}
}

// CreateItem POST /items.
func (h *InventoryHandler) CreateItem(c *fiber.Ctx) error {
	var req dto.CreateItemRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Name == "" {
		return apperrors.NewValidationError("name required", nil)
	}
	item, err := h.inventory.CreateItem(c.Context(), req.Name, req.Price)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": itemSummary(item)})
}

// GetItem GET /items/:id.
func (h *InventoryHandler) GetItem(c *fiber.Ctx) error {
	item, err := h.inventory.GetItem(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": itemSummary(item)})
}

// GetAvailability GET /items/:id/availability?date=...  or ?start=...&end=...
func (h *InventoryHandler) GetAvailability(c *fiber.Ctx) error {
	itemID := c.Params("id")

	if dateStr := c.Query("date"); dateStr != "" {
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return apperrors.NewValidationError("invalid date, expected YYYY-MM-DD", nil)
		}
		available, err := h.inventory.AvailableOnDate(c.Context(), itemID, date)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"data": dto.AvailabilityResponse{ItemID: itemID, Available: available, Date: &date}})
	}

	startStr, endStr := c.Query("start"), c.Query("end")
	if startStr == "" || endStr == "" {
		return apperrors.NewValidationError("date or start and end required", nil)
	}
	start, err := time.Parse("2006-01-02", startStr)
	if err != nil {
		return apperrors.NewValidationError("invalid start, expected YYYY-MM-DD", nil)
	}
	end, err := time.Parse("2006-01-02", endStr)
	if err != nil {
		return apperrors.NewValidationError("invalid end, expected YYYY-MM-DD", nil)
	}
	available, err := h.inventory.AvailableForRange(c.Context(), itemID, start, end)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AvailabilityResponse{
		ItemID:    itemID,
		Available: available,
		StartDate: &start,
		EndDate:   &end,
	}})
}

// Purchase POST /items/:id/purchase.
func (h *InventoryHandler) Purchase(c *fiber.Ctx) error {
	return h.mutate(c, func(req dto.LedgerMutationRequest) error {
		return h.inventory.Purchase(c.Context(), c.Params("id"), req.Quantity, req.TargetDate)
	})
}

// Sell POST /items/:id/sell.
func (h *InventoryHandler) Sell(c *fiber.Ctx) error {
	return h.mutate(c, func(req dto.LedgerMutationRequest) error {
		return h.inventory.Sell(c.Context(), c.Params("id"), req.OrderID, req.Quantity, req.TargetDate)
	})
}

// Decommission POST /items/:id/decommission.
func (h *InventoryHandler) Decommission(c *fiber.Ctx) error {
	return h.mutate(c, func(req dto.LedgerMutationRequest) error {
		return h.inventory.Decommission(c.Context(), c.Params("id"), req.Quantity, req.TargetDate)
	})
}

func (h *InventoryHandler) mutate(c *fiber.Ctx, apply func(dto.LedgerMutationRequest) error) error {
	var req dto.LedgerMutationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Quantity <= 0 {
		return apperrors.NewValidationError("quantity must be positive", nil)
	}
	if req.TargetDate.IsZero() {
		req.TargetDate = time.Now().UTC()
	}
	if err := apply(req); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": fiber.Map{"appended": true}})
}

func itemSummary(item *domain.Item) dto.ItemSummary {
	return dto.ItemSummary{
		ID:        item.ID,
		Name:      item.Name,
		Price:     item.Price,
		CreatedAt: item.CreatedAt,
	}
}
