package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/festivo/ops-service/internal/api/dto"
)

// actorFromHeader reads the acting operator from X-Actor-Id. Identity is
// not enforced here; the header only attributes history records.
func actorFromHeader(c *fiber.Ctx) *string {
	actor := c.Get("X-Actor-Id")
	if actor == "" {
		return nil
	}
	return &actor
}

func historyEntry(state string, actor *string, cause string, meta map[string]any, createdAt time.Time) dto.HistoryEntry {
	return dto.HistoryEntry{
		State:     state,
		Actor:     actor,
		Cause:     cause,
		Meta:      meta,
		CreatedAt: createdAt,
	}
}
