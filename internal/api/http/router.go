package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/festivo/ops-service/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health    *handlers.HealthHandler
	Leads     *handlers.LeadsHandler
	Orders    *handlers.OrdersHandler
	Inventory *handlers.InventoryHandler
	Events    *handlers.EventsHandler
	Webhooks  *handlers.WebhooksHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	leads := app.Group("/leads")
	leads.Post("", cfg.Leads.CreateLead)
	leads.Get("/:id", cfg.Leads.GetLead)
	leads.Get("/:id/history", cfg.Leads.GetHistory)
	leads.Post("/:id/invoice", cfg.Leads.SendInvoice)
	leads.Post("/:id/archive", cfg.Leads.Archive)
	leads.Get("/:id/engagement", cfg.Leads.GetEngagement)
	leads.Get("/:id/engagement/history", cfg.Leads.GetEngagementHistory)
	leads.Post("/:id/engagement/contact", cfg.Leads.StartContact)
	leads.Post("/:id/engagement/response", cfg.Leads.RecordResponse)

	orders := app.Group("/orders")
	orders.Post("", cfg.Orders.PlaceOrder)
	orders.Get("/code/:code", cfg.Orders.GetOrderByCode)
	orders.Get("/:id", cfg.Orders.GetOrder)
	orders.Get("/:id/history", cfg.Orders.GetHistory)
	orders.Patch("/:id/status", cfg.Orders.UpdateStatus)
	orders.Post("/:id/cancel", cfg.Orders.CancelOrder)
	orders.Get("/:id/tasks", cfg.Orders.ListTasks)
	orders.Post("/:id/tasks", cfg.Orders.CreateTask)

	tasks := app.Group("/tasks")
	tasks.Post("/:id/start", cfg.Orders.StartTask)
	tasks.Post("/:id/complete", cfg.Orders.CompleteTask)
	tasks.Post("/:id/unable", cfg.Orders.MarkTaskUnable)
	tasks.Get("/:id/logs", cfg.Orders.GetTaskLogs)

	items := app.Group("/items")
	items.Post("", cfg.Inventory.CreateItem)
	items.Get("/:id", cfg.Inventory.GetItem)
	items.Get("/:id/availability", cfg.Inventory.GetAvailability)
	items.Post("/:id/purchase", cfg.Inventory.Purchase)
	items.Post("/:id/sell", cfg.Inventory.Sell)
	items.Post("/:id/decommission", cfg.Inventory.Decommission)

	events := app.Group("/events")
	events.Post("", cfg.Events.BookEvent)
	events.Get("/:id", cfg.Events.GetEvent)
	events.Get("/:id/history", cfg.Events.GetHistory)
	events.Patch("/:id/status", cfg.Events.UpdateStatus)

	webhooks := app.Group("/webhooks")
	webhooks.Post("/tracking-call", cfg.Webhooks.TrackingCall)
	webhooks.Post("/inbound-message", cfg.Webhooks.InboundMessage)
}
