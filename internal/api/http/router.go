package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/mini-inbox/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health  *handlers.HealthHandler
	Tickets *handlers.TicketsHandler
	Metrics *handlers.MetricsHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Get("/tickets", cfg.Tickets.ListTickets)
	app.Patch("/tickets/:id", cfg.Tickets.UpdateTicket)

	app.Get("/metrics", cfg.Metrics.GetMetrics)
}
