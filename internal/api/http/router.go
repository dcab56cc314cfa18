package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/helpdesk-kit/ticket-service/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health    *handlers.HealthHandler
	Tickets   *handlers.TicketsHandler
	Directory *handlers.DirectoryHandler
	Email     *handlers.EmailHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/", cfg.Health.Root)
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	tickets := app.Group("/api/v1/tickets")
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/test-email", cfg.Email.TestEmail)
	tickets.Post("/create_user", cfg.Directory.CreateUser)
	tickets.Post("/create_operator", cfg.Directory.CreateOperator)
	tickets.Post("/create_ticket", cfg.Tickets.CreateTicket)
	tickets.Patch("/assign/:ticket_id/:operator_id", cfg.Tickets.Assign)
	tickets.Patch("/update-status/:ticket_id", cfg.Tickets.UpdateStatus)
	tickets.Put("/tickets/:ticket_id/close", cfg.Tickets.Close)
	tickets.Get("/tickets/:ticket_id", cfg.Tickets.GetTicket)
	tickets.Get("/tickets/:ticket_id/history", cfg.Tickets.History)
}
