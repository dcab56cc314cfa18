package handlers

import (
	"context"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/helpdesk-kit/ticket-service/internal/observability"
)

// Pinger is a named backing service the readiness endpoint checks.
type Pinger interface {
	Name() string
	Ping(ctx context.Context) error
}

// HealthHandler responds to liveness and readiness checks.
type HealthHandler struct {
	serviceName string
	description string
	version     string
	checks      []Pinger
	metrics     *observability.Metrics
}

// NewHealthHandler returns a new handler instance. checks may be empty when running on the memory store.
func NewHealthHandler(serviceName, description, version string, metrics *observability.Metrics, checks ...Pinger) *HealthHandler {
	sorted := append([]Pinger(nil), checks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name() < sorted[j].Name() })
	return &HealthHandler{
		serviceName: serviceName,
		description: description,
		version:     version,
		checks:      sorted,
		metrics:     metrics,
	}
}

// Root is the welcome message.
func (h *HealthHandler) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": "Welcome to " + h.description})
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready reports service readiness by checking dependencies.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	depStatus := fiber.Map{}
	ready := true
	for _, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			depStatus[check.Name()] = err.Error()
			ready = false
		} else {
			depStatus[check.Name()] = "ok"
		}
	}

	if ready {
		return c.JSON(fiber.Map{
			"status":       "ready",
			"dependencies": depStatus,
		})
	}

	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "DEPENDENCY_UNAVAILABLE",
			"message": "one or more dependencies unavailable",
			"details": depStatus,
		},
	})
}

// Metrics returns the in-memory counters.
func (h *HealthHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(h.metrics.Snapshot())
}
