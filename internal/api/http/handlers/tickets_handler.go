package handlers

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/helpdesk-kit/ticket-service/internal/api/dto"
	"github.com/helpdesk-kit/ticket-service/internal/domain"
	"github.com/helpdesk-kit/ticket-service/internal/repository"
	"github.com/helpdesk-kit/ticket-service/internal/service"
	apperrors "github.com/helpdesk-kit/ticket-service/pkg/util"
)

// TicketsHandler exposes the ticket lifecycle.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /create_ticket.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.Create(c.UserContext(), service.TicketCreateInput{
		Title:       req.Title,
		Description: req.Description,
		UserID:      req.UserID,
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTicketResponse(ticket))
}

// Assign PATCH /assign/:ticket_id/:operator_id.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	ticketID, err := pathID(c, "ticket_id")
	if err != nil {
		return err
	}
	operatorID, err := pathID(c, "operator_id")
	if err != nil {
		return err
	}
	if _, err := h.service.Assign(c.UserContext(), ticketID, operatorID); err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Message: fmt.Sprintf("Ticket %d assigned to operator %d", ticketID, operatorID)})
}

// UpdateStatus PATCH /update-status/:ticket_id?status=.
func (h *TicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	ticketID, err := pathID(c, "ticket_id")
	if err != nil {
		return err
	}
	status := domain.TicketStatus(strings.TrimSpace(c.Query("status")))
	ticket, err := h.service.UpdateStatus(c.UserContext(), ticketID, status)
	if err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Message: fmt.Sprintf("Ticket %d status updated to %s", ticket.ID, ticket.Status)})
}

// Close PUT /tickets/:ticket_id/close.
func (h *TicketsHandler) Close(c *fiber.Ctx) error {
	ticketID, err := pathID(c, "ticket_id")
	if err != nil {
		return err
	}
	if _, err := h.service.Close(c.UserContext(), ticketID); err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Message: "Ticket closed and notification sent"})
}

// GetTicket GET /tickets/:ticket_id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticketID, err := pathID(c, "ticket_id")
	if err != nil {
		return err
	}
	ticket, err := h.service.Get(c.UserContext(), ticketID)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTicketResponse(ticket))
}

// History GET /tickets/:ticket_id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	ticketID, err := pathID(c, "ticket_id")
	if err != nil {
		return err
	}
	entries, err := h.service.History(c.UserContext(), ticketID)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewHistoryList(entries))
}

// ListTickets GET /.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	tickets, err := h.service.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTicketList(tickets))
}

func pathID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id < 1 {
		return 0, apperrors.NewValidationError("invalid path parameter", map[string]any{name: c.Params(name)})
	}
	return id, nil
}

func parseTicketQuery(c *fiber.Ctx) (service.TicketListFilter, error) {
	var filter service.TicketListFilter
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := domain.TicketStatus(raw)
		filter.Status = &status
	}
	var err error
	if filter.CreatedAfter, err = parseDateQuery(c, "start_date"); err != nil {
		return filter, err
	}
	if filter.CreatedBefore, err = parseDateQuery(c, "end_date"); err != nil {
		return filter, err
	}
	filter.Order = repository.SortOrder(strings.ToLower(strings.TrimSpace(c.Query("sort_order"))))
	return filter, nil
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

func parseDateQuery(c *fiber.Ctx, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, apperrors.NewValidationError("invalid date", map[string]any{key: raw})
}
