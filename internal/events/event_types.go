package events

import (
	"time"

	"github.com/helpdesk-kit/ticket-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketClosed        EventType = "ticket_closed"
)

// Source tells where a ticket came from.
type Source string

const (
	SourceAPI   Source = "api"
	SourceEmail Source = "email"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  int64       `json:"ticket_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload carries the owner's address for the auto-reply.
type TicketCreatedPayload struct {
	UserID    int64  `json:"user_id"`
	UserEmail string `json:"user_email"`
	Title     string `json:"title"`
	Source    Source `json:"source"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	OperatorID int64 `json:"operator_id"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketClosedPayload names the owner; the notification side resolves the address.
type TicketClosedPayload struct {
	UserID    int64               `json:"user_id"`
	OldStatus domain.TicketStatus `json:"old_status"`
}
