package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew        TicketStatus = "new"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusClosed     TicketStatus = "closed"
)

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusNew, TicketStatusInProgress, TicketStatusClosed:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID          int64
	Title       string
	Description string
	Status      TicketStatus
	UserID      int64
	OperatorID  *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsClosed reports whether the ticket reached its terminal state.
func (t *Ticket) IsClosed() bool {
	return t.Status == TicketStatusClosed
}
