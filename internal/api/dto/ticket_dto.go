package dto

import (
	"time"

	"github.com/helpdesk-kit/ticket-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	UserID      int64  `json:"user_id"`
}

// TicketResponse response.
type TicketResponse struct {
	ID          int64               `json:"id"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Status      domain.TicketStatus `json:"status"`
	UserID      int64               `json:"user_id"`
	OperatorID  *int64              `json:"operator_id"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// TicketHistoryResponse is one audit entry.
type TicketHistoryResponse struct {
	ID         int64                   `json:"id"`
	ChangeType domain.TicketChangeType `json:"change_type"`
	OldValue   map[string]any          `json:"old_value"`
	NewValue   map[string]any          `json:"new_value"`
	CreatedAt  time.Time               `json:"created_at"`
}

func NewTicketResponse(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		UserID:      t.UserID,
		OperatorID:  t.OperatorID,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func NewTicketList(tickets []domain.Ticket) []TicketResponse {
	items := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, NewTicketResponse(&tickets[i]))
	}
	return items
}

func NewHistoryList(entries []domain.TicketHistory) []TicketHistoryResponse {
	items := make([]TicketHistoryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, TicketHistoryResponse{
			ID:         e.ID,
			ChangeType: e.ChangeType,
			OldValue:   e.OldValue,
			NewValue:   e.NewValue,
			CreatedAt:  e.CreatedAt,
		})
	}
	return items
}
