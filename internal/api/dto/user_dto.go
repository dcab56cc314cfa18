package dto

import (
	"time"

	"github.com/helpdesk-kit/ticket-service/internal/domain"
)

// CreatePersonRequest is the payload of create_user and create_operator.
type CreatePersonRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// PersonResponse renders a user or an operator.
type PersonResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageResponse acknowledges a mutation.
type MessageResponse struct {
	Message string `json:"message"`
}

func UserResponse(u *domain.User) PersonResponse {
	return PersonResponse{ID: u.ID, Name: u.Name, Email: u.Email, CreatedAt: u.CreatedAt}
}

func OperatorResponse(o *domain.Operator) PersonResponse {
	return PersonResponse{ID: o.ID, Name: o.Name, Email: o.Email, CreatedAt: o.CreatedAt}
}
