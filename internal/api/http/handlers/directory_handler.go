package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/helpdesk-kit/ticket-service/internal/api/dto"
	"github.com/helpdesk-kit/ticket-service/internal/service"
	apperrors "github.com/helpdesk-kit/ticket-service/pkg/util"
)

// DirectoryHandler registers users and operators.
type DirectoryHandler struct {
	directory *service.DirectoryService
}

// NewDirectoryHandler constructs handler.
func NewDirectoryHandler(directory *service.DirectoryService) *DirectoryHandler {
	return &DirectoryHandler{directory: directory}
}

// CreateUser POST /create_user.
func (h *DirectoryHandler) CreateUser(c *fiber.Ctx) error {
	var req dto.CreatePersonRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	user, err := h.directory.CreateUser(c.UserContext(), req.Name, req.Email)
	if err != nil {
		return err
	}
	return c.JSON(dto.UserResponse(user))
}

// CreateOperator POST /create_operator.
func (h *DirectoryHandler) CreateOperator(c *fiber.Ctx) error {
	var req dto.CreatePersonRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	operator, err := h.directory.CreateOperator(c.UserContext(), req.Name, req.Email)
	if err != nil {
		return err
	}
	return c.JSON(dto.OperatorResponse(operator))
}
