package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/helpdesk-kit/ticket-service/internal/api/dto"
	"github.com/helpdesk-kit/ticket-service/internal/service"
)

// EmailHandler exercises the notification pipeline.
type EmailHandler struct {
	notifications *service.NotificationService
}

// NewEmailHandler constructs handler.
func NewEmailHandler(notifications *service.NotificationService) *EmailHandler {
	return &EmailHandler{notifications: notifications}
}

// TestEmail GET /test-email/?to_email=.
func (h *EmailHandler) TestEmail(c *fiber.Ctx) error {
	to := c.Query("to_email")
	if err := h.notifications.SendEmail(c.UserContext(), to, "Test Email", "This is a test email sent via the notification queue."); err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Message: fmt.Sprintf("Email has been queued to %s", to)})
}
