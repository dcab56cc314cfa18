package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/helpdesk-kit/ticket-service/internal/events"
	"github.com/helpdesk-kit/ticket-service/internal/queue"
	"github.com/helpdesk-kit/ticket-service/internal/repository"
	apperrors "github.com/helpdesk-kit/ticket-service/pkg/util"
)

// NotificationService turns domain events into notification jobs.
type NotificationService struct {
	dispatcher events.Dispatcher
	jobs       queue.Enqueuer
	users      repository.UserRepository
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, jobs queue.Enqueuer, users repository.UserRepository, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		jobs:       jobs,
		users:      users,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketClosed, n.handleTicketClosed)
}

// SendEmail queues a free-form message. Delivery is not awaited.
func (n *NotificationService) SendEmail(ctx context.Context, to, subject, body string) error {
	address, err := normalizeEmail(to)
	if err != nil {
		return apperrors.NewValidationError("invalid recipient", map[string]any{"to_email": to})
	}
	n.jobs.Enqueue(ctx, queue.Job{
		Kind:    queue.KindGenericEmail,
		To:      address,
		Subject: subject,
		Body:    body,
	})
	return nil
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	n.logger.Debug("queueing auto-reply",
		zap.Int64("ticket_id", event.TicketID),
		zap.String("source", string(payload.Source)))
	n.jobs.Enqueue(ctx, queue.Job{Kind: queue.KindAutoReply, To: payload.UserEmail})
	return nil
}

func (n *NotificationService) handleTicketClosed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketClosedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	user, err := n.users.GetByID(ctx, payload.UserID)
	if errors.Is(err, pgx.ErrNoRows) {
		n.logger.Info("ticket owner missing; close notice skipped",
			zap.Int64("ticket_id", event.TicketID),
			zap.Int64("user_id", payload.UserID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup ticket owner: %w", err)
	}
	n.jobs.Enqueue(ctx, queue.Job{Kind: queue.KindCloseNotice, To: user.Email})
	return nil
}
