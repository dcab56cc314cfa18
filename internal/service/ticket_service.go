package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/helpdesk-kit/ticket-service/internal/domain"
	"github.com/helpdesk-kit/ticket-service/internal/events"
	"github.com/helpdesk-kit/ticket-service/internal/repository"
	apperrors "github.com/helpdesk-kit/ticket-service/pkg/util"
)

const (
	maxTitleLength       = 100
	minDescriptionLength = 10
	defaultPlaceholder   = "Generated User"
)

// TicketService coordinates ticket workflows.
type TicketService struct {
	users       repository.UserRepository
	operators   repository.OperatorRepository
	tickets     repository.TicketRepository
	history     repository.TicketHistoryRepository
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	placeholder string
	now         func() time.Time
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	UserRepo     repository.UserRepository
	OperatorRepo repository.OperatorRepository
	TicketRepo   repository.TicketRepository
	HistoryRepo  repository.TicketHistoryRepository
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
	// PlaceholderUserName names users provisioned from inbound email.
	PlaceholderUserName string
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	UserID      int64
}

// EmailTicketInput is a ticket request that arrived by email.
type EmailTicketInput struct {
	Subject       string
	Body          string
	SenderAddress string
}

// TicketListFilter describes listing filters. Bounds are inclusive.
type TicketListFilter struct {
	Status        *domain.TicketStatus
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Order         repository.SortOrder
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	placeholder := strings.TrimSpace(deps.PlaceholderUserName)
	if placeholder == "" {
		placeholder = defaultPlaceholder
	}
	return &TicketService{
		users:       deps.UserRepo,
		operators:   deps.OperatorRepo,
		tickets:     deps.TicketRepo,
		history:     deps.HistoryRepo,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		placeholder: placeholder,
		now:         time.Now,
	}
}

// Create opens a ticket for an existing user.
func (s *TicketService) Create(ctx context.Context, input TicketCreateInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	details := map[string]any{}
	if n := utf8.RuneCountInString(title); n == 0 || n > maxTitleLength {
		details["title"] = "must be between 1 and 100 characters"
	}
	if utf8.RuneCountInString(description) < minDescriptionLength {
		details["description"] = "must be at least 10 characters"
	}
	if input.UserID < 1 {
		details["user_id"] = "must be a positive integer"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid ticket", details)
	}

	user, err := s.users.GetByID(ctx, input.UserID)
	if err != nil {
		return nil, notFoundOr(err, "user", map[string]any{"user_id": input.UserID})
	}

	ticket := &domain.Ticket{
		Title:       title,
		Description: description,
		Status:      domain.TicketStatusNew,
		UserID:      user.ID,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	s.publishCreated(ctx, ticket, user, events.SourceAPI)
	return ticket, nil
}

// CreateFromEmail opens a ticket for the sender, provisioning the user when unknown.
func (s *TicketService) CreateFromEmail(ctx context.Context, input EmailTicketInput) (*domain.Ticket, error) {
	title := truncateRunes(strings.TrimSpace(input.Subject), maxTitleLength)
	description := strings.TrimSpace(input.Body)
	address := strings.TrimSpace(input.SenderAddress)
	if title == "" || description == "" || address == "" {
		return nil, apperrors.NewValidationError("email ticket needs subject, body and sender", nil)
	}

	user, err := s.users.EnsureByEmail(ctx, address, s.placeholder)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	ticket := &domain.Ticket{
		Title:       title,
		Description: description,
		Status:      domain.TicketStatusNew,
		UserID:      user.ID,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	s.publishCreated(ctx, ticket, user, events.SourceEmail)
	return ticket, nil
}

// Assign hands a NEW ticket to an operator and moves it to in_progress.
func (s *TicketService) Assign(ctx context.Context, ticketID, operatorID int64) (*domain.Ticket, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != domain.TicketStatusNew {
		return nil, invalidState(ticket, "ticket is not in a valid state to be assigned")
	}
	operator, err := s.operators.GetByID(ctx, operatorID)
	if err != nil {
		return nil, notFoundOr(err, "operator", map[string]any{"operator_id": operatorID})
	}

	required := domain.TicketStatusNew
	updated, err := s.tickets.Transition(ctx, ticket.ID, repository.TicketTransition{
		To:            domain.TicketStatusInProgress,
		OperatorID:    &operator.ID,
		RequireStatus: &required,
	})
	if err != nil {
		return nil, s.transitionError(err, ticket, "ticket is not in a valid state to be assigned")
	}

	s.recordHistory(ctx, updated.ID, domain.ChangeTypeAssignee,
		map[string]any{"operator_id": ticket.OperatorID, "status": ticket.Status},
		map[string]any{"operator_id": operator.ID, "status": updated.Status})
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: updated.ID,
		Payload:  events.TicketAssignedPayload{OperatorID: operator.ID},
	})
	return updated, nil
}

// UpdateStatus overwrites the status of any ticket that is not closed.
func (s *TicketService) UpdateStatus(ctx context.Context, ticketID int64, status domain.TicketStatus) (*domain.Ticket, error) {
	if !status.Valid() {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{
			"status":  string(status),
			"allowed": []domain.TicketStatus{domain.TicketStatusNew, domain.TicketStatusInProgress, domain.TicketStatusClosed},
		})
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.IsClosed() {
		return nil, invalidState(ticket, "cannot update a closed ticket")
	}

	excluded := domain.TicketStatusClosed
	updated, err := s.tickets.Transition(ctx, ticket.ID, repository.TicketTransition{
		To:            status,
		ExcludeStatus: &excluded,
	})
	if err != nil {
		return nil, s.transitionError(err, ticket, "cannot update a closed ticket")
	}

	s.recordStatusChange(ctx, updated.ID, ticket.Status, updated.Status)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: updated.ID,
		Payload: events.TicketStatusChangedPayload{
			OldStatus: ticket.Status,
			NewStatus: updated.Status,
		},
	})
	return updated, nil
}

// Close moves a ticket to its terminal state and triggers the close notice.
func (s *TicketService) Close(ctx context.Context, ticketID int64) (*domain.Ticket, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.IsClosed() {
		return nil, invalidState(ticket, "ticket is already closed")
	}

	excluded := domain.TicketStatusClosed
	updated, err := s.tickets.Transition(ctx, ticket.ID, repository.TicketTransition{
		To:            domain.TicketStatusClosed,
		ExcludeStatus: &excluded,
	})
	if err != nil {
		return nil, s.transitionError(err, ticket, "ticket is already closed")
	}

	s.recordStatusChange(ctx, updated.ID, ticket.Status, updated.Status)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketClosed,
		TicketID: updated.ID,
		Payload: events.TicketClosedPayload{
			UserID:    updated.UserID,
			OldStatus: ticket.Status,
		},
	})
	return updated, nil
}

// Get returns a single ticket.
func (s *TicketService) Get(ctx context.Context, ticketID int64) (*domain.Ticket, error) {
	return s.getTicket(ctx, ticketID)
}

// History returns the audit trail of a ticket, oldest first.
func (s *TicketService) History(ctx context.Context, ticketID int64) ([]domain.TicketHistory, error) {
	if _, err := s.getTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []domain.TicketHistory{}, nil
	}
	entries, err := s.history.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return entries, nil
}

// List returns tickets matching every provided filter.
func (s *TicketService) List(ctx context.Context, filter TicketListFilter) ([]domain.Ticket, error) {
	order := filter.Order
	switch order {
	case "":
		order = repository.SortDesc
	case repository.SortAsc, repository.SortDesc:
	default:
		return nil, apperrors.NewValidationError("invalid sort order", map[string]any{"sort_order": string(order)})
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": string(*filter.Status)})
	}

	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		Status:      filter.Status,
		CreatedFrom: filter.CreatedAfter,
		CreatedTo:   filter.CreatedBefore,
		Order:       order,
	})
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return tickets, nil
}

func (s *TicketService) getTicket(ctx context.Context, ticketID int64) (*domain.Ticket, error) {
	if ticketID < 1 {
		return nil, apperrors.NewValidationError("invalid ticket id", map[string]any{"ticket_id": ticketID})
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, notFoundOr(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	return ticket, nil
}

// transitionError classifies a failed conditional write. The ticket was read
// moments before, so a missing row means another request changed its status.
func (s *TicketService) transitionError(err error, ticket *domain.Ticket, message string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		s.logger.Info("ticket changed concurrently", zap.Int64("ticket_id", ticket.ID))
		return invalidState(ticket, message)
	}
	return apperrors.NewInternalError(err)
}

func (s *TicketService) publishCreated(ctx context.Context, ticket *domain.Ticket, user *domain.User, source events.Source) {
	s.logger.Info("ticket created",
		zap.Int64("ticket_id", ticket.ID),
		zap.Int64("user_id", user.ID),
		zap.String("source", string(source)))
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Payload: events.TicketCreatedPayload{
			UserID:    user.ID,
			UserEmail: user.Email,
			Title:     ticket.Title,
			Source:    source,
		},
	})
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func (s *TicketService) recordStatusChange(ctx context.Context, ticketID int64, oldStatus, newStatus domain.TicketStatus) {
	s.recordHistory(ctx, ticketID, domain.ChangeTypeStatus,
		map[string]any{"status": oldStatus},
		map[string]any{"status": newStatus})
}

// recordHistory never fails the mutation it describes.
func (s *TicketService) recordHistory(ctx context.Context, ticketID int64, change domain.TicketChangeType, oldValue, newValue map[string]any) {
	if s.history == nil {
		return
	}
	entry := &domain.TicketHistory{
		TicketID:   ticketID,
		ChangeType: change,
		OldValue:   oldValue,
		NewValue:   newValue,
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record ticket history",
			zap.Int64("ticket_id", ticketID),
			zap.String("change_type", string(change)),
			zap.Error(err))
	}
}

func notFoundOr(err error, resource string, details map[string]any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound(resource, details)
	}
	return apperrors.NewInternalError(err)
}

func invalidState(ticket *domain.Ticket, message string) error {
	return apperrors.NewInvalidState(message, map[string]any{
		"ticket_id": ticket.ID,
		"status":    string(ticket.Status),
	})
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
