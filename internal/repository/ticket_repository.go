package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/helpdesk-kit/ticket-service/internal/domain"
)

// SortOrder orders ticket listings by created_at.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// TicketFilter captures listing parameters. Nil fields do not filter.
type TicketFilter struct {
	Status      *domain.TicketStatus
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Order       SortOrder
}

// TicketTransition is a conditional status change. The update only applies
// while the stored row still satisfies RequireStatus / ExcludeStatus.
type TicketTransition struct {
	To            domain.TicketStatus
	OperatorID    *int64
	RequireStatus *domain.TicketStatus
	ExcludeStatus *domain.TicketStatus
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	// Transition returns pgx.ErrNoRows when the ticket is missing or the guard fails.
	Transition(ctx context.Context, id int64, t TicketTransition) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

const ticketColumns = `id, title, description, status, user_id, operator_id, created_at, updated_at`

type ticketRepository struct {
	db DB
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db DB) TicketRepository {
	return &ticketRepository{db: db}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (title, description, status, user_id, operator_id)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		string(ticket.Status),
		ticket.UserID,
		ticket.OperatorID,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return scanTicket(r.db.QueryRow(ctx, query, id))
}

func (r *ticketRepository) Transition(ctx context.Context, id int64, t TicketTransition) (*domain.Ticket, error) {
	args := []any{string(t.To), t.OperatorID, id}
	clauses := []string{"id=$3"}
	if t.RequireStatus != nil {
		args = append(args, string(*t.RequireStatus))
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if t.ExcludeStatus != nil {
		args = append(args, string(*t.ExcludeStatus))
		clauses = append(clauses, fmt.Sprintf("status<>$%d", len(args)))
	}
	query := fmt.Sprintf(`
        UPDATE tickets SET status=$1, operator_id=COALESCE($2, operator_id), updated_at=NOW()
        WHERE %s
        RETURNING %s`, strings.Join(clauses, " AND "), ticketColumns)
	return scanTicket(r.db.QueryRow(ctx, query, args...))
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	direction := "DESC"
	if filter.Order == SortAsc {
		direction = "ASC"
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at %s, id %s`,
		ticketColumns, strings.Join(clauses, " AND "), direction, direction)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket domain.Ticket
		status string
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&status,
		&ticket.UserID,
		&ticket.OperatorID,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	ticket.Status = domain.TicketStatus(status)
	return &ticket, nil
}
