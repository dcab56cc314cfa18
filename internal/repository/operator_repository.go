package repository

import (
	"context"

	"github.com/helpdesk-kit/ticket-service/internal/domain"
)

// OperatorRepository persists support operators.
type OperatorRepository interface {
	Create(ctx context.Context, operator *domain.Operator) error
	GetByID(ctx context.Context, id int64) (*domain.Operator, error)
	GetByEmail(ctx context.Context, email string) (*domain.Operator, error)
}

type operatorRepository struct {
	db DB
}

// NewOperatorRepository returns a Postgres-backed implementation.
func NewOperatorRepository(db DB) OperatorRepository {
	return &operatorRepository{db: db}
}

func (r *operatorRepository) Create(ctx context.Context, operator *domain.Operator) error {
	const query = `
        INSERT INTO operators (name, email)
        VALUES ($1, $2)
        RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query, operator.Name, operator.Email).Scan(&operator.ID, &operator.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

func (r *operatorRepository) GetByID(ctx context.Context, id int64) (*domain.Operator, error) {
	const query = `SELECT id, name, email, created_at FROM operators WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *operatorRepository) GetByEmail(ctx context.Context, email string) (*domain.Operator, error) {
	const query = `SELECT id, name, email, created_at FROM operators WHERE email=$1`
	return r.fetchSingle(ctx, query, email)
}

func (r *operatorRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Operator, error) {
	var operator domain.Operator
	if err := r.db.QueryRow(ctx, query, arg).Scan(
		&operator.ID,
		&operator.Name,
		&operator.Email,
		&operator.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &operator, nil
}
