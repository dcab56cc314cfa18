package repository

import (
	"context"

	"github.com/helpdesk-kit/ticket-service/internal/domain"
)

// UserRepository defines persistence access for end-users.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// EnsureByEmail returns the user owning email, inserting one named name if absent.
	EnsureByEmail(ctx context.Context, email, name string) (*domain.User, error)
}

type userRepository struct {
	db DB
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(db DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (name, email)
        VALUES ($1, $2)
        RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query, user.Name, user.Email).Scan(&user.ID, &user.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	const query = `SELECT id, name, email, created_at FROM users WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT id, name, email, created_at FROM users WHERE email=$1`
	return r.fetchSingle(ctx, query, email)
}

func (r *userRepository) EnsureByEmail(ctx context.Context, email, name string) (*domain.User, error) {
	// The no-op DO UPDATE makes RETURNING yield the existing row on conflict.
	const query = `
        INSERT INTO users (name, email)
        VALUES ($1, $2)
        ON CONFLICT (email) DO UPDATE SET email=EXCLUDED.email
        RETURNING id, name, email, created_at`
	return r.fetchSingle(ctx, query, name, email)
}

func (r *userRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.User, error) {
	var user domain.User
	if err := r.db.QueryRow(ctx, query, args...).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}
