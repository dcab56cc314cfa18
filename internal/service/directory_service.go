package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message/mail"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/helpdesk-kit/ticket-service/internal/domain"
	"github.com/helpdesk-kit/ticket-service/internal/repository"
	apperrors "github.com/helpdesk-kit/ticket-service/pkg/util"
)

const maxNameLength = 50

// DirectoryService registers users and operators.
type DirectoryService struct {
	users     repository.UserRepository
	operators repository.OperatorRepository
	logger    *zap.Logger
}

// NewDirectoryService constructs the service.
func NewDirectoryService(users repository.UserRepository, operators repository.OperatorRepository, logger *zap.Logger) *DirectoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryService{users: users, operators: operators, logger: logger}
}

// CreateUser registers a user; the email must not be taken.
func (s *DirectoryService) CreateUser(ctx context.Context, name, email string) (*domain.User, error) {
	name, email, err := validateIdentity(name, email)
	if err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, emailTaken(email)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewInternalError(err)
	}

	user := &domain.User{Name: name, Email: email}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, emailTaken(email)
		}
		return nil, apperrors.NewInternalError(err)
	}
	s.logger.Info("user created", zap.Int64("user_id", user.ID))
	return user, nil
}

// CreateOperator registers an operator; the email must not be taken.
func (s *DirectoryService) CreateOperator(ctx context.Context, name, email string) (*domain.Operator, error) {
	name, email, err := validateIdentity(name, email)
	if err != nil {
		return nil, err
	}

	if _, err := s.operators.GetByEmail(ctx, email); err == nil {
		return nil, emailTaken(email)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewInternalError(err)
	}

	operator := &domain.Operator{Name: name, Email: email}
	if err := s.operators.Create(ctx, operator); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, emailTaken(email)
		}
		return nil, apperrors.NewInternalError(err)
	}
	s.logger.Info("operator created", zap.Int64("operator_id", operator.ID))
	return operator, nil
}

func validateIdentity(name, email string) (string, string, error) {
	name = strings.TrimSpace(name)
	details := map[string]any{}
	if n := utf8.RuneCountInString(name); n == 0 || n > maxNameLength {
		details["name"] = "must be between 1 and 50 characters"
	}
	address, err := normalizeEmail(email)
	if err != nil {
		details["email"] = "must be a valid email address"
	}
	if len(details) > 0 {
		return "", "", apperrors.NewValidationError("invalid input", details)
	}
	return name, address, nil
}

// normalizeEmail accepts a bare address only, without a display name.
func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return "", err
	}
	if addr.Name != "" || addr.Address != raw {
		return "", errors.New("display names are not accepted")
	}
	return addr.Address, nil
}

func emailTaken(email string) error {
	return apperrors.NewConflict("email already registered", map[string]any{"email": email})
}
