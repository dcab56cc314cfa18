package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/helpdesk-kit/ticket-service/internal/domain"
)

// MemoryStore is a map-backed store used when no database is configured.
// It honours the same contracts as the Postgres repositories, including
// pgx.ErrNoRows for missing rows and failed transition guards.
type MemoryStore struct {
	mu        sync.Mutex
	now       func() time.Time
	users     map[int64]domain.User
	operators map[int64]domain.Operator
	tickets   map[int64]domain.Ticket
	history   []domain.TicketHistory
	nextID    map[string]int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:       func() time.Time { return time.Now().UTC() },
		users:     make(map[int64]domain.User),
		operators: make(map[int64]domain.Operator),
		tickets:   make(map[int64]domain.Ticket),
		nextID:    make(map[string]int64),
	}
}

// SetClock overrides the timestamp source.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Users returns the user repository view.
func (s *MemoryStore) Users() UserRepository { return memoryUsers{s} }

// Operators returns the operator repository view.
func (s *MemoryStore) Operators() OperatorRepository { return memoryOperators{s} }

// Tickets returns the ticket repository view.
func (s *MemoryStore) Tickets() TicketRepository { return memoryTickets{s} }

// History returns the ticket history repository view.
func (s *MemoryStore) History() TicketHistoryRepository { return memoryHistory{s} }

func (s *MemoryStore) id(table string) int64 {
	s.nextID[table]++
	return s.nextID[table]
}

type memoryUsers struct{ s *MemoryStore }

func (m memoryUsers) Create(_ context.Context, user *domain.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.userByEmail(user.Email); ok {
		return ErrDuplicateEmail
	}
	user.ID = m.s.id("users")
	user.CreatedAt = m.s.now()
	m.s.users[user.ID] = *user
	return nil
}

func (m memoryUsers) GetByID(_ context.Context, id int64) (*domain.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	user, ok := m.s.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &user, nil
}

func (m memoryUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	user, ok := m.s.userByEmail(email)
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &user, nil
}

func (m memoryUsers) EnsureByEmail(_ context.Context, email, name string) (*domain.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if user, ok := m.s.userByEmail(email); ok {
		return &user, nil
	}
	user := domain.User{ID: m.s.id("users"), Name: name, Email: email, CreatedAt: m.s.now()}
	m.s.users[user.ID] = user
	return &user, nil
}

func (s *MemoryStore) userByEmail(email string) (domain.User, bool) {
	for _, user := range s.users {
		if user.Email == email {
			return user, true
		}
	}
	return domain.User{}, false
}

type memoryOperators struct{ s *MemoryStore }

func (m memoryOperators) Create(_ context.Context, operator *domain.Operator) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, existing := range m.s.operators {
		if existing.Email == operator.Email {
			return ErrDuplicateEmail
		}
	}
	operator.ID = m.s.id("operators")
	operator.CreatedAt = m.s.now()
	m.s.operators[operator.ID] = *operator
	return nil
}

func (m memoryOperators) GetByID(_ context.Context, id int64) (*domain.Operator, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	operator, ok := m.s.operators[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &operator, nil
}

func (m memoryOperators) GetByEmail(_ context.Context, email string) (*domain.Operator, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, operator := range m.s.operators {
		if operator.Email == email {
			found := operator
			return &found, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type memoryTickets struct{ s *MemoryStore }

func (m memoryTickets) Create(_ context.Context, ticket *domain.Ticket) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.users[ticket.UserID]; !ok {
		return &foreignKeyError{table: "users"}
	}
	now := m.s.now()
	ticket.ID = m.s.id("tickets")
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	m.s.tickets[ticket.ID] = *ticket
	return nil
}

func (m memoryTickets) GetByID(_ context.Context, id int64) (*domain.Ticket, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	ticket, ok := m.s.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &ticket, nil
}

func (m memoryTickets) Transition(_ context.Context, id int64, t TicketTransition) (*domain.Ticket, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	ticket, ok := m.s.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if t.RequireStatus != nil && ticket.Status != *t.RequireStatus {
		return nil, pgx.ErrNoRows
	}
	if t.ExcludeStatus != nil && ticket.Status == *t.ExcludeStatus {
		return nil, pgx.ErrNoRows
	}
	ticket.Status = t.To
	if t.OperatorID != nil {
		operatorID := *t.OperatorID
		ticket.OperatorID = &operatorID
	}
	ticket.UpdatedAt = m.s.now()
	m.s.tickets[id] = ticket
	return &ticket, nil
}

func (m memoryTickets) ListWithFilter(_ context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	result := []domain.Ticket{}
	for _, ticket := range m.s.tickets {
		if filter.Status != nil && ticket.Status != *filter.Status {
			continue
		}
		if filter.CreatedFrom != nil && ticket.CreatedAt.Before(*filter.CreatedFrom) {
			continue
		}
		if filter.CreatedTo != nil && ticket.CreatedAt.After(*filter.CreatedTo) {
			continue
		}
		result = append(result, ticket)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if filter.Order == SortAsc {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		if filter.Order == SortAsc {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})
	return result, nil
}

type memoryHistory struct{ s *MemoryStore }

func (m memoryHistory) Create(_ context.Context, history *domain.TicketHistory) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	history.ID = m.s.id("ticket_history")
	history.CreatedAt = m.s.now()
	m.s.history = append(m.s.history, *history)
	return nil
}

func (m memoryHistory) ListByTicket(_ context.Context, ticketID int64) ([]domain.TicketHistory, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	result := []domain.TicketHistory{}
	for _, entry := range m.s.history {
		if entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	return result, nil
}

type foreignKeyError struct {
	table string
}

func (e *foreignKeyError) Error() string {
	return "insert violates foreign key constraint on " + e.table
}
