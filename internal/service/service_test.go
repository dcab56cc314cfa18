package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helpdesk-kit/ticket-service/internal/domain"
	"github.com/helpdesk-kit/ticket-service/internal/events"
	"github.com/helpdesk-kit/ticket-service/internal/queue"
	"github.com/helpdesk-kit/ticket-service/internal/repository"
	apperrors "github.com/helpdesk-kit/ticket-service/pkg/util"
)

type recordingQueue struct {
	mu   sync.Mutex
	jobs []queue.Job
}

func (r *recordingQueue) Enqueue(_ context.Context, job queue.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
}

func (r *recordingQueue) kinds() []queue.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]queue.Kind, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, job.Kind)
	}
	return out
}

type fixture struct {
	store     *repository.MemoryStore
	tickets   *TicketService
	directory *DirectoryService
	jobs      *recordingQueue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	return newFixtureWithUsers(t, store, store.Users())
}

func newFixtureWithUsers(t *testing.T, store *repository.MemoryStore, users repository.UserRepository) *fixture {
	t.Helper()
	logger := zap.NewNop()
	dispatcher := events.NewInMemoryDispatcher(logger)
	jobs := &recordingQueue{}
	NewNotificationService(dispatcher, jobs, users, logger).RegisterHandlers()

	return &fixture{
		store: store,
		tickets: NewTicketService(TicketDependencies{
			UserRepo:     store.Users(),
			OperatorRepo: store.Operators(),
			TicketRepo:   store.Tickets(),
			HistoryRepo:  store.History(),
			Dispatcher:   dispatcher,
			Logger:       logger,
		}),
		directory: NewDirectoryService(store.Users(), store.Operators(), logger),
		jobs:      jobs,
	}
}

func (f *fixture) user(t *testing.T) *domain.User {
	t.Helper()
	user, err := f.directory.CreateUser(context.Background(), "John Doe", "john@x.com")
	require.NoError(t, err)
	return user
}

func (f *fixture) operator(t *testing.T) *domain.Operator {
	t.Helper()
	operator, err := f.directory.CreateOperator(context.Background(), "Jane Ops", "jane@x.com")
	require.NoError(t, err)
	return operator
}

func (f *fixture) ticket(t *testing.T, userID int64) *domain.Ticket {
	t.Helper()
	ticket, err := f.tickets.Create(context.Background(), TicketCreateInput{Title: "t", Description: "0123456789", UserID: userID})
	require.NoError(t, err)
	return ticket
}

func TestCreateTicket(t *testing.T) {
	f := newFixture(t)
	user := f.user(t)

	ticket := f.ticket(t, user.ID)
	assert.Equal(t, domain.TicketStatusNew, ticket.Status)
	assert.Nil(t, ticket.OperatorID)
	require.Len(t, f.jobs.jobs, 1)
	assert.Equal(t, queue.Job{Kind: queue.KindAutoReply, To: "john@x.com"}, f.jobs.jobs[0])
}

func TestCreateTicketUnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.tickets.Create(context.Background(), TicketCreateInput{Title: "t", Description: "0123456789", UserID: 42})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	all, err := f.tickets.List(context.Background(), TicketListFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, f.jobs.jobs)
}

func TestCreateTicketValidation(t *testing.T) {
	f := newFixture(t)
	user := f.user(t)
	long := make([]rune, 101)
	for i := range long {
		long[i] = 'é'
	}

	cases := map[string]TicketCreateInput{
		"blank title":       {Title: "   ", Description: "0123456789", UserID: user.ID},
		"long title":        {Title: string(long), Description: "0123456789", UserID: user.ID},
		"short description": {Title: "t", Description: "  012345678  ", UserID: user.ID},
		"zero user":         {Title: "t", Description: "0123456789", UserID: 0},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.tickets.Create(context.Background(), input)
			assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation), "got %v", err)
		})
	}
}

func TestDuplicateEmailConflict(t *testing.T) {
	f := newFixture(t)
	f.user(t)
	f.operator(t)

	_, err := f.directory.CreateUser(context.Background(), "Other", "john@x.com")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
	_, err = f.directory.CreateOperator(context.Background(), "Other", "jane@x.com")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	user, err := f.store.Users().GetByEmail(context.Background(), "john@x.com")
	require.NoError(t, err)
	assert.Equal(t, "John Doe", user.Name)
}

func TestDirectoryValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.directory.CreateUser(context.Background(), "", "a@x.com")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
	_, err = f.directory.CreateUser(context.Background(), "A", "not-an-email")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
	_, err = f.directory.CreateOperator(context.Background(), "A", "A <a@x.com>")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestAssign(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticket(t, f.user(t).ID)
	operator := f.operator(t)

	updated, err := f.tickets.Assign(context.Background(), ticket.ID, operator.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, updated.Status)
	require.NotNil(t, updated.OperatorID)
	assert.Equal(t, operator.ID, *updated.OperatorID)

	history, err := f.tickets.History(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.ChangeTypeAssignee, history[0].ChangeType)
}

func TestAssignRequiresNewRegardlessOfOperator(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticket(t, f.user(t).ID)
	_, err := f.tickets.UpdateStatus(context.Background(), ticket.ID, domain.TicketStatusInProgress)
	require.NoError(t, err)

	_, err = f.tickets.Assign(context.Background(), ticket.ID, 999)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))

	_, err = f.tickets.Assign(context.Background(), ticket.ID, f.operator(t).ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))
}

func TestAssignMissing(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticket(t, f.user(t).ID)

	_, err := f.tickets.Assign(context.Background(), 999, f.operator(t).ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = f.tickets.Assign(context.Background(), ticket.ID, 999)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	got, err := f.tickets.Get(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusNew, got.Status)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticket(t, f.user(t).ID)

	updated, err := f.tickets.UpdateStatus(context.Background(), ticket.ID, domain.TicketStatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, updated.Status)

	updated, err = f.tickets.UpdateStatus(context.Background(), ticket.ID, domain.TicketStatusNew)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusNew, updated.Status)

	_, err = f.tickets.UpdateStatus(context.Background(), ticket.ID, "reopened")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = f.tickets.UpdateStatus(context.Background(), 999, domain.TicketStatusNew)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestClosedIsAbsorbing(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticket(t, f.user(t).ID)
	operator := f.operator(t)

	closed, err := f.tickets.Close(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, closed.Status)

	_, err = f.tickets.Close(context.Background(), ticket.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))
	_, err = f.tickets.UpdateStatus(context.Background(), ticket.ID, domain.TicketStatusNew)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))
	_, err = f.tickets.Assign(context.Background(), ticket.ID, operator.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))

	got, err := f.tickets.Get(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, got.Status)
	assert.Equal(t, []queue.Kind{queue.KindAutoReply, queue.KindCloseNotice}, f.jobs.kinds())
}

func TestUpdateStatusToClosedIsTerminal(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticket(t, f.user(t).ID)

	_, err := f.tickets.UpdateStatus(context.Background(), ticket.ID, domain.TicketStatusClosed)
	require.NoError(t, err)
	_, err = f.tickets.Close(context.Background(), ticket.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))
}

func TestConcurrentCloseSendsOneNotice(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticket(t, f.user(t).ID)

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.tickets.Close(context.Background(), ticket.ID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, []queue.Kind{queue.KindAutoReply, queue.KindCloseNotice}, f.jobs.kinds())
}

type vanishingUsers struct {
	repository.UserRepository
}

func (vanishingUsers) GetByID(context.Context, int64) (*domain.User, error) {
	return nil, pgx.ErrNoRows
}

func TestCloseSkipsNoticeWhenOwnerMissing(t *testing.T) {
	store := repository.NewMemoryStore()
	f := newFixtureWithUsers(t, store, vanishingUsers{store.Users()})
	ticket := f.ticket(t, f.user(t).ID)

	_, err := f.tickets.Close(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, []queue.Kind{queue.KindAutoReply}, f.jobs.kinds())
}

func TestCreateFromEmail(t *testing.T) {
	f := newFixture(t)
	existing := f.user(t)

	first, err := f.tickets.CreateFromEmail(context.Background(), EmailTicketInput{
		Subject: "VPN down", Body: "Cannot connect since this morning", SenderAddress: "new@x.com",
	})
	require.NoError(t, err)
	owner, err := f.store.Users().GetByID(context.Background(), first.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Generated User", owner.Name)
	assert.Equal(t, "new@x.com", owner.Email)

	second, err := f.tickets.CreateFromEmail(context.Background(), EmailTicketInput{
		Subject: "Again", Body: "Still broken", SenderAddress: "john@x.com",
	})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, second.UserID)
	assert.Equal(t, []queue.Kind{queue.KindAutoReply, queue.KindAutoReply}, f.jobs.kinds())

	_, err = f.tickets.CreateFromEmail(context.Background(), EmailTicketInput{Subject: "", Body: "x", SenderAddress: "a@x.com"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestListFiltersAndOrder(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	tick := base
	f.store.SetClock(func() time.Time {
		tick = tick.Add(24 * time.Hour)
		return tick
	})
	user := f.user(t)
	var created []*domain.Ticket
	for i := 0; i < 4; i++ {
		created = append(created, f.ticket(t, user.ID))
	}
	_, err := f.tickets.UpdateStatus(context.Background(), created[1].ID, domain.TicketStatusInProgress)
	require.NoError(t, err)

	from := created[1].CreatedAt
	to := created[2].CreatedAt
	window, err := f.tickets.List(context.Background(), TicketListFilter{CreatedAfter: &from, CreatedBefore: &to, Order: repository.SortAsc})
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, created[1].ID, window[0].ID)
	assert.Equal(t, created[2].ID, window[1].ID)

	desc, err := f.tickets.List(context.Background(), TicketListFilter{})
	require.NoError(t, err)
	require.Len(t, desc, 4)
	for i := 1; i < len(desc); i++ {
		assert.False(t, desc[i].CreatedAt.After(desc[i-1].CreatedAt))
	}

	status := domain.TicketStatusInProgress
	filtered, err := f.tickets.List(context.Background(), TicketListFilter{Status: &status})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, created[1].ID, filtered[0].ID)

	_, err = f.tickets.List(context.Background(), TicketListFilter{Order: "sideways"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestSendEmail(t *testing.T) {
	logger := zap.NewNop()
	jobs := &recordingQueue{}
	notifications := NewNotificationService(events.NewInMemoryDispatcher(logger), jobs, repository.NewMemoryStore().Users(), logger)

	require.NoError(t, notifications.SendEmail(context.Background(), "a@x.com", "Test Email", "This is a test email."))
	err := notifications.SendEmail(context.Background(), "nope", "s", "b")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	require.Len(t, jobs.jobs, 1)
	assert.Equal(t, queue.KindGenericEmail, jobs.jobs[0].Kind)
	assert.Equal(t, "Test Email", jobs.jobs[0].Subject)
}
