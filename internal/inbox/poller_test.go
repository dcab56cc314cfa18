package inbox

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helpdesk-kit/ticket-service/internal/domain"
	"github.com/helpdesk-kit/ticket-service/internal/observability"
	"github.com/helpdesk-kit/ticket-service/internal/repository"
	"github.com/helpdesk-kit/ticket-service/internal/service"
)

type fakeMailbox struct {
	messages map[uint32]string
	seen     []uint32
	closed   bool
	listErr  error
}

func (m *fakeMailbox) Unread(context.Context) ([]uint32, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var uids []uint32
	for uid := uint32(1); uid <= uint32(len(m.messages)); uid++ {
		uids = append(uids, uid)
	}
	return uids, nil
}

func (m *fakeMailbox) Fetch(_ context.Context, uid uint32) ([]byte, error) {
	raw, ok := m.messages[uid]
	if !ok {
		return nil, fmt.Errorf("no message %d", uid)
	}
	return []byte(raw), nil
}

func (m *fakeMailbox) MarkSeen(_ context.Context, uid uint32) error {
	m.seen = append(m.seen, uid)
	return nil
}

func (m *fakeMailbox) Close() error {
	m.closed = true
	return nil
}

type fakeDialer struct {
	mailbox *fakeMailbox
	err     error
	dials   int
}

func (d *fakeDialer) Dial(context.Context) (Mailbox, error) {
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	return d.mailbox, nil
}

type panickingCreator struct{}

func (panickingCreator) CreateFromEmail(context.Context, service.EmailTicketInput) (*domain.Ticket, error) {
	panic("boom")
}

func email(from, subject, body string) string {
	return rfc822("From: "+from, "Subject: "+subject, "Content-Type: text/plain", "", body, "")
}

type pollerFixture struct {
	store   *repository.MemoryStore
	metrics *observability.Metrics
	poller  *Poller
	mailbox *fakeMailbox
}

func newPollerFixture(t *testing.T, messages map[uint32]string) *pollerFixture {
	t.Helper()
	store := repository.NewMemoryStore()
	tickets := service.NewTicketService(service.TicketDependencies{
		UserRepo:     store.Users(),
		OperatorRepo: store.Operators(),
		TicketRepo:   store.Tickets(),
		HistoryRepo:  store.History(),
	})
	allow, err := ParseAllowList([]string{"db <db@example.com>"})
	require.NoError(t, err)

	mailbox := &fakeMailbox{messages: messages}
	metrics := observability.NewMetrics()
	return &pollerFixture{
		store:   store,
		metrics: metrics,
		mailbox: mailbox,
		poller:  NewPoller(&fakeDialer{mailbox: mailbox}, tickets, allow, time.Minute, zap.NewNop(), metrics),
	}
}

func (f *pollerFixture) ticketCount(t *testing.T) int {
	t.Helper()
	all, err := f.store.Tickets().ListWithFilter(context.Background(), repository.TicketFilter{})
	require.NoError(t, err)
	return len(all)
}

func TestPollOnceRejectedSenderCreatesNothing(t *testing.T) {
	f := newPollerFixture(t, map[uint32]string{
		1: email("Mallory <mallory@example.com>", "Free money", "Click here now please"),
		2: email("db <other@example.com>", "Wrong address", "Name matches, address does not"),
		3: email("Someone", "No address", "Unparseable sender header"),
	})

	f.poller.PollOnce(context.Background())

	assert.Equal(t, 0, f.ticketCount(t))
	for _, addr := range []string{"mallory@example.com", "other@example.com"} {
		_, err := f.store.Users().GetByEmail(context.Background(), addr)
		assert.Error(t, err, addr)
	}
	_, err := f.store.Users().GetByID(context.Background(), 1)
	assert.Error(t, err)
	assert.Empty(t, f.mailbox.seen)
	assert.True(t, f.mailbox.closed)
	assert.Equal(t, int64(3), f.metrics.Snapshot().Polls[resultRejected])
}

func TestPollOnceCreatesTicketForAllowedSender(t *testing.T) {
	f := newPollerFixture(t, map[uint32]string{
		1: email("Mallory <mallory@example.com>", "Spam", "Not wanted at all"),
		2: email("db <DB@example.com>", "VPN down", "Cannot reach the VPN"),
		3: email("db <db@example.com>", "", "Subject missing"),
	})

	f.poller.PollOnce(context.Background())

	tickets, err := f.store.Tickets().ListWithFilter(context.Background(), repository.TicketFilter{})
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, "VPN down", tickets[0].Title)
	assert.Equal(t, "Cannot reach the VPN", tickets[0].Description)
	assert.Equal(t, domain.TicketStatusNew, tickets[0].Status)

	user, err := f.store.Users().GetByID(context.Background(), tickets[0].UserID)
	require.NoError(t, err)
	assert.Equal(t, "Generated User", user.Name)
	assert.Equal(t, []uint32{2}, f.mailbox.seen)
	assert.True(t, f.mailbox.closed)
}

func TestPollOnceSurvivesFailures(t *testing.T) {
	metrics := observability.NewMetrics()
	dialer := &fakeDialer{err: errors.New("connection refused")}
	p := NewPoller(dialer, panickingCreator{}, AllowList{}, time.Minute, zap.NewNop(), metrics)
	p.PollOnce(context.Background())
	assert.Equal(t, int64(1), metrics.Snapshot().Polls["dial_failed"])

	listFails := &fakeMailbox{listErr: errors.New("BAD command")}
	p = NewPoller(&fakeDialer{mailbox: listFails}, panickingCreator{}, AllowList{}, time.Minute, zap.NewNop(), metrics)
	p.PollOnce(context.Background())
	assert.True(t, listFails.closed)

	allow, err := ParseAllowList([]string{"db <db@example.com>"})
	require.NoError(t, err)
	mailbox := &fakeMailbox{messages: map[uint32]string{1: email("db <db@example.com>", "s", "body")}}
	p = NewPoller(&fakeDialer{mailbox: mailbox}, panickingCreator{}, allow, time.Minute, zap.NewNop(), metrics)
	assert.NotPanics(t, func() { p.PollOnce(context.Background()) })
	assert.True(t, mailbox.closed)
	assert.Equal(t, int64(1), metrics.Snapshot().Polls["panic"])
}

func TestRunStopsOnCancel(t *testing.T) {
	dialer := &fakeDialer{mailbox: &fakeMailbox{}}
	p := NewPoller(dialer, panickingCreator{}, AllowList{}, time.Hour, zap.NewNop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
	assert.GreaterOrEqual(t, dialer.dials, 1)
}
