package inbox

import (
	"bytes"
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/helpdesk-kit/ticket-service/internal/domain"
	"github.com/helpdesk-kit/ticket-service/internal/observability"
	"github.com/helpdesk-kit/ticket-service/internal/service"
)

// TicketCreator opens tickets for accepted messages.
type TicketCreator interface {
	CreateFromEmail(ctx context.Context, input service.EmailTicketInput) (*domain.Ticket, error)
}

const (
	resultCreated  = "created"
	resultRejected = "rejected"
	resultSkipped  = "skipped"
	resultFailed   = "failed"
)

// Poller turns unread mail from allowed senders into tickets.
type Poller struct {
	dialer   Dialer
	tickets  TicketCreator
	allow    AllowList
	interval time.Duration
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewPoller builds a poller that runs one cycle per interval.
func NewPoller(dialer Dialer, tickets TicketCreator, allow AllowList, interval time.Duration, logger *zap.Logger, metrics *observability.Metrics) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Poller{
		dialer:   dialer,
		tickets:  tickets,
		allow:    allow,
		interval: interval,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run polls immediately and then on every tick until ctx is cancelled.
// Ticks that fire during a slow cycle are dropped, so cycles never overlap.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("inbox poller started",
		zap.Duration("interval", p.interval),
		zap.Int("allowed_senders", p.allow.Len()))
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.PollOnce(ctx)
		select {
		case <-ctx.Done():
			p.logger.Info("inbox poller stopped")
			return
		case <-ticker.C:
		}
	}
}

// PollOnce runs a single cycle. Errors and panics are logged, never returned.
func (p *Poller) PollOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("inbox poll panicked", zap.Any("panic", r), zap.Stack("stack"))
			p.metrics.RecordPoll("panic", 1)
		}
	}()

	mailbox, err := p.dialer.Dial(ctx)
	if err != nil {
		p.logger.Error("mailbox connection failed", zap.Error(err))
		p.metrics.RecordPoll("dial_failed", 1)
		return
	}
	defer func() {
		if err := mailbox.Close(); err != nil {
			p.logger.Warn("mailbox logout failed", zap.Error(err))
		}
	}()

	uids, err := mailbox.Unread(ctx)
	if err != nil {
		p.logger.Error("listing unread messages failed", zap.Error(err))
		p.metrics.RecordPoll(resultFailed, 1)
		return
	}
	if len(uids) == 0 {
		p.logger.Debug("no unread messages")
		return
	}

	counts := map[string]int{}
	for _, uid := range uids {
		if ctx.Err() != nil {
			break
		}
		counts[p.process(ctx, mailbox, uid)]++
	}
	for result, n := range counts {
		p.metrics.RecordPoll(result, n)
	}
	p.logger.Info("inbox cycle finished",
		zap.Int("unread", len(uids)),
		zap.Int(resultCreated, counts[resultCreated]),
		zap.Int(resultRejected, counts[resultRejected]),
		zap.Int(resultSkipped, counts[resultSkipped]),
		zap.Int(resultFailed, counts[resultFailed]))
}

func (p *Poller) process(ctx context.Context, mailbox Mailbox, uid uint32) string {
	logger := p.logger.With(zap.Uint32("uid", uid))

	raw, err := mailbox.Fetch(ctx, uid)
	if err != nil {
		logger.Error("fetch failed", zap.Error(err))
		return resultFailed
	}
	msg, err := ParseMessage(bytes.NewReader(raw))
	if err != nil {
		logger.Warn("unparseable message skipped", zap.Error(err))
		return resultSkipped
	}
	logger = logger.With(zap.String("from", msg.Sender.String()))

	if !p.allow.Allows(msg.Sender) {
		if u, ok := msg.Sender.(UnparseableSender); ok {
			logger.Info("sender rejected", zap.NamedError("sender_error", u.Err))
		} else {
			logger.Info("sender rejected")
		}
		return resultRejected
	}
	if msg.Subject == "" || msg.Body == "" {
		logger.Info("message without subject or body skipped")
		return resultSkipped
	}

	sender := msg.Sender.(ParsedSender)
	ticket, err := p.tickets.CreateFromEmail(ctx, service.EmailTicketInput{
		Subject:       msg.Subject,
		Body:          msg.Body,
		SenderAddress: sender.Address,
	})
	if err != nil {
		logger.Error("ticket from email failed", zap.Error(err))
		return resultFailed
	}

	if err := mailbox.MarkSeen(ctx, uid); err != nil {
		logger.Warn("mark seen failed; message may be ingested again", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
	}
	logger.Info("ticket created from email", zap.Int64("ticket_id", ticket.ID))
	return resultCreated
}
