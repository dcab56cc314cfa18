package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/helpdesk-kit/ticket-service/internal/mailer"
	"github.com/helpdesk-kit/ticket-service/internal/observability"
	"github.com/helpdesk-kit/ticket-service/internal/queue"
)

// JobSource is the consumer side of the notification queue.
type JobSource interface {
	EnsureGroup(ctx context.Context) error
	Read(ctx context.Context, consumer string, count int64) ([]queue.Delivery, error)
	Reclaim(ctx context.Context, consumer string) ([]queue.Delivery, error)
	Ack(ctx context.Context, messageID string) error
}

const (
	readBatch    = 10
	retryBackoff = time.Second
)

// NotificationWorker runs a fixed pool of consumers that turn jobs into emails.
// A job is acknowledged once attempted; failed sends are logged, not retried.
type NotificationWorker struct {
	source  JobSource
	sender  mailer.Sender
	workers int
	name    string
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewNotificationWorker builds the pool. name prefixes each consumer name in the group.
func NewNotificationWorker(source JobSource, sender mailer.Sender, workers int, name string, logger *zap.Logger, metrics *observability.Metrics) *NotificationWorker {
	if workers <= 0 {
		workers = 1
	}
	return &NotificationWorker{
		source:  source,
		sender:  sender,
		workers: workers,
		name:    name,
		logger:  logger,
		metrics: metrics,
	}
}

// Run blocks until ctx is cancelled and every consumer has returned.
func (w *NotificationWorker) Run(ctx context.Context) {
	for {
		err := w.source.EnsureGroup(ctx)
		if err == nil {
			break
		}
		w.logger.Warn("notification queue unavailable", zap.Error(err))
		if !sleep(ctx, retryBackoff) {
			return
		}
	}

	w.reclaim(ctx, w.consumerName(1))

	var wg sync.WaitGroup
	for i := 1; i <= w.workers; i++ {
		wg.Add(1)
		go func(consumer string) {
			defer wg.Done()
			w.consume(ctx, consumer)
		}(w.consumerName(i))
	}
	wg.Wait()
	w.logger.Info("notification workers stopped")
}

func (w *NotificationWorker) consumerName(i int) string {
	return fmt.Sprintf("%s-%d", w.name, i)
}

// reclaim handles jobs a previous process received but never acknowledged.
// Failing to reclaim is logged; those entries wait for the next start.
func (w *NotificationWorker) reclaim(ctx context.Context, consumer string) {
	deliveries, err := w.source.Reclaim(ctx, consumer)
	if err != nil {
		w.logger.Warn("reclaim pending notification jobs", zap.Error(err))
	}
	if len(deliveries) > 0 {
		w.logger.Info("reclaimed pending notification jobs", zap.Int("count", len(deliveries)))
	}
	for _, d := range deliveries {
		if ctx.Err() != nil {
			return
		}
		w.Handle(ctx, d)
	}
}

func (w *NotificationWorker) consume(ctx context.Context, consumer string) {
	logger := w.logger.With(zap.String("consumer", consumer))
	for ctx.Err() == nil {
		deliveries, err := w.source.Read(ctx, consumer, readBatch)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("read notification jobs", zap.Error(err))
			sleep(ctx, retryBackoff)
			continue
		}
		for _, d := range deliveries {
			w.Handle(ctx, d)
		}
	}
}

// Handle sends the email for one delivery and acknowledges it.
func (w *NotificationWorker) Handle(ctx context.Context, d queue.Delivery) {
	logger := w.logger.With(
		zap.String("job_id", d.Job.ID),
		zap.String("kind", string(d.Job.Kind)),
		zap.String("to", d.Job.To))

	msg, err := messageFor(d.Job)
	if err == nil {
		err = w.sender.Send(ctx, msg)
	}
	if err != nil {
		logger.Error("notification job failed", zap.Error(err))
	} else {
		logger.Info("notification sent")
	}
	w.metrics.RecordJob(string(d.Job.Kind), err == nil)

	if ackErr := w.source.Ack(context.WithoutCancel(ctx), d.MessageID); ackErr != nil {
		logger.Warn("ack notification job", zap.String("message_id", d.MessageID), zap.Error(ackErr))
	}
}

func messageFor(job queue.Job) (mailer.Message, error) {
	switch job.Kind {
	case queue.KindAutoReply:
		return mailer.AutoReply(job.To), nil
	case queue.KindCloseNotice:
		return mailer.CloseNotice(job.To), nil
	case queue.KindGenericEmail:
		return mailer.Message{To: job.To, Subject: job.Subject, Body: job.Body}, nil
	default:
		return mailer.Message{}, fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
