package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/helpdesk-kit/ticket-service/internal/config"
)

const (
	payloadField = "job"
	reclaimBatch = 50
)

// RedisQueue carries notification jobs over a Redis stream consumed by a group.
// Enqueue only touches an in-process buffer; Run moves buffered jobs to the stream.
type RedisQueue struct {
	client       redis.Cmdable
	cfg          config.QueueConfig
	logger       *zap.Logger
	buffer       chan Job
	now          func() time.Time
	flushTimeout time.Duration
}

// NewRedisQueue builds the queue. Call Run to start publishing.
func NewRedisQueue(client redis.Cmdable, cfg config.QueueConfig, logger *zap.Logger) *RedisQueue {
	size := cfg.BufferSize
	if size <= 0 {
		size = 256
	}
	return &RedisQueue{
		client:       client,
		cfg:          cfg,
		logger:       logger,
		buffer:       make(chan Job, size),
		now:          time.Now,
		flushTimeout: cfg.FlushTimeout(),
	}
}

// Enqueue never blocks: when the buffer is full the job is dropped and logged.
func (q *RedisQueue) Enqueue(_ context.Context, job Job) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = q.now().UTC()
	}
	select {
	case q.buffer <- job:
	default:
		q.logger.Warn("notification buffer full; dropping job",
			zap.String("job_id", job.ID),
			zap.String("kind", string(job.Kind)))
	}
}

// Run publishes buffered jobs until ctx is cancelled, then flushes what is left.
func (q *RedisQueue) Run(ctx context.Context) {
	for {
		select {
		case job := <-q.buffer:
			q.publishLogged(ctx, job)
		case <-ctx.Done():
			q.flush()
			return
		}
	}
}

// flush publishes what is left under one deadline; jobs still buffered when it
// passes are dropped and counted.
func (q *RedisQueue) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), q.flushTimeout)
	defer cancel()

	dropped := 0
	for {
		select {
		case job := <-q.buffer:
			if ctx.Err() != nil {
				dropped++
				continue
			}
			q.publishLogged(ctx, job)
		default:
			if dropped > 0 {
				q.logger.Warn("shutdown flush deadline passed; dropping notification jobs", zap.Int("dropped", dropped))
			}
			return
		}
	}
}

func (q *RedisQueue) publishLogged(ctx context.Context, job Job) {
	if err := q.publish(ctx, job); err != nil {
		q.logger.Error("failed to enqueue notification job",
			zap.String("job_id", job.ID),
			zap.String("kind", string(job.Kind)),
			zap.Error(err))
		return
	}
	q.logger.Debug("notification job enqueued", zap.String("job_id", job.ID), zap.String("kind", string(job.Kind)))
}

func (q *RedisQueue) publish(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if timeout := q.cfg.EnqueueTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.cfg.Stream,
		Values: map[string]interface{}{payloadField: string(payload)},
	}).Err()
}

// EnsureGroup creates the consumer group (and stream) if missing.
func (q *RedisQueue) EnsureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.cfg.Stream, q.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// Read fetches up to count new deliveries for consumer, waiting at most the configured block time.
// Entries that cannot be decoded are acknowledged and skipped.
func (q *RedisQueue) Read(ctx context.Context, consumer string, count int64) ([]Delivery, error) {
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.cfg.Group,
		Consumer: consumer,
		Streams:  []string{q.cfg.Stream, ">"},
		Count:    count,
		Block:    q.cfg.Block(),
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var deliveries []Delivery
	for _, stream := range streams {
		deliveries = append(deliveries, q.decodeMessages(ctx, stream.Messages)...)
	}
	return deliveries, nil
}

// decodeMessages acknowledges and skips entries that do not carry a job.
func (q *RedisQueue) decodeMessages(ctx context.Context, msgs []redis.XMessage) []Delivery {
	deliveries := make([]Delivery, 0, len(msgs))
	for _, msg := range msgs {
		job, err := decodeJob(msg.Values)
		if err != nil {
			q.logger.Warn("discarding malformed notification entry", zap.String("message_id", msg.ID), zap.Error(err))
			if ackErr := q.Ack(ctx, msg.ID); ackErr != nil {
				q.logger.Warn("ack failed", zap.String("message_id", msg.ID), zap.Error(ackErr))
			}
			continue
		}
		deliveries = append(deliveries, Delivery{MessageID: msg.ID, Job: job})
	}
	return deliveries
}

// Reclaim takes over entries that were delivered to some consumer but left
// unacknowledged for at least the configured idle time, for instance by a
// process that died mid-send. It walks the whole pending list.
func (q *RedisQueue) Reclaim(ctx context.Context, consumer string) ([]Delivery, error) {
	var deliveries []Delivery
	start := "0-0"
	for {
		msgs, next, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   q.cfg.Stream,
			Group:    q.cfg.Group,
			Consumer: consumer,
			MinIdle:  q.cfg.ReclaimIdle(),
			Start:    start,
			Count:    reclaimBatch,
		}).Result()
		if err != nil {
			return deliveries, fmt.Errorf("reclaim pending jobs: %w", err)
		}
		deliveries = append(deliveries, q.decodeMessages(ctx, msgs)...)
		if next == "0-0" || next == "" || next == start {
			return deliveries, nil
		}
		start = next
	}
}

// Ack marks a delivery as handled.
func (q *RedisQueue) Ack(ctx context.Context, messageID string) error {
	return q.client.XAck(ctx, q.cfg.Stream, q.cfg.Group, messageID).Err()
}

func decodeJob(values map[string]interface{}) (Job, error) {
	raw, ok := values[payloadField].(string)
	if !ok {
		return Job{}, errors.New("missing job payload")
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	return job, nil
}
