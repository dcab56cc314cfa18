package queue

import (
	"context"
	"time"
)

// Kind names a notification job.
type Kind string

const (
	KindGenericEmail Kind = "generic_email"
	KindAutoReply    Kind = "auto_reply"
	KindCloseNotice  Kind = "close_notice"
)

// Job is one unit of notification work. Subject and Body are only used by generic_email.
type Job struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	To         string    `json:"to"`
	Subject    string    `json:"subject,omitempty"`
	Body       string    `json:"body,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Delivery is a job read from the stream, identified by its stream entry id.
type Delivery struct {
	MessageID string
	Job       Job
}

// Enqueuer accepts jobs without blocking and without reporting their outcome.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job)
}
