// Package outbox implements the leased push_outbox dequeue and retry/DLQ
// state machine that drains rendered cards out to their dispatch channel.
package outbox

import "time"

// Status enumerates a push_outbox row's lifecycle state.
type Status string

const (
	StatusPending Status = "pending"
	StatusRetry   Status = "retry"
	StatusDone    Status = "done"
	StatusDLQ     Status = "dlq"
)

// Item is one push_outbox row.
type Item struct {
	ID         int64
	ChannelID  string
	ThreadID   *string
	EventKey   string
	Payload    []byte // JSON
	Status     Status
	Attempt    int
	NextTryAt  *time.Time
	LastError  *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SendOutcome classifies a dispatch attempt for the retry/DLQ transition.
type SendOutcome struct {
	Success    bool
	Retryable  bool
	StatusCode int
	Err        error
}
