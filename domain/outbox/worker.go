package outbox

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// Sender dispatches one item's payload to its channel and classifies the
// outcome for the retry/DLQ state machine.
type Sender interface {
	Send(ctx context.Context, item Item) SendOutcome
}

// Worker drains due push_outbox rows in batches, applying the
// retry-with-backoff / DLQ-on-exhaustion transition per item.
type Worker struct {
	store       Store
	sender      Sender
	log         *logrus.Logger
	batchSize   int
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// NewWorker builds a Worker.
func NewWorker(store Store, sender Sender, log *logrus.Logger, batchSize, maxAttempts int, baseBackoff, maxBackoff time.Duration) *Worker {
	return &Worker{
		store:       store,
		sender:      sender,
		log:         log,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
	}
}

// Drain processes one batch of due items and returns how many were
// dispatched, retried, and moved to DLQ.
func (w *Worker) Drain(ctx context.Context) (done, retried, dlq int, err error) {
	items, err := w.store.DequeueBatch(ctx, w.batchSize)
	if err != nil {
		return 0, 0, 0, err
	}

	for _, item := range items {
		outcome := w.sender.Send(ctx, item)

		switch {
		case outcome.Success:
			if err := w.store.MarkDone(ctx, item.ID); err != nil {
				w.logError("outbox.mark_done_failed", item, err)
				continue
			}
			done++

		case outcome.Retryable && item.Attempt+1 < w.maxAttempts:
			attempt := item.Attempt + 1
			nextTryAt := time.Now().Add(w.backoffFor(attempt))
			lastError := errString(outcome.Err)
			if err := w.store.MarkRetry(ctx, item.ID, attempt, nextTryAt, lastError); err != nil {
				w.logError("outbox.mark_retry_failed", item, err)
				continue
			}
			retried++

		default:
			lastError := errString(outcome.Err)
			if err := w.store.MarkDLQ(ctx, item, lastError); err != nil {
				w.logError("outbox.mark_dlq_failed", item, err)
				continue
			}
			dlq++
		}
	}

	return done, retried, dlq, nil
}

// backoffFor computes min(MaxBackoff, Base*2^attempt) with +/-20% jitter,
// mirroring the teacher's resilience package's addJitter.
func (w *Worker) backoffFor(attempt int) time.Duration {
	raw := float64(w.baseBackoff) * math.Pow(2, float64(attempt))
	capped := math.Min(raw, float64(w.maxBackoff))
	return addJitter(time.Duration(capped), 0.2)
}

func addJitter(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	delta := float64(d) * jitter
	return d + time.Duration(rand.Float64()*delta*2-delta)
}

func (w *Worker) logError(stage string, item Item, err error) {
	if w.log == nil {
		return
	}
	w.log.WithFields(logrus.Fields{
		"stage":     stage,
		"outbox_id": item.ID,
		"event_key": item.EventKey,
		"error":     err,
	}).Error(stage)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
