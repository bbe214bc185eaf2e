package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeStore struct {
	items      []Item
	done       []int64
	retried    []int64
	dlq        []int64
	retryErr   error
}

func (f *fakeStore) Enqueue(ctx context.Context, channelID string, threadID *string, eventKey string, payload []byte) error {
	return nil
}

func (f *fakeStore) DequeueBatch(ctx context.Context, limit int) ([]Item, error) {
	items := f.items
	f.items = nil
	return items, nil
}

func (f *fakeStore) MarkDone(ctx context.Context, id int64) error {
	f.done = append(f.done, id)
	return nil
}

func (f *fakeStore) MarkRetry(ctx context.Context, id int64, attempt int, nextTryAt time.Time, lastError string) error {
	f.retried = append(f.retried, id)
	return f.retryErr
}

func (f *fakeStore) MarkDLQ(ctx context.Context, item Item, lastError string) error {
	f.dlq = append(f.dlq, item.ID)
	return nil
}

type fakeSender struct {
	outcomes map[int64]SendOutcome
}

func (f *fakeSender) Send(ctx context.Context, item Item) SendOutcome {
	return f.outcomes[item.ID]
}

func TestWorkerDrainMarksSuccessfulSendDone(t *testing.T) {
	store := &fakeStore{items: []Item{{ID: 1, Attempt: 0}}}
	sender := &fakeSender{outcomes: map[int64]SendOutcome{1: {Success: true}}}
	w := NewWorker(store, sender, nil, 10, 6, time.Second, time.Minute)

	done, retried, dlq, err := w.Drain(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, done)
	assert.Equal(t, 0, retried)
	assert.Equal(t, 0, dlq)
	assert.Equal(t, []int64{1}, store.done)
}

func TestWorkerDrainRetriesRetryableBelowMaxAttempts(t *testing.T) {
	store := &fakeStore{items: []Item{{ID: 2, Attempt: 1}}}
	sender := &fakeSender{outcomes: map[int64]SendOutcome{2: {Success: false, Retryable: true, Err: errors.New("503")}}}
	w := NewWorker(store, sender, nil, 10, 6, time.Second, time.Minute)

	_, retried, dlq, err := w.Drain(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, retried)
	assert.Equal(t, 0, dlq)
	assert.Equal(t, []int64{2}, store.retried)
}

func TestWorkerDrainMovesToDLQOnAttemptsExhausted(t *testing.T) {
	store := &fakeStore{items: []Item{{ID: 3, Attempt: 5}}}
	sender := &fakeSender{outcomes: map[int64]SendOutcome{3: {Success: false, Retryable: true, Err: errors.New("503")}}}
	w := NewWorker(store, sender, nil, 10, 6, time.Second, time.Minute)

	_, retried, dlq, err := w.Drain(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, retried)
	assert.Equal(t, 1, dlq)
	assert.Equal(t, []int64{3}, store.dlq)
}

func TestWorkerDrainMovesNonRetryableStraightToDLQ(t *testing.T) {
	store := &fakeStore{items: []Item{{ID: 4, Attempt: 0}}}
	sender := &fakeSender{outcomes: map[int64]SendOutcome{4: {Success: false, Retryable: false, Err: errors.New("400 bad request")}}}
	w := NewWorker(store, sender, nil, 10, 6, time.Second, time.Minute)

	_, retried, dlq, err := w.Drain(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, retried)
	assert.Equal(t, 1, dlq)
}

func TestBackoffForCapsAtMaxBackoff(t *testing.T) {
	w := NewWorker(nil, nil, nil, 10, 6, time.Second, 5*time.Second)
	d := w.backoffFor(10)
	assert.LessOrEqual(t, d, 6*time.Second, "jittered backoff should stay within 20% of the capped max")
}
