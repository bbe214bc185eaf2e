package replay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeStore struct {
	mu      sync.Mutex
	rows    []State
	upserts []State
}

func (f *fakeStore) EnsureTable(ctx context.Context) error { return nil }

func (f *fakeStore) ListFailed(ctx context.Context, since *time.Time, start, end *time.Time) ([]State, error) {
	return f.rows, nil
}

func (f *fakeStore) Upsert(ctx context.Context, uniqueKey, source string, payload []byte, status string, latencyMs int, replayErr error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, State{UniqueKey: uniqueKey, Source: source, LastStatus: status})
	return nil
}

type fakeSender struct {
	mu        sync.Mutex
	responses map[string][]int
	calls     int
}

func (f *fakeSender) Send(ctx context.Context, endpoint string, headers map[string]string, payload []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	seq := f.responses[endpoint]
	if len(seq) == 0 {
		return 200, nil
	}
	status := seq[0]
	f.responses[endpoint] = seq[1:]
	return status, nil
}

func TestRedriveDryRunDoesNotCallSender(t *testing.T) {
	store := &fakeStore{rows: []State{{UniqueKey: "k1", Source: "x", Payload: []byte(`{}`)}}}
	sender := &fakeSender{responses: map[string][]int{}}
	driver := NewDriver(store, sender, map[string]string{"x": "http://x.test/ingest"}, "", "", "")

	result, err := driver.Redrive(context.Background(), time.Now(), Options{DryRun: true})
	assert.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 0, sender.calls)
}

func TestRedriveMarksMissingEndpointAsFailure(t *testing.T) {
	store := &fakeStore{rows: []State{{UniqueKey: "k1", Source: "unknown", Payload: []byte(`{}`)}}}
	sender := &fakeSender{responses: map[string][]int{}}
	driver := NewDriver(store, sender, map[string]string{"x": "http://x.test/ingest"}, "", "", "")

	result, err := driver.Redrive(context.Background(), time.Now(), Options{Jobs: 2, MaxRetries: 1})
	assert.NoError(t, err)
	assert.Len(t, result.Failures, 1)
	assert.Contains(t, result.Failures[0].Error, "missing endpoint")
}

func TestRedriveSucceedsOnFirstAttempt(t *testing.T) {
	store := &fakeStore{rows: []State{{UniqueKey: "k1", Source: "x", Payload: []byte(`{}`)}}}
	sender := &fakeSender{responses: map[string][]int{"http://x.test/ingest": {200}}}
	driver := NewDriver(store, sender, map[string]string{"x": "http://x.test/ingest"}, "", "", "")

	result, err := driver.Redrive(context.Background(), time.Now(), Options{Jobs: 2, MaxRetries: 3})
	assert.NoError(t, err)
	assert.Equal(t, 1, result.Success)
	assert.Empty(t, result.Failures)
}

func TestRedriveRetriesUntilMaxThenFails(t *testing.T) {
	store := &fakeStore{rows: []State{{UniqueKey: "k1", Source: "x", Payload: []byte(`{}`)}}}
	sender := &fakeSender{responses: map[string][]int{"http://x.test/ingest": {500, 500}}}
	driver := NewDriver(store, sender, map[string]string{"x": "http://x.test/ingest"}, "", "", "")

	result, err := driver.Redrive(context.Background(), time.Now(), Options{Jobs: 1, MaxRetries: 2})
	assert.NoError(t, err)
	assert.Len(t, result.Failures, 1)
	assert.Equal(t, 2, result.Failures[0].Attempts)
}

func TestParseSincePropagatesIntoRedrive(t *testing.T) {
	store := &fakeStore{}
	sender := &fakeSender{responses: map[string][]int{}}
	driver := NewDriver(store, sender, map[string]string{}, "", "", "")

	_, err := driver.Redrive(context.Background(), time.Now(), Options{Since: "bogus"})
	assert.Error(t, err)
}
