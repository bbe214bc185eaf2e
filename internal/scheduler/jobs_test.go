package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Tracy625/event-stream-starter-sub001/domain/event"
	"github.com/Tracy625/event-stream-starter-sub001/domain/signal"
)

type fakeRawPostReader struct {
	rows []event.RawPostRow
}

func (f *fakeRawPostReader) ListCandidates(ctx context.Context, since time.Time, limit int) ([]event.RawPostRow, error) {
	return f.rows, nil
}

type fakeEventStore struct {
	upserts []string
	events  []event.Event
	failOn  string
}

func (f *fakeEventStore) Upsert(ctx context.Context, eventKey string, ev event.Event, incoming []event.EvidenceItem, env event.Env) (event.UpsertResult, error) {
	if eventKey == f.failOn {
		return event.UpsertResult{}, assertErr{}
	}
	f.upserts = append(f.upserts, eventKey)
	f.events = append(f.events, ev)
	return event.UpsertResult{EventKey: eventKey}, nil
}

func (f *fakeEventStore) Get(ctx context.Context, eventKey string) (event.Event, error) {
	return event.Event{}, nil
}

type assertErr struct{}

func (assertErr) Error() string { return "upsert failed" }

func TestCompactTaskSkipsRowsWithoutSymbolOrTokenCA(t *testing.T) {
	reader := &fakeRawPostReader{rows: []event.RawPostRow{
		{ID: 1, Source: "x", Text: "no identity", TS: time.Now()},
		{ID: 2, Source: "x", Text: "has symbol", TS: time.Now(), Symbol: "FOO", Keywords: []string{"$foo", "bar"}},
	}}
	store := &fakeEventStore{}

	task := CompactTask(reader, store, event.DefaultEnv(), 100, nil)
	assert.NoError(t, task(context.Background()))
	assert.Len(t, store.upserts, 1)
	assert.NotEmpty(t, store.events[0].TopicHash)
	assert.Contains(t, store.events[0].KeywordsNorm, "$foo")
}

func TestCompactTaskForcesEventKeyVersionV2(t *testing.T) {
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	reader := &fakeRawPostReader{rows: []event.RawPostRow{
		{ID: 1, Source: "x", Text: "t", TS: ts, Symbol: "FOO"},
	}}
	store := &fakeEventStore{}

	env := event.Env{KeyVersion: "v1"}
	task := CompactTask(reader, store, env, 100, nil)
	assert.NoError(t, task(context.Background()))

	expected, err := event.MakeEventKey(event.Post{Type: "x", Symbol: "FOO", Text: "t", CreatedTS: ts}, event.Env{KeyVersion: "v2"})
	assert.NoError(t, err)
	assert.Len(t, store.upserts, 1)
	assert.Equal(t, expected, store.upserts[0])
}

type fakeSignalStore struct {
	candidates []signal.CandidateToken
	latest     map[string]signal.Signal
	upserted   []signal.Signal
}

func (f *fakeSignalStore) Upsert(ctx context.Context, s signal.Signal) error {
	f.upserted = append(f.upserted, s)
	return nil
}

func (f *fakeSignalStore) Get(ctx context.Context, eventKey string, t signal.Type) (signal.Signal, error) {
	return signal.Signal{}, nil
}

func (f *fakeSignalStore) GetLatest(ctx context.Context, eventKey string) (signal.Signal, error) {
	return f.latest[eventKey], nil
}

func (f *fakeSignalStore) ListCandidateTokens(ctx context.Context, limit int) ([]signal.CandidateToken, error) {
	return f.candidates, nil
}

func TestAggregateTopicsTaskPromotesOnlyRisingTopicSignals(t *testing.T) {
	rising := 0.5
	falling := -0.2
	store := &fakeSignalStore{
		candidates: []signal.CandidateToken{
			{EventKey: "a", Type: signal.TypeTopic},
			{EventKey: "b", Type: signal.TypeTopic},
			{EventKey: "c", Type: signal.TypePrimary},
		},
		latest: map[string]signal.Signal{
			"a": {EventKey: "a", Type: signal.TypeTopic, State: signal.StateCandidate, HeatSlope: &rising},
			"b": {EventKey: "b", Type: signal.TypeTopic, State: signal.StateCandidate, HeatSlope: &falling},
			"c": {EventKey: "c", Type: signal.TypePrimary, State: signal.StateCandidate},
		},
	}

	task := AggregateTopicsTask(store, 100, nil)
	assert.NoError(t, task(context.Background()))
	assert.Len(t, store.upserted, 1)
	assert.Equal(t, "a", store.upserted[0].EventKey)
	assert.Equal(t, signal.StateVerified, store.upserted[0].State)
}

func TestAggregateTopicsTaskSkipsNonTopicCandidates(t *testing.T) {
	store := &fakeSignalStore{
		candidates: []signal.CandidateToken{{EventKey: "c", Type: signal.TypeMarketRisk}},
		latest:     map[string]signal.Signal{},
	}

	task := AggregateTopicsTask(store, 100, nil)
	assert.NoError(t, task(context.Background()))
	assert.Empty(t, store.upserted)
}
