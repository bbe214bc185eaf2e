package event

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestUpsertInsertsAndCompacts(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	fallbackCalled := false
	store := NewPostgresStore(db, func() { fallbackCalled = true })

	now := time.Now().UTC()
	sentiment := 0.5
	ev := Event{TimeBucketStart: now, StartTS: now, LastTS: now, LastSentimentScore: &sentiment, KeywordsNorm: []string{"$foo", "$bar"}}
	incoming := []EvidenceItem{{Source: "x", Ref: map[string]interface{}{"id": "1"}}}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO events`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	evidenceJSON := `[{"source":"x","ts":"0001-01-01T00:00:00Z","ref":{"id":"1"}}]`
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT evidence, candidate_score FROM events WHERE event_key = \$1 FOR UPDATE NOWAIT`).
		WithArgs("ek1").
		WillReturnRows(sqlmock.NewRows([]string{"evidence", "candidate_score"}).AddRow([]byte(evidenceJSON), 0.65))
	mock.ExpectExec(`UPDATE events SET evidence`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := store.Upsert(context.Background(), "ek1", ev, incoming, DefaultEnv())
	assert.NoError(t, err)
	assert.Equal(t, "ek1", result.EventKey)
	assert.Equal(t, 1, result.EvidenceCount)
	assert.InDelta(t, 0.65, result.CandidateScore, 0.0001)
	assert.False(t, fallbackCalled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCompactFallbackOnLockConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	fallbackCalled := false
	store := NewPostgresStore(db, func() { fallbackCalled = true })
	env := DefaultEnv()
	env.DeadlockMaxRetry = 1

	now := time.Now().UTC()
	ev := Event{TimeBucketStart: now, StartTS: now, LastTS: now}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO events`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	lockErr := &pq.Error{Code: "55P03", Message: "could not obtain lock"}
	for i := 0; i <= env.DeadlockMaxRetry; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT evidence, candidate_score FROM events WHERE event_key = \$1 FOR UPDATE NOWAIT`).
			WithArgs("ek2").
			WillReturnError(lockErr)
		mock.ExpectRollback()
	}
	mock.ExpectQuery(`SELECT evidence_count, candidate_score FROM events WHERE event_key = \$1`).
		WithArgs("ek2").
		WillReturnRows(sqlmock.NewRows([]string{"evidence_count", "candidate_score"}).AddRow(1, 0.5))

	result, err := store.Upsert(context.Background(), "ek2", ev, nil, env)
	assert.NoError(t, err)
	assert.Equal(t, "ek2", result.EventKey)
	assert.True(t, fallbackCalled)
}
