package replay

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestEnsureTableExecutesDDL(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS replay_state`).WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, store.EnsureTable(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListFailedAppliesSinceFilter(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	since := time.Now().Add(-24 * time.Hour)
	rows := sqlmock.NewRows([]string{"unique_key", "source", "payload", "last_status", "last_error", "last_attempt_at", "last_latency_ms"}).
		AddRow("k1", "x", []byte(`{"a":1}`), "fail:500", "boom", time.Now(), 120)

	mock.ExpectQuery(`SELECT unique_key, source, payload, last_status, last_error, last_attempt_at, last_latency_ms\s+FROM replay_state WHERE last_status IS DISTINCT FROM 'success' AND last_attempt_at >= \$1\s+ORDER BY last_attempt_at ASC`).
		WithArgs(since).
		WillReturnRows(rows)

	got, err := store.ListFailed(context.Background(), &since, nil, nil)
	assert.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "k1", got[0].UniqueKey)
	assert.Equal(t, "fail:500", got[0].LastStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSendsComputedErrorText(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	mock.ExpectExec(`INSERT INTO replay_state`).
		WithArgs("k1", "x", []byte(`{}`), "success", 50, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.Upsert(context.Background(), "k1", "x", []byte(`{}`), "success", 50, nil)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParseSinceRelativeDuration(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cutoff, err := ParseSince("24h", now)
	assert.NoError(t, err)
	assert.Equal(t, now.Add(-24*time.Hour), cutoff)
}

func TestParseSinceAbsoluteTimestamp(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cutoff, err := ParseSince("2025-12-01T00:00:00Z", now)
	assert.NoError(t, err)
	assert.Equal(t, 2025, cutoff.Year())
}

func TestParseSinceRejectsGarbage(t *testing.T) {
	_, err := ParseSince("not-a-time", time.Now())
	assert.Error(t, err)
}
