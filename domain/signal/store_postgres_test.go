package signal

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestPostgresStoreUpsertRunsOnConflictUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	sig := Signal{EventKey: "ek1", Type: TypeTopic, State: StateCandidate, TS: time.Now().UTC()}

	mock.ExpectExec(`INSERT INTO signals`).WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.Upsert(context.Background(), sig)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGetLatestReturnsMostRecentRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	now := time.Now().UTC()

	cols := []string{"event_key", "type", "state", "ts", "risk_level", "risk_source", "rules_fired",
		"dex_liquidity", "dex_volume_24h", "topic_footprints", "onchain_asof_ts",
		"onchain_confidence", "heat_slope", "source_level", "features_snapshot"}
	mock.ExpectQuery(`SELECT event_key, type, state, ts, risk_level, risk_source, rules_fired`).
		WithArgs("ek1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"ek1", "topic", "verified", now, "", "", []byte("[]"),
			nil, nil, []byte("[]"), nil, nil, nil, "", []byte("{}"),
		))

	sig, err := store.GetLatest(context.Background(), "ek1")
	assert.NoError(t, err)
	assert.Equal(t, TypeTopic, sig.Type)
	assert.Equal(t, StateVerified, sig.State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreListCandidateTokensJoinsEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)

	mock.ExpectQuery(`SELECT s.event_key, e.token_ca, s.type`).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"event_key", "token_ca", "type"}).
			AddRow("ek1", "0xabc", "topic").
			AddRow("ek2", "0xdef", "market_risk"))

	out, err := store.ListCandidateTokens(context.Background(), 10)
	assert.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, "ek1", out[0].EventKey)
	assert.Equal(t, "0xabc", out[0].TokenCA)
	assert.Equal(t, TypeTopic, out[0].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreListCandidateTokensEmptyResult(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)

	mock.ExpectQuery(`SELECT s.event_key, e.token_ca, s.type`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"event_key", "token_ca", "type"}))

	out, err := store.ListCandidateTokens(context.Background(), 5)
	assert.NoError(t, err)
	assert.Empty(t, out)
}
