package event

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	pipelineerrors "github.com/Tracy625/event-stream-starter-sub001/internal/platform/errors"
)

// lockNotAvailable is the Postgres error code returned for FOR UPDATE
// NOWAIT when the row is already locked by another transaction.
const lockNotAvailable = "55P03"

// ConflictFallbackHook is invoked each time the compaction pass gives up
// after exhausting EVENT_DEADLOCK_MAX_RETRY, so callers can increment
// insert_conflict_fallback_total without this package depending on the
// metrics package directly.
type ConflictFallbackHook func()

// PostgresStore implements Store against a Postgres events table.
type PostgresStore struct {
	db         *sql.DB
	onFallback ConflictFallbackHook
}

// NewPostgresStore creates a Postgres-backed event store.
func NewPostgresStore(db *sql.DB, onFallback ConflictFallbackHook) *PostgresStore {
	if onFallback == nil {
		onFallback = func() {}
	}
	return &PostgresStore{db: db, onFallback: onFallback}
}

func (s *PostgresStore) Get(ctx context.Context, eventKey string) (Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT event_key, symbol, token_ca, topic_hash, time_bucket_start, start_ts, last_ts,
		       evidence_count, candidate_score, keywords_norm, version,
		       last_sentiment_label, last_sentiment_score, refined_symbol, refined_token_ca,
		       goplus_risk, buy_tax, sell_tax, lp_lock_days, honeypot,
		       topic_entities, evidence_refs, evidence
		FROM events WHERE event_key = $1
	`, eventKey)
	return scanEvent(row)
}

func scanEvent(row *sql.Row) (Event, error) {
	var (
		e                 Event
		symbol, tokenCA   sql.NullString
		topicHash         sql.NullString
		sentimentLabel    sql.NullString
		sentimentScore    sql.NullFloat64
		refinedSymbol     sql.NullString
		refinedTokenCA    sql.NullString
		goplusRisk        sql.NullString
		buyTax, sellTax   sql.NullFloat64
		lpLockDays        sql.NullInt64
		honeypot          sql.NullBool
		keywordsRaw       []byte
		entitiesRaw       []byte
		refsRaw           []byte
		evidenceRaw       []byte
	)
	err := row.Scan(
		&e.EventKey, &symbol, &tokenCA, &topicHash, &e.TimeBucketStart, &e.StartTS, &e.LastTS,
		&e.EvidenceCount, &e.CandidateScore, &keywordsRaw, &e.Version,
		&sentimentLabel, &sentimentScore, &refinedSymbol, &refinedTokenCA,
		&goplusRisk, &buyTax, &sellTax, &lpLockDays, &honeypot,
		&entitiesRaw, &refsRaw, &evidenceRaw,
	)
	if err != nil {
		return Event{}, err
	}
	e.Symbol = symbol.String
	e.TokenCA = tokenCA.String
	e.TopicHash = topicHash.String
	e.LastSentimentLabel = sentimentLabel.String
	if sentimentScore.Valid {
		v := sentimentScore.Float64
		e.LastSentimentScore = &v
	}
	e.RefinedSymbol = refinedSymbol.String
	e.RefinedTokenCA = refinedTokenCA.String
	e.GoplusRisk = goplusRisk.String
	if buyTax.Valid {
		v := buyTax.Float64
		e.BuyTax = &v
	}
	if sellTax.Valid {
		v := sellTax.Float64
		e.SellTax = &v
	}
	if lpLockDays.Valid {
		v := int(lpLockDays.Int64)
		e.LPLockDays = &v
	}
	if honeypot.Valid {
		v := honeypot.Bool
		e.Honeypot = &v
	}
	_ = json.Unmarshal(keywordsRaw, &e.KeywordsNorm)
	_ = json.Unmarshal(entitiesRaw, &e.TopicEntities)
	_ = json.Unmarshal(refsRaw, &e.EvidenceRefs)
	_ = json.Unmarshal(evidenceRaw, &e.Evidence)
	return e, nil
}

// Upsert implements the upsert contract from the component design:
// insert-or-merge with a monotonic last_ts, an append-then-compact
// evidence pass under FOR UPDATE NOWAIT, and a deadlock-retry-then-
// fallback path that trades compaction for availability.
func (s *PostgresStore) Upsert(ctx context.Context, eventKey string, ev Event, incoming []EvidenceItem, env Env) (UpsertResult, error) {
	ev.EventKey = eventKey
	ev.CandidateScore = CandidateScore(env, ev.LastSentimentScore, len(ev.KeywordsNorm))
	incomingJSON, err := json.Marshal(incoming)
	if err != nil {
		return UpsertResult{}, pipelineerrors.Fatal("marshal incoming evidence", err)
	}
	keywordsJSON, _ := json.Marshal(ev.KeywordsNorm)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return UpsertResult{}, pipelineerrors.Retryable("event.upsert.begin", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (event_key, symbol, token_ca, topic_hash, time_bucket_start, start_ts, last_ts,
		                     evidence_count, candidate_score, keywords_norm, version, evidence, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
		ON CONFLICT (event_key) DO UPDATE SET
			last_ts = GREATEST(events.last_ts, EXCLUDED.last_ts),
			candidate_score = EXCLUDED.candidate_score,
			evidence = events.evidence || EXCLUDED.evidence,
			updated_at = now()
	`, eventKey, nullIfEmpty(ev.Symbol), nullIfEmpty(ev.TokenCA), nullIfEmpty(ev.TopicHash),
		ev.TimeBucketStart, ev.StartTS, ev.LastTS, len(incoming), ev.CandidateScore,
		keywordsJSON, orDefault(ev.Version, env.KeyVersion), incomingJSON)
	if err != nil {
		return UpsertResult{}, classifyPQError("event.upsert.insert", err)
	}

	if err := tx.Commit(); err != nil {
		return UpsertResult{}, pipelineerrors.Retryable("event.upsert.commit", err)
	}

	result, compactErr := s.compact(ctx, eventKey, env)
	if compactErr != nil {
		var pqErr *pq.Error
		if !errors.As(compactErr, &pqErr) || pqErr.Code != lockNotAvailable {
			return UpsertResult{}, pipelineerrors.Fatal("event.upsert.compact", compactErr)
		}
		// Fallback already recorded inside compact; the append above is
		// durable regardless, so we still return a best-effort result.
		row := s.db.QueryRowContext(ctx, `SELECT evidence_count, candidate_score FROM events WHERE event_key = $1`, eventKey)
		var count int
		var score float64
		_ = row.Scan(&count, &score)
		return UpsertResult{EventKey: eventKey, EvidenceCount: count, CandidateScore: score}, nil
	}
	return result, nil
}

// compact performs the row-lock-and-rewrite evidence dedup pass, retrying
// up to env.DeadlockMaxRetry times on lock conflict before falling back.
func (s *PostgresStore) compact(ctx context.Context, eventKey string, env Env) (UpsertResult, error) {
	maxRetry := env.DeadlockMaxRetry
	if maxRetry <= 0 {
		maxRetry = 3
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetry; attempt++ {
		result, err := s.compactOnce(ctx, eventKey, env)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !isLockConflict(err) {
			return UpsertResult{}, err
		}
		time.Sleep(time.Duration(attempt+1) * 20 * time.Millisecond)
	}

	s.onFallback()
	return UpsertResult{}, fmt.Errorf("event.upsert.compact: exhausted retries: %w", lastErr)
}

func (s *PostgresStore) compactOnce(ctx context.Context, eventKey string, env Env) (UpsertResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return UpsertResult{}, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT evidence, candidate_score FROM events WHERE event_key = $1 FOR UPDATE NOWAIT`, eventKey)
	var evidenceRaw []byte
	var score float64
	if err := row.Scan(&evidenceRaw, &score); err != nil {
		return UpsertResult{}, err
	}

	var items []EvidenceItem
	if err := json.Unmarshal(evidenceRaw, &items); err != nil {
		return UpsertResult{}, pipelineerrors.Fatal("unmarshal evidence for compaction", err)
	}

	deduped := DedupEvidence(items, nil, env.MergeStrict, "")
	dedupedJSON, err := json.Marshal(deduped)
	if err != nil {
		return UpsertResult{}, err
	}

	// Compaction only dedups evidence; candidate_score was already derived
	// from the post's real sentiment/keyword count at insert time and is
	// left untouched here.
	_, err = tx.ExecContext(ctx, `
		UPDATE events SET evidence = $2, evidence_count = $3, updated_at = now()
		WHERE event_key = $1
	`, eventKey, dedupedJSON, len(deduped))
	if err != nil {
		return UpsertResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return UpsertResult{}, err
	}

	return UpsertResult{EventKey: eventKey, EvidenceCount: len(deduped), CandidateScore: score}, nil
}

func isLockConflict(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == lockNotAvailable
}

func classifyPQError(operation string, err error) error {
	if isLockConflict(err) {
		return pipelineerrors.Retryable(operation, err)
	}
	return pipelineerrors.Fatal(operation, err)
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
