package replay

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const tableDDL = `CREATE TABLE IF NOT EXISTS replay_state (
    unique_key       TEXT PRIMARY KEY,
    source           TEXT NOT NULL,
    payload          JSONB NOT NULL,
    last_status      TEXT,
    last_attempt_at  TIMESTAMPTZ,
    last_latency_ms  INTEGER,
    last_error       TEXT,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store persists and queries replay_state rows.
type Store interface {
	EnsureTable(ctx context.Context) error
	ListFailed(ctx context.Context, since *time.Time, start, end *time.Time) ([]State, error)
	Upsert(ctx context.Context, uniqueKey, source string, payload []byte, status string, latencyMs int, replayErr error) error
}

// PostgresStore implements Store against a Postgres replay_state table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore builds a Postgres-backed replay state store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureTable mirrors original_source/scripts/_replay_state.py's
// ensure_table: idempotent, safe to call on every CLI invocation.
func (s *PostgresStore) EnsureTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, tableDDL)
	return err
}

// ListFailed returns rows whose last_status is not "success", ordered by
// last_attempt_at ascending, optionally filtered by a since-cutoff or an
// explicit [start, end] window.
func (s *PostgresStore) ListFailed(ctx context.Context, since *time.Time, start, end *time.Time) ([]State, error) {
	query := `SELECT unique_key, source, payload, last_status, last_error, last_attempt_at, last_latency_ms
		FROM replay_state WHERE last_status IS DISTINCT FROM 'success'`
	var args []interface{}
	argN := 1

	if since != nil {
		query += fmt.Sprintf(" AND last_attempt_at >= $%d", argN)
		args = append(args, *since)
		argN++
	}
	if start != nil {
		query += fmt.Sprintf(" AND last_attempt_at >= $%d", argN)
		args = append(args, *start)
		argN++
	}
	if end != nil {
		query += fmt.Sprintf(" AND last_attempt_at <= $%d", argN)
		args = append(args, *end)
		argN++
	}
	query += " ORDER BY last_attempt_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list failed replay rows: %w", err)
	}
	defer rows.Close()

	var out []State
	for rows.Next() {
		var st State
		var lastError sql.NullString
		var lastAttempt sql.NullTime
		var lastLatency sql.NullInt64
		if err := rows.Scan(&st.UniqueKey, &st.Source, &st.Payload, &st.LastStatus, &lastError, &lastAttempt, &lastLatency); err != nil {
			return nil, fmt.Errorf("scan replay row: %w", err)
		}
		if lastError.Valid {
			st.LastError = &lastError.String
		}
		if lastAttempt.Valid {
			t := lastAttempt.Time
			st.LastAttemptAt = &t
		}
		st.LastLatencyMs = int(lastLatency.Int64)
		out = append(out, st)
	}
	return out, rows.Err()
}

// Upsert inserts or updates a replay_state row, stamping last_attempt_at
// with the database's own clock so concurrent replay workers agree on
// ordering. Mirrors the ON CONFLICT(unique_key) DO UPDATE in
// original_source/scripts/_replay_state.py's upsert.
func (s *PostgresStore) Upsert(ctx context.Context, uniqueKey, source string, payload []byte, status string, latencyMs int, replayErr error) error {
	var errText *string
	if replayErr != nil {
		msg := replayErr.Error()
		errText = &msg
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO replay_state (unique_key, source, payload, last_status, last_attempt_at, last_latency_ms, last_error, updated_at)
		VALUES ($1, $2, $3, $4, now(), $5, $6, now())
		ON CONFLICT (unique_key) DO UPDATE SET
			source = EXCLUDED.source,
			payload = EXCLUDED.payload,
			last_status = EXCLUDED.last_status,
			last_attempt_at = EXCLUDED.last_attempt_at,
			last_latency_ms = EXCLUDED.last_latency_ms,
			last_error = EXCLUDED.last_error,
			updated_at = now()
	`, uniqueKey, source, payload, status, latencyMs, errText)
	if err != nil {
		return fmt.Errorf("upsert replay_state: %w", err)
	}
	return nil
}

// ParseSince parses a relative duration like "24h", "30m", "45s", or an
// RFC3339 timestamp, returning the absolute cutoff time. Mirrors
// original_source/scripts/_replay_state.py's parse_since.
func ParseSince(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty since value")
	}

	if d, ok := parseRelativeDuration(value); ok {
		return now.Add(-d), nil
	}

	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse since %q: %w", value, err)
	}
	return t, nil
}

func parseRelativeDuration(value string) (time.Duration, bool) {
	if len(value) < 2 {
		return 0, false
	}
	unit := value[len(value)-1]
	var scale time.Duration
	switch unit {
	case 'h':
		scale = time.Hour
	case 'm':
		scale = time.Minute
	case 's':
		scale = time.Second
	default:
		return 0, false
	}
	n, err := strconv.ParseFloat(value[:len(value)-1], 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(n * float64(scale)), true
}
