package outbox

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint
// violation, used to absorb duplicate enqueues on (event_key, channel_id).
const uniqueViolation = "23505"

// Store is the persistence contract the worker depends on.
type Store interface {
	Enqueue(ctx context.Context, channelID string, threadID *string, eventKey string, payload []byte) error
	DequeueBatch(ctx context.Context, limit int) ([]Item, error)
	MarkDone(ctx context.Context, id int64) error
	MarkRetry(ctx context.Context, id int64, attempt int, nextTryAt time.Time, lastError string) error
	MarkDLQ(ctx context.Context, item Item, lastError string) error
}

// PostgresStore implements Store against push_outbox/push_outbox_dlq.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore builds a PostgresStore.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Enqueue inserts a new row; a unique-constraint violation on
// (event_key, channel_id) is absorbed silently rather than surfaced.
func (s *PostgresStore) Enqueue(ctx context.Context, channelID string, threadID *string, eventKey string, payload []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO push_outbox (channel_id, thread_id, event_key, payload, status, attempt)
		VALUES ($1, $2, $3, $4, 'pending', 0)
	`, channelID, threadID, eventKey, payload)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return nil
		}
		return err
	}
	return nil
}

// DequeueBatch leases up to limit due rows via FOR UPDATE SKIP LOCKED,
// flipping status back to pending and bumping updated_at before release.
func (s *PostgresStore) DequeueBatch(ctx context.Context, limit int) ([]Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, channel_id, thread_id, event_key, payload, status, attempt, next_try_at, last_error, created_at, updated_at
		FROM push_outbox
		WHERE status IN ('pending', 'retry') AND (next_try_at IS NULL OR next_try_at <= now())
		ORDER BY next_try_at NULLS FIRST, id ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}

	var items []Item
	var ids []int64
	for rows.Next() {
		var it Item
		var status string
		if err := rows.Scan(&it.ID, &it.ChannelID, &it.ThreadID, &it.EventKey, &it.Payload, &status, &it.Attempt, &it.NextTryAt, &it.LastError, &it.CreatedAt, &it.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		it.Status = Status(status)
		items = append(items, it)
		ids = append(ids, it.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `UPDATE push_outbox SET status = 'pending', updated_at = now() WHERE id = $1`, id); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return items, nil
}

// MarkDone transitions a row to done after successful dispatch.
func (s *PostgresStore) MarkDone(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE push_outbox SET status = 'done', updated_at = now() WHERE id = $1`, id)
	return err
}

// MarkRetry records a retryable failure and schedules the next attempt.
func (s *PostgresStore) MarkRetry(ctx context.Context, id int64, attempt int, nextTryAt time.Time, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE push_outbox
		SET status = 'retry', attempt = $2, next_try_at = $3, last_error = $4, updated_at = now()
		WHERE id = $1
	`, id, attempt, nextTryAt, lastError)
	return err
}

// MarkDLQ snapshots item into push_outbox_dlq and flips the live row to dlq.
func (s *PostgresStore) MarkDLQ(ctx context.Context, item Item, lastError string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO push_outbox_dlq (outbox_id, channel_id, thread_id, event_key, payload, attempt, last_error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, item.ID, item.ChannelID, item.ThreadID, item.EventKey, item.Payload, item.Attempt, lastError, item.CreatedAt); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE push_outbox SET status = 'dlq', last_error = $2, updated_at = now() WHERE id = $1`, item.ID, lastError); err != nil {
		return err
	}

	return tx.Commit()
}
