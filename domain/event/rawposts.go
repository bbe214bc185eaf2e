package event

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RawPostRow is one raw_posts row flagged as a merge candidate by the
// ingestion collaborator (out of this pipeline's scope per the Event
// Core boundary) and awaiting compaction into an Event.
type RawPostRow struct {
	ID             int64
	Source         string
	Text           string
	TS             time.Time
	URLs           []string
	TokenCA        string
	Symbol         string
	SentimentScore *float64
	Keywords       []string
}

// RawPostReader lists candidate raw_posts for the periodic compaction job.
type RawPostReader interface {
	ListCandidates(ctx context.Context, since time.Time, limit int) ([]RawPostRow, error)
}

// PostgresRawPostReader implements RawPostReader against the raw_posts
// table populated by the (out-of-scope) ingestion collaborator.
type PostgresRawPostReader struct {
	db *sql.DB
}

// NewPostgresRawPostReader builds a PostgresRawPostReader.
func NewPostgresRawPostReader(db *sql.DB) *PostgresRawPostReader {
	return &PostgresRawPostReader{db: db}
}

func (r *PostgresRawPostReader) ListCandidates(ctx context.Context, since time.Time, limit int) ([]RawPostRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source, text, ts, urls, token_ca, symbol, sentiment_score, keywords
		FROM raw_posts
		WHERE is_candidate AND ts >= $1
		ORDER BY ts ASC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list candidate raw_posts: %w", err)
	}
	defer rows.Close()

	var out []RawPostRow
	for rows.Next() {
		var row RawPostRow
		var urlsRaw, keywordsRaw []byte
		var tokenCA, symbol sql.NullString
		var sentiment sql.NullFloat64
		if err := rows.Scan(&row.ID, &row.Source, &row.Text, &row.TS, &urlsRaw, &tokenCA, &symbol, &sentiment, &keywordsRaw); err != nil {
			return nil, fmt.Errorf("scan raw_posts row: %w", err)
		}
		_ = json.Unmarshal(urlsRaw, &row.URLs)
		_ = json.Unmarshal(keywordsRaw, &row.Keywords)
		row.TokenCA = tokenCA.String
		row.Symbol = symbol.String
		if sentiment.Valid {
			v := sentiment.Float64
			row.SentimentScore = &v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// InferChainID applies the same URL-heuristic chain inference
// original_source/api/events.py's compaction job uses: an etherscan or
// dexscreener.com/ethereum link implies "eth", a bscscan or
// dexscreener.com/bsc link implies "bsc", a solscan or
// dexscreener.com/solana link implies "sol", otherwise the chain is left
// unset. The first matching URL decides.
func InferChainID(urls []string) string {
	for _, u := range urls {
		lower := strings.ToLower(u)
		switch {
		case strings.Contains(lower, "etherscan.io"), strings.Contains(lower, "dexscreener.com/ethereum"):
			return "eth"
		case strings.Contains(lower, "bscscan.com"), strings.Contains(lower, "dexscreener.com/bsc"):
			return "bsc"
		case strings.Contains(lower, "solscan.io"), strings.Contains(lower, "dexscreener.com/solana"):
			return "sol"
		}
	}
	return ""
}
