package onchain

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
)

// FeatureStore is the pluggable on-chain data backend. spec.md names
// BigQuery as one possible ONCHAIN_BACKEND, but no example repo in this
// codebase's corpus imports a BigQuery client — this store is backed by
// Postgres instead, behind the same interface a BigQuery-backed
// implementation would satisfy, so swapping backends never touches
// callers.
type FeatureStore interface {
	Features(ctx context.Context, chain, address string) ([]Feature, error)
	Freshness(ctx context.Context, chain string) (latestBlock int64, dataAsOf time.Time, err error)
	ExecuteTemplate(ctx context.Context, name string, params QueryParams) (QueryResult, error)
}

// QueryParams carries the bound parameters for a named query template.
type QueryParams struct {
	Address       string
	FromTS        int64
	ToTS          int64
	WindowMinutes int
	TopN          int
	// Fields, when non-empty, projects each result row down to these
	// JSONPath selections (e.g. "$.holder_addr") instead of returning the
	// full row, for callers that only need a subset of columns.
	Fields []string
}

// QueryResult is the response shape for /onchain/query.
type QueryResult struct {
	Rows            []map[string]interface{} `json:"rows"`
	BytesScanned    int64                     `json:"bq_bytes_scanned"`
	CacheHit        bool                      `json:"cache_hit"`
	DataAsOfLagSec  int64                     `json:"data_as_of_lag"`
	Approximate     bool                      `json:"approximate"`
}

// namedTemplates maps the allowed /onchain/query template names to their
// parameterized SQL, mirroring original_source/api/routes/onchain.py's
// Literal["active_addrs_window", "token_transfers_window",
// "top_holders_snapshot"] whitelist: callers can never supply raw SQL.
var namedTemplates = map[string]string{
	"active_addrs_window": `
		SELECT date_trunc('hour', block_time) AS bucket, count(DISTINCT from_addr) AS active_addrs
		FROM onchain_transfers
		WHERE chain = $1 AND token_ca = $2 AND block_time >= $3 AND block_time < $4
		GROUP BY 1 ORDER BY 1 LIMIT 500`,
	"token_transfers_window": `
		SELECT block_time, from_addr, to_addr, amount
		FROM onchain_transfers
		WHERE chain = $1 AND token_ca = $2 AND block_time >= $3 AND block_time < $4
		ORDER BY block_time DESC LIMIT 500`,
	"top_holders_snapshot": `
		SELECT holder_addr, balance
		FROM onchain_holder_snapshot
		WHERE chain = $1 AND token_ca = $2
		ORDER BY balance DESC LIMIT $3`,
}

// windowRequiredTemplates lists the templates that cannot run without an
// explicit time window (top_holders_snapshot is a point-in-time snapshot
// and is exempt).
var windowRequiredTemplates = map[string]bool{
	"active_addrs_window":    true,
	"token_transfers_window": true,
}

// PostgresFeatureStore implements FeatureStore against Postgres tables
// fed by the ingestion pipeline's on-chain indexer.
type PostgresFeatureStore struct {
	db            *sql.DB
	timeout       time.Duration
	maxScannedRows int64
}

// NewPostgresFeatureStore builds a PostgresFeatureStore. maxScannedRows
// stands in for BQ_MAX_SCANNED_GB's cost guard: Postgres has no
// bytes-scanned concept, so this caps the query's EXPLAIN-estimated row
// count instead of a byte count.
func NewPostgresFeatureStore(db *sql.DB, timeout time.Duration, maxScannedRows int64) *PostgresFeatureStore {
	if maxScannedRows <= 0 {
		maxScannedRows = 5_000_000
	}
	return &PostgresFeatureStore{db: db, timeout: timeout, maxScannedRows: maxScannedRows}
}

// Features returns one row per window for the given (chain, address).
func (s *PostgresFeatureStore) Features(ctx context.Context, chain, address string) ([]Feature, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT addr_active, growth_ratio, top10_share, self_loop_ratio, as_of_ts, window_minutes
		FROM onchain_features
		WHERE chain = $1 AND address = $2
		ORDER BY window_minutes ASC
	`, chain, address)
	if err != nil {
		return nil, fmt.Errorf("query onchain features: %w", err)
	}
	defer rows.Close()

	var out []Feature
	for rows.Next() {
		var f Feature
		if err := rows.Scan(&f.ActiveAddrPctl, &f.GrowthRatio, &f.Top10Share, &f.SelfLoopRatio, &f.AsOfTS, &f.WindowMin); err != nil {
			return nil, fmt.Errorf("scan onchain feature row: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Freshness reports the latest indexed block and its observation time.
func (s *PostgresFeatureStore) Freshness(ctx context.Context, chain string) (int64, time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var latestBlock int64
	var dataAsOf time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT latest_block, data_as_of FROM onchain_freshness WHERE chain = $1
	`, chain).Scan(&latestBlock, &dataAsOf)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("query onchain freshness: %w", err)
	}
	return latestBlock, dataAsOf, nil
}

// LintTemplate validates a query's parameters the way
// original_source/api/routes/onchain.py's query_template does before
// ever touching the database: the template must be on the whitelist, a
// time window is required unless the template is exempt, and from_ts
// must precede to_ts.
func LintTemplate(name string, params QueryParams, now time.Time) error {
	if _, ok := namedTemplates[name]; !ok {
		return fmt.Errorf("unknown query template %q", name)
	}
	if !windowRequiredTemplates[name] {
		return nil
	}
	if params.FromTS == 0 && params.ToTS == 0 && params.WindowMinutes <= 0 {
		return fmt.Errorf("time window required: provide from_ts/to_ts or window_minutes")
	}
	if params.FromTS != 0 && params.ToTS != 0 && params.FromTS >= params.ToTS {
		return fmt.Errorf("from_ts must be less than to_ts")
	}
	return nil
}

// resolveWindow fills in from_ts/to_ts from window_minutes when the
// caller only supplied a relative window.
func resolveWindow(params QueryParams, now time.Time) (from, to time.Time) {
	if params.FromTS != 0 && params.ToTS != 0 {
		return time.Unix(params.FromTS, 0).UTC(), time.Unix(params.ToTS, 0).UTC()
	}
	to = now
	from = now.Add(-time.Duration(params.WindowMinutes) * time.Minute)
	return from, to
}

// ExecuteTemplate lints, estimates cost via EXPLAIN, and runs a named
// query template.
func (s *PostgresFeatureStore) ExecuteTemplate(ctx context.Context, name string, params QueryParams) (QueryResult, error) {
	now := time.Now().UTC()
	if err := LintTemplate(name, params, now); err != nil {
		return QueryResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var args []interface{}
	switch name {
	case "top_holders_snapshot":
		topN := params.TopN
		if topN <= 0 {
			topN = 20
		}
		args = []interface{}{"eth", params.Address, topN}
	default:
		from, to := resolveWindow(params, now)
		args = []interface{}{"eth", params.Address, from, to}
	}

	estimatedRows, err := s.estimateRows(ctx, namedTemplates[name], args)
	if err == nil && estimatedRows > s.maxScannedRows {
		return QueryResult{}, fmt.Errorf("query rejected: estimated %d rows exceeds cost guard of %d", estimatedRows, s.maxScannedRows)
	}

	rows, err := s.db.QueryContext(ctx, namedTemplates[name], args...)
	if err != nil {
		return QueryResult{}, fmt.Errorf("execute template %s: %w", name, err)
	}
	defer rows.Close()

	result, err := scanRows(rows)
	if err != nil {
		return QueryResult{}, err
	}
	result.BytesScanned = estimatedRows

	if len(params.Fields) > 0 {
		result.Rows = projectFields(result.Rows, params.Fields)
	}
	return result, nil
}

// projectFields applies JSONPath selections to each row. Every row is
// kept; paths that don't resolve are silently skipped, so a row can come
// back empty. A malformed projection path degrades to "no field", not an
// error surfaced to the caller.
func projectFields(rows []map[string]interface{}, paths []string) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		projected := make(map[string]interface{}, len(paths))
		for _, p := range paths {
			v, err := jsonpath.Get(p, row)
			if err != nil {
				continue
			}
			projected[p] = v
		}
		out = append(out, projected)
	}
	return out
}

// estimateRows asks Postgres's planner for its row estimate, standing in
// for BigQuery's dry-run bytes-scanned guard.
func (s *PostgresFeatureStore) estimateRows(ctx context.Context, query string, args []interface{}) (int64, error) {
	var plan string
	if err := s.db.QueryRowContext(ctx, "EXPLAIN (FORMAT JSON) "+query, args...).Scan(&plan); err != nil {
		return 0, err
	}
	var parsed []struct {
		Plan struct {
			PlanRows float64 `json:"Plan Rows"`
		} `json:"Plan"`
	}
	if err := json.Unmarshal([]byte(plan), &parsed); err != nil || len(parsed) == 0 {
		return 0, fmt.Errorf("parse explain output")
	}
	return int64(parsed[0].Plan.PlanRows), nil
}

func scanRows(rows *sql.Rows) (QueryResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return QueryResult{}, err
	}

	var out []map[string]interface{}
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return QueryResult{}, fmt.Errorf("scan query row: %w", err)
		}
		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			row[strings.ToLower(col)] = vals[i]
		}
		out = append(out, row)
	}
	return QueryResult{Rows: out}, rows.Err()
}
