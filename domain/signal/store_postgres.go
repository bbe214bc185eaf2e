package signal

import (
	"context"
	"database/sql"
	"time"
)

// PostgresWindowCounter implements WindowCounter against raw_posts.
type PostgresWindowCounter struct {
	db        *sql.DB
	timeoutMs int
}

// NewPostgresWindowCounter creates a WindowCounter with HEAT_TIMEOUT_MS
// applied as a per-statement timeout.
func NewPostgresWindowCounter(db *sql.DB, timeoutMs int) *PostgresWindowCounter {
	return &PostgresWindowCounter{db: db, timeoutMs: timeoutMs}
}

func (c *PostgresWindowCounter) Now(ctx context.Context) (time.Time, error) {
	var now time.Time
	err := c.db.QueryRowContext(ctx, `SELECT NOW()`).Scan(&now)
	return now, err
}

func (c *PostgresWindowCounter) CountWindow(ctx context.Context, symbol, tokenCA string, since, until time.Time, maxRows int) (int, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if c.timeoutMs > 0 {
		if _, err := tx.ExecContext(ctx, "SET LOCAL statement_timeout = $1", c.timeoutMs); err != nil {
			return 0, err
		}
	}

	row := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT 1 FROM raw_posts
			WHERE (symbol = $1 OR token_ca = $2) AND ts >= $3 AND ts < $4
			LIMIT $5
		) t
	`, symbol, tokenCA, since, until, maxRows)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, tx.Commit()
}

// PostgresEventKeyResolver implements EventKeyResolver against events.
type PostgresEventKeyResolver struct {
	db *sql.DB
}

// NewPostgresEventKeyResolver creates an EventKeyResolver.
func NewPostgresEventKeyResolver(db *sql.DB) *PostgresEventKeyResolver {
	return &PostgresEventKeyResolver{db: db}
}

func (r *PostgresEventKeyResolver) ResolveByTokenCA(ctx context.Context, tokenCA string) (string, error) {
	var key string
	err := r.db.QueryRowContext(ctx, `SELECT event_key FROM events WHERE token_ca = $1 ORDER BY last_ts DESC LIMIT 1`, tokenCA).Scan(&key)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return key, err
}

func (r *PostgresEventKeyResolver) ResolveBySymbol(ctx context.Context, symbol string) (string, error) {
	var key string
	err := r.db.QueryRowContext(ctx, `SELECT event_key FROM events WHERE symbol = $1 ORDER BY last_ts DESC LIMIT 1`, symbol).Scan(&key)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return key, err
}

// Store is the CRUD contract for Signal rows, used by the on-chain rules
// engine and card pipeline.
type Store interface {
	Upsert(ctx context.Context, s Signal) error
	Get(ctx context.Context, eventKey string, t Type) (Signal, error)
	GetLatest(ctx context.Context, eventKey string) (Signal, error)
	// ListCandidateTokens returns distinct (event_key, token_ca) pairs for
	// signals still in the candidate state, for the verify_onchain_signals
	// job to re-evaluate against fresh on-chain features.
	ListCandidateTokens(ctx context.Context, limit int) ([]CandidateToken, error)
}

// CandidateToken is one event/token pair awaiting on-chain verification.
type CandidateToken struct {
	EventKey string
	TokenCA  string
	Type     Type
}

// PostgresStore implements Store against the signals table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed Signal store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Upsert(ctx context.Context, sig Signal) error {
	featuresJSON, err := marshalFeatures(sig.FeaturesSnapshot)
	if err != nil {
		return err
	}
	rulesJSON, err := marshalStrings(sig.RulesFired)
	if err != nil {
		return err
	}
	topicJSON, err := marshalStrings(sig.TopicFootprints)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO signals (event_key, type, state, ts, risk_level, risk_source, rules_fired,
		                      dex_liquidity, dex_volume_24h, topic_footprints, onchain_asof_ts,
		                      onchain_confidence, heat_slope, source_level, features_snapshot, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now())
		ON CONFLICT (event_key, type) DO UPDATE SET
			state = EXCLUDED.state,
			ts = EXCLUDED.ts,
			risk_level = EXCLUDED.risk_level,
			risk_source = EXCLUDED.risk_source,
			rules_fired = EXCLUDED.rules_fired,
			dex_liquidity = EXCLUDED.dex_liquidity,
			dex_volume_24h = EXCLUDED.dex_volume_24h,
			topic_footprints = EXCLUDED.topic_footprints,
			onchain_asof_ts = EXCLUDED.onchain_asof_ts,
			onchain_confidence = EXCLUDED.onchain_confidence,
			heat_slope = EXCLUDED.heat_slope,
			source_level = EXCLUDED.source_level,
			features_snapshot = EXCLUDED.features_snapshot,
			updated_at = now()
	`, sig.EventKey, string(sig.Type), string(sig.State), sig.TS, sig.RiskLevel, sig.RiskSource, rulesJSON,
		sig.DexLiquidity, sig.DexVolume24h, topicJSON, sig.OnchainAsofTS,
		sig.OnchainConfidence, sig.HeatSlope, sig.SourceLevel, featuresJSON)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, eventKey string, t Type) (Signal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT event_key, type, state, ts, risk_level, risk_source, rules_fired,
		       dex_liquidity, dex_volume_24h, topic_footprints, onchain_asof_ts,
		       onchain_confidence, heat_slope, source_level, features_snapshot
		FROM signals WHERE event_key = $1 AND type = $2
	`, eventKey, string(t))

	var (
		sig                           Signal
		typeStr, stateStr             string
		rulesRaw, topicRaw, featRaw   []byte
	)
	err := row.Scan(&sig.EventKey, &typeStr, &stateStr, &sig.TS, &sig.RiskLevel, &sig.RiskSource, &rulesRaw,
		&sig.DexLiquidity, &sig.DexVolume24h, &topicRaw, &sig.OnchainAsofTS,
		&sig.OnchainConfidence, &sig.HeatSlope, &sig.SourceLevel, &featRaw)
	if err != nil {
		return Signal{}, err
	}
	sig.Type = Type(typeStr)
	sig.State = State(stateStr)
	_ = unmarshalStrings(rulesRaw, &sig.RulesFired)
	_ = unmarshalStrings(topicRaw, &sig.TopicFootprints)
	_ = unmarshalFeatures(featRaw, &sig.FeaturesSnapshot)
	return sig, nil
}

// ListCandidateTokens joins signals to events to find candidate-state rows
// with a known token_ca, for the verify_onchain_signals job.
func (s *PostgresStore) ListCandidateTokens(ctx context.Context, limit int) ([]CandidateToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.event_key, e.token_ca, s.type
		FROM signals s
		JOIN events e ON e.event_key = s.event_key
		WHERE s.state = 'candidate' AND e.token_ca IS NOT NULL AND e.token_ca <> ''
		ORDER BY s.updated_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CandidateToken
	for rows.Next() {
		var c CandidateToken
		var typeStr string
		if err := rows.Scan(&c.EventKey, &c.TokenCA, &typeStr); err != nil {
			return nil, err
		}
		c.Type = Type(typeStr)
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetLatest returns the most recently updated Signal row for an event key
// regardless of type, for read endpoints that don't know the type ahead
// of time.
func (s *PostgresStore) GetLatest(ctx context.Context, eventKey string) (Signal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT event_key, type, state, ts, risk_level, risk_source, rules_fired,
		       dex_liquidity, dex_volume_24h, topic_footprints, onchain_asof_ts,
		       onchain_confidence, heat_slope, source_level, features_snapshot
		FROM signals WHERE event_key = $1
		ORDER BY updated_at DESC LIMIT 1
	`, eventKey)

	var (
		sig                         Signal
		typeStr, stateStr           string
		rulesRaw, topicRaw, featRaw []byte
	)
	err := row.Scan(&sig.EventKey, &typeStr, &stateStr, &sig.TS, &sig.RiskLevel, &sig.RiskSource, &rulesRaw,
		&sig.DexLiquidity, &sig.DexVolume24h, &topicRaw, &sig.OnchainAsofTS,
		&sig.OnchainConfidence, &sig.HeatSlope, &sig.SourceLevel, &featRaw)
	if err != nil {
		return Signal{}, err
	}
	sig.Type = Type(typeStr)
	sig.State = State(stateStr)
	_ = unmarshalStrings(rulesRaw, &sig.RulesFired)
	_ = unmarshalStrings(topicRaw, &sig.TopicFootprints)
	_ = unmarshalFeatures(featRaw, &sig.FeaturesSnapshot)
	return sig, nil
}
