package signal

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"github.com/Tracy625/event-stream-starter-sub001/internal/platform/logging"
)

// EventKeyResolver resolves an event_key from a token_ca or symbol, as
// persist_heat needs an anchor row in signals before it can write.
type EventKeyResolver interface {
	ResolveByTokenCA(ctx context.Context, tokenCA string) (string, error) // "" when no match
	ResolveBySymbol(ctx context.Context, symbol string) (string, error)
}

// Persister writes heat results into signals.features_snapshot.heat.
type Persister struct {
	db       *sql.DB
	resolver EventKeyResolver
	log      *logging.Logger
}

// NewPersister creates a Persister.
func NewPersister(db *sql.DB, resolver EventKeyResolver, log *logging.Logger) *Persister {
	return &Persister{db: db, resolver: resolver, log: log}
}

// heatPayload is the JSON shape written under features_snapshot.heat,
// matching the original persistence contract (includes token/token_ca
// for debugging, plus optional EMA fields).
type heatPayload struct {
	Cnt10m   int       `json:"cnt_10m"`
	Cnt30m   int       `json:"cnt_30m"`
	Slope    *float64  `json:"slope"`
	Trend    string    `json:"trend"`
	AsOfTS   time.Time `json:"asof_ts"`
	Token    string    `json:"token,omitempty"`
	TokenCA  string    `json:"token_ca,omitempty"`
	SlopeEMA *float64  `json:"slope_ema,omitempty"`
	TrendEMA string    `json:"trend_ema,omitempty"`
}

// Persist implements the persist_heat contract: resolves an anchor
// event_key (token_ca first, then symbol when strict_match is false),
// locks the target signals row FOR UPDATE NOWAIT, and atomically merges
// the heat result at the features_snapshot.heat JSON path. It never
// creates a new signals row.
func (p *Persister) Persist(ctx context.Context, symbol, tokenCA string, heat HeatResult, env HeatEnv) (bool, PersistReason) {
	if !env.EnablePersist {
		p.logResult(symbol, tokenCA, "", false, ReasonDisabled)
		return false, ReasonDisabled
	}

	eventKey, resolvedFrom := p.resolveEventKey(ctx, symbol, tokenCA, env.PersistStrictMatch)
	if eventKey == "" {
		p.logResult(symbol, tokenCA, resolvedFrom, false, ReasonEventKeyNotFound)
		return false, ReasonEventKeyNotFound
	}

	payload := heatPayload{
		Cnt10m: heat.Cnt10m, Cnt30m: heat.Cnt30m, Slope: heat.Slope, Trend: heat.Trend,
		AsOfTS: heat.AsOfTS, Token: symbol, TokenCA: tokenCA,
		SlopeEMA: heat.SlopeEMA, TrendEMA: heat.TrendEMA,
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		p.logResult(symbol, tokenCA, resolvedFrom, false, ReasonTimeout)
		return false, ReasonTimeout
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		p.logResult(symbol, tokenCA, resolvedFrom, false, ReasonTimeout)
		return false, ReasonTimeout
	}
	defer tx.Rollback()

	if env.PersistTimeoutMs > 0 {
		if _, err := tx.ExecContext(ctx, "SET LOCAL statement_timeout = $1", env.PersistTimeoutMs); err != nil {
			p.logResult(symbol, tokenCA, resolvedFrom, false, ReasonTimeout)
			return false, ReasonTimeout
		}
	}

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM signals WHERE event_key = $1 FOR UPDATE NOWAIT`, eventKey).Scan(&exists)
	if err != nil {
		if err == sql.ErrNoRows {
			p.logResult(symbol, tokenCA, resolvedFrom, false, ReasonRowNotFound)
			return false, ReasonRowNotFound
		}
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == lockNotAvailableCode {
			p.logResult(symbol, tokenCA, resolvedFrom, false, ReasonLockConflict)
			return false, ReasonLockConflict
		}
		p.logResult(symbol, tokenCA, resolvedFrom, false, ReasonTimeout)
		return false, ReasonTimeout
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE signals
		SET features_snapshot = jsonb_set(COALESCE(features_snapshot, '{}'::jsonb), '{heat}', $2::jsonb, true),
		    ts = now()
		WHERE event_key = $1
	`, eventKey, payloadJSON)
	if err != nil {
		p.logResult(symbol, tokenCA, resolvedFrom, false, ReasonTimeout)
		return false, ReasonTimeout
	}

	if err := tx.Commit(); err != nil {
		p.logResult(symbol, tokenCA, resolvedFrom, false, ReasonTimeout)
		return false, ReasonTimeout
	}

	p.logResult(symbol, tokenCA, resolvedFrom, true, ReasonOK)
	return true, ReasonOK
}

const lockNotAvailableCode = "55P03"

func (p *Persister) resolveEventKey(ctx context.Context, symbol, tokenCA string, strictMatch bool) (eventKey, resolvedFrom string) {
	if tokenCA != "" {
		if key, err := p.resolver.ResolveByTokenCA(ctx, tokenCA); err == nil && key != "" {
			return key, "token_ca"
		}
	}
	if symbol != "" && !strictMatch {
		if key, err := p.resolver.ResolveBySymbol(ctx, symbol); err == nil && key != "" {
			return key, "symbol"
		}
	}
	return "", "none"
}

func (p *Persister) logResult(symbol, tokenCA, resolvedFrom string, persisted bool, reason PersistReason) {
	if p.log == nil {
		return
	}
	p.log.WithStage("signals.heat.persist").WithFields(map[string]interface{}{
		"token": symbol, "token_ca": tokenCA, "persisted": persisted,
		"reason": reason, "resolved_from": resolvedFrom,
	}).Debug("heat persist attempted")
}
