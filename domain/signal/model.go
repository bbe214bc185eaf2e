// Package signal implements the Signals Core: heat compute/persist over
// raw_posts windows, plus the Signal row type shared with the on-chain
// rules engine and card pipeline.
package signal

import "time"

// Type enumerates the recognized signal rows per event.
type Type string

const (
	TypeTopic      Type = "topic"
	TypePrimary    Type = "primary"
	TypeSecondary  Type = "secondary"
	TypeMarketRisk Type = "market_risk"
)

// State enumerates a signal's verification lifecycle.
type State string

const (
	StateCandidate  State = "candidate"
	StateVerified   State = "verified"
	StateDowngraded State = "downgraded"
)

// Signal is the per-event derived row, unique on (EventKey, Type).
type Signal struct {
	EventKey          string
	Type              Type
	State             State
	TS                time.Time
	RiskLevel         string
	RiskSource        string
	RulesFired        []string
	DexLiquidity      *float64
	DexVolume24h      *float64
	TopicFootprints   []string
	OnchainAsofTS     *time.Time
	OnchainConfidence *float64
	HeatSlope         *float64
	SourceLevel       string
	FeaturesSnapshot  map[string]interface{}
}

// HeatResult is the output of Compute: trend/slope over the 10m/30m/prev
// windows, optionally smoothed by an EMA.
type HeatResult struct {
	Cnt10m    int      `json:"cnt_10m"`
	Cnt30m    int      `json:"cnt_30m"`
	Slope     *float64 `json:"slope"`
	Trend     string   `json:"trend"`
	SlopeEMA  *float64 `json:"slope_ema,omitempty"`
	TrendEMA  string   `json:"trend_ema,omitempty"`
	Degrade   bool     `json:"degrade"`
	FromCache bool     `json:"from_cache"`
	AsOfTS    time.Time `json:"asof_ts"`
	Window    WindowSpec `json:"window"`
}

// WindowSpec records the window sizes (in seconds) used for a compute, for
// observability/debugging parity with the persisted payload.
type WindowSpec struct {
	TenSec    int `json:"ten"`
	ThirtySec int `json:"thirty"`
}

// HeatEnv bundles the HEAT_* environment knobs compute/persist depend on.
type HeatEnv struct {
	ThetaRise         float64
	MinSample         int
	NoiseFloor        int
	EMAAlpha          float64
	CacheTTLSec       int
	MaxRows           int
	TimeoutMs         int
	EnablePersist     bool
	PersistUpsert     bool
	PersistStrictMatch bool
	PersistTimeoutMs  int
}

// DefaultHeatEnv mirrors the component design's documented defaults.
func DefaultHeatEnv() HeatEnv {
	return HeatEnv{
		ThetaRise:   0.2,
		MinSample:   3,
		NoiseFloor:  1,
		EMAAlpha:    0.0,
		CacheTTLSec: 30,
		MaxRows:     50000,
		TimeoutMs:   1500,
		PersistTimeoutMs: 1500,
		PersistUpsert: true,
		PersistStrictMatch: true,
	}
}

// PersistReason enumerates why a persist_heat call did or did not write.
type PersistReason string

const (
	ReasonOK             PersistReason = "ok"
	ReasonDisabled       PersistReason = "disabled"
	ReasonEventKeyNotFound PersistReason = "event_key_not_found"
	ReasonRowNotFound    PersistReason = "row_not_found"
	ReasonLockConflict   PersistReason = "lock_conflict"
	ReasonTimeout        PersistReason = "timeout"
)
