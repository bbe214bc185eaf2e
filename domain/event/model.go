// Package event implements the Event Core: deterministic event-key
// generation, evidence canonicalization/dedup, and the upsert/merge
// contract that anchors raw posts into canonical Event rows.
package event

import "time"

// Post is the normalized input to key generation and upsert: a single
// ingested item plus the fields needed to derive an event identity.
type Post struct {
	Type      string
	Symbol    string
	TokenCA   string
	Text      string
	CreatedTS time.Time
	ChainID   string
	Keywords  []string
	Sentiment *float64 // in [-1, 1]; nil when unscored
}

// EvidenceItem is a single piece of corroborating evidence folded into an
// Event's evidence array.
type EvidenceItem struct {
	Source   string                 `json:"source"` // x | dex | goplus
	TS       time.Time              `json:"ts"`
	Ref      map[string]interface{} `json:"ref"`
	Summary  string                 `json:"summary,omitempty"`
	Weight   *float64               `json:"weight,omitempty"`
	Strength string                 `json:"strength,omitempty"` // weak | medium | strong
}

// Event is the canonical aggregation row, keyed by EventKey.
type Event struct {
	EventKey          string
	Symbol            string
	TokenCA           string
	TopicHash         string
	TimeBucketStart   time.Time
	StartTS           time.Time
	LastTS            time.Time
	EvidenceCount     int
	CandidateScore    float64
	KeywordsNorm      []string
	Version           string
	LastSentimentLabel string
	LastSentimentScore *float64
	RefinedSymbol     string
	RefinedTokenCA    string
	GoplusRisk        string
	BuyTax            *float64
	SellTax           *float64
	LPLockDays        *int
	Honeypot          *bool
	TopicEntities     []string
	EvidenceRefs      []string
	Evidence          []EvidenceItem
}

// UpsertResult is returned from a successful upsert call.
type UpsertResult struct {
	EventKey       string
	EvidenceCount  int
	CandidateScore float64
}

// Env bundles the environment-controlled parameters key generation,
// merging, and scoring depend on.
type Env struct {
	Salt            string
	KeyVersion      string // v1 | v2
	TimeBucketSec   int
	MergeStrict     bool
	DeadlockMaxRetry int
	TopicTopK       int
	ScoreAlpha      float64 // default 0.6
	ScoreBeta       float64 // default 0.4
}

// DefaultEnv returns an Env with the component design's documented
// defaults for the scoring weights.
func DefaultEnv() Env {
	return Env{
		KeyVersion:    "v1",
		TimeBucketSec: 300,
		MergeStrict:   true,
		ScoreAlpha:    0.6,
		ScoreBeta:     0.4,
	}
}

// CandidateScore computes clamp(alpha*(sentiment+1)/2 + beta*min(|keywords|,5)/5, 0, 1).
// A nil sentiment is treated as neutral (0).
func CandidateScore(env Env, sentiment *float64, keywordCount int) float64 {
	alpha, beta := env.ScoreAlpha, env.ScoreBeta
	if alpha == 0 && beta == 0 {
		alpha, beta = 0.6, 0.4
	}
	sentimentValue := 0.0
	if sentiment != nil {
		sentimentValue = *sentiment
	}
	kw := keywordCount
	if kw > 5 {
		kw = 5
	}
	score := alpha*(sentimentValue+1)/2 + beta*float64(kw)/5
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
