// Package card implements the Card Pipeline: type routing, dual-variant
// template rendering with degrade-on-missing fallback, schema validation,
// state-version dedup, and dispatch to a notification channel.
package card

import (
	"strings"
	"time"

	pipelineerrors "github.com/Tracy625/event-stream-starter-sub001/internal/platform/errors"
)

// Type enumerates the recognized card types.
type Type string

const (
	TypePrimary    Type = "primary"
	TypeSecondary  Type = "secondary"
	TypeTopic      Type = "topic"
	TypeMarketRisk Type = "market_risk"
)

var validTypes = map[Type]bool{
	TypePrimary:    true,
	TypeSecondary:  true,
	TypeTopic:      true,
	TypeMarketRisk: true,
}

// NormalizeType trims and lowercases a raw type string, rejecting anything
// outside the recognized set.
func NormalizeType(raw string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(raw)))
	if !validTypes[t] {
		return "", pipelineerrors.InvalidInput("type", "unknown card type: "+raw)
	}
	return t, nil
}

// Meta carries the required metadata every generator attaches to its
// RenderPayload.
type Meta struct {
	Type             Type
	EventKey         string
	Degrade          bool
	TemplateBase     string
	LatencyMs        *int64
	DiagnosticFlags  map[string]bool
}

// RenderPayload is the unified return structure for card generators: a
// template base name plus the context map fed to text/template.
type RenderPayload struct {
	TemplateName string
	Context      map[string]interface{}
	Meta         Meta
}

// Signal is the minimal view of domain/signal.Signal a card generator
// needs, decoupled from the signal package to avoid an import cycle.
type Signal struct {
	EventKey     string
	Type         string
	State        string
	RiskLevel    string
	RiskSource   string
	RiskNote     string
	RulesFired   []string
	TokenInfo    map[string]interface{}
	DexSnapshot  map[string]interface{}
	GoplusRaw    map[string]interface{}
	SourceLevel  string
	FeaturesSnapshot map[string]interface{}
	TopicID      string
	TopicEntities []string
	TopicMentionCount int
	LegalNote    string
	VerifyPath   string
	DataAsOf     time.Time
	IsDegraded   bool
}

// Pushcard is the external schema a rendered card is transformed into
// before dispatch, mirroring pushcard.schema.json field-for-field.
type Pushcard struct {
	Type          string                 `json:"type"`
	EventKey      string                 `json:"event_key"`
	RiskLevel     string                 `json:"risk_level"`
	TokenInfo     map[string]interface{} `json:"token_info"`
	Metrics       PushcardMetrics        `json:"metrics"`
	Sources       PushcardSources        `json:"sources"`
	States        PushcardStates         `json:"states"`
	Evidence      PushcardEvidence       `json:"evidence"`
	RiskNote      string                 `json:"risk_note"`
	VerifyPath    string                 `json:"verify_path"`
	DataAsOf      string                 `json:"data_as_of"`
	Rendered      map[string]string      `json:"rendered"`
	RulesFired    []string               `json:"rules_fired,omitempty"`
	LegalNote     string                 `json:"legal_note,omitempty"`
	SourceLevel   string                 `json:"source_level,omitempty"`
	FeaturesSnapshot map[string]interface{} `json:"features_snapshot,omitempty"`
	TopicID       string                 `json:"topic_id,omitempty"`
	TopicEntities []string               `json:"topic_entities,omitempty"`
	TopicMentionCount int                `json:"topic_mention_count,omitempty"`
}

type PushcardMetrics struct {
	PriceUsd     *float64               `json:"price_usd"`
	LiquidityUsd *float64               `json:"liquidity_usd"`
	Fdv          *float64               `json:"fdv"`
	Ohlc         map[string]interface{} `json:"ohlc"`
}

type PushcardSources struct {
	SecuritySource string `json:"security_source"`
	DexSource      string `json:"dex_source"`
}

type PushcardStates struct {
	Cache   bool   `json:"cache"`
	Degrade bool   `json:"degrade"`
	Stale   bool   `json:"stale"`
	Reason  string `json:"reason"`
}

type PushcardEvidence struct {
	GoplusRaw GoplusRawSummary `json:"goplus_raw"`
}

type GoplusRawSummary struct {
	Summary string `json:"summary"`
}
