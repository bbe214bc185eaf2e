package card

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToPushcardFromPushcardRoundTripsPrimary(t *testing.T) {
	price := 1.23
	liquidity := 45000.0
	pc := Pushcard{
		Type:      "primary",
		EventKey:  "ek1",
		RiskLevel: "green",
		TokenInfo: map[string]interface{}{"symbol": "FOO"},
		Metrics: PushcardMetrics{
			PriceUsd:     &price,
			LiquidityUsd: &liquidity,
			Ohlc:         map[string]interface{}{"o": 1.0},
		},
		Sources: PushcardSources{SecuritySource: "goplus", DexSource: "dexscreener"},
		States:  PushcardStates{Cache: true, Degrade: false, Stale: false, Reason: ""},
		Evidence: PushcardEvidence{
			GoplusRaw: GoplusRawSummary{Summary: "clean"},
		},
		RiskNote:   "no flags",
		VerifyPath: "/verify/ek1",
		DataAsOf:   "2026-07-30T00:00:00Z",
		Rendered:   map[string]string{"tg": "hello tg", "ui": "hello ui"},
		RulesFired: []string{"rule_a"},
	}

	payload, rendered := FromPushcard(pc)
	got := ToPushcard(payload, rendered)
	assert.Equal(t, pc, got)
}

func TestToPushcardFromPushcardRoundTripsSecondary(t *testing.T) {
	pc := Pushcard{
		Type:        "secondary",
		EventKey:    "ek2",
		RiskLevel:   "yellow",
		TokenInfo:   map[string]interface{}{},
		Metrics:     PushcardMetrics{Ohlc: map[string]interface{}{}},
		Sources:     PushcardSources{},
		States:      PushcardStates{Reason: "pending"},
		Evidence:    PushcardEvidence{},
		VerifyPath:  "/verify/ek2",
		DataAsOf:    "2026-07-30T01:00:00Z",
		Rendered:    map[string]string{"tg": "t", "ui": "u"},
		SourceLevel: "rumor",
		FeaturesSnapshot: map[string]interface{}{
			"active_addr_pctl": 0.5,
		},
	}

	payload, rendered := FromPushcard(pc)
	got := ToPushcard(payload, rendered)
	assert.Equal(t, pc, got)
}

func TestToPushcardFromPushcardRoundTripsTopic(t *testing.T) {
	pc := Pushcard{
		Type:              "topic",
		EventKey:          "ek3",
		RiskLevel:         "yellow",
		TokenInfo:         map[string]interface{}{},
		Metrics:           PushcardMetrics{Ohlc: map[string]interface{}{}},
		Sources:           PushcardSources{},
		States:            PushcardStates{},
		Evidence:          PushcardEvidence{},
		VerifyPath:        "/verify/ek3",
		DataAsOf:          "2026-07-30T02:00:00Z",
		Rendered:          map[string]string{"tg": "t3", "ui": "u3"},
		TopicID:           "topic-xyz",
		TopicEntities:     []string{"$pepe", "$moon"},
		TopicMentionCount: 7,
	}

	payload, rendered := FromPushcard(pc)
	got := ToPushcard(payload, rendered)
	assert.Equal(t, pc, got)
}
