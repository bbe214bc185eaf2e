package card

import "time"

// Generator produces a RenderPayload for one signal.
type Generator func(sig Signal, now time.Time, evaluator GoplusEvaluator) RenderPayload

// routes maps each card type to its generator, mirroring the registry's
// single-source-of-truth routing table.
var routes = map[Type]Generator{
	TypePrimary:    generatePrimaryCard,
	TypeSecondary:  generateSecondaryCard,
	TypeTopic:      generateTopicCard,
	TypeMarketRisk: generateMarketRiskCard,
}

// templates maps each card type to its template base name (without the
// .tg.j2/.ui.j2 suffix).
var templates = map[Type]string{
	TypePrimary:    "primary_card",
	TypeSecondary:  "secondary_card",
	TypeTopic:      "topic_card",
	TypeMarketRisk: "market_risk_card",
}

// RouteFor returns the generator registered for t, or false if t is not a
// recognized card type.
func RouteFor(t Type) (Generator, bool) {
	g, ok := routes[t]
	return g, ok
}

// TemplateBaseFor returns the template base name registered for t.
func TemplateBaseFor(t Type) string {
	return templates[t]
}
