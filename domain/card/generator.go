package card

import "time"

// generatePrimaryCard applies the primary gate (GoPlus evaluation,
// forbid_green downgrade) before building the render context.
func generatePrimaryCard(sig Signal, now time.Time, evaluator GoplusEvaluator) RenderPayload {
	degrade := sig.IsDegraded

	assessment := evaluator.Evaluate(sig.GoplusRaw)
	riskColor := assessment.RiskColor
	if assessment.ForbidGreen && riskColor == "green" {
		riskColor = "gray"
		assessment.RiskNote = "security check incomplete"
		degrade = true
	}

	ctx := baseContext(sig, now)
	ctx["risk_level"] = riskColor
	ctx["risk_source"] = assessment.RiskSource
	ctx["risk_note"] = assessment.RiskNote
	ctx["rules_fired"] = assessment.RulesFired
	ctx["states"] = map[string]interface{}{
		"cache":   dexBool(sig.DexSnapshot, "cache"),
		"degrade": degrade,
		"stale":   dexBool(sig.DexSnapshot, "stale"),
		"reason":  dexString(sig.DexSnapshot, "reason"),
	}
	ctx["goplus_summary"] = stringField(sig.GoplusRaw, "summary")

	return RenderPayload{
		TemplateName: TemplateBaseFor(TypePrimary),
		Context:      ctx,
		Meta: Meta{
			Type:         TypePrimary,
			EventKey:     sig.EventKey,
			Degrade:      degrade,
			TemplateBase: TemplateBaseFor(TypePrimary),
		},
	}
}

func generateSecondaryCard(sig Signal, now time.Time, _ GoplusEvaluator) RenderPayload {
	ctx := baseContext(sig, now)
	ctx["risk_level"] = orDefaultStr(sig.RiskLevel, "yellow")
	ctx["risk_source"] = sig.RiskSource
	ctx["source_level"] = orDefaultStr(sig.SourceLevel, "rumor")
	ctx["features_snapshot"] = sig.FeaturesSnapshot
	ctx["states"] = map[string]interface{}{
		"cache":   dexBool(sig.DexSnapshot, "cache"),
		"degrade": sig.IsDegraded,
		"stale":   dexBool(sig.DexSnapshot, "stale"),
		"reason":  dexString(sig.DexSnapshot, "reason"),
	}

	return RenderPayload{
		TemplateName: TemplateBaseFor(TypeSecondary),
		Context:      ctx,
		Meta: Meta{
			Type:         TypeSecondary,
			EventKey:     sig.EventKey,
			Degrade:      sig.IsDegraded,
			TemplateBase: TemplateBaseFor(TypeSecondary),
		},
	}
}

func generateTopicCard(sig Signal, now time.Time, _ GoplusEvaluator) RenderPayload {
	ctx := baseContext(sig, now)
	ctx["risk_level"] = orDefaultStr(sig.RiskLevel, "yellow")
	ctx["topic_id"] = sig.TopicID
	ctx["topic_entities"] = sig.TopicEntities
	ctx["topic_mention_count"] = sig.TopicMentionCount
	ctx["states"] = map[string]interface{}{
		"cache":   false,
		"degrade": sig.IsDegraded,
		"stale":   false,
		"reason":  "",
	}

	return RenderPayload{
		TemplateName: TemplateBaseFor(TypeTopic),
		Context:      ctx,
		Meta: Meta{
			Type:         TypeTopic,
			EventKey:     sig.EventKey,
			Degrade:      sig.IsDegraded,
			TemplateBase: TemplateBaseFor(TypeTopic),
		},
	}
}

func generateMarketRiskCard(sig Signal, now time.Time, _ GoplusEvaluator) RenderPayload {
	ctx := baseContext(sig, now)
	ctx["risk_level"] = orDefaultStr(sig.RiskLevel, "yellow")
	ctx["rules_fired"] = sig.RulesFired
	ctx["states"] = map[string]interface{}{
		"cache":   dexBool(sig.DexSnapshot, "cache"),
		"degrade": sig.IsDegraded,
		"stale":   dexBool(sig.DexSnapshot, "stale"),
		"reason":  dexString(sig.DexSnapshot, "reason"),
	}

	return RenderPayload{
		TemplateName: TemplateBaseFor(TypeMarketRisk),
		Context:      ctx,
		Meta: Meta{
			Type:         TypeMarketRisk,
			EventKey:     sig.EventKey,
			Degrade:      sig.IsDegraded,
			TemplateBase: TemplateBaseFor(TypeMarketRisk),
		},
	}
}

func baseContext(sig Signal, now time.Time) map[string]interface{} {
	dataAsOf := sig.DataAsOf
	if dataAsOf.IsZero() {
		dataAsOf = now
	}
	return map[string]interface{}{
		"event_key":     sig.EventKey,
		"token_info":    sig.TokenInfo,
		"price_usd":     dexFloat(sig.DexSnapshot, "price_usd"),
		"liquidity_usd": dexFloat(sig.DexSnapshot, "liquidity_usd"),
		"fdv":           dexFloat(sig.DexSnapshot, "fdv"),
		"ohlc":          dexMap(sig.DexSnapshot, "ohlc"),
		"dex_source":    dexString(sig.DexSnapshot, "source"),
		"verify_path":   orDefaultStr(sig.VerifyPath, "/"),
		"data_as_of":    dataAsOf,
		"legal_note":    sig.LegalNote,
	}
}

func dexBool(m map[string]interface{}, key string) bool {
	v, _ := m[key].(bool)
	return v
}

func dexString(m map[string]interface{}, key string) string {
	v, _ := m[key].(string)
	return v
}

func dexFloat(m map[string]interface{}, key string) interface{} {
	return m[key]
}

func dexMap(m map[string]interface{}, key string) map[string]interface{} {
	v, ok := m[key].(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return v
}

func stringField(m map[string]interface{}, key string) string {
	v, _ := m[key].(string)
	return v
}

func orDefaultStr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
