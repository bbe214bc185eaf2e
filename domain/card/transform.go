package card

import "time"

// ToPushcard transforms an internal RenderPayload plus its rendered
// variants into the external pushcard schema.
func ToPushcard(payload RenderPayload, rendered Rendered) Pushcard {
	ctx := payload.Context
	meta := payload.Meta

	states, _ := ctx["states"].(map[string]interface{})

	pc := Pushcard{
		Type:      string(meta.Type),
		EventKey:  meta.EventKey,
		RiskLevel: stringOr(ctx["risk_level"], "yellow"),
		TokenInfo: mapOr(ctx["token_info"]),
		Metrics: PushcardMetrics{
			PriceUsd:     floatPtr(ctx["price_usd"]),
			LiquidityUsd: floatPtr(ctx["liquidity_usd"]),
			Fdv:          floatPtr(ctx["fdv"]),
			Ohlc:         mapOr(ctx["ohlc"]),
		},
		Sources: PushcardSources{
			SecuritySource: stringOr(ctx["risk_source"], ""),
			DexSource:      stringOr(ctx["dex_source"], ""),
		},
		States: PushcardStates{
			Cache:   boolOr(states["cache"]),
			Degrade: meta.Degrade,
			Stale:   boolOr(states["stale"]),
			Reason:  stringOr(states["reason"], ""),
		},
		Evidence: PushcardEvidence{
			GoplusRaw: GoplusRawSummary{Summary: stringOr(ctx["goplus_summary"], "")},
		},
		RiskNote:   stringOr(ctx["risk_note"], ""),
		VerifyPath: stringOr(ctx["verify_path"], "/"),
		DataAsOf:   dataAsOfString(ctx["data_as_of"]),
		Rendered:   map[string]string{"tg": rendered.TG, "ui": rendered.UI},
	}

	if rf, ok := ctx["rules_fired"].([]string); ok && len(rf) > 0 {
		pc.RulesFired = rf
	}
	if ln, ok := ctx["legal_note"].(string); ok && ln != "" {
		pc.LegalNote = ln
	}

	switch meta.Type {
	case TypeSecondary:
		pc.SourceLevel = stringOr(ctx["source_level"], "rumor")
		pc.FeaturesSnapshot = mapOr(ctx["features_snapshot"])
	case TypeTopic:
		pc.TopicID = stringOr(ctx["topic_id"], "")
		if te, ok := ctx["topic_entities"].([]string); ok {
			pc.TopicEntities = te
		}
		if cnt, ok := ctx["topic_mention_count"].(int); ok {
			pc.TopicMentionCount = cnt
		}
	}

	return pc
}

// FromPushcard reconstructs the RenderPayload/Rendered pair ToPushcard
// needs to reproduce pc, its inverse: ToPushcard(FromPushcard(pc)) == pc
// for any pc already shaped by ToPushcard.
func FromPushcard(pc Pushcard) (RenderPayload, Rendered) {
	cardType := Type(pc.Type)

	states := map[string]interface{}{
		"cache":  pc.States.Cache,
		"stale":  pc.States.Stale,
		"reason": pc.States.Reason,
	}

	ctx := map[string]interface{}{
		"risk_level":     pc.RiskLevel,
		"token_info":     pc.TokenInfo,
		"price_usd":      pc.Metrics.PriceUsd,
		"liquidity_usd":  pc.Metrics.LiquidityUsd,
		"fdv":            pc.Metrics.Fdv,
		"ohlc":           pc.Metrics.Ohlc,
		"risk_source":    pc.Sources.SecuritySource,
		"dex_source":     pc.Sources.DexSource,
		"states":         states,
		"goplus_summary": pc.Evidence.GoplusRaw.Summary,
		"risk_note":      pc.RiskNote,
		"verify_path":    pc.VerifyPath,
		"data_as_of":     pc.DataAsOf,
	}

	if len(pc.RulesFired) > 0 {
		ctx["rules_fired"] = pc.RulesFired
	}
	if pc.LegalNote != "" {
		ctx["legal_note"] = pc.LegalNote
	}

	switch cardType {
	case TypeSecondary:
		ctx["source_level"] = pc.SourceLevel
		ctx["features_snapshot"] = pc.FeaturesSnapshot
	case TypeTopic:
		ctx["topic_id"] = pc.TopicID
		if len(pc.TopicEntities) > 0 {
			ctx["topic_entities"] = pc.TopicEntities
		}
		ctx["topic_mention_count"] = pc.TopicMentionCount
	}

	payload := RenderPayload{
		Context: ctx,
		Meta: Meta{
			Type:     cardType,
			EventKey: pc.EventKey,
			Degrade:  pc.States.Degrade,
		},
	}
	rendered := Rendered{TG: pc.Rendered["tg"], UI: pc.Rendered["ui"]}
	return payload, rendered
}

func stringOr(v interface{}, def string) string {
	s, ok := v.(string)
	if !ok || s == "" {
		return def
	}
	return s
}

func mapOr(v interface{}) map[string]interface{} {
	m, ok := v.(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return m
}

func boolOr(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

func floatPtr(v interface{}) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case *float64:
		return n
	}
	return nil
}

func dataAsOfString(v interface{}) string {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339)
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
