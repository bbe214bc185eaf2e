// Package rules implements the on-chain rules engine: a hot-reloadable
// threshold configuration and a conservative evaluator where downgrade
// conditions strictly dominate upgrade conditions.
package rules

import (
	"fmt"
	"strings"

	"github.com/PaesslerAG/gval"

	"github.com/Tracy625/event-stream-starter-sub001/domain/onchain"
	pipelineerrors "github.com/Tracy625/event-stream-starter-sub001/internal/platform/errors"
)

// Rules is the validated configuration structure: allowed windows, named
// thresholds per field, and the upgrade/downgrade condition lists.
type Rules struct {
	Windows    []int                        `json:"windows"`
	Thresholds map[string]map[string]float64 `json:"thresholds"`
	Verdict    VerdictRules                  `json:"verdict"`
}

// VerdictRules holds the two condition lists.
type VerdictRules struct {
	UpgradeIf   []string `json:"upgrade_if"`
	DowngradeIf []string `json:"downgrade_if"`
}

// featureFields enumerates the Feature struct fields a condition may
// reference, matching onchain.Feature.
var featureFields = map[string]bool{
	"active_addr_pctl": true,
	"growth_ratio":     true,
	"top10_share":      true,
	"self_loop_ratio":  true,
}

// Validate checks the rules structure: positive integer windows, numeric
// thresholds, and well-formed ">="/"<=" conditions referencing known
// fields and labels. Rejected configs are never installed into a Registry.
func Validate(r Rules) error {
	if len(r.Windows) == 0 {
		return pipelineerrors.InvalidInput("windows", "must be a non-empty list")
	}
	for _, w := range r.Windows {
		if w <= 0 {
			return pipelineerrors.InvalidInput("windows", "must contain only positive integers")
		}
	}
	if len(r.Thresholds) == 0 {
		return pipelineerrors.InvalidInput("thresholds", "must be non-empty")
	}
	for field, labels := range r.Thresholds {
		if len(labels) == 0 {
			return pipelineerrors.InvalidInput("thresholds."+field, "cannot be empty")
		}
	}
	for _, cond := range append(append([]string{}, r.Verdict.UpgradeIf...), r.Verdict.DowngradeIf...) {
		field, _, label, err := parseCondition(cond)
		if err != nil {
			return pipelineerrors.InvalidInput("verdict", err.Error())
		}
		if !featureFields[field] {
			return pipelineerrors.InvalidInput("verdict", fmt.Sprintf("unknown field %q in condition: %s", field, cond))
		}
		if _, ok := r.Thresholds[field][label]; !ok {
			return pipelineerrors.InvalidInput("verdict", fmt.Sprintf("unknown threshold label %q for field %q", label, field))
		}
	}
	return nil
}

// parseCondition splits a condition string "field>=label" or
// "field<=label" into its parts.
func parseCondition(cond string) (field, op, label string, err error) {
	switch {
	case strings.Contains(cond, ">="):
		parts := strings.SplitN(cond, ">=", 2)
		if len(parts) != 2 {
			return "", "", "", fmt.Errorf("invalid condition format: %s", cond)
		}
		return strings.TrimSpace(parts[0]), ">=", strings.TrimSpace(parts[1]), nil
	case strings.Contains(cond, "<="):
		parts := strings.SplitN(cond, "<=", 2)
		if len(parts) != 2 {
			return "", "", "", fmt.Errorf("invalid condition format: %s", cond)
		}
		return strings.TrimSpace(parts[0]), "<=", strings.TrimSpace(parts[1]), nil
	default:
		return "", "", "", fmt.Errorf("invalid condition format: %s (only >= and <= are supported)", cond)
	}
}

// conditionResult is the outcome of evaluating one condition, or a
// diagnostic note when evaluation cannot proceed.
type conditionResult struct {
	hit  bool
	note string
}

// evaluateCondition evaluates a single condition string against features
// using gval for the actual comparison, after resolving the threshold
// label from Rules.
func evaluateCondition(features onchain.Feature, cond string, r Rules) conditionResult {
	field, op, label, err := parseCondition(cond)
	if err != nil {
		return conditionResult{note: "rule_parse_error"}
	}
	if !featureFields[field] {
		return conditionResult{note: "rule_parse_error"}
	}
	labels, ok := r.Thresholds[field]
	if !ok {
		return conditionResult{note: "threshold_label_missing"}
	}
	threshold, ok := labels[label]
	if !ok {
		return conditionResult{note: "threshold_label_missing"}
	}

	featureValue := featureValueOf(features, field)
	expr := fmt.Sprintf("value %s threshold", op)
	evaluated, err := gval.Evaluate(expr, map[string]interface{}{
		"value":     featureValue,
		"threshold": threshold,
	})
	if err != nil {
		return conditionResult{note: "rule_parse_error"}
	}
	hit, _ := evaluated.(bool)
	return conditionResult{hit: hit}
}

func featureValueOf(f onchain.Feature, field string) float64 {
	switch field {
	case "active_addr_pctl":
		return f.ActiveAddrPctl
	case "growth_ratio":
		return f.GrowthRatio
	case "top10_share":
		return f.Top10Share
	case "self_loop_ratio":
		return f.SelfLoopRatio
	default:
		return 0
	}
}

// Evaluate applies the rules engine's conservative evaluation order:
// window/range validation, then downgrade conditions (strict priority),
// then upgrade conditions, defaulting to hold at confidence 0.5.
func Evaluate(features onchain.Feature, r Rules) onchain.Verdict {
	if !containsInt(r.Windows, features.WindowMin) {
		return onchain.Verdict{Decision: onchain.DecisionInsufficient, Note: "window_unsupported"}
	}
	if features.ActiveAddrPctl < 0 || features.ActiveAddrPctl > 1 {
		return onchain.Verdict{Decision: onchain.DecisionInsufficient, Note: "feature_out_of_range"}
	}
	if features.Top10Share < 0 || features.Top10Share > 1 {
		return onchain.Verdict{Decision: onchain.DecisionInsufficient, Note: "feature_out_of_range"}
	}
	if features.SelfLoopRatio < 0 || features.SelfLoopRatio > 1 {
		return onchain.Verdict{Decision: onchain.DecisionInsufficient, Note: "feature_out_of_range"}
	}
	if features.GrowthRatio < 0 {
		return onchain.Verdict{Decision: onchain.DecisionInsufficient, Note: "feature_out_of_range"}
	}

	downgradeHits, note := evaluateAll(features, r.Verdict.DowngradeIf, r)
	if note != "" {
		return onchain.Verdict{Decision: onchain.DecisionInsufficient, Note: note}
	}
	upgradeHits, note := evaluateAll(features, r.Verdict.UpgradeIf, r)
	if note != "" {
		return onchain.Verdict{Decision: onchain.DecisionInsufficient, Note: note}
	}

	if len(downgradeHits) > 0 && allTrue(downgradeHits) {
		return onchain.Verdict{Decision: onchain.DecisionDowngrade, Confidence: confidenceFor(downgradeHits)}
	}
	if len(upgradeHits) > 0 && allTrue(upgradeHits) {
		return onchain.Verdict{Decision: onchain.DecisionUpgrade, Confidence: confidenceFor(upgradeHits)}
	}
	return onchain.Verdict{Decision: onchain.DecisionHold, Confidence: 0.5}
}

func evaluateAll(features onchain.Feature, conditions []string, r Rules) (results []bool, note string) {
	for _, cond := range conditions {
		result := evaluateCondition(features, cond, r)
		if result.note != "" {
			return nil, result.note
		}
		results = append(results, result.hit)
	}
	return results, ""
}

// confidenceFor computes min(1.0, 0.6 + 0.4*hit_fraction). For a fired
// verdict all conditions hold, so hit_fraction is always 1.0; this still
// computes the ratio explicitly to match the documented formula.
func confidenceFor(hits []bool) float64 {
	trueCount := 0
	for _, h := range hits {
		if h {
			trueCount++
		}
	}
	hitFraction := float64(trueCount) / float64(len(hits))
	confidence := 0.6 + 0.4*hitFraction
	if confidence > 1.0 {
		return 1.0
	}
	return confidence
}

func allTrue(values []bool) bool {
	for _, v := range values {
		if !v {
			return false
		}
	}
	return true
}

func containsInt(values []int, target int) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
