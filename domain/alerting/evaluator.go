package alerting

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
)

// Evaluator evaluates alert rules against a metrics pull, tracking
// counter deltas in the backing State.
type Evaluator struct {
	state *State
}

// NewEvaluator builds an Evaluator over state.
func NewEvaluator(state *State) *Evaluator {
	return &Evaluator{state: state}
}

// EvaluateRule dispatches to the expression-specific evaluator named by
// rule.Expr: error_rate, cards_degrade_delta, latency_p95, error_delta.
func (e *Evaluator) EvaluateRule(rule Rule, metrics ParsedMetrics) EvalResult {
	switch rule.Expr {
	case "error_rate":
		return e.evalErrorRate(rule, metrics)
	case "cards_degrade_delta":
		return e.evalDelta(rule, metrics, "cards_degrade_count", "")
	case "latency_p95":
		return e.evalLatencyP95(rule, metrics)
	case "error_delta":
		return e.evalDelta(rule, metrics, rule.Metric, "")
	default:
		return EvalResult{Breached: false, Reason: "unknown expr: " + rule.Expr}
	}
}

func (e *Evaluator) evalErrorRate(rule Rule, metrics ParsedMetrics) EvalResult {
	const metric = "telegram_send_total"
	okValue, _ := metrics.Get(metric, `status="ok"`)
	errValue, _ := metrics.Get(metric, `status="err"`)

	okDelta := e.state.GetDelta(metric+`_status="ok"`, okValue)
	errDelta := e.state.GetDelta(metric+`_status="err"`, errValue)

	total := okDelta + errDelta
	if total == 0 {
		return EvalResult{Breached: false, Reason: "no traffic"}
	}

	errorRate := errDelta / total
	breached := errorRate > rule.Threshold
	reason := fmt.Sprintf("error_rate=%.2f%% > %.2f%%", errorRate*100, rule.Threshold*100)
	return EvalResult{Breached: breached, Reason: reason}
}

func (e *Evaluator) evalDelta(rule Rule, metrics ParsedMetrics, metric, labels string) EvalResult {
	value, _ := metrics.Get(metric, labels)
	delta := e.state.GetDelta(metric, value)
	breached := delta > rule.Threshold
	reason := fmt.Sprintf("delta=%g > %g", delta, rule.Threshold)
	return EvalResult{Breached: breached, Reason: reason}
}

var leLabelRe = regexp.MustCompile(`le="([^"]+)"`)

func (e *Evaluator) evalLatencyP95(rule Rule, metrics ParsedMetrics) EvalResult {
	histogram := metrics["pipeline_latency_ms_bucket"]
	countTotal, _ := metrics.Get("pipeline_latency_ms_count", "")
	if countTotal == 0 {
		return EvalResult{Breached: false, Reason: "no samples"}
	}

	type bucket struct {
		le    float64
		count float64
	}
	var buckets []bucket
	for labels, count := range histogram {
		m := leLabelRe.FindStringSubmatch(labels)
		if m == nil || m[1] == "+Inf" {
			continue
		}
		le, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		buckets = append(buckets, bucket{le: le, count: count})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].le < buckets[j].le })

	p95Target := countTotal * 0.95
	var p95Value float64
	for _, b := range buckets {
		if b.count >= p95Target {
			p95Value = b.le
			break
		}
	}

	breached := p95Value > rule.Threshold
	reason := fmt.Sprintf("p95=%gms > %gms", p95Value, rule.Threshold)
	return EvalResult{Breached: breached, Reason: reason}
}
