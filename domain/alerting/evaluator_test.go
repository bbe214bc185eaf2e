package alerting

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestEvaluator(t *testing.T) *Evaluator {
	return NewEvaluator(LoadState(filepath.Join(t.TempDir(), "s.json")))
}

func TestEvaluateErrorRateBreachesAboveThreshold(t *testing.T) {
	e := newTestEvaluator(t)
	rule := Rule{Expr: "error_rate", Threshold: 0.1}

	metrics := ParsedMetrics{"telegram_send_total": {`status="ok"`: 80, `status="err"`: 20}}
	result := e.EvaluateRule(rule, metrics)
	assert.True(t, result.Breached)
}

func TestEvaluateErrorRateNoTrafficNeverBreaches(t *testing.T) {
	e := newTestEvaluator(t)
	rule := Rule{Expr: "error_rate", Threshold: 0.1}

	result := e.EvaluateRule(rule, ParsedMetrics{})
	assert.False(t, result.Breached)
	assert.Equal(t, "no traffic", result.Reason)
}

func TestEvaluateErrorDeltaUsesRuleMetric(t *testing.T) {
	e := newTestEvaluator(t)
	rule := Rule{Expr: "error_delta", Metric: "ingest_errors_total", Threshold: 5}

	first := e.EvaluateRule(rule, ParsedMetrics{"ingest_errors_total": {"": 3}})
	assert.False(t, first.Breached, "delta=3 against baseline 0 is below the threshold of 5")

	second := e.EvaluateRule(rule, ParsedMetrics{"ingest_errors_total": {"": 10}})
	assert.True(t, second.Breached, "delta=7 since the last observation exceeds the threshold of 5")
}

func TestEvaluateLatencyP95FromBuckets(t *testing.T) {
	e := newTestEvaluator(t)
	rule := Rule{Expr: "latency_p95", Threshold: 300}

	metrics := ParsedMetrics{
		"pipeline_latency_ms_bucket": {
			`le="100"`:  10,
			`le="500"`:  19,
			`le="+Inf"`: 20,
		},
		"pipeline_latency_ms_count": {"": 20},
	}
	result := e.EvaluateRule(rule, metrics)
	assert.True(t, result.Breached, "p95 falls in the 500ms bucket, above the 300ms threshold")
}

func TestEvaluateUnknownExprNeverBreaches(t *testing.T) {
	e := newTestEvaluator(t)
	result := e.EvaluateRule(Rule{Expr: "bogus"}, ParsedMetrics{})
	assert.False(t, result.Breached)
}
