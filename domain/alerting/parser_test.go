package alerting

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleMetrics = `# HELP telegram_send_total total sends
# TYPE telegram_send_total counter
telegram_send_total{status="ok"} 42
telegram_send_total{status="err"} 3
pipeline_latency_ms_bucket{le="100"} 10
pipeline_latency_ms_bucket{le="500"} 18
pipeline_latency_ms_bucket{le="+Inf"} 20
pipeline_latency_ms_count 20
cards_degrade_count 7
`

func TestParseMetricsExtractsCounters(t *testing.T) {
	parsed := ParseMetrics(sampleMetrics)
	v, ok := parsed.Get("telegram_send_total", `status="ok"`)
	assert.True(t, ok)
	assert.Equal(t, 42.0, v)
}

func TestParseMetricsSkipsCommentsAndBlankLines(t *testing.T) {
	parsed := ParseMetrics(sampleMetrics)
	_, ok := parsed["HELP"]
	assert.False(t, ok)
}

func TestParseMetricsHandlesUnlabeledMetric(t *testing.T) {
	parsed := ParseMetrics(sampleMetrics)
	v, ok := parsed.Get("cards_degrade_count", "")
	assert.True(t, ok)
	assert.Equal(t, 7.0, v)
}

func TestExtractLabelValueFindsNamedLabel(t *testing.T) {
	v, ok := ExtractLabelValue(`status="ok",type="primary"`, "type")
	assert.True(t, ok)
	assert.Equal(t, "primary", v)
}

func TestExtractLabelValueMissingLabel(t *testing.T) {
	_, ok := ExtractLabelValue(`status="ok"`, "type")
	assert.False(t, ok)
}
