package onchain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLintTemplateRejectsUnknownName(t *testing.T) {
	err := LintTemplate("drop_table", QueryParams{}, time.Now())
	assert.Error(t, err)
}

func TestLintTemplateAllowsSnapshotWithoutWindow(t *testing.T) {
	err := LintTemplate("top_holders_snapshot", QueryParams{}, time.Now())
	assert.NoError(t, err)
}

func TestLintTemplateRequiresWindowForTimeSeries(t *testing.T) {
	err := LintTemplate("active_addrs_window", QueryParams{}, time.Now())
	assert.Error(t, err)
}

func TestLintTemplateAcceptsWindowMinutes(t *testing.T) {
	err := LintTemplate("active_addrs_window", QueryParams{WindowMinutes: 60}, time.Now())
	assert.NoError(t, err)
}

func TestLintTemplateRejectsInvertedRange(t *testing.T) {
	err := LintTemplate("token_transfers_window", QueryParams{FromTS: 200, ToTS: 100}, time.Now())
	assert.Error(t, err)
}

func TestProjectFieldsSelectsRequestedPaths(t *testing.T) {
	rows := []map[string]interface{}{
		{"holder_addr": "0xabc", "balance": 100},
		{"holder_addr": "0xdef", "balance": 50},
	}
	out := projectFields(rows, []string{"$.holder_addr"})
	assert.Len(t, out, 2)
	assert.Equal(t, "0xabc", out[0]["$.holder_addr"])
	assert.Equal(t, "0xdef", out[1]["$.holder_addr"])
}

func TestProjectFieldsSkipsUnresolvablePaths(t *testing.T) {
	rows := []map[string]interface{}{{"balance": 100}}
	out := projectFields(rows, []string{"$.missing"})
	assert.Len(t, out, 1)
	assert.Empty(t, out[0])
}
