package alerting

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeFetcher struct {
	text string
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context) (string, error) {
	return f.text, f.err
}

type recordingNotifier struct {
	calls int
}

func (r *recordingNotifier) Notify(ctx context.Context, rule Rule, reason string) bool {
	r.calls++
	return true
}

func TestRunnerDebouncesBeforeFirstFire(t *testing.T) {
	state := LoadState(filepath.Join(t.TempDir(), "s.json"))
	rules := []Rule{{Name: "high_errors", Expr: "error_delta", Metric: "errs", Threshold: 1, WindowSeconds: 60}}
	notifier := &recordingNotifier{}
	fetcher := &fakeFetcher{text: "errs 5\n"}
	runner := NewRunner(fetcher, state, notifier, rules, nil, 60, 300)

	now := time.Now()
	decisions, err := runner.EvaluateOnce(context.Background(), now)
	assert.NoError(t, err)
	assert.Len(t, decisions, 1)
	assert.False(t, decisions[0].Fired, "must debounce for the full window before firing")
	assert.Equal(t, 0, notifier.calls)
}

func TestRunnerFiresAfterWindowAndSilences(t *testing.T) {
	state := LoadState(filepath.Join(t.TempDir(), "s.json"))
	rules := []Rule{{Name: "high_errors", Expr: "error_delta", Metric: "errs", Threshold: 1, WindowSeconds: 60, SilenceSeconds: 120}}
	notifier := &recordingNotifier{}
	fetcher := &fakeFetcher{text: "errs 5\n"}
	runner := NewRunner(fetcher, state, notifier, rules, nil, 60, 300)

	now := time.Now()
	_, err := runner.EvaluateOnce(context.Background(), now)
	assert.NoError(t, err)

	fetcher.text = "errs 20\n"
	decisions, err := runner.EvaluateOnce(context.Background(), now.Add(90*time.Second))
	assert.NoError(t, err)
	assert.True(t, decisions[0].Fired)
	assert.Equal(t, 1, notifier.calls)
	assert.True(t, state.IsSilenced("high_errors", now.Add(90*time.Second)))
}

func TestRunnerSkipsSilencedRules(t *testing.T) {
	state := LoadState(filepath.Join(t.TempDir(), "s.json"))
	now := time.Now()
	state.SetSilence("high_errors", 300, now)

	rules := []Rule{{Name: "high_errors", Expr: "error_delta", Metric: "errs", Threshold: 1, WindowSeconds: 60}}
	notifier := &recordingNotifier{}
	fetcher := &fakeFetcher{text: "errs 100\n"}
	runner := NewRunner(fetcher, state, notifier, rules, nil, 60, 300)

	decisions, err := runner.EvaluateOnce(context.Background(), now.Add(10*time.Second))
	assert.NoError(t, err)
	assert.True(t, decisions[0].Silenced)
	assert.Equal(t, 0, notifier.calls)
}

func TestLoadRulesParsesYAML(t *testing.T) {
	raw := []byte(`
rules:
  - name: high_errors
    expr: error_delta
    metric: errs
    threshold: 5
    window_seconds: 60
    silence_seconds: 300
    severity: warning
`)
	rules, err := LoadRules(raw)
	assert.NoError(t, err)
	assert.Len(t, rules, 1)
	assert.Equal(t, "high_errors", rules[0].Name)
	assert.Equal(t, Severity("warning"), rules[0].Severity)
}
