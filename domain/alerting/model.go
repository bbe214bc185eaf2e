// Package alerting implements the alerting runner: a Prometheus
// text-exposition puller, rule evaluator with debounce/silence, and a
// pluggable webhook/script notifier, backed by a small persisted state
// file.
package alerting

// Severity is a free-form rule severity label (info, warning, critical, ...).
type Severity string

// Rule is one alert rule definition, typically loaded from YAML.
type Rule struct {
	Name           string   `yaml:"name"`
	Expr           string   `yaml:"expr"`
	Metric         string   `yaml:"metric"`
	Threshold      float64  `yaml:"threshold"`
	WindowSeconds  int      `yaml:"window_seconds"`
	SilenceSeconds int      `yaml:"silence_seconds"`
	Severity       Severity `yaml:"severity"`
	Description    string   `yaml:"description"`
}

// RuleConfig is the top-level alerts.yml document shape.
type RuleConfig struct {
	Rules []Rule `yaml:"rules"`
}

// EvalResult is the outcome of evaluating one rule against a metrics pull.
type EvalResult struct {
	Breached bool
	Reason   string
}

// FireDecision records whether a rule fired this cycle, after debounce.
type FireDecision struct {
	Rule     Rule
	Fired    bool
	Reason   string
	Silenced bool
}
