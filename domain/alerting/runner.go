package alerting

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// MetricsFetcher retrieves raw Prometheus text exposition from a target.
type MetricsFetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// HTTPMetricsFetcher pulls metrics over HTTP GET.
type HTTPMetricsFetcher struct {
	url        string
	httpClient *http.Client
}

// NewHTTPMetricsFetcher builds an HTTPMetricsFetcher.
func NewHTTPMetricsFetcher(url string, timeout time.Duration) *HTTPMetricsFetcher {
	return &HTTPMetricsFetcher{url: url, httpClient: &http.Client{Timeout: timeout}}
}

func (f *HTTPMetricsFetcher) Fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// LoadRules parses an alerts.yml document from raw bytes.
func LoadRules(raw []byte) ([]Rule, error) {
	var cfg RuleConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return cfg.Rules, nil
}

// Runner ties the fetcher, evaluator, state, and notifier together into
// one evaluation cycle.
type Runner struct {
	fetcher             MetricsFetcher
	evaluator           *Evaluator
	state               *State
	notifier            Notifier
	rules               []Rule
	log                 *logrus.Logger
	minBreachSeconds    int
	defaultSilenceSeconds int
}

// NewRunner builds a Runner.
func NewRunner(fetcher MetricsFetcher, state *State, notifier Notifier, rules []Rule, log *logrus.Logger, minBreachSeconds, defaultSilenceSeconds int) *Runner {
	return &Runner{
		fetcher:               fetcher,
		evaluator:             NewEvaluator(state),
		state:                 state,
		notifier:              notifier,
		rules:                 rules,
		log:                   log,
		minBreachSeconds:      minBreachSeconds,
		defaultSilenceSeconds: defaultSilenceSeconds,
	}
}

// EvaluateOnce runs one full evaluation cycle: fetch, evaluate every
// rule, debounce, notify on fire, persist state.
func (r *Runner) EvaluateOnce(ctx context.Context, now time.Time) ([]FireDecision, error) {
	text, err := r.fetcher.Fetch(ctx)
	if err != nil {
		r.logStage("alert.pull_failed", logrus.Fields{"error": err})
		return nil, err
	}
	metrics := ParseMetrics(text)

	var decisions []FireDecision
	for _, rule := range r.rules {
		if r.state.IsSilenced(rule.Name, now) {
			decisions = append(decisions, FireDecision{Rule: rule, Silenced: true})
			continue
		}

		result := r.evaluator.EvaluateRule(rule, metrics)
		window := rule.WindowSeconds
		if window <= 0 {
			window = r.minBreachSeconds
		}
		shouldFire := r.state.UpdateBreach(rule.Name, result.Breached, window, now)

		decision := FireDecision{Rule: rule, Reason: result.Reason}
		if shouldFire {
			r.logStage("alert.fired", logrus.Fields{"name": rule.Name, "severity": rule.Severity, "reason": result.Reason})
			sent := r.notifier.Notify(ctx, rule, orDefault(rule.Description, result.Reason))
			if sent {
				silence := rule.SilenceSeconds
				if silence <= 0 {
					silence = r.defaultSilenceSeconds
				}
				r.state.SetSilence(rule.Name, silence, now)
				decision.Fired = true
			}
		}
		decisions = append(decisions, decision)
	}

	if err := r.state.Save(); err != nil {
		r.logStage("alert.state_save_failed", logrus.Fields{"error": err})
	}

	return decisions, nil
}

func (r *Runner) logStage(stage string, fields logrus.Fields) {
	if r.log == nil {
		return
	}
	fields["stage"] = stage
	r.log.WithFields(fields).Info(stage)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
