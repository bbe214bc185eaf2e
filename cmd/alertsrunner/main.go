// Command alertsrunner polls a Prometheus metrics endpoint on an
// interval, evaluates alert rules against it, and notifies the webhook at
// ALERTS_WEBHOOK_URL when a rule fires. With no webhook URL set it uses a
// dry-run notifier instead; no script notifier is wired.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tracy625/event-stream-starter-sub001/domain/alerting"
	"github.com/Tracy625/event-stream-starter-sub001/internal/platform/config"
	"github.com/Tracy625/event-stream-starter-sub001/internal/platform/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.NewFromEnv("alertsrunner")

	raw, err := os.ReadFile(cfg.AlertsRulesPath)
	if err != nil {
		log.Fatalf("read rules file %s: %v", cfg.AlertsRulesPath, err)
	}
	rules, err := alerting.LoadRules(raw)
	if err != nil {
		log.Fatalf("parse rules file %s: %v", cfg.AlertsRulesPath, err)
	}

	state := alerting.LoadState(cfg.AlertsStatePath)
	fetcher := alerting.NewHTTPMetricsFetcher(cfg.AlertsMetricsURL, 10*time.Second)

	var notifier alerting.Notifier
	if cfg.AlertsWebhookURL != "" {
		notifier = alerting.NewWebhookNotifier(cfg.AlertsWebhookURL, 10*time.Second, 3)
	} else {
		notifier = &alerting.DryRunNotifier{}
	}

	runner := alerting.NewRunner(fetcher, state, notifier, rules, logger.Logger, cfg.AlertsMinBreachSec, cfg.AlertsDefaultSilenceSec)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		if _, err := runner.EvaluateOnce(ctx, time.Now()); err != nil {
			logger.WithError(err).Error("alert evaluation cycle failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
