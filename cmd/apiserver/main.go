// Command apiserver serves the pipeline's read API: signal lookup, heat
// metrics, on-chain features/query/freshness, the expert on-chain view,
// and card preview.
package main

import (
	"context"
	"net/http"
	"os"
	osignal "os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Tracy625/event-stream-starter-sub001/domain/card"
	"github.com/Tracy625/event-stream-starter-sub001/domain/onchain"
	"github.com/Tracy625/event-stream-starter-sub001/domain/onchain/rules"
	"github.com/Tracy625/event-stream-starter-sub001/domain/signal"
	"github.com/Tracy625/event-stream-starter-sub001/internal/httpapi"
	"github.com/Tracy625/event-stream-starter-sub001/internal/platform/cache"
	"github.com/Tracy625/event-stream-starter-sub001/internal/platform/config"
	"github.com/Tracy625/event-stream-starter-sub001/internal/platform/database"
	"github.com/Tracy625/event-stream-starter-sub001/internal/platform/logging"
	"github.com/Tracy625/event-stream-starter-sub001/internal/platform/metrics"
	"github.com/Tracy625/event-stream-starter-sub001/internal/platform/migrations"
)

func main() {
	cfg := config.Load()
	logger := logging.NewFromEnv("apiserver")

	ctx, stop := osignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("open database")
	}
	defer db.Close()

	if err := migrations.Apply(ctx, db); err != nil {
		logger.WithError(err).Fatal("apply migrations")
	}

	cacheClient, err := cache.NewFromURL(cfg.RedisURL)
	if err != nil {
		logger.WithError(err).Fatal("connect cache")
	}
	defer cacheClient.Close()

	signals := signal.NewPostgresStore(db)
	windowCounter := signal.NewPostgresWindowCounter(db, cfg.HeatTimeoutMs)
	heatComputer := signal.NewComputer(windowCounter, cacheClient, logger)

	features := onchain.NewPostgresFeatureStore(db, time.Duration(cfg.BQTimeoutS)*time.Second, int64(cfg.BQMaxScannedGB)*1_000_000)

	rulesPath := config.GetEnv("ONCHAIN_RULES_PATH", "onchain_rules.json")
	rulesRegistry, err := rules.NewRegistry(rulesPath)
	if err != nil {
		logger.WithError(err).Warn("on-chain rules registry failed to load, verdicts will be unavailable")
	}

	templates := card.NewMapTemplateStore(map[string]card.TemplateSet{})
	dispatcher := card.NewTelegramDispatcher(cfg.TelegramBotToken, 10*time.Second)
	cardMetrics := metrics.New()
	pipeline := card.NewPipeline(templates, cacheClient, dispatcher, card.NewDefaultGoplusEvaluator(), cardMetrics, logrus.StandardLogger(), time.Duration(cfg.DedupTTLSec)*time.Second, cfg.EventKeyVersion)

	server := httpapi.NewServer(cfg, db, cacheClient, logger, signals, heatComputer, features, pipeline, rulesRegistry)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.WithFields(map[string]interface{}{"addr": cfg.HTTPAddr}).Info("apiserver listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Fatal("http server")
	}
}
