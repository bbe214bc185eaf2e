// Command scheduler runs the pipeline's five named periodic jobs
// (events.compact_5m, scan_topic_signals, aggregate_topics,
// verify_onchain_signals, outbox.drain) and exits non-zero if its own
// heartbeat watchdog detects a stuck job, so a process supervisor can
// restart it.
package main

import (
	"context"
	"os"
	osignal "os/signal"
	"syscall"
	"time"

	"github.com/Tracy625/event-stream-starter-sub001/domain/card"
	"github.com/Tracy625/event-stream-starter-sub001/domain/event"
	"github.com/Tracy625/event-stream-starter-sub001/domain/onchain"
	"github.com/Tracy625/event-stream-starter-sub001/domain/onchain/rules"
	"github.com/Tracy625/event-stream-starter-sub001/domain/outbox"
	"github.com/Tracy625/event-stream-starter-sub001/domain/signal"
	"github.com/Tracy625/event-stream-starter-sub001/internal/platform/cache"
	"github.com/Tracy625/event-stream-starter-sub001/internal/platform/config"
	"github.com/Tracy625/event-stream-starter-sub001/internal/platform/database"
	"github.com/Tracy625/event-stream-starter-sub001/internal/platform/logging"
	"github.com/Tracy625/event-stream-starter-sub001/internal/platform/migrations"
	schedulerpkg "github.com/Tracy625/event-stream-starter-sub001/internal/scheduler"
)

func main() {
	cfg := config.Load()
	logger := logging.NewFromEnv("scheduler")

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

	rawReader := event.NewPostgresRawPostReader(db)
	eventStore := event.NewPostgresStore(db, func() {
		logger.Warn("event compaction fallback counter incremented")
	})
	eventEnv := event.Env{
		Salt:             cfg.EventKeySalt,
		KeyVersion:       cfg.EventKeyVersion,
		TimeBucketSec:    cfg.EventTimeBucketSec,
		MergeStrict:      cfg.EventMergeStrict,
		DeadlockMaxRetry: cfg.EventDeadlockMaxRetry,
		TopicTopK:        cfg.EventTopicTopK,
	}

	windowCounter := signal.NewPostgresWindowCounter(db, cfg.HeatTimeoutMs)
	heatComputer := signal.NewComputer(windowCounter, cacheClient, logger)
	keyResolver := signal.NewPostgresEventKeyResolver(db)
	persister := signal.NewPersister(db, keyResolver, logger)
	signalStore := signal.NewPostgresStore(db)
	heatEnv := signal.DefaultHeatEnv()

	features := onchain.NewPostgresFeatureStore(db, time.Duration(cfg.BQTimeoutS)*time.Second, int64(cfg.BQMaxScannedGB)*1_000_000)

	rulesPath := config.GetEnv("ONCHAIN_RULES_PATH", "onchain_rules.json")
	rulesRegistry, err := rules.NewRegistry(rulesPath)
	if err != nil {
		logger.WithError(err).Warn("on-chain rules registry failed to load, verification job will no-op")
	}

	outboxStore := outbox.NewPostgresStore(db)
	dispatcher := card.NewTelegramDispatcher(cfg.TelegramBotToken, 10*time.Second)
	sender := outbox.NewDispatcherSender(dispatcher)
	worker := outbox.NewWorker(outboxStore, sender, logger.Logger, 50, cfg.MaxAttempts, cfg.BaseBackoff, cfg.MaxBackoff)

	sched := schedulerpkg.New(logger, cacheClient, cfg.BeatStaleSec)

	err = sched.RegisterDefaults(map[string]schedulerpkg.Task{
		schedulerpkg.JobEventsCompact5m:      schedulerpkg.CompactTask(rawReader, eventStore, eventEnv, 1000, logger),
		schedulerpkg.JobScanTopicSignals:     schedulerpkg.TopicScanTask(rawReader, heatComputer, persister, 2*time.Hour, 1000, heatEnv, logger),
		schedulerpkg.JobAggregateTopics:      schedulerpkg.AggregateTopicsTask(signalStore, 500, logger),
		schedulerpkg.JobVerifyOnchainSignals: schedulerpkg.VerifyOnchainTask(signalStore, features, rulesRegistry, "eth", 500, logger),
		schedulerpkg.JobOutboxDrain:          schedulerpkg.OutboxDrainTask(worker, logger),
	})
	if err != nil {
		logger.WithError(err).Fatal("register scheduled jobs")
	}

	sched.Start(ctx)
	logger.Info("scheduler running")

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		logger.WithError(err).Warn("scheduler stop timed out")
	}
}
