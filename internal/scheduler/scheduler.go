// Package scheduler runs the pipeline's periodic jobs (event compaction,
// topic scanning/aggregation, on-chain verification, outbox drain) on
// cron-like cadences and maintains a heartbeat watchdog.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Tracy625/event-stream-starter-sub001/internal/platform/cache"
	"github.com/Tracy625/event-stream-starter-sub001/internal/platform/logging"
)

// Job cadence names, matching the pipeline's named periodic tasks.
const (
	JobEventsCompact5m      = "events.compact_5m"
	JobScanTopicSignals     = "scan_topic_signals"
	JobAggregateTopics      = "aggregate_topics"
	JobVerifyOnchainSignals = "verify_onchain_signals"
	JobOutboxDrain          = "outbox.drain"
)

// Task is a unit of scheduled work. Implementations should respect ctx
// cancellation and must not hold a database transaction across external I/O.
type Task func(ctx context.Context) error

// entry pairs a named task with its cron spec.
type entry struct {
	name string
	spec string
	task Task
}

// Scheduler wraps a robfig/cron runner with structured logging and a
// heartbeat watchdog backed by the Redis cache layer.
type Scheduler struct {
	log   *logging.Logger
	cache *cache.Client

	mu       sync.Mutex
	cron     *cron.Cron
	entries  []entry
	running  bool
	staleSec int
}

// New creates a Scheduler. staleSec configures BEAT_STALE_SEC: the
// watchdog considers a job's heartbeat stale (and logs a warning) once it
// has not ticked within that many seconds.
func New(log *logging.Logger, cacheClient *cache.Client, staleSec int) *Scheduler {
	if staleSec <= 0 {
		staleSec = 120
	}
	return &Scheduler{
		log:      log,
		cache:    cacheClient,
		staleSec: staleSec,
		cron:     cron.New(cron.WithSeconds()),
	}
}

// Register adds a named job on a cron spec (with seconds field, e.g.
// "@every 5m" or "0 */5 * * * *"). Must be called before Start.
func (s *Scheduler) Register(name, spec string, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler: cannot register %q after Start", name)
	}
	e := entry{name: name, spec: spec, task: task}
	s.entries = append(s.entries, e)
	_, err := s.cron.AddFunc(spec, s.wrap(e))
	if err != nil {
		return fmt.Errorf("scheduler: register %q: %w", name, err)
	}
	return nil
}

// RegisterDefaults wires the five named pipeline cadences against the
// supplied task implementations. Any nil task is skipped (useful for
// processes that only run a subset of jobs).
func (s *Scheduler) RegisterDefaults(tasks map[string]Task) error {
	specs := map[string]string{
		JobEventsCompact5m:      "@every 5m",
		JobScanTopicSignals:     "@every 5m",
		JobAggregateTopics:      "@every 1h",
		JobVerifyOnchainSignals: "@every 1m",
		JobOutboxDrain:          "@every 10s",
	}
	for name, spec := range specs {
		task, ok := tasks[name]
		if !ok || task == nil {
			continue
		}
		if err := s.Register(name, spec, task); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) wrap(e entry) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		entryLog := s.log.WithStage(e.name)
		start := time.Now()
		err := e.task(ctx)
		elapsed := time.Since(start)

		if err != nil {
			entryLog.WithField("duration_ms", elapsed.Milliseconds()).
				WithField("error", err.Error()).
				Warn("scheduled job failed")
			return
		}

		entryLog.WithField("duration_ms", elapsed.Milliseconds()).Debug("scheduled job completed")
		if s.cache != nil {
			s.cache.Heartbeat(ctx, e.name, time.Now(), time.Duration(s.staleSec)*2*time.Second)
		}
	}
}

// Start begins running registered jobs on their cadences and launches the
// heartbeat watchdog.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	entries := append([]entry(nil), s.entries...)
	s.mu.Unlock()

	s.cron.Start()
	s.log.WithFields(map[string]interface{}{"job_count": len(entries)}).Info("scheduler started")

	go s.watchdog(ctx, entries)
}

// Stop halts the cron runner, waiting for in-flight jobs to finish or ctx
// to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.log.Info("scheduler stopped")
	return nil
}

// watchdog periodically checks each job's last heartbeat against
// BEAT_STALE_SEC and logs a warning when a job has gone quiet. The caller
// (process supervisor) is responsible for restarting the scheduler on
// repeated staleness; this loop only observes and reports.
func (s *Scheduler) watchdog(ctx context.Context, entries []entry) {
	if s.cache == nil || len(entries) == 0 {
		return
	}
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			for _, e := range entries {
				last, ok := s.cache.LastHeartbeat(ctx, e.name)
				if !ok {
					continue
				}
				if now.Sub(last) > time.Duration(s.staleSec)*time.Second {
					s.log.WithStage(e.name).
						WithField("last_heartbeat", last.Format(time.RFC3339)).
						Warn("scheduler job heartbeat stale")
				}
			}
		}
	}
}
