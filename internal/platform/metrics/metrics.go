// Package metrics provides the Prometheus collectors shared by every
// component of the event/signal/card/outbox pipeline.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the pipeline.
type Metrics struct {
	// Event Core
	InsertConflictFallbackTotal prometheus.Counter
	EventUpsertDuration         prometheus.Histogram

	// Signals Core
	HeatComputeDuration prometheus.Histogram
	HeatCacheHitsTotal  prometheus.Counter
	HeatPersistTotal    *prometheus.CounterVec // reason=ok|lock_conflict|timeout|row_not_found|disabled

	// Card Pipeline
	CardsUnknownTypeTotal *prometheus.CounterVec // type
	CardsRenderFailTotal  *prometheus.CounterVec // reason
	CardsPushTotal        *prometheus.CounterVec // type
	CardsPushFailTotal    *prometheus.CounterVec // type,code
	CardsPipelineDuration *prometheus.HistogramVec

	// Outbox
	OutboxEnqueuedTotal prometheus.Counter
	OutboxAttemptsTotal *prometheus.CounterVec // result=done|retry|dlq
	OutboxDLQTotal      prometheus.Counter

	// Alerting
	AlertsFiredTotal    *prometheus.CounterVec // rule
	AlertsNotifiedTotal *prometheus.CounterVec // rule,status

	// Process
	ProcessUptimeSeconds prometheus.Gauge
	ProcessRSSBytes      prometheus.Gauge
}

// New creates a Metrics instance registered against the default registerer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against a custom registerer.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		InsertConflictFallbackTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "insert_conflict_fallback_total",
			Help: "Event upserts that exhausted deadlock retries and fell back to append-only",
		}),
		EventUpsertDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "event_upsert_duration_seconds",
			Help:    "Duration of event upsert transactions",
			Buckets: prometheus.DefBuckets,
		}),
		HeatComputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "heat_compute_duration_seconds",
			Help:    "Duration of heat compute calls",
			Buckets: prometheus.DefBuckets,
		}),
		HeatCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heat_cache_hits_total",
			Help: "Heat compute calls served entirely from cache",
		}),
		HeatPersistTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "heat_persist_total",
			Help: "Heat persist attempts by outcome reason",
		}, []string{"reason"}),
		CardsUnknownTypeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cards_unknown_type_count",
			Help: "Card generation attempts with an unrecognized card type",
		}, []string{"type"}),
		CardsRenderFailTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cards_render_fail_total",
			Help: "Card render failures by reason",
		}, []string{"reason"}),
		CardsPushTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cards_push_total",
			Help: "Cards successfully dispatched by type",
		}, []string{"type"}),
		CardsPushFailTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cards_push_fail_total",
			Help: "Card dispatch failures by type and status class",
		}, []string{"type", "code"}),
		CardsPipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cards_pipeline_duration_seconds",
			Help:    "End-to-end card pipeline latency by type",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		OutboxEnqueuedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outbox_enqueued_total",
			Help: "Outbox rows enqueued (post dedup-absorption)",
		}),
		OutboxAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_attempts_total",
			Help: "Outbox dispatch attempts by terminal result",
		}, []string{"result"}),
		OutboxDLQTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outbox_dlq_total",
			Help: "Outbox rows moved to the dead-letter table",
		}),
		AlertsFiredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alerts_fired_total",
			Help: "Alert rule breaches that fired after debounce",
		}, []string{"rule"}),
		AlertsNotifiedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alerts_notified_total",
			Help: "Alert notification attempts by status",
		}, []string{"rule", "status"}),
		ProcessUptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "process_uptime_seconds",
			Help: "Process uptime in seconds",
		}),
		ProcessRSSBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "process_rss_bytes",
			Help: "Resident set size reported by gopsutil",
		}),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.InsertConflictFallbackTotal,
			m.EventUpsertDuration,
			m.HeatComputeDuration,
			m.HeatCacheHitsTotal,
			m.HeatPersistTotal,
			m.CardsUnknownTypeTotal,
			m.CardsRenderFailTotal,
			m.CardsPushTotal,
			m.CardsPushFailTotal,
			m.CardsPipelineDuration,
			m.OutboxEnqueuedTotal,
			m.OutboxAttemptsTotal,
			m.OutboxDLQTotal,
			m.AlertsFiredTotal,
			m.AlertsNotifiedTotal,
			m.ProcessUptimeSeconds,
			m.ProcessRSSBytes,
		)
	}

	return m
}

var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance exactly once, registered
// against the default Prometheus registerer.
func Init() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalMetrics == nil {
		globalMetrics = New()
	}
	return globalMetrics
}

// Global returns the global metrics instance, initializing a fresh one
// against a private registry if Init was never called (keeps tests
// collision-free with the default registerer).
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalMetrics == nil {
		globalMetrics = NewWithRegistry(prometheus.NewRegistry())
	}
	return globalMetrics
}
