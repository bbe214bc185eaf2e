// Package config loads the pipeline's environment-variable configuration
// into a single typed struct, with .env support for local development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable named by the pipeline's components. Zero
// values are never relied on silently: each field has an explicit default
// applied in Load.
type Config struct {
	// Core infrastructure
	DatabaseURL string
	RedisURL    string
	HTTPAddr    string
	LogLevel    string
	LogFormat   string

	// Event Core
	EventKeySalt        string
	EventKeyVersion     string
	EventTimeBucketSec  int
	EventMergeStrict    bool
	EventDeadlockMaxRetry int
	EventHashAlgo       string
	EventTopicTopK      int

	// Signals Core — heat
	HeatMaxRows             int
	HeatTimeoutMs           int
	HeatNoiseFloor          int
	HeatMinSample           int
	ThetaRise               float64
	HeatEMAAlpha            float64
	HeatCacheTTLSec         int
	HeatEnablePersist       bool
	HeatPersistStrictMatch  bool
	HeatPersistTimeoutMs    int
	HeatPersistUpsert       bool

	// On-chain
	OnchainBackend      string
	BQProject           string
	BQDataset           string
	BQDatasetRO         string
	BQLocation          string
	BQTimeoutS          int
	BQMaxScannedGB      int
	BQOnchainFeaturesView string
	GCPProject          string

	// Cards
	CardsSummaryMaxChars    int
	CardsSummaryTimeoutMs   int
	CardsRiskNoteMaxChars   int
	DedupTTLSec             int

	// Market risk
	MarketRiskLiqMin          float64
	MarketRiskLiqRisk         string
	MarketRiskVolumeThreshold float64

	// Outbox
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// Expert view (read API)
	ExpertKey              string
	ExpertSource           string
	ExpertCacheTTLSec      int
	ExpertRateLimitPerMin  int

	// Scheduler
	BeatStaleSec int

	// SLO
	FreshnessSLOSec int

	// Card dispatch
	TelegramBotToken string

	// Replay
	ReplayEndpointX     string
	ReplayEndpointDex   string
	ReplayEndpointTopic string
	ReplayHeaderNow     string
	ReplayHeaderSeed    string
	ReplaySeed          string
	ReplayTimeoutSec    int

	// Alerting
	AlertsMetricsURL        string
	AlertsStatePath         string
	AlertsRulesPath         string
	AlertsMinBreachSec     int
	AlertsDefaultSilenceSec int
	AlertsWebhookURL        string
}

// Load reads configuration from the process environment, first loading a
// local .env file if present (missing .env is not an error). Defaults
// match the values named throughout the component design.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DatabaseURL: GetEnv("DATABASE_URL", ""),
		RedisURL:    GetEnv("REDIS_URL", "redis://localhost:6379/0"),
		HTTPAddr:    GetEnv("HTTP_ADDR", ":8080"),
		LogLevel:    GetEnv("LOG_LEVEL", "info"),
		LogFormat:   GetEnv("LOG_FORMAT", "json"),

		EventKeySalt:          GetEnv("EVENT_KEY_SALT", ""),
		EventKeyVersion:       GetEnv("EVENT_KEY_VERSION", "v2"),
		EventTimeBucketSec:    GetEnvInt("EVENT_TIME_BUCKET_SEC", 300),
		EventMergeStrict:      GetEnvBool("EVENT_MERGE_STRICT", true),
		EventDeadlockMaxRetry: GetEnvInt("EVENT_DEADLOCK_MAX_RETRY", 3),
		EventHashAlgo:         GetEnv("EVENT_HASH_ALGO", "sha256"),
		EventTopicTopK:        GetEnvInt("EVENT_TOPIC_TOPK", 5),

		HeatMaxRows:            GetEnvInt("HEAT_MAX_ROWS", 50000),
		HeatTimeoutMs:          GetEnvInt("HEAT_TIMEOUT_MS", 1500),
		HeatNoiseFloor:         GetEnvInt("HEAT_NOISE_FLOOR", 1),
		HeatMinSample:          GetEnvInt("HEAT_MIN_SAMPLE", 3),
		ThetaRise:              GetEnvFloat("THETA_RISE", 0.2),
		HeatEMAAlpha:           GetEnvFloat("HEAT_EMA_ALPHA", 0.0),
		HeatCacheTTLSec:        GetEnvInt("HEAT_CACHE_TTL", 30),
		HeatEnablePersist:      GetEnvBool("HEAT_ENABLE_PERSIST", false),
		HeatPersistStrictMatch: GetEnvBool("HEAT_PERSIST_STRICT_MATCH", true),
		HeatPersistTimeoutMs:   GetEnvInt("HEAT_PERSIST_TIMEOUT_MS", 1500),
		HeatPersistUpsert:      GetEnvBool("HEAT_PERSIST_UPSERT", true),

		OnchainBackend:        GetEnv("ONCHAIN_BACKEND", "bigquery"),
		BQProject:             GetEnv("BQ_PROJECT", ""),
		BQDataset:             GetEnv("BQ_DATASET", ""),
		BQDatasetRO:           GetEnv("BQ_DATASET_RO", ""),
		BQLocation:            GetEnv("BQ_LOCATION", "US"),
		BQTimeoutS:            GetEnvInt("BQ_TIMEOUT_S", 20),
		BQMaxScannedGB:        GetEnvInt("BQ_MAX_SCANNED_GB", 1),
		BQOnchainFeaturesView: GetEnv("BQ_ONCHAIN_FEATURES_VIEW", ""),
		GCPProject:            GetEnv("GCP_PROJECT", ""),

		CardsSummaryMaxChars:  GetEnvInt("CARDS_SUMMARY_MAX_CHARS", 280),
		CardsSummaryTimeoutMs: GetEnvInt("CARDS_SUMMARY_TIMEOUT_MS", 1500),
		CardsRiskNoteMaxChars: GetEnvInt("CARDS_RISKNOTE_MAX_CHARS", 160),
		DedupTTLSec:           GetEnvInt("DEDUP_TTL_SEC", 3600),

		MarketRiskLiqMin:          GetEnvFloat("MARKET_RISK_LIQ_MIN", 5000),
		MarketRiskLiqRisk:         GetEnv("MARKET_RISK_LIQ_RISK", "gray"),
		MarketRiskVolumeThreshold: GetEnvFloat("MARKET_RISK_VOLUME_THRESHOLD", 1000),

		MaxAttempts: GetEnvInt("MAX_ATTEMPTS", 6),
		BaseBackoff: GetEnvDuration("BASE_BACKOFF", 2*time.Second),
		MaxBackoff:  GetEnvDuration("MAX_BACKOFF", 5*time.Minute),

		ExpertKey:             GetEnv("EXPERT_KEY", ""),
		ExpertSource:          GetEnv("EXPERT_SOURCE", "internal"),
		ExpertCacheTTLSec:     GetEnvInt("EXPERT_CACHE_TTL_SEC", 60),
		ExpertRateLimitPerMin: GetEnvInt("EXPERT_RATE_LIMIT_PER_MIN", 30),

		BeatStaleSec: GetEnvInt("BEAT_STALE_SEC", 120),

		FreshnessSLOSec: GetEnvInt("FRESHNESS_SLO", 600),

		TelegramBotToken: GetEnv("TELEGRAM_BOT_TOKEN", ""),

		ReplayEndpointX:     GetEnv("REPLAY_ENDPOINT_X", ""),
		ReplayEndpointDex:   GetEnv("REPLAY_ENDPOINT_DEX", ""),
		ReplayEndpointTopic: GetEnv("REPLAY_ENDPOINT_TOPIC", ""),
		ReplayHeaderNow:     GetEnv("REPLAY_HEADER_NOW", "X-Replay-Now"),
		ReplayHeaderSeed:    GetEnv("REPLAY_HEADER_SEED", "X-Replay-Seed"),
		ReplaySeed:          GetEnv("REPLAY_SEED", "42"),
		ReplayTimeoutSec:    GetEnvInt("REPLAY_TIMEOUT_SEC", 6),

		AlertsMetricsURL:        GetEnv("ALERTS_METRICS_URL", "http://localhost:8080/metrics"),
		AlertsStatePath:         GetEnv("ALERTS_STATE_PATH", "alerts_state.json"),
		AlertsRulesPath:         GetEnv("ALERTS_RULES_PATH", "alerts.yml"),
		AlertsMinBreachSec:      GetEnvInt("ALERTS_MIN_BREACH_SEC", 60),
		AlertsDefaultSilenceSec: GetEnvInt("ALERTS_DEFAULT_SILENCE_SEC", 1800),
		AlertsWebhookURL:        GetEnv("ALERTS_WEBHOOK_URL", ""),
	}
}

// GetEnv retrieves an environment variable with a fallback default.
func GetEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvBool retrieves a boolean environment variable. Accepts
// "true"/"1"/"yes"/"y" as true and "false"/"0"/"no"/"n" as false
// (case-insensitive); an empty or any other value returns defaultValue.
func GetEnvBool(key string, defaultValue bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultValue
	}
	switch strings.ToLower(val) {
	case "true", "1", "yes", "y":
		return true
	case "false", "0", "no", "n":
		return false
	default:
		return defaultValue
	}
}

// GetEnvInt retrieves an integer environment variable, falling back to the
// default on absence or parse failure.
func GetEnvInt(key string, defaultValue int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// GetEnvFloat retrieves a float64 environment variable, falling back to the
// default on absence or parse failure.
func GetEnvFloat(key string, defaultValue float64) float64 {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// GetEnvDuration retrieves a duration environment variable (Go duration
// syntax, e.g. "5s", "2m"), falling back to the default on absence or
// parse failure.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}
	return parsed
}
