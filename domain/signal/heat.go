package signal

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Tracy625/event-stream-starter-sub001/internal/platform/cache"
	"github.com/Tracy625/event-stream-starter-sub001/internal/platform/logging"
)

// WindowCounter counts raw_posts rows matching a symbol/token_ca filter
// within [since, until), capped at maxRows. Implementations must apply
// HEAT_TIMEOUT_MS as a per-statement timeout.
type WindowCounter interface {
	CountWindow(ctx context.Context, symbol, tokenCA string, since, until time.Time, maxRows int) (int, error)
	Now(ctx context.Context) (time.Time, error)
}

// Computer computes heat metrics, holding the per-identifier EMA state
// that must survive across calls within a process.
type Computer struct {
	store WindowCounter
	cache *cache.Client
	log   *logging.Logger

	emaMu sync.Mutex
	ema   map[string]float64
}

// NewComputer creates a Computer. cache may be nil to disable the
// heat-result cache (compute always hits the store in that case).
func NewComputer(store WindowCounter, cacheClient *cache.Client, log *logging.Logger) *Computer {
	return &Computer{store: store, cache: cacheClient, log: log, ema: make(map[string]float64)}
}

// Compute implements the compute_heat contract: windowed post counts,
// slope/trend derivation, optional EMA smoothing, and a time-bucketed
// cache read/write. now, when nil, is read from the store's NOW() to
// avoid clock skew between the pipeline process and the database.
func (c *Computer) Compute(ctx context.Context, symbol, tokenCA string, now *time.Time, env HeatEnv) (HeatResult, error) {
	identifier := tokenCA
	if identifier == "" {
		identifier = symbol
	}
	if identifier == "" {
		identifier = "unknown"
	}

	var asOf time.Time
	if now != nil {
		asOf = *now
	} else {
		dbNow, err := c.store.Now(ctx)
		if err != nil {
			return HeatResult{Degrade: true, Trend: "flat", AsOfTS: time.Now().UTC()}, nil
		}
		asOf = dbNow
	}

	cacheTTL := env.CacheTTLSec
	var cacheKey string
	if cacheTTL > 0 && c.cache != nil {
		bucket := (asOf.Unix() / int64(cacheTTL)) * int64(cacheTTL)
		cacheKey = cache.HeatCacheKey(identifier, bucket)
		if raw, ok := c.cache.GetString(ctx, cacheKey); ok {
			var cached HeatResult
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				cached.FromCache = true
				cached.AsOfTS = asOf
				return cached, nil
			}
		}
	}

	result := HeatResult{
		Trend:  "flat",
		AsOfTS: asOf,
		Window: WindowSpec{TenSec: 600, ThirtySec: 1800},
	}

	if symbol == "" && tokenCA == "" {
		result.Degrade = true
		return result, nil
	}

	maxRows := env.MaxRows
	if maxRows <= 0 {
		maxRows = 50000
	}

	t10mAgo := asOf.Add(-10 * time.Minute)
	t20mAgo := asOf.Add(-20 * time.Minute)
	t30mAgo := asOf.Add(-30 * time.Minute)

	cnt30m, err := c.store.CountWindow(ctx, symbol, tokenCA, t30mAgo, asOf, maxRows)
	if err != nil {
		result.Degrade = true
		return result, nil
	}
	result.Cnt30m = cnt30m

	cnt10m, err := c.store.CountWindow(ctx, symbol, tokenCA, t10mAgo, asOf, maxRows)
	if err != nil {
		result.Degrade = true
		return result, nil
	}
	result.Cnt10m = cnt10m

	noiseFloor := env.NoiseFloor
	minSample := env.MinSample
	theta := env.ThetaRise

	switch {
	case cnt10m < noiseFloor:
		result.Trend = "flat"
		result.Degrade = false
	case cnt30m < minSample:
		result.Degrade = true
		result.Trend = "flat"
	default:
		prev10m, err := c.store.CountWindow(ctx, symbol, tokenCA, t20mAgo, t10mAgo, maxRows)
		if err != nil {
			result.Degrade = true
			result.Trend = "flat"
			break
		}
		slope := float64(cnt10m-prev10m) / 10.0
		result.Slope = &slope
		result.Trend = trendFor(slope, theta)

		if env.EMAAlpha > 0 {
			emaValue := c.updateEMA(identifier, slope, env.EMAAlpha)
			result.SlopeEMA = &emaValue
			result.TrendEMA = trendFor(emaValue, theta)
		}
	}

	if c.log != nil {
		entry := c.log.WithStage("signals.heat.compute").WithFields(map[string]interface{}{
			"symbol": symbol, "token_ca": tokenCA,
			"cnt_10m": result.Cnt10m, "cnt_30m": result.Cnt30m,
			"trend": result.Trend, "degrade": result.Degrade,
		})
		entry.Debug("heat computed")
	}

	if cacheTTL > 0 && c.cache != nil && cacheKey != "" && !result.Degrade {
		if encoded, err := json.Marshal(result); err == nil {
			c.cache.SetString(ctx, cacheKey, string(encoded), time.Duration(cacheTTL)*time.Second)
		}
	}

	return result, nil
}

func (c *Computer) updateEMA(identifier string, slope, alpha float64) float64 {
	c.emaMu.Lock()
	defer c.emaMu.Unlock()
	prev, ok := c.ema[identifier]
	var next float64
	if !ok {
		next = slope
	} else {
		next = alpha*slope + (1-alpha)*prev
	}
	c.ema[identifier] = next
	return next
}

func trendFor(slope, theta float64) string {
	switch {
	case slope >= theta:
		return "up"
	case slope <= -theta:
		return "down"
	default:
		return "flat"
	}
}
