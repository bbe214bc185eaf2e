package card

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// KVStore is the subset of internal/platform/cache.Client dedup needs.
type KVStore interface {
	GetString(ctx context.Context, key string) (string, bool)
	SetStringErr(ctx context.Context, key, value string, ttl time.Duration) error
}

// DedupReason enumerates why a card was allowed or skipped.
type DedupReason string

const (
	ReasonFirstSeen     DedupReason = "first_seen"
	ReasonStateUnchanged DedupReason = "state_unchanged"
	ReasonStateChanged  DedupReason = "state_changed"
	ReasonNoEventKey    DedupReason = "no_event_key"
	ReasonCheckError    DedupReason = "check_error"
)

func dedupKey(eventKey string) string {
	return "dedup:" + eventKey
}

// StateVersion computes "{state}|{risk_level}|degrade:{0|1}|{EVENT_KEY_VERSION}",
// optionally suffixed "_mr{hash(sorted hit_rules)[:8]}".
func StateVersion(state, riskLevel string, degrade bool, eventKeyVersion string, hitRules []string) string {
	degradeFlag := "0"
	if degrade {
		degradeFlag = "1"
	}
	if eventKeyVersion == "" {
		eventKeyVersion = "v1"
	}
	base := fmt.Sprintf("%s|%s|degrade:%s|%s", orDefaultStr(state, "candidate"), orDefaultStr(riskLevel, "unknown"), degradeFlag, eventKeyVersion)

	if len(hitRules) == 0 {
		return base
	}
	sorted := append([]string{}, hitRules...)
	sort.Strings(sorted)
	sum := md5.Sum([]byte(strings.Join(sorted, ",")))
	return base + "_mr" + hex.EncodeToString(sum[:])[:8]
}

// ShouldEmit checks the KV store for a stored state_version under
// eventKey, fail-opening to emit on any store error.
func ShouldEmit(ctx context.Context, kv KVStore, eventKey, stateVersion string) (bool, DedupReason) {
	if eventKey == "" {
		return true, ReasonNoEventKey
	}

	stored, ok := kv.GetString(ctx, dedupKey(eventKey))
	if !ok {
		return true, ReasonFirstSeen
	}
	if stored == stateVersion {
		return false, ReasonStateUnchanged
	}
	return true, ReasonStateChanged
}

// MarkEmitted records stateVersion for eventKey with the given TTL. A
// store failure is swallowed: dedup stays fail-open, and outbox
// uniqueness provides the exactly-once-ish backstop.
func MarkEmitted(ctx context.Context, kv KVStore, eventKey, stateVersion string, ttl time.Duration) {
	if eventKey == "" {
		return
	}
	_ = kv.SetStringErr(ctx, dedupKey(eventKey), stateVersion, ttl)
}
