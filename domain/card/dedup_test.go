package card

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeKV struct {
	store map[string]string
	err   error
}

func newFakeKV() *fakeKV { return &fakeKV{store: map[string]string{}} }

func (f *fakeKV) GetString(ctx context.Context, key string) (string, bool) {
	if f.err != nil {
		return "", false
	}
	v, ok := f.store[key]
	return v, ok
}

func (f *fakeKV) SetStringErr(ctx context.Context, key, value string, ttl time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.store[key] = value
	return nil
}

func TestStateVersionFormat(t *testing.T) {
	v := StateVersion("candidate", "green", false, "v2", nil)
	assert.Equal(t, "candidate|green|degrade:0|v2", v)
}

func TestStateVersionDegradeFlagReflectsOnlyDegradeArg(t *testing.T) {
	v := StateVersion("verified", "gray", false, "v1", nil)
	assert.Equal(t, "verified|gray|degrade:0|v1", v)

	v = StateVersion("verified", "gray", true, "v1", nil)
	assert.Equal(t, "verified|gray|degrade:1|v1", v)
}

func TestStateVersionAppendsRuleHash(t *testing.T) {
	v1 := StateVersion("verified", "yellow", false, "v1", []string{"b_rule", "a_rule"})
	v2 := StateVersion("verified", "yellow", false, "v1", []string{"a_rule", "b_rule"})
	assert.Equal(t, v1, v2, "rule hash must be order-independent")
	assert.Contains(t, v1, "_mr")
}

func TestShouldEmitFirstSeen(t *testing.T) {
	kv := newFakeKV()
	emit, reason := ShouldEmit(context.Background(), kv, "ek1", "v1")
	assert.True(t, emit)
	assert.Equal(t, ReasonFirstSeen, reason)
}

func TestShouldEmitStateUnchanged(t *testing.T) {
	kv := newFakeKV()
	kv.store[dedupKey("ek1")] = "v1"
	emit, reason := ShouldEmit(context.Background(), kv, "ek1", "v1")
	assert.False(t, emit)
	assert.Equal(t, ReasonStateUnchanged, reason)
}

func TestShouldEmitStateChanged(t *testing.T) {
	kv := newFakeKV()
	kv.store[dedupKey("ek1")] = "v1"
	emit, reason := ShouldEmit(context.Background(), kv, "ek1", "v2")
	assert.True(t, emit)
	assert.Equal(t, ReasonStateChanged, reason)
}

func TestShouldEmitNoEventKey(t *testing.T) {
	kv := newFakeKV()
	emit, reason := ShouldEmit(context.Background(), kv, "", "v1")
	assert.True(t, emit)
	assert.Equal(t, ReasonNoEventKey, reason)
}

func TestMarkEmittedStoresVersion(t *testing.T) {
	kv := newFakeKV()
	MarkEmitted(context.Background(), kv, "ek1", "v1", time.Hour)
	v, ok := kv.GetString(context.Background(), dedupKey("ek1"))
	assert.True(t, ok)
	assert.Equal(t, "v1", v)
}
