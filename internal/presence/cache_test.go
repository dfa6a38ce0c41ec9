package presence

import (
	"testing"
	"time"
)

func TestCacheGetReturnsCopy(t *testing.T) {
	c := NewCache()
	c.Put("sensor1", time.Now(), map[string]any{"battery": 90})

	first, ok := c.Get("sensor1")
	if !ok {
		t.Fatal("Get returned ok=false for cached device")
	}
	first.Fields["battery"] = 10

	second, _ := c.Get("sensor1")
	if second.Fields["battery"] != 90 {
		t.Errorf("mutating a returned snapshot leaked into the cache: battery = %v", second.Fields["battery"])
	}
}

func TestCacheMiss(t *testing.T) {
	c := NewCache()
	if _, ok := c.Get("ghost"); ok {
		t.Error("Get returned ok=true for a device never observed")
	}
}

func TestCacheStaleFlag(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	c := newCacheWithClock(func() time.Time { return clock })

	c.Put("sensor1", now, map[string]any{"contact": true})

	state, _ := c.Get("sensor1")
	if state.Stale {
		t.Error("fresh entry flagged stale")
	}

	clock = now.Add(StaleTTL + time.Second)
	state, ok := c.Get("sensor1")
	if !ok {
		t.Fatal("stale entry no longer returned; stale data should still be served")
	}
	if !state.Stale {
		t.Error("entry older than TTL not flagged stale")
	}
	if state.CacheAge < StaleTTL {
		t.Errorf("CacheAge = %v, want > %v", state.CacheAge, StaleTTL)
	}
}

func TestParseLastSeen(t *testing.T) {
	if ts := parseLastSeen("2026-01-24T10:30:00Z"); ts.IsZero() {
		t.Error("RFC3339 last_seen not parsed")
	}
	if ts := parseLastSeen(float64(1769251800000)); ts.IsZero() {
		t.Error("epoch-millis last_seen not parsed")
	}
	if ts := parseLastSeen(nil); !ts.IsZero() {
		t.Error("missing last_seen should parse to zero time")
	}
	if ts := parseLastSeen("garbage"); !ts.IsZero() {
		t.Error("malformed last_seen should parse to zero time")
	}
}
