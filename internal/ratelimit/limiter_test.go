package ratelimit

import (
	"testing"
	"time"
)

func TestLimiterBurstAndRefill(t *testing.T) {
	l := New(Config{Enabled: true, RequestsPerMinute: 60, Burst: 2})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow("u1"); !ok {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	ok, wait := l.Allow("u1")
	if ok {
		t.Fatal("request after burst should be denied")
	}
	if wait <= 0 || wait > time.Second {
		t.Fatalf("wait = %v, want (0, 1s]", wait)
	}
	if ok, _ := l.Allow("u2"); !ok {
		t.Fatal("buckets must be independent per key")
	}

	now = now.Add(time.Second)
	if ok, _ := l.Allow("u1"); !ok {
		t.Fatal("expected one token after refill")
	}
}

func TestLimiterDisabled(t *testing.T) {
	tests := []struct {
		name string
		l    *Limiter
	}{
		{name: "nil", l: nil},
		{name: "disabled", l: New(Config{Burst: 1})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 5; i++ {
				if ok, _ := tt.l.Allow("k"); !ok {
					t.Fatalf("request %d denied", i)
				}
			}
		})
	}
}

func TestLimiterPrunesFullBuckets(t *testing.T) {
	l := New(Config{Enabled: true, RequestsPerMinute: 60, Burst: 1})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	l.maxKeys = 2

	l.Allow("a")
	l.Allow("b")
	now = now.Add(time.Minute)
	l.Allow("c")
	if len(l.buckets) != 1 {
		t.Fatalf("buckets = %d, want 1 after prune", len(l.buckets))
	}
}
