package ratelimit

import (
	"context"
	"testing"
)

func closeLimiter(t *testing.T, m *MemoryLimiter) {
	t.Helper()
	if err := m.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
}

func TestMemoryLimiterAllowUnderBurst(t *testing.T) {
	m := NewMemoryLimiter(10, 5)
	defer closeLimiter(t, m)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		ok, err := m.Allow(ctx, "k1")
		if err != nil {
			t.Fatalf("Allow returned error on request %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("expected Allow to return true for request %d (within burst)", i)
		}
	}
}

func TestMemoryLimiterDenyAfterBurst(t *testing.T) {
	m := NewMemoryLimiter(0.001, 3)
	defer closeLimiter(t, m)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ok, _ := m.Allow(ctx, "k1")
		if !ok {
			t.Fatalf("expected request %d within burst to pass", i)
		}
	}
	ok, _ := m.Allow(ctx, "k1")
	if ok {
		t.Fatal("expected request beyond burst to be denied")
	}
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	m := NewMemoryLimiter(0.001, 1)
	defer closeLimiter(t, m)

	ctx := context.Background()
	if ok, _ := m.Allow(ctx, "a"); !ok {
		t.Fatal("expected first request for key a to pass")
	}
	if ok, _ := m.Allow(ctx, "a"); ok {
		t.Fatal("expected second request for key a to be denied")
	}
	if ok, _ := m.Allow(ctx, "b"); !ok {
		t.Fatal("expected first request for key b to pass")
	}
}

func TestPerMinuteBurstFloor(t *testing.T) {
	m := PerMinute(12)
	defer closeLimiter(t, m)
	if m.burst != 5 {
		t.Fatalf("expected burst floor of 5, got %v", m.burst)
	}
}

func TestNoopLimiterAlwaysAllows(t *testing.T) {
	var l NoopLimiter
	ok, err := l.Allow(context.Background(), "anything")
	if err != nil || !ok {
		t.Fatalf("expected noop limiter to allow, got ok=%v err=%v", ok, err)
	}
}
