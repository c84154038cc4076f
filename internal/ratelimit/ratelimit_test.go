package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shaiso/Runbooks/internal/clock"
)

func TestMemory_CapReached(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	m := NewMemory(clk)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := m.Allow(ctx, "orphan_volume_cleanup", 3)
		if err != nil || !ok {
			t.Fatalf("attempt %d: expected allowed, got %v, %v", i, ok, err)
		}
	}

	ok, _ := m.Allow(ctx, "orphan_volume_cleanup", 3)
	if ok {
		t.Error("expected 4th attempt to be denied")
	}

	// Другой runbook считается отдельно.
	ok, _ = m.Allow(ctx, "security_audit", 3)
	if !ok {
		t.Error("expected other runbook to be allowed")
	}
}

func TestMemory_ZeroCapDisablesAuto(t *testing.T) {
	m := NewMemory(nil)
	ok, err := m.Allow(context.Background(), "x", 0)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("cap=0 must deny")
	}
}

func TestMemory_SlidingWindow(t *testing.T) {
	start := time.Date(2026, 5, 1, 23, 0, 0, 0, time.UTC)
	clk := clock.NewFake(start)
	m := NewMemory(clk)
	ctx := context.Background()

	if ok, _ := m.Allow(ctx, "rb", 2); !ok {
		t.Fatal("expected first allowed")
	}
	clk.Advance(2 * time.Hour) // следующий календарный день
	if ok, _ := m.Allow(ctx, "rb", 2); !ok {
		t.Fatal("expected second allowed")
	}
	if ok, _ := m.Allow(ctx, "rb", 2); ok {
		t.Fatal("calendar day change must not reset the window")
	}

	// Первая отметка выпадает из окна через 24 часа.
	clk.Set(start.Add(Window + time.Second))
	if ok, _ := m.Allow(ctx, "rb", 2); !ok {
		t.Error("expected slot freed after 24h")
	}
	if n, _ := m.Count(ctx, "rb"); n != 2 {
		t.Errorf("expected 2 in window, got %d", n)
	}
}

func TestMemory_ConcurrentAllow(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := m.Allow(ctx, "rb", 10); ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 10 {
		t.Errorf("expected exactly 10 allowed, got %d", got)
	}
}

func TestMemory_Release(t *testing.T) {
	m := NewMemory(clock.NewFake(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)))
	ctx := context.Background()

	if err := m.Release(ctx, "rb"); err != nil {
		t.Fatalf("Release on empty window: %v", err)
	}

	m.Allow(ctx, "rb", 1)
	if ok, _ := m.Allow(ctx, "rb", 1); ok {
		t.Fatal("cap must be reached")
	}
	if err := m.Release(ctx, "rb"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := m.Allow(ctx, "rb", 1); !ok {
		t.Error("released slot must be available again")
	}
}
