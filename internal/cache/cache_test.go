package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, "key2", []byte("value2"), time.Minute)

		if err := cache.Delete(ctx, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		if val, _ := cache.Get(ctx, "key2"); val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		now := time.Now()
		c := NewLRUCache(10)
		c.now = func() time.Time { return now }

		_ = c.Set(ctx, "expiring", []byte("temp"), 10*time.Second)
		if val, _ := c.Get(ctx, "expiring"); val == nil {
			t.Error("expected value before expiration")
		}

		now = now.Add(11 * time.Second)
		if val, _ := c.Get(ctx, "expiring"); val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		small := NewLRUCache(3)

		_ = small.Set(ctx, "a", []byte("1"), time.Minute)
		_ = small.Set(ctx, "b", []byte("2"), time.Minute)
		_ = small.Set(ctx, "c", []byte("3"), time.Minute)

		// Touch "a" so "b" becomes the oldest
		_, _ = small.Get(ctx, "a")
		_ = small.Set(ctx, "d", []byte("4"), time.Minute)

		if val, _ := small.Get(ctx, "b"); val != nil {
			t.Error("expected 'b' to be evicted")
		}
		if val, _ := small.Get(ctx, "a"); val == nil {
			t.Error("expected 'a' to survive")
		}
		if size, capacity := small.Stats(); size != 3 || capacity != 3 {
			t.Errorf("expected 3/3, got %d/%d", size, capacity)
		}
	})
}

func TestLRUIncrementCounter(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewLRUCache(100)
	c.now = func() time.Time { return now }

	t.Run("CountsWithinWindow", func(t *testing.T) {
		for i := int64(1); i <= 10; i++ {
			n, err := c.IncrementCounter(ctx, "rate:10.0.0.1", time.Minute)
			if err != nil {
				t.Fatalf("IncrementCounter failed: %v", err)
			}
			if n != i {
				t.Errorf("expected %d, got %d", i, n)
			}
		}
	})

	t.Run("KeysAreIndependent", func(t *testing.T) {
		n, _ := c.IncrementCounter(ctx, "rate:10.0.0.2", time.Minute)
		if n != 1 {
			t.Errorf("expected fresh counter, got %d", n)
		}
	})

	t.Run("WindowResets", func(t *testing.T) {
		now = now.Add(61 * time.Second)
		n, _ := c.IncrementCounter(ctx, "rate:10.0.0.1", time.Minute)
		if n != 1 {
			t.Errorf("expected counter to restart at 1, got %d", n)
		}
	})

	t.Run("Concurrent", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = c.IncrementCounter(ctx, "rate:shared", time.Minute)
			}()
		}
		wg.Wait()

		n, _ := c.IncrementCounter(ctx, "rate:shared", time.Minute)
		if n != 51 {
			t.Errorf("expected 51, got %d", n)
		}
	})
}

func TestLRUPurgesExpiredCounters(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	c := NewLRUCache(2)
	c.now = func() time.Time { return now }

	_, _ = c.IncrementCounter(ctx, "a", time.Second)
	_, _ = c.IncrementCounter(ctx, "b", time.Second)

	now = now.Add(2 * time.Second)
	_, _ = c.IncrementCounter(ctx, "c", time.Second)

	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.counters) != 1 {
		t.Errorf("expected expired counters to be purged, have %d", len(c.counters))
	}
}

func TestLRUCounterCapacity(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	c := NewLRUCache(3)
	c.now = func() time.Time { return now }

	for i := 0; i < 50; i++ {
		now = now.Add(time.Millisecond)
		if n, err := c.IncrementCounter(ctx, fmt.Sprintf("rate:10.0.0.%d", i), time.Minute); err != nil || n != 1 {
			t.Fatalf("IncrementCounter %d: n=%d err=%v", i, n, err)
		}
	}

	c.mu.RLock()
	size := len(c.counters)
	_, newest := c.counters["rate:10.0.0.49"]
	_, first := c.counters["rate:10.0.0.0"]
	c.mu.RUnlock()

	if size != 3 {
		t.Errorf("expected counters capped at 3, have %d", size)
	}
	if !newest {
		t.Error("expected the newest window to be kept")
	}
	if first {
		t.Error("expected the oldest window to be evicted")
	}

	t.Run("LiveKeyKeepsCounting", func(t *testing.T) {
		n, _ := c.IncrementCounter(ctx, "rate:10.0.0.49", time.Minute)
		if n != 2 {
			t.Errorf("expected 2, got %d", n)
		}
	})
}

func TestTwoPhaseCache(t *testing.T) {
	ctx := context.Background()
	local := NewLRUCache(10)
	remote := NewLRUCache(10)
	c := NewTwoPhaseCache(local, remote, time.Minute)

	var _ domain.Cache = c

	t.Run("SetWritesBothLayers", func(t *testing.T) {
		if err := c.Set(ctx, "k", []byte("v"), time.Hour); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if val, _ := local.Get(ctx, "k"); string(val) != "v" {
			t.Error("expected L1 to hold value")
		}
		if val, _ := remote.Get(ctx, "k"); string(val) != "v" {
			t.Error("expected L2 to hold value")
		}
	})

	t.Run("L2HitPopulatesL1", func(t *testing.T) {
		_ = remote.Set(ctx, "only-remote", []byte("r"), time.Hour)

		val, err := c.Get(ctx, "only-remote")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "r" {
			t.Errorf("expected 'r', got %q", val)
		}
		if val, _ := local.Get(ctx, "only-remote"); string(val) != "r" {
			t.Error("expected L1 to be populated")
		}
	})

	t.Run("DeleteClearsBothLayers", func(t *testing.T) {
		if err := c.Delete(ctx, "k"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if val, _ := c.Get(ctx, "k"); val != nil {
			t.Error("expected miss after delete")
		}
	})

	t.Run("CountersUseL2", func(t *testing.T) {
		_, _ = c.IncrementCounter(ctx, "n", time.Minute)
		n, _ := remote.IncrementCounter(ctx, "n", time.Minute)
		if n != 2 {
			t.Errorf("expected counter shared through L2, got %d", n)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := c.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func TestNew(t *testing.T) {
	t.Run("Memory", func(t *testing.T) {
		c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 5})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if _, ok := c.(*LRUCache); !ok {
			t.Errorf("expected *LRUCache, got %T", c)
		}
	})

	t.Run("Unsupported", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unsupported cache type")
		}
	})
}
