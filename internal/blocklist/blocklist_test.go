package blocklist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

func newRepo(t *testing.T) *repository.SQLRepository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-blocklist-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

// countingStore wraps a Store and counts lookups.
type countingStore struct {
	Store
	mu   sync.Mutex
	gets int
	err  error
}

func (s *countingStore) GetBlockedSender(ctx context.Context, upiID string) (*domain.BlockedSender, error) {
	s.mu.Lock()
	s.gets++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.Store.GetBlockedSender(ctx, upiID)
}

func (s *countingStore) UpsertBlockedSender(ctx context.Context, b *domain.BlockedSender) error {
	if s.err != nil {
		return s.err
	}
	return s.Store.UpsertBlockedSender(ctx, b)
}

func TestBlockList(t *testing.T) {
	ctx := context.Background()
	bl := New(newRepo(t), cache.NewLRUCache(100), time.Minute)

	t.Run("NotBlockedInitially", func(t *testing.T) {
		blocked, err := bl.IsBlocked(ctx, "a@x")
		if err != nil {
			t.Fatalf("IsBlocked failed: %v", err)
		}
		if blocked {
			t.Error("expected a@x to be unblocked")
		}
	})

	t.Run("BlockThenLookup", func(t *testing.T) {
		if err := bl.Block(ctx, "A@X", "High transaction amount"); err != nil {
			t.Fatalf("Block failed: %v", err)
		}

		blocked, err := bl.IsBlocked(ctx, "a@x")
		if err != nil {
			t.Fatalf("IsBlocked failed: %v", err)
		}
		if !blocked {
			t.Error("expected a@x to be blocked")
		}

		entry, err := bl.Get(ctx, "a@x")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if entry.UPIID != "a@x" {
			t.Errorf("expected lower-cased handle, got %s", entry.UPIID)
		}
	})

	t.Run("BlockTwiceKeepsOneLatestRecord", func(t *testing.T) {
		first := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		bl.now = func() time.Time { return first }
		defer func() { bl.now = time.Now }()

		if err := bl.Block(ctx, "h@upi", "first reason"); err != nil {
			t.Fatalf("Block failed: %v", err)
		}
		bl.now = func() time.Time { return first.Add(time.Hour) }
		if err := bl.Block(ctx, "h@upi", "second reason"); err != nil {
			t.Fatalf("Block failed: %v", err)
		}

		list, err := bl.List(ctx)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		var matches []*domain.BlockedSender
		for _, b := range list {
			if b.UPIID == "h@upi" {
				matches = append(matches, b)
			}
		}
		if len(matches) != 1 {
			t.Fatalf("expected exactly one record for h@upi, got %d", len(matches))
		}
		if matches[0].Reason != "second reason" {
			t.Errorf("expected latest reason, got %q", matches[0].Reason)
		}
		if !matches[0].BlockedAt.Equal(first.Add(time.Hour)) {
			t.Errorf("expected latest timestamp, got %v", matches[0].BlockedAt)
		}
	})

	t.Run("EmptyHandle", func(t *testing.T) {
		if err := bl.Block(ctx, "  ", "x"); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestConcurrentBlocks(t *testing.T) {
	ctx := context.Background()
	bl := New(newRepo(t), nil, 0)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := bl.Block(ctx, "same@upi", fmt.Sprintf("reason %d", i)); err != nil {
				t.Errorf("Block %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	list, err := bl.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("expected one record after concurrent blocks, got %d", len(list))
	}
}

func TestPositiveLookupsAreCached(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: newRepo(t)}
	bl := New(store, cache.NewLRUCache(100), time.Minute)

	if err := bl.Block(ctx, "cached@upi", "x"); err != nil {
		t.Fatalf("Block failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if blocked, _ := bl.IsBlocked(ctx, "cached@upi"); !blocked {
			t.Fatal("expected blocked")
		}
	}
	if store.gets != 0 {
		t.Errorf("expected cached answers, store was read %d times", store.gets)
	}

	// Negative answers are not cached
	bl.IsBlocked(ctx, "clean@upi")
	bl.IsBlocked(ctx, "clean@upi")
	if store.gets != 2 {
		t.Errorf("expected 2 store reads for unblocked handle, got %d", store.gets)
	}
}

func TestStoreFailure(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: newRepo(t), err: errors.New("db down")}
	bl := New(store, nil, 0)

	if _, err := bl.IsBlocked(ctx, "x@upi"); err == nil {
		t.Error("expected lookup error")
	}
	if err := bl.Block(ctx, "x@upi", "r"); err == nil {
		t.Error("expected block error")
	}
}
