// Package blocklist maintains the durable set of blocked senders.
package blocklist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
)

// Store is the persistence the block list needs.
type Store interface {
	UpsertBlockedSender(ctx context.Context, b *domain.BlockedSender) error
	GetBlockedSender(ctx context.Context, upiID string) (*domain.BlockedSender, error)
	ListBlockedSenders(ctx context.Context) ([]*domain.BlockedSender, error)
}

const cachePrefix = "blocked:"

// BlockList keeps one entry per handle. Block is an upsert, so calling it
// twice for a handle leaves one entry with the latest reason and time.
//
// Positive lookups are cached. Entries are never removed, so a cached
// "blocked" answer cannot go stale; negative answers always hit the store.
type BlockList struct {
	store   Store
	cache   domain.Cache
	ttl     time.Duration
	now     func() time.Time
	metrics metrics.BlockList
}

// New creates a block list. cache may be nil.
func New(store Store, cache domain.Cache, ttl time.Duration) *BlockList {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &BlockList{
		store:   store,
		cache:   cache,
		ttl:     ttl,
		now:     time.Now,
		metrics: metrics.NewBlockList(),
	}
}

func normalize(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}

// Block records handle as blocked with reason.
func (l *BlockList) Block(ctx context.Context, handle, reason string) error {
	h := normalize(handle)
	if h == "" {
		return fmt.Errorf("%w: handle is required", domain.ErrInvalidInput)
	}

	err := l.store.UpsertBlockedSender(ctx, &domain.BlockedSender{
		UPIID:     h,
		Reason:    reason,
		BlockedAt: l.now().UTC(),
	})
	l.metrics.ObserveWrite(err)
	if err != nil {
		return fmt.Errorf("failed to block %s: %w", h, err)
	}

	l.remember(ctx, h)
	slog.Info("sender blocked", "upi_id", h, "reason", reason)
	return nil
}

// IsBlocked reports whether handle is on the block list.
func (l *BlockList) IsBlocked(ctx context.Context, handle string) (bool, error) {
	h := normalize(handle)

	if l.cache != nil {
		val, err := l.cache.Get(ctx, cachePrefix+h)
		if err != nil {
			slog.Warn("block cache read failed", "upi_id", h, "error", err)
		} else if val != nil {
			l.metrics.ObserveLookup("cache")
			return true, nil
		}
	}

	_, err := l.store.GetBlockedSender(ctx, h)
	if errors.Is(err, domain.ErrNotFound) {
		l.metrics.ObserveLookup("store")
		return false, nil
	}
	if err != nil {
		l.metrics.ObserveLookup("error")
		return false, err
	}

	l.metrics.ObserveLookup("store")
	l.remember(ctx, h)
	return true, nil
}

// Get returns the entry for handle or domain.ErrNotFound.
func (l *BlockList) Get(ctx context.Context, handle string) (*domain.BlockedSender, error) {
	return l.store.GetBlockedSender(ctx, normalize(handle))
}

// List returns every entry.
func (l *BlockList) List(ctx context.Context) ([]*domain.BlockedSender, error) {
	return l.store.ListBlockedSenders(ctx)
}

func (l *BlockList) remember(ctx context.Context, h string) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Set(ctx, cachePrefix+h, []byte{1}, l.ttl); err != nil {
		slog.Warn("block cache write failed", "upi_id", h, "error", err)
	}
}
