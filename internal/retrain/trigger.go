// Package retrain owns the fraud counter that schedules model retraining.
package retrain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
)

// Publisher sends retrain signals.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Signal reasons
const (
	ReasonThreshold = "threshold"
	ReasonManual    = "manual"
)

// Trigger counts fraud flags. The count lives in [0, threshold); the
// increment that reaches the threshold resets it to 0 and emits exactly
// one retrain signal. The signal is sent after the lock is released and
// is not retried: if publishing fails that cycle is lost.
type Trigger struct {
	mu        sync.Mutex
	count     int
	threshold int
	fired     uint64

	pub     Publisher
	now     func() time.Time
	metrics metrics.Retrain
}

// NewTrigger creates a trigger that fires every threshold flags.
func NewTrigger(threshold int, pub Publisher) *Trigger {
	if threshold <= 0 {
		threshold = 500
	}
	return &Trigger{
		threshold: threshold,
		pub:       pub,
		now:       time.Now,
		metrics:   metrics.NewRetrain(),
	}
}

// Increment records one fraud flag and reports whether this call crossed
// the threshold.
func (t *Trigger) Increment(ctx context.Context) bool {
	t.mu.Lock()
	t.count++
	fire := t.count >= t.threshold
	if fire {
		t.count = 0
		t.fired++
	}
	t.mu.Unlock()

	if fire {
		if err := t.emit(ctx, ReasonThreshold); err != nil {
			slog.Error("retrain signal lost", "error", err)
		}
	}
	return fire
}

// Request emits a retrain signal without touching the counter.
func (t *Trigger) Request(ctx context.Context) error {
	return t.emit(ctx, ReasonManual)
}

// Count returns the current counter value.
func (t *Trigger) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Fired returns how many times the threshold has been crossed.
func (t *Trigger) Fired() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

// Threshold returns the configured threshold.
func (t *Trigger) Threshold() int {
	return t.threshold
}

func (t *Trigger) emit(ctx context.Context, reason string) error {
	payload, err := json.Marshal(domain.RetrainSignal{
		Reason:      reason,
		RequestedAt: t.now().UnixMilli(),
	})
	if err != nil {
		return err
	}

	if err := t.pub.Publish(ctx, domain.TopicRetrainRequested, payload); err != nil {
		return fmt.Errorf("failed to publish retrain signal: %w", err)
	}

	t.metrics.ObserveSignal("emitted")
	slog.Info("retrain signal emitted", "reason", reason)
	return nil
}
