// Package sweep rebuilds the flagged-record collection from the full
// transaction history using batch pattern rules.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
)

// Store is the record store the detector reads and rewrites.
type Store interface {
	ListTransactions(ctx context.Context) ([]*domain.Transaction, error)
	ReplaceFlagged(ctx context.Context, recs []*domain.FlaggedRecord) error
}

// Locker is implemented by stores that can hold a lease shared across
// processes. When the store is a Locker only one process sweeps at a time.
type Locker interface {
	AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, name, holder string) error
}

// Lease parameters. A crashed holder's lease lapses after LeaseTTL.
const (
	LeaseName = "sweep"
	LeaseTTL  = 10 * time.Minute
)

// RowMatcher evaluates the per-transaction batch predicates.
type RowMatcher interface {
	Match(tx *domain.Transaction, senderBlocked bool) []string
}

// Report summarises one sweep.
type Report struct {
	Transactions int            `json:"transactions"`
	Flagged      int            `json:"flagged"`
	PerReason    map[string]int `json:"per_reason"`
	DurationMs   int64          `json:"duration_ms"`
}

// Detector runs the batch rules over an immutable snapshot. A transaction
// that matches k rules yields k records, each with a single reason.
type Detector struct {
	store Store
	rows  RowMatcher

	receiverBurst int
	pairRepeat    int
	senderBurst   int

	locker Locker
	holder string

	running atomic.Bool
	now     func() time.Time
	metrics metrics.Sweep
}

// NewDetector creates a detector. rows must have the sweep row rules loaded.
func NewDetector(store Store, rows RowMatcher, cfg domain.SweepConfig) *Detector {
	d := &Detector{
		store:         store,
		rows:          rows,
		receiverBurst: cfg.ReceiverBurstThreshold,
		pairRepeat:    cfg.PairRepeatThreshold,
		senderBurst:   cfg.SenderBurstThreshold,
		holder:        uuid.New().String(),
		now:           time.Now,
		metrics:       metrics.NewSweep(),
	}
	if d.receiverBurst <= 0 {
		d.receiverBurst = 5
	}
	if d.pairRepeat <= 0 {
		d.pairRepeat = 3
	}
	if d.senderBurst <= 0 {
		d.senderBurst = 5
	}
	if l, ok := store.(Locker); ok {
		d.locker = l
	}
	return d
}

// Run takes a snapshot, detects patterns and replaces the flagged
// collection in one store transaction. A concurrent call in this process,
// or in another process holding the store lease, returns
// domain.ErrSweepInProgress.
func (d *Detector) Run(ctx context.Context) (*Report, error) {
	if !d.running.CompareAndSwap(false, true) {
		return nil, domain.ErrSweepInProgress
	}
	defer d.running.Store(false)

	if d.locker != nil {
		ok, err := d.locker.AcquireLease(ctx, LeaseName, d.holder, LeaseTTL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
		if !ok {
			return nil, domain.ErrSweepInProgress
		}
		defer func() {
			if err := d.locker.ReleaseLease(context.WithoutCancel(ctx), LeaseName, d.holder); err != nil {
				slog.Warn("failed to release sweep lease", "error", err)
			}
		}()
	}

	start := time.Now()
	report, err := d.run(ctx)
	var perReason map[string]int
	if report != nil {
		perReason = report.PerReason
	}
	d.metrics.ObserveRun(err, perReason, start)

	if err != nil {
		slog.Error("sweep failed", "error", err)
		return nil, err
	}

	report.DurationMs = time.Since(start).Milliseconds()
	slog.Info("sweep completed",
		"transactions", report.Transactions,
		"flagged", report.Flagged,
		"duration_ms", report.DurationMs,
	)
	return report, nil
}

func (d *Detector) run(ctx context.Context) (*Report, error) {
	txs, err := d.store.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load transactions: %v", domain.ErrStoreUnavailable, err)
	}

	recs := d.Detect(txs)
	if err := d.store.ReplaceFlagged(ctx, recs); err != nil {
		return nil, fmt.Errorf("%w: failed to replace flagged records: %v", domain.ErrStoreUnavailable, err)
	}

	perReason := make(map[string]int)
	for _, rec := range recs {
		perReason[rec.Reasons[0]]++
	}
	return &Report{
		Transactions: len(txs),
		Flagged:      len(recs),
		PerReason:    perReason,
	}, nil
}

// Detect applies every batch rule to txs, which must be ordered by
// (timestamp, id). Records are ordered by rule, then by group first
// appearance, then by member order.
func (d *Detector) Detect(txs []*domain.Transaction) []*domain.FlaggedRecord {
	checkedAt := d.now().UTC()

	// Row predicates, bucketed by reason
	rowHits := make(map[string][]*domain.Transaction)
	for _, tx := range txs {
		for _, reason := range d.rows.Match(tx, false) {
			rowHits[reason] = append(rowHits[reason], tx)
		}
	}

	hits := []struct {
		id     string
		reason string
		txs    []*domain.Transaction
	}{
		{"night-high-amount", domain.ReasonNightHighAmount, rowHits[domain.ReasonNightHighAmount]},
		{"receiver-burst", domain.ReasonReceiverBurst, oversized(groupBy(txs, receiverMinute), d.receiverBurst)},
		{"repeated-pair", domain.ReasonRepeatedPair, oversized(groupBy(txs, pairDay), d.pairRepeat)},
		{"night-device", domain.ReasonNightDevice, rowHits[domain.ReasonNightDevice]},
		{"sender-burst", domain.ReasonSenderBurst, oversized(groupBy(txs, senderMinute), d.senderBurst)},
	}

	var recs []*domain.FlaggedRecord
	for _, h := range hits {
		for _, tx := range h.txs {
			recs = append(recs, domain.NewFlaggedRecord(
				h.id+":"+tx.ID, tx, []string{h.reason}, domain.SourceBatch, checkedAt,
			))
		}
	}
	return recs
}

// Running reports whether a sweep is in progress.
func (d *Detector) Running() bool {
	return d.running.Load()
}

// Schedule runs a sweep every interval until ctx is done.
func (d *Detector) Schedule(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("sweep scheduler started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.Run(ctx); errors.Is(err, domain.ErrSweepInProgress) {
				slog.Info("scheduled sweep skipped, previous sweep still running")
			}
		}
	}
}
