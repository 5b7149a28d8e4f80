package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// TransactionStore appends transactions.
type TransactionStore interface {
	SaveTransactions(ctx context.Context, txs []*domain.Transaction) error
}

// Blocker writes block-list entries.
type Blocker interface {
	Block(ctx context.Context, upiID, reason string) error
}

const importBatchSize = 200

// Import appends txs in batches. Transactions whose id already exists
// are skipped by the store.
func Import(ctx context.Context, store TransactionStore, txs []*domain.Transaction) error {
	for start := 0; start < len(txs); start += importBatchSize {
		end := min(start+importBatchSize, len(txs))
		if err := store.SaveTransactions(ctx, txs[start:end]); err != nil {
			return fmt.Errorf("failed to import batch at %d: %w", start, err)
		}
	}
	slog.Info("transactions imported", "count", len(txs))
	return nil
}

// SampleBlocks returns the demo block-list entries.
func SampleBlocks() []domain.BlockedSender {
	now := time.Now().UTC()
	return []domain.BlockedSender{
		{UPIID: "scam@upi", Reason: domain.ReasonHighAmount, BlockedAt: now},
		{UPIID: "fraud123@okaxis", Reason: "Transaction during odd hours", BlockedAt: now},
	}
}

// BlockSamples writes SampleBlocks through b.
func BlockSamples(ctx context.Context, b Blocker) error {
	for _, entry := range SampleBlocks() {
		if err := b.Block(ctx, entry.UPIID, entry.Reason); err != nil {
			return err
		}
	}
	return nil
}
