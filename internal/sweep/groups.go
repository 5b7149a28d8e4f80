package sweep

import "github.com/opensource-finance/kestrel/internal/domain"

// Window keys use the wall clock of each transaction's own offset.
const (
	minuteLayout = "2006-01-02T15:04"
	dayLayout    = "2006-01-02"
)

func receiverMinute(tx *domain.Transaction) string {
	return tx.Receiver + "|" + tx.Timestamp.Format(minuteLayout)
}

func senderMinute(tx *domain.Transaction) string {
	return tx.Sender + "|" + tx.Timestamp.Format(minuteLayout)
}

func pairDay(tx *domain.Transaction) string {
	return tx.Sender + "|" + tx.Receiver + "|" + tx.Timestamp.Format(dayLayout)
}

// groupBy partitions txs by key. Groups come back in order of first
// appearance and members keep their input order.
func groupBy(txs []*domain.Transaction, key func(*domain.Transaction) string) [][]*domain.Transaction {
	index := make(map[string]int)
	var groups [][]*domain.Transaction
	for _, tx := range txs {
		k := key(tx)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], tx)
	}
	return groups
}

// oversized returns the members of every group larger than threshold,
// flattened in group order.
func oversized(groups [][]*domain.Transaction, threshold int) []*domain.Transaction {
	var out []*domain.Transaction
	for _, g := range groups {
		if len(g) > threshold {
			out = append(out, g...)
		}
	}
	return out
}
