// Package scoring holds the swappable fraud model used by real-time screening.
package scoring

import (
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Features is the scorer input: amount, hour of day, day of week
// (Monday = 0) and device code.
type Features [domain.FeatureCount]float64

// Extract derives the feature vector of tx. Devices missing from codes
// map to domain.UnseenDeviceCode.
func Extract(tx *domain.Transaction, codes map[string]int) Features {
	code, ok := codes[tx.Device]
	if !ok {
		code = domain.UnseenDeviceCode
	}
	return Features{
		tx.Amount.InexactFloat64(),
		float64(tx.Hour()),
		float64(tx.DayOfWeek()),
		float64(code),
	}
}

// EncodeDevices assigns codes 0..n-1 to the distinct device labels in
// sorted order, so the same history always yields the same encoder.
func EncodeDevices(txs []*domain.Transaction) map[string]int {
	seen := make(map[string]struct{})
	for _, tx := range txs {
		seen[tx.Device] = struct{}{}
	}

	labels := make([]string, 0, len(seen))
	for d := range seen {
		labels = append(labels, d)
	}
	sort.Strings(labels)

	codes := make(map[string]int, len(labels))
	for i, d := range labels {
		codes[d] = i
	}
	return codes
}

// standardize applies the artifact's fitted scaling.
func standardize(f Features, means, scales []float64) Features {
	var out Features
	for i := range f {
		s := scales[i]
		if s == 0 {
			s = 1
		}
		out[i] = (f[i] - means[i]) / s
	}
	return out
}
