package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	blockListWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "blocklist",
		Name:      "writes_total",
		Help:      "Count of block-list upserts.",
	}, []string{"status"})

	blockListLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "blocklist",
		Name:      "lookups_total",
		Help:      "Count of block-list lookups by where they were answered.",
	}, []string{"source"})
)

// BlockList tracks metrics for the block list.
type BlockList struct{}

// NewBlockList constructs a BlockList recorder.
func NewBlockList() BlockList {
	return BlockList{}
}

// ObserveWrite records a block upsert outcome.
func (BlockList) ObserveWrite(err error) {
	blockListWritesTotal.WithLabelValues(status(err)).Inc()
}

// ObserveLookup records a lookup answered by "cache", "store" or "error".
func (BlockList) ObserveLookup(source string) {
	blockListLookupsTotal.WithLabelValues(source).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
