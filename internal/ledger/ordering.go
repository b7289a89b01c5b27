package ledger

import (
	"PortfolioAnalytics/internal/event"
	"sort"
)

// countInversions returns how many adjacent pairs go backwards in time.
func countInversions(trades []event.TradeEvent) int {
	n := 0
	for i := 1; i < len(trades); i++ {
		if trades[i].OccurredAt.Before(trades[i-1].OccurredAt) {
			n++
		}
	}
	return n
}

// ensureOrdered returns trades in ascending OccurredAt order. Input that is
// already ordered is returned as is; otherwise a stably sorted copy is made so
// that same-instant trades keep the reader's order. The caller's slice is
// never mutated.
func ensureOrdered(trades []event.TradeEvent) ([]event.TradeEvent, int) {
	inversions := countInversions(trades)
	if inversions == 0 {
		return trades, 0
	}

	sorted := make([]event.TradeEvent, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OccurredAt.Before(sorted[j].OccurredAt)
	})
	return sorted, inversions
}
