package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Lot is a quantity acquired by one buy, carrying its own unit cost.
type Lot struct {
	Quantity   decimal.Decimal
	UnitCost   decimal.Decimal
	AcquiredAt time.Time
}

// Cost returns Quantity × UnitCost.
func (l Lot) Cost() decimal.Decimal {
	return l.Quantity.Mul(l.UnitCost)
}

// lotQueue is a FIFO of lots backed by a growable slice with an advancing
// head index. Lot counts per asset are small and access is strictly
// front-to-back, so consumed slots are reclaimed by compaction rather than
// per-pop reallocation.
type lotQueue struct {
	items []Lot
	head  int
}

const compactThreshold = 32

func (q *lotQueue) push(l Lot) {
	q.items = append(q.items, l)
}

func (q *lotQueue) len() int {
	return len(q.items) - q.head
}

// consume removes qty from the oldest lots first. Whatever cannot be matched
// against tracked lots is returned; the queue never goes negative.
func (q *lotQueue) consume(qty decimal.Decimal) decimal.Decimal {
	for qty.IsPositive() && q.len() > 0 {
		front := &q.items[q.head]
		if front.Quantity.GreaterThan(qty) {
			front.Quantity = front.Quantity.Sub(qty)
			qty = decimal.Zero
			break
		}
		qty = qty.Sub(front.Quantity)
		q.items[q.head] = Lot{}
		q.head++
	}
	q.compact()
	return qty
}

func (q *lotQueue) compact() {
	if q.head == 0 {
		return
	}
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
		return
	}
	if q.head >= compactThreshold && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		q.items = q.items[:n]
		q.head = 0
	}
}

// totals returns Σ quantity and Σ quantity × unitCost over open lots.
func (q *lotQueue) totals() (quantity, cost decimal.Decimal) {
	quantity, cost = decimal.Zero, decimal.Zero
	for _, l := range q.items[q.head:] {
		quantity = quantity.Add(l.Quantity)
		cost = cost.Add(l.Cost())
	}
	return quantity, cost
}

func (q *lotQueue) snapshot() []Lot {
	out := make([]Lot, q.len())
	copy(out, q.items[q.head:])
	return out
}
