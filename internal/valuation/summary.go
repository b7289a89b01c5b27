// Package valuation joins recorded balances, ledger cost basis and quotes into
// a value-sorted, allocation-weighted portfolio summary.
package valuation

import (
	"sort"
	"time"

	"PortfolioAnalytics/internal/event"
	"PortfolioAnalytics/internal/ledger"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// AssetValuation is one held asset.
type AssetValuation struct {
	Symbol   string
	Quantity decimal.Decimal // recorded balance
	// Price is nil when no usable quote exists.
	Price *decimal.Decimal
	Value decimal.Decimal
	// AveragePrice is nil when the asset has no trade history.
	AveragePrice         *decimal.Decimal
	CostBasis            decimal.Decimal
	AllocationPercentage float64
	PriceStatus          event.QuoteStatus
}

// Priced reports whether the asset contributes to totals.
func (a AssetValuation) Priced() bool {
	return a.Price != nil
}

// Summary is the valuation view of one snapshot.
type Summary struct {
	TotalValue decimal.Decimal
	Assets     []AssetValuation
	Count      int
	Timestamp  time.Time
	// PricesFetchedAt is the oldest quote used, nil when nothing was priced.
	PricesFetchedAt *time.Time
}

// Value builds the summary. Balances are ground truth for quantity; book may
// be nil when cost basis is not needed.
func Value(balances []event.Balance, book *ledger.Book, quotes map[string]event.PriceQuote, asOf time.Time) Summary {
	held := HeldQuantities(balances)

	assets := make([]AssetValuation, 0, len(held))
	total := decimal.Zero
	var oldest *time.Time

	for _, h := range held {
		av := AssetValuation{
			Symbol:      h.Symbol,
			Quantity:    h.Quantity,
			Value:       decimal.Zero,
			CostBasis:   decimal.Zero,
			PriceStatus: event.QuoteUnavailable,
		}

		if book != nil {
			if al := book.Asset(h.Symbol); al != nil && al.HasHistory() {
				avg := al.AveragePrice()
				av.AveragePrice = &avg
				av.CostBasis = al.TotalCostBasis
			}
		}

		if q, ok := quotes[h.Symbol]; ok && q.Usable() {
			price := q.Price
			av.Price = &price
			av.PriceStatus = q.Status
			av.Value = h.Quantity.Mul(price)
			total = total.Add(av.Value)
			if oldest == nil || q.FetchedAt.Before(*oldest) {
				fetched := q.FetchedAt
				oldest = &fetched
			}
		}
		assets = append(assets, av)
	}

	if total.IsPositive() {
		for i := range assets {
			if assets[i].Priced() {
				assets[i].AllocationPercentage = hundred.Mul(assets[i].Value).Div(total).InexactFloat64()
			}
		}
	}

	sort.SliceStable(assets, func(i, j int) bool {
		if c := assets[i].Value.Cmp(assets[j].Value); c != 0 {
			return c > 0
		}
		return assets[i].Symbol < assets[j].Symbol
	})

	return Summary{
		TotalValue:      total,
		Assets:          assets,
		Count:           len(assets),
		Timestamp:       asOf,
		PricesFetchedAt: oldest,
	}
}

// Holding is a positive recorded balance.
type Holding struct {
	Symbol   string
	Quantity decimal.Decimal
}

// HeldQuantities merges balances per normalized symbol and drops
// non-positive totals. The result is ordered by symbol.
func HeldQuantities(balances []event.Balance) []Holding {
	merged := make(map[string]decimal.Decimal, len(balances))
	for _, b := range balances {
		sym := event.NormalizeSymbol(b.Symbol)
		if sym == "" {
			continue
		}
		if q, ok := merged[sym]; ok {
			merged[sym] = q.Add(b.Quantity)
		} else {
			merged[sym] = b.Quantity
		}
	}

	out := make([]Holding, 0, len(merged))
	for sym, q := range merged {
		if q.IsPositive() {
			out = append(out, Holding{Symbol: sym, Quantity: q})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// HeldSymbols lists the symbols that need a quote.
func HeldSymbols(balances []event.Balance) []string {
	held := HeldQuantities(balances)
	out := make([]string, len(held))
	for i, h := range held {
		out[i] = h.Symbol
	}
	return out
}
