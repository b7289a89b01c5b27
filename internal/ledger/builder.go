package ledger

import (
	"PortfolioAnalytics/internal/event"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WarningKind classifies a data-integrity signal found while replaying trades
// or reconciling against recorded balances.
type WarningKind string

const (
	WarnOversell          WarningKind = "oversell"
	WarnInvalidTrade      WarningKind = "invalid_trade"
	WarnOutOfOrder        WarningKind = "out_of_order"
	WarnBalanceDivergence WarningKind = "balance_divergence"
	WarnNoHistory         WarningKind = "no_history"
)

// Warning is never fatal. It is logged and counted by the caller.
type Warning struct {
	Kind     WarningKind
	Symbol   string
	TradeID  uuid.UUID
	Quantity decimal.Decimal
	Detail   string
}

func (w Warning) String() string {
	if w.Symbol == "" {
		return fmt.Sprintf("%s: %s", w.Kind, w.Detail)
	}
	return fmt.Sprintf("%s[%s]: %s", w.Kind, w.Symbol, w.Detail)
}

// AssetLedger is the replay result for one asset.
type AssetLedger struct {
	Symbol            string
	RemainingQuantity decimal.Decimal
	TotalCostBasis    decimal.Decimal
	TradeCount        int             // completed trades applied
	WindowTrades      int             // of which inside the requested window
	Oversold          decimal.Decimal // sell quantity that found no lot

	lots lotQueue
}

// HasHistory distinguishes "never traded" from "traded down to zero".
func (a *AssetLedger) HasHistory() bool {
	return a.TradeCount > 0
}

// AveragePrice is TotalCostBasis / RemainingQuantity, 0 when nothing remains.
func (a *AssetLedger) AveragePrice() decimal.Decimal {
	if !a.RemainingQuantity.IsPositive() {
		return decimal.Zero
	}
	return a.TotalCostBasis.Div(a.RemainingQuantity)
}

// OpenLots returns a copy of the remaining lots, oldest first.
func (a *AssetLedger) OpenLots() []Lot {
	return a.lots.snapshot()
}

// Book is the cost-basis ledger of one user, keyed by symbol.
type Book struct {
	assets   map[string]*AssetLedger
	Warnings []Warning
}

// Asset returns the ledger for a symbol, or nil when the symbol never traded.
func (b *Book) Asset(symbol string) *AssetLedger {
	return b.assets[event.NormalizeSymbol(symbol)]
}

// Symbols returns all traded symbols in ascending order.
func (b *Book) Symbols() []string {
	out := make([]string, 0, len(b.assets))
	for s := range b.assets {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Builder replays trade events into FIFO lots. It holds no state between
// calls and is safe for concurrent use.
type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

// Build replays trades (one user's history) bounded by window.
// Trades after window.End are excluded; trades before window.Start still
// establish the lots held when the window opens.
func (b *Builder) Build(trades []event.TradeEvent, window event.DateRange) *Book {
	book := &Book{assets: make(map[string]*AssetLedger)}

	ordered, inversions := ensureOrdered(trades)
	if inversions > 0 {
		book.Warnings = append(book.Warnings, Warning{
			Kind:   WarnOutOfOrder,
			Detail: fmt.Sprintf("%d trades out of time order, replayed after stable sort", inversions),
		})
	}

	for i := range ordered {
		t := &ordered[i]
		if !t.IsCompleted() || !window.Includes(t.OccurredAt) {
			continue
		}
		if err := t.Validate(); err != nil {
			book.Warnings = append(book.Warnings, Warning{
				Kind:    WarnInvalidTrade,
				Symbol:  event.NormalizeSymbol(t.Symbol),
				TradeID: t.TradeID,
				Detail:  err.Error(),
			})
			continue
		}

		symbol := event.NormalizeSymbol(t.Symbol)
		asset, ok := book.assets[symbol]
		if !ok {
			asset = &AssetLedger{Symbol: symbol, Oversold: decimal.Zero}
			book.assets[symbol] = asset
		}
		asset.TradeCount++
		if window.InWindow(t.OccurredAt) {
			asset.WindowTrades++
		}

		switch t.Side {
		case event.SideBuy:
			asset.lots.push(Lot{
				Quantity:   t.Quantity,
				UnitCost:   t.Price,
				AcquiredAt: t.OccurredAt,
			})
		case event.SideSell:
			unmatched := asset.lots.consume(t.Quantity)
			if unmatched.IsPositive() {
				asset.Oversold = asset.Oversold.Add(unmatched)
				book.Warnings = append(book.Warnings, Warning{
					Kind:     WarnOversell,
					Symbol:   symbol,
					TradeID:  t.TradeID,
					Quantity: unmatched,
					Detail: fmt.Sprintf("sell of %s exceeds tracked lots by %s, clamped to zero",
						t.Quantity, unmatched),
				})
			}
		}
	}

	for _, asset := range book.assets {
		asset.RemainingQuantity, asset.TotalCostBasis = asset.lots.totals()
	}

	return book
}
