package ledger

import (
	"PortfolioAnalytics/internal/event"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Reconcile checks the reconciliation invariant: after a full replay the
// ledger's remaining quantity per asset should equal the recorded balance.
//
// The recorded balance stays authoritative for holdings and the ledger stays
// authoritative for cost basis; this only reports where they disagree.
func Reconcile(book *Book, balances []event.Balance) []Warning {
	recorded := make(map[string]decimal.Decimal, len(balances))
	for _, b := range balances {
		symbol := event.NormalizeSymbol(b.Symbol)
		if q, ok := recorded[symbol]; ok {
			recorded[symbol] = q.Add(b.Quantity)
		} else {
			recorded[symbol] = b.Quantity
		}
	}

	symbols := make(map[string]struct{}, len(recorded)+len(book.assets))
	for s := range recorded {
		symbols[s] = struct{}{}
	}
	for s := range book.assets {
		symbols[s] = struct{}{}
	}
	ordered := make([]string, 0, len(symbols))
	for s := range symbols {
		ordered = append(ordered, s)
	}
	sort.Strings(ordered)

	var warnings []Warning
	for _, symbol := range ordered {
		balance, hasBalance := recorded[symbol]
		if !hasBalance {
			balance = decimal.Zero
		}
		asset := book.assets[symbol]

		if asset == nil || !asset.HasHistory() {
			if balance.IsPositive() {
				warnings = append(warnings, Warning{
					Kind:     WarnNoHistory,
					Symbol:   symbol,
					Quantity: balance,
					Detail:   fmt.Sprintf("balance %s has no trade history, cost basis unknown", balance),
				})
			}
			continue
		}

		if !asset.RemainingQuantity.Equal(balance) {
			warnings = append(warnings, Warning{
				Kind:     WarnBalanceDivergence,
				Symbol:   symbol,
				Quantity: balance.Sub(asset.RemainingQuantity),
				Detail: fmt.Sprintf("recorded balance %s, ledger tracks %s",
					balance, asset.RemainingQuantity),
			})
		}
	}
	return warnings
}
