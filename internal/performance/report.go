package performance

import (
	"time"

	"PortfolioAnalytics/internal/event"
	"PortfolioAnalytics/internal/ledger"
	"PortfolioAnalytics/internal/valuation"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// AssetPerformance is gain/loss for the quantity the ledger tracks.
type AssetPerformance struct {
	Symbol       string
	Quantity     decimal.Decimal // ledger remaining quantity
	CostBasis    decimal.Decimal
	CurrentPrice *decimal.Decimal
	CurrentValue decimal.Decimal
	Gain         decimal.Decimal
	Loss         decimal.Decimal
	ROI          float64
	WindowTrades int
	PriceStatus  event.QuoteStatus
}

// Report is the performance view of one snapshot.
type Report struct {
	TotalGain         decimal.Decimal
	TotalLoss         decimal.Decimal
	TotalCostBasis    decimal.Decimal
	TotalCurrentValue decimal.Decimal
	NetGain           decimal.Decimal
	ROI               float64
	Assets            []AssetPerformance
	Timestamp         time.Time
	StartDate         *time.Time
	EndDate           *time.Time
}

// Evaluate computes gain/loss per held asset from the ledger's cost basis.
// book must have been built with the same (resolved) window that is echoed.
// Assets without a usable quote are listed but left out of every total.
func Evaluate(balances []event.Balance, book *ledger.Book, quotes map[string]event.PriceQuote,
	window event.DateRange, asOf time.Time) Report {

	r := Report{
		TotalGain:         decimal.Zero,
		TotalLoss:         decimal.Zero,
		TotalCostBasis:    decimal.Zero,
		TotalCurrentValue: decimal.Zero,
		NetGain:           decimal.Zero,
		Assets:            []AssetPerformance{},
		Timestamp:         asOf,
		StartDate:         window.Start,
		EndDate:           window.End,
	}

	// HeldQuantities is already ordered by symbol.
	for _, h := range valuation.HeldQuantities(balances) {
		ap := AssetPerformance{
			Symbol:       h.Symbol,
			Quantity:     decimal.Zero,
			CostBasis:    decimal.Zero,
			CurrentValue: decimal.Zero,
			Gain:         decimal.Zero,
			Loss:         decimal.Zero,
			PriceStatus:  event.QuoteUnavailable,
		}
		if al := book.Asset(h.Symbol); al != nil {
			ap.Quantity = al.RemainingQuantity
			ap.CostBasis = al.TotalCostBasis
			ap.WindowTrades = al.WindowTrades
		}

		q, ok := quotes[h.Symbol]
		if !ok || !q.Usable() {
			r.Assets = append(r.Assets, ap)
			continue
		}

		price := q.Price
		ap.CurrentPrice = &price
		ap.PriceStatus = q.Status
		ap.CurrentValue = ap.Quantity.Mul(price)
		diff := ap.CurrentValue.Sub(ap.CostBasis)
		if diff.IsPositive() {
			ap.Gain = diff
		} else {
			ap.Loss = diff.Neg()
		}
		ap.ROI = roi(diff, ap.CostBasis)

		r.TotalGain = r.TotalGain.Add(ap.Gain)
		r.TotalLoss = r.TotalLoss.Add(ap.Loss)
		r.TotalCostBasis = r.TotalCostBasis.Add(ap.CostBasis)
		r.TotalCurrentValue = r.TotalCurrentValue.Add(ap.CurrentValue)
		r.Assets = append(r.Assets, ap)
	}

	r.NetGain = r.TotalGain.Sub(r.TotalLoss)
	r.ROI = roi(r.NetGain, r.TotalCostBasis)
	return r
}

func roi(net, costBasis decimal.Decimal) float64 {
	if !costBasis.IsPositive() {
		return 0
	}
	return hundred.Mul(net).Div(costBasis).InexactFloat64()
}
