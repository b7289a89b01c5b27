package performance_test

import (
	"testing"
	"time"

	"PortfolioAnalytics/internal/event"
	"PortfolioAnalytics/internal/ledger"
	"PortfolioAnalytics/internal/performance"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0   = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	asOf = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func tr(sym string, side event.Side, qty, price string, day int) event.TradeEvent {
	return event.TradeEvent{Symbol: sym, Side: side, Quantity: d(qty), Price: d(price),
		Status: event.StatusCompleted, OccurredAt: t0.AddDate(0, 0, day)}
}

func quote(sym, price string) map[string]event.PriceQuote {
	return map[string]event.PriceQuote{sym: {Symbol: sym, Price: d(price), FetchedAt: asOf, Status: event.QuoteFresh}}
}

func evaluate(trades []event.TradeEvent, balances []event.Balance, quotes map[string]event.PriceQuote) performance.Report {
	book := ledger.NewBuilder().Build(trades, event.DateRange{})
	return performance.Evaluate(balances, book, quotes, event.DateRange{}, asOf)
}

func TestEvaluate_Gain(t *testing.T) {
	r := evaluate(
		[]event.TradeEvent{tr("BTC", event.SideBuy, "1", "30000", 0)},
		[]event.Balance{{Symbol: "BTC", Quantity: d("1")}},
		quote("BTC", "45000"))

	assert.True(t, r.TotalGain.Equal(d("15000")))
	assert.True(t, r.TotalLoss.IsZero())
	assert.True(t, r.NetGain.Equal(d("15000")))
	assert.Equal(t, 50.0, r.ROI)
	require.Len(t, r.Assets, 1)
	assert.Equal(t, 50.0, r.Assets[0].ROI)
}

func TestEvaluate_Loss(t *testing.T) {
	r := evaluate(
		[]event.TradeEvent{tr("ETH", event.SideBuy, "10", "4000", 0)},
		[]event.Balance{{Symbol: "ETH", Quantity: d("10")}},
		quote("ETH", "3000"))

	assert.True(t, r.TotalLoss.Equal(d("10000")))
	assert.True(t, r.TotalGain.IsZero())
	assert.Equal(t, -25.0, r.ROI)
}

func TestEvaluate_TwoLots(t *testing.T) {
	r := evaluate(
		[]event.TradeEvent{
			tr("BTC", event.SideBuy, "1", "30000", 0),
			tr("BTC", event.SideBuy, "1", "40000", 1),
		},
		[]event.Balance{{Symbol: "BTC", Quantity: d("2")}},
		quote("BTC", "45000"))

	assert.True(t, r.TotalCostBasis.Equal(d("70000")))
	assert.True(t, r.TotalCurrentValue.Equal(d("90000")))
	assert.True(t, r.TotalGain.Equal(d("20000")))
	assert.InDelta(t, 28.5714285714, r.ROI, 1e-6)
}

func TestEvaluate_PartialSell(t *testing.T) {
	r := evaluate(
		[]event.TradeEvent{
			tr("BTC", event.SideBuy, "1", "30000", 0),
			tr("BTC", event.SideSell, "0.5", "40000", 1),
		},
		[]event.Balance{{Symbol: "BTC", Quantity: d("0.5")}},
		quote("BTC", "45000"))

	assert.True(t, r.TotalCostBasis.Equal(d("15000")))
	assert.True(t, r.TotalCurrentValue.Equal(d("22500")))
	assert.True(t, r.TotalGain.Equal(d("7500")))
	assert.Equal(t, 50.0, r.ROI)
}

func TestEvaluate_Empty(t *testing.T) {
	r := evaluate(nil, nil, nil)

	assert.True(t, r.TotalGain.IsZero())
	assert.True(t, r.TotalLoss.IsZero())
	assert.True(t, r.TotalCostBasis.IsZero())
	assert.True(t, r.TotalCurrentValue.IsZero())
	assert.True(t, r.NetGain.IsZero())
	assert.Zero(t, r.ROI)
	assert.Empty(t, r.Assets)
	assert.Nil(t, r.StartDate)
	assert.Nil(t, r.EndDate)
}

func TestEvaluate_UnpricedExcludedFromTotals(t *testing.T) {
	r := evaluate(
		[]event.TradeEvent{
			tr("BTC", event.SideBuy, "1", "30000", 0),
			tr("XYZ", event.SideBuy, "100", "5", 0),
		},
		[]event.Balance{
			{Symbol: "BTC", Quantity: d("1")},
			{Symbol: "XYZ", Quantity: d("100")},
		},
		quote("BTC", "45000"))

	require.Len(t, r.Assets, 2)
	assert.Equal(t, "XYZ", r.Assets[1].Symbol)
	assert.Nil(t, r.Assets[1].CurrentPrice)
	assert.True(t, r.Assets[1].CostBasis.Equal(d("500")))
	assert.True(t, r.TotalCostBasis.Equal(d("30000")))
	assert.Equal(t, 50.0, r.ROI)
}

func TestEvaluate_NoHistoryContributesNothing(t *testing.T) {
	r := evaluate(nil, []event.Balance{{Symbol: "ETH", Quantity: d("2")}}, quote("ETH", "3000"))

	require.Len(t, r.Assets, 1)
	assert.True(t, r.Assets[0].CostBasis.IsZero())
	assert.True(t, r.Assets[0].CurrentValue.IsZero())
	assert.Zero(t, r.ROI)
}

func TestEvaluate_WindowEchoedAndApplied(t *testing.T) {
	start := t0.AddDate(0, 0, 5)
	end := t0.AddDate(0, 0, 10)
	window := event.DateRange{Start: &start, End: &end}

	trades := []event.TradeEvent{
		tr("BTC", event.SideBuy, "1", "30000", 0),
		tr("BTC", event.SideBuy, "1", "35000", 7),
		tr("BTC", event.SideBuy, "1", "40000", 20),
	}
	book := ledger.NewBuilder().Build(trades, window)
	r := performance.Evaluate([]event.Balance{{Symbol: "BTC", Quantity: d("3")}}, book,
		quote("BTC", "45000"), window, asOf)

	assert.True(t, r.TotalCostBasis.Equal(d("65000")))
	assert.True(t, r.TotalCurrentValue.Equal(d("90000")))
	assert.Equal(t, 1, r.Assets[0].WindowTrades)
	require.NotNil(t, r.StartDate)
	assert.Equal(t, start, *r.StartDate)
	assert.Equal(t, end, *r.EndDate)
}
