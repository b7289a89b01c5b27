package ledger_test

import (
	"PortfolioAnalytics/internal/event"
	"PortfolioAnalytics/internal/ledger"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func trade(symbol string, side event.Side, qty, price string, day int) event.TradeEvent {
	return event.TradeEvent{
		TradeID:    uuid.New(),
		UserID:     uuid.Nil,
		Symbol:     symbol,
		Side:       side,
		Quantity:   d(qty),
		Price:      d(price),
		Status:     event.StatusCompleted,
		OccurredAt: t0.AddDate(0, 0, day),
	}
}

func at(day int) *time.Time {
	t := t0.AddDate(0, 0, day)
	return &t
}

func kinds(ws []ledger.Warning) []ledger.WarningKind {
	out := make([]ledger.WarningKind, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Kind)
	}
	return out
}

// ============================================================================
// Test: FIFO replay
// ============================================================================

func TestBuild_SingleBuy(t *testing.T) {
	book := ledger.NewBuilder().Build([]event.TradeEvent{
		trade("BTC", event.SideBuy, "1", "30000", 0),
	}, event.DateRange{})

	btc := book.Asset("BTC")
	require.NotNil(t, btc)
	assert.True(t, btc.RemainingQuantity.Equal(d("1")))
	assert.True(t, btc.TotalCostBasis.Equal(d("30000")))
	assert.True(t, btc.AveragePrice().Equal(d("30000")))
	assert.Empty(t, book.Warnings)
}

func TestBuild_TwoBuysAccumulateCost(t *testing.T) {
	book := ledger.NewBuilder().Build([]event.TradeEvent{
		trade("BTC", event.SideBuy, "1", "30000", 0),
		trade("BTC", event.SideBuy, "1", "40000", 1),
	}, event.DateRange{})

	btc := book.Asset("BTC")
	assert.True(t, btc.RemainingQuantity.Equal(d("2")))
	assert.True(t, btc.TotalCostBasis.Equal(d("70000")))
	assert.True(t, btc.AveragePrice().Equal(d("35000")))
	assert.Len(t, btc.OpenLots(), 2)
}

func TestBuild_PartialSellConsumesOldestLotProportionally(t *testing.T) {
	book := ledger.NewBuilder().Build([]event.TradeEvent{
		trade("BTC", event.SideBuy, "1", "30000", 0),
		trade("BTC", event.SideSell, "0.5", "40000", 1),
	}, event.DateRange{})

	btc := book.Asset("BTC")
	assert.True(t, btc.RemainingQuantity.Equal(d("0.5")))
	assert.True(t, btc.TotalCostBasis.Equal(d("15000")))
	assert.True(t, btc.AveragePrice().Equal(d("30000")))
}

func TestBuild_SellSpansLots(t *testing.T) {
	book := ledger.NewBuilder().Build([]event.TradeEvent{
		trade("ETH", event.SideBuy, "2", "1000", 0),
		trade("ETH", event.SideBuy, "3", "2000", 1),
		trade("ETH", event.SideSell, "4", "2500", 2),
	}, event.DateRange{})

	eth := book.Asset("ETH")
	lots := eth.OpenLots()
	require.Len(t, lots, 1)
	assert.True(t, lots[0].Quantity.Equal(d("1")))
	assert.True(t, lots[0].UnitCost.Equal(d("2000")))
	assert.True(t, eth.TotalCostBasis.Equal(d("2000")))
}

func TestBuild_FullySoldKeepsHistory(t *testing.T) {
	book := ledger.NewBuilder().Build([]event.TradeEvent{
		trade("SOL", event.SideBuy, "5", "20", 0),
		trade("SOL", event.SideSell, "5", "25", 1),
	}, event.DateRange{})

	sol := book.Asset("SOL")
	require.NotNil(t, sol)
	assert.True(t, sol.HasHistory())
	assert.True(t, sol.RemainingQuantity.IsZero())
	assert.True(t, sol.AveragePrice().IsZero())
	assert.Empty(t, sol.OpenLots())
}

func TestBuild_OversellClampsAndWarns(t *testing.T) {
	book := ledger.NewBuilder().Build([]event.TradeEvent{
		trade("BTC", event.SideBuy, "1", "30000", 0),
		trade("BTC", event.SideSell, "1.5", "40000", 1),
	}, event.DateRange{})

	btc := book.Asset("BTC")
	assert.True(t, btc.RemainingQuantity.IsZero())
	assert.True(t, btc.TotalCostBasis.IsZero())
	assert.True(t, btc.Oversold.Equal(d("0.5")))

	require.Len(t, book.Warnings, 1)
	assert.Equal(t, ledger.WarnOversell, book.Warnings[0].Kind)
	assert.True(t, book.Warnings[0].Quantity.Equal(d("0.5")))
}

func TestBuild_SellWithoutBuy(t *testing.T) {
	book := ledger.NewBuilder().Build([]event.TradeEvent{
		trade("ADA", event.SideSell, "10", "1", 0),
	}, event.DateRange{})

	assert.True(t, book.Asset("ADA").RemainingQuantity.IsZero())
	assert.Equal(t, []ledger.WarningKind{ledger.WarnOversell}, kinds(book.Warnings))
}

func TestBuild_IgnoresNonCompleted(t *testing.T) {
	pending := trade("BTC", event.SideBuy, "5", "10", 1)
	pending.Status = event.StatusPending
	cancelled := trade("BTC", event.SideSell, "1", "10", 2)
	cancelled.Status = event.StatusCancelled

	book := ledger.NewBuilder().Build([]event.TradeEvent{
		trade("BTC", event.SideBuy, "1", "30000", 0),
		pending,
		cancelled,
	}, event.DateRange{})

	btc := book.Asset("BTC")
	assert.True(t, btc.RemainingQuantity.Equal(d("1")))
	assert.Equal(t, 1, btc.TradeCount)
}

func TestBuild_InvalidTradeSkipped(t *testing.T) {
	bad := trade("BTC", event.SideBuy, "1", "10", 1)
	bad.Quantity = decimal.Zero
	negative := trade("BTC", event.SideBuy, "1", "10", 2)
	negative.Price = d("-1")

	book := ledger.NewBuilder().Build([]event.TradeEvent{
		trade("BTC", event.SideBuy, "1", "30000", 0),
		bad,
		negative,
	}, event.DateRange{})

	assert.True(t, book.Asset("BTC").RemainingQuantity.Equal(d("1")))
	assert.Equal(t,
		[]ledger.WarningKind{ledger.WarnInvalidTrade, ledger.WarnInvalidTrade},
		kinds(book.Warnings))
}

func TestBuild_AssetsAreIndependent(t *testing.T) {
	book := ledger.NewBuilder().Build([]event.TradeEvent{
		trade("btc", event.SideBuy, "1", "30000", 0),
		trade("ETH", event.SideBuy, "10", "2000", 1),
		trade("BTC ", event.SideSell, "0.25", "35000", 2),
	}, event.DateRange{})

	assert.Equal(t, []string{"BTC", "ETH"}, book.Symbols())
	assert.True(t, book.Asset("BTC").RemainingQuantity.Equal(d("0.75")))
	assert.True(t, book.Asset("ETH").TotalCostBasis.Equal(d("20000")))
	assert.Nil(t, book.Asset("DOGE"))
}

// ============================================================================
// Test: ordering
// ============================================================================

func TestBuild_OutOfOrderIsSortedAndFlagged(t *testing.T) {
	input := []event.TradeEvent{
		trade("BTC", event.SideSell, "1", "40000", 2),
		trade("BTC", event.SideBuy, "1", "30000", 0),
		trade("BTC", event.SideBuy, "1", "35000", 1),
	}
	firstID := input[0].TradeID

	book := ledger.NewBuilder().Build(input, event.DateRange{})

	btc := book.Asset("BTC")
	assert.True(t, btc.RemainingQuantity.Equal(d("1")))
	assert.True(t, btc.TotalCostBasis.Equal(d("35000")))
	assert.Equal(t, []ledger.WarningKind{ledger.WarnOutOfOrder}, kinds(book.Warnings))
	assert.Equal(t, firstID, input[0].TradeID, "input slice must not be reordered")
}

func TestBuild_SameInstantKeepsReaderOrder(t *testing.T) {
	buy := trade("BTC", event.SideBuy, "1", "100", 0)
	sell := trade("BTC", event.SideSell, "1", "120", 0)

	book := ledger.NewBuilder().Build([]event.TradeEvent{buy, sell}, event.DateRange{})

	assert.True(t, book.Asset("BTC").RemainingQuantity.IsZero())
	assert.Empty(t, book.Warnings)
}

// ============================================================================
// Test: date window
// ============================================================================

func TestBuild_WindowExcludesTradesAfterEnd(t *testing.T) {
	book := ledger.NewBuilder().Build([]event.TradeEvent{
		trade("BTC", event.SideBuy, "1", "30000", 0),
		trade("BTC", event.SideBuy, "1", "40000", 10),
	}, event.DateRange{End: at(5)})

	btc := book.Asset("BTC")
	assert.True(t, btc.RemainingQuantity.Equal(d("1")))
	assert.True(t, btc.TotalCostBasis.Equal(d("30000")))
}

func TestBuild_TradesBeforeStartEstablishLots(t *testing.T) {
	book := ledger.NewBuilder().Build([]event.TradeEvent{
		trade("BTC", event.SideBuy, "1", "30000", 0),
		trade("BTC", event.SideSell, "0.5", "40000", 6),
	}, event.DateRange{Start: at(5), End: at(10)})

	btc := book.Asset("BTC")
	assert.True(t, btc.TotalCostBasis.Equal(d("15000")))
	assert.Equal(t, 2, btc.TradeCount)
	assert.Equal(t, 1, btc.WindowTrades)
}

func TestBuild_EndBoundIsInclusive(t *testing.T) {
	book := ledger.NewBuilder().Build([]event.TradeEvent{
		trade("BTC", event.SideBuy, "1", "30000", 5),
	}, event.DateRange{End: at(5)})

	assert.NotNil(t, book.Asset("BTC"))
}

// ============================================================================
// Test: Reconcile
// ============================================================================

func TestReconcile_Matching(t *testing.T) {
	book := ledger.NewBuilder().Build([]event.TradeEvent{
		trade("BTC", event.SideBuy, "1", "30000", 0),
	}, event.DateRange{})

	warnings := ledger.Reconcile(book, []event.Balance{{Symbol: "BTC", Quantity: d("1.000")}})
	assert.Empty(t, warnings)
}

func TestReconcile_Divergence(t *testing.T) {
	book := ledger.NewBuilder().Build([]event.TradeEvent{
		trade("BTC", event.SideBuy, "1", "30000", 0),
	}, event.DateRange{})

	warnings := ledger.Reconcile(book, []event.Balance{{Symbol: "BTC", Quantity: d("1.5")}})
	require.Len(t, warnings, 1)
	assert.Equal(t, ledger.WarnBalanceDivergence, warnings[0].Kind)
	assert.Equal(t, "BTC", warnings[0].Symbol)
	assert.True(t, warnings[0].Quantity.Equal(d("0.5")))
}

func TestReconcile_BalanceWithoutHistory(t *testing.T) {
	book := ledger.NewBuilder().Build(nil, event.DateRange{})

	warnings := ledger.Reconcile(book, []event.Balance{
		{Symbol: "ETH", Quantity: d("2")},
		{Symbol: "DOGE", Quantity: decimal.Zero},
	})
	assert.Equal(t, []ledger.WarningKind{ledger.WarnNoHistory}, kinds(warnings))
	assert.Equal(t, "ETH", warnings[0].Symbol)
}

func TestReconcile_LedgerHoldsWhatBalanceDoesNot(t *testing.T) {
	book := ledger.NewBuilder().Build([]event.TradeEvent{
		trade("ADA", event.SideBuy, "100", "0.5", 0),
		trade("BTC", event.SideBuy, "1", "30000", 0),
	}, event.DateRange{})

	warnings := ledger.Reconcile(book, []event.Balance{{Symbol: "BTC", Quantity: d("1")}})
	require.Len(t, warnings, 1)
	assert.Equal(t, "ADA", warnings[0].Symbol)
	assert.True(t, warnings[0].Quantity.Equal(d("-100")))
}
