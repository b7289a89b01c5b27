package persistence_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"PortfolioAnalytics/internal/event"
	"PortfolioAnalytics/internal/observability"
	"PortfolioAnalytics/internal/persistence"
	"PortfolioAnalytics/internal/testutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSnapshot = `
user_id: 7c9e6679-7425-40de-944b-e07fc1f90ae7
as_of: 2024-06-01T00:00:00Z
balances:
  - {symbol: btc, quantity: "0.5"}
  - {symbol: ETH, quantity: "10"}
trades:
  - {symbol: BTC, side: buy, quantity: "1", price: "30000", occurred_at: 2024-01-01T00:00:00Z}
  - {symbol: BTC, side: SELL, quantity: "0.5", price: "40000", occurred_at: 2024-02-01T00:00:00Z}
  - {symbol: ETH, side: BUY, quantity: "10", price: "4000", status: cancelled, occurred_at: 2024-01-15T00:00:00Z}
prices:
  btc: "45000"
  ETH: "3000.50"
`

func TestParseSnapshot(t *testing.T) {
	p, err := persistence.ParseSnapshot([]byte(sampleSnapshot))
	require.NoError(t, err)

	assert.Equal(t, "7c9e6679-7425-40de-944b-e07fc1f90ae7", p.UserID.String())
	require.NotNil(t, p.AsOf)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), *p.AsOf)

	require.Len(t, p.Balances, 2)
	assert.True(t, p.Balances[0].Quantity.Equal(decimal.RequireFromString("0.5")))

	require.Len(t, p.Trades, 3)
	assert.Equal(t, event.SideBuy, p.Trades[0].Side)
	assert.Equal(t, event.StatusCompleted, p.Trades[0].Status)
	assert.Equal(t, event.StatusCancelled, p.Trades[2].Status)
	assert.NotEqual(t, p.Trades[0].TradeID, p.Trades[1].TradeID)

	assert.True(t, p.Prices["BTC"].Equal(decimal.NewFromInt(45000)))
	assert.True(t, p.Prices["ETH"].Equal(decimal.RequireFromString("3000.5")))
}

func TestParseSnapshot_Errors(t *testing.T) {
	cases := map[string]string{
		"bad user":     "user_id: nope\n",
		"bad quantity": "user_id: 7c9e6679-7425-40de-944b-e07fc1f90ae7\nbalances:\n  - {symbol: BTC, quantity: lots}\n",
		"bad side":     "user_id: 7c9e6679-7425-40de-944b-e07fc1f90ae7\ntrades:\n  - {symbol: BTC, side: HOLD, quantity: \"1\", price: \"1\", occurred_at: 2024-01-01T00:00:00Z}\n",
		"bad price":    "user_id: 7c9e6679-7425-40de-944b-e07fc1f90ae7\nprices:\n  BTC: cheap\n",
		"bad yaml":     "user_id: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := persistence.ParseSnapshot([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadSnapshotFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolio.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleSnapshot), 0o644))

	p, err := persistence.LoadSnapshotFile(path)
	require.NoError(t, err)
	assert.Len(t, p.Trades, 3)

	_, err = persistence.LoadSnapshotFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	p, err := persistence.ParseSnapshot([]byte(sampleSnapshot))
	require.NoError(t, err)

	store := persistence.NewMemoryStore()
	store.PutPortfolio(p)
	ctx := context.Background()

	balances, err := store.GetBalances(ctx, p.UserID)
	require.NoError(t, err)
	assert.Len(t, balances, 2)

	end := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	trades, err := store.GetTrades(ctx, p.UserID, &event.DateRange{End: &end})
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "ETH", trades[1].Symbol, "trades come back in time order")

	_, err = store.GetBalances(ctx, uuid.New())
	assert.ErrorIs(t, err, event.ErrUserNotFound)
	_, err = store.GetTrades(ctx, uuid.New(), nil)
	assert.ErrorIs(t, err, event.ErrUserNotFound)
}

func TestPostgresStore_Integration(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	m := persistence.NewMigrator(db, testutil.MigrationsDir(t), observability.NewNopLogger())
	_, err := m.Up(ctx)
	require.NoError(t, err)

	user := uuid.New()
	_, err = db.ExecContext(ctx, `INSERT INTO portfolio.accounts (user_id) VALUES ($1)`, user)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx,
		`INSERT INTO portfolio.balances (user_id, symbol, quantity) VALUES ($1, 'BTC', 0.5)`, user)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `
		INSERT INTO portfolio.trades (trade_id, user_id, symbol, side, quantity, price, status, occurred_at)
		VALUES ($1, $2, 'BTC', 'BUY', 1, 30000, 'completed', '2024-01-01T00:00:00Z'),
		       ($3, $2, 'BTC', 'SELL', 0.5, 40000, 'completed', '2024-03-01T00:00:00Z')`,
		uuid.New(), user, uuid.New())
	require.NoError(t, err)

	store := persistence.NewPostgresStore(db)

	balances, err := store.GetBalances(ctx, user)
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.True(t, balances[0].Quantity.Equal(decimal.RequireFromString("0.5")))

	end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	trades, err := store.GetTrades(ctx, user, &event.DateRange{End: &end})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, event.SideBuy, trades[0].Side)
	assert.True(t, trades[0].Price.Equal(decimal.NewFromInt(30000)))

	_, err = store.GetBalances(ctx, uuid.New())
	assert.ErrorIs(t, err, event.ErrUserNotFound)
}
