package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"PortfolioAnalytics/internal/event"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// OpenPostgres opens and pings a lib/pq connection pool.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// PostgresStore reads balances and trade history written by the account and
// trading services. It never writes.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Ping is used as a readiness probe.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetBalances returns every recorded balance row of the user ordered by
// symbol. Unknown users give event.ErrUserNotFound.
func (s *PostgresStore) GetBalances(ctx context.Context, userID uuid.UUID) ([]event.Balance, error) {
	if err := s.requireAccount(ctx, userID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, quantity
		FROM portfolio.balances
		WHERE user_id = $1
		ORDER BY symbol`, userID)
	if err != nil {
		return nil, fmt.Errorf("query balances: %w", annotate(err))
	}
	defer rows.Close()

	var out []event.Balance
	for rows.Next() {
		b := event.Balance{UserID: userID}
		if err := rows.Scan(&b.Symbol, &b.Quantity); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balances: %w", annotate(err))
	}
	return out, nil
}

// GetTrades returns the user's trade history in ascending occurred_at order,
// insertion order breaking ties. Only window.End is applied in SQL; earlier
// trades are needed to rebuild the lots held at window start.
func (s *PostgresStore) GetTrades(ctx context.Context, userID uuid.UUID, window *event.DateRange) ([]event.TradeEvent, error) {
	var end sql.NullTime
	if window != nil && window.End != nil {
		end = sql.NullTime{Time: *window.End, Valid: true}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT trade_id, symbol, side, quantity, price, status, occurred_at
		FROM portfolio.trades
		WHERE user_id = $1
		  AND ($2::timestamptz IS NULL OR occurred_at <= $2)
		ORDER BY occurred_at, seq`, userID, end)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", annotate(err))
	}
	defer rows.Close()

	var out []event.TradeEvent
	for rows.Next() {
		var (
			t      event.TradeEvent
			side   string
			status string
			qty    decimal.Decimal
			price  decimal.Decimal
		)
		if err := rows.Scan(&t.TradeID, &t.Symbol, &side, &qty, &price, &status, &t.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.UserID = userID
		t.Quantity = qty
		t.Price = price
		t.Status = event.TradeStatus(status)
		// Unknown sides stay SideUnknown and are flagged by the ledger.
		t.Side, _ = event.ParseSide(side)
		t.OccurredAt = t.OccurredAt.UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", annotate(err))
	}
	return out, nil
}

func (s *PostgresStore) requireAccount(ctx context.Context, userID uuid.UUID) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM portfolio.accounts WHERE user_id = $1)`, userID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("lookup account: %w", annotate(err))
	}
	if !exists {
		return fmt.Errorf("user %s: %w", userID, event.ErrUserNotFound)
	}
	return nil
}

// annotate adds the SQLSTATE code to Postgres errors so logs carry it.
func annotate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("pq %s (%s): %w", pqErr.Code, pqErr.Code.Name(), err)
	}
	return err
}
