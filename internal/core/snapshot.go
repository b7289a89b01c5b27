package core

import (
	"time"

	"PortfolioAnalytics/internal/event"

	"github.com/google/uuid"
)

// Snapshot is everything one evaluation reads. It is never mutated by the
// engine, so the three views can share it across goroutines.
type Snapshot struct {
	UserID   uuid.UUID
	AsOf     time.Time
	Balances []event.Balance
	Trades   []event.TradeEvent
	// Quotes is keyed by normalized symbol.
	Quotes map[string]event.PriceQuote
	// Window bounds the performance view. Zero means whole history.
	Window event.DateRange
}
