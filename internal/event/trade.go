package event

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side represents trade direction
type Side int32

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// ParseSide accepts "BUY"/"SELL" in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return SideBuy, nil
	case "SELL":
		return SideSell, nil
	default:
		return SideUnknown, fmt.Errorf("unknown trade side %q", s)
	}
}

// TradeStatus is the lifecycle status reported by the trade log.
// Only completed trades affect cost basis.
type TradeStatus string

const (
	StatusPending   TradeStatus = "pending"
	StatusCompleted TradeStatus = "completed"
	StatusCancelled TradeStatus = "cancelled"
	StatusFailed    TradeStatus = "failed"
)

// TradeEvent is one immutable entry of a user's trade history.
type TradeEvent struct {
	TradeID    uuid.UUID
	UserID     uuid.UUID
	Symbol     string
	Side       Side
	Quantity   decimal.Decimal // > 0
	Price      decimal.Decimal // >= 0, per unit
	Status     TradeStatus
	OccurredAt time.Time
}

// IsCompleted reports whether the trade counts towards cost basis.
func (t *TradeEvent) IsCompleted() bool {
	return t.Status == StatusCompleted
}

// Validate checks the shape of a trade, not its business effect.
func (t *TradeEvent) Validate() error {
	if NormalizeSymbol(t.Symbol) == "" {
		return fmt.Errorf("trade %s: empty symbol", t.TradeID)
	}
	if t.Side != SideBuy && t.Side != SideSell {
		return fmt.Errorf("trade %s: invalid side %d", t.TradeID, t.Side)
	}
	if !t.Quantity.IsPositive() {
		return fmt.Errorf("trade %s: quantity must be > 0, got %s", t.TradeID, t.Quantity)
	}
	if t.Price.IsNegative() {
		return fmt.Errorf("trade %s: price must be >= 0, got %s", t.TradeID, t.Price)
	}
	return nil
}
