package pricing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"PortfolioAnalytics/internal/event"

	"github.com/shopspring/decimal"
)

// ErrNoQuote is returned by a Source that has no price for a symbol.
var ErrNoQuote = errors.New("no quote for symbol")

// SourceQuote is what an external quote source returns.
// AsOf may be zero when the source does not report it.
type SourceQuote struct {
	Price decimal.Decimal
	AsOf  time.Time
}

// Source is the read contract of the external market price source.
// Retries and backoff, if any, belong to the implementation.
type Source interface {
	GetPrice(ctx context.Context, symbol string) (SourceQuote, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, symbol string) (SourceQuote, error)

func (f SourceFunc) GetPrice(ctx context.Context, symbol string) (SourceQuote, error) {
	return f(ctx, symbol)
}

// StaticSource serves prices from a fixed in-memory table.
type StaticSource struct {
	mu     sync.RWMutex
	prices map[string]SourceQuote
}

func NewStaticSource(prices map[string]decimal.Decimal) *StaticSource {
	s := &StaticSource{prices: make(map[string]SourceQuote, len(prices))}
	for sym, p := range prices {
		s.prices[event.NormalizeSymbol(sym)] = SourceQuote{Price: p}
	}
	return s
}

// Set replaces the price of one symbol.
func (s *StaticSource) Set(symbol string, price decimal.Decimal, asOf time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[event.NormalizeSymbol(symbol)] = SourceQuote{Price: price, AsOf: asOf}
}

func (s *StaticSource) GetPrice(ctx context.Context, symbol string) (SourceQuote, error) {
	if err := ctx.Err(); err != nil {
		return SourceQuote{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.prices[event.NormalizeSymbol(symbol)]
	if !ok {
		return SourceQuote{}, fmt.Errorf("%s: %w", symbol, ErrNoQuote)
	}
	return q, nil
}
