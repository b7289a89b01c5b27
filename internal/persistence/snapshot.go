package persistence

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"PortfolioAnalytics/internal/event"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// SnapshotFile is an offline portfolio export:
//
//	user_id: 7c9e6679-7425-40de-944b-e07fc1f90ae7
//	as_of: 2024-06-01T00:00:00Z
//	balances:
//	  - {symbol: BTC, quantity: "0.5"}
//	trades:
//	  - {symbol: BTC, side: BUY, quantity: "1", price: "30000", occurred_at: 2024-01-01T00:00:00Z}
//	prices:
//	  BTC: "45000"
//
// Numbers are strings so that no precision is lost in YAML float parsing.
type SnapshotFile struct {
	UserID   string            `yaml:"user_id"`
	AsOf     *time.Time        `yaml:"as_of,omitempty"`
	Balances []balanceRecord   `yaml:"balances"`
	Trades   []tradeRecord     `yaml:"trades"`
	Prices   map[string]string `yaml:"prices"`
}

type balanceRecord struct {
	Symbol   string `yaml:"symbol"`
	Quantity string `yaml:"quantity"`
}

type tradeRecord struct {
	ID         string    `yaml:"id,omitempty"`
	Symbol     string    `yaml:"symbol"`
	Side       string    `yaml:"side"`
	Quantity   string    `yaml:"quantity"`
	Price      string    `yaml:"price"`
	Status     string    `yaml:"status,omitempty"` // defaults to completed
	OccurredAt time.Time `yaml:"occurred_at"`
}

// Portfolio is a decoded snapshot file.
type Portfolio struct {
	UserID   uuid.UUID
	AsOf     *time.Time
	Balances []event.Balance
	Trades   []event.TradeEvent
	Prices   map[string]decimal.Decimal
}

// LoadSnapshotFile reads and decodes a YAML snapshot.
func LoadSnapshotFile(path string) (*Portfolio, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return ParseSnapshot(data)
}

func ParseSnapshot(data []byte) (*Portfolio, error) {
	var f SnapshotFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}

	userID, err := uuid.Parse(f.UserID)
	if err != nil {
		return nil, fmt.Errorf("snapshot user_id: %w", err)
	}
	p := &Portfolio{
		UserID: userID,
		AsOf:   f.AsOf,
		Prices: make(map[string]decimal.Decimal, len(f.Prices)),
	}

	for i, b := range f.Balances {
		qty, err := decimal.NewFromString(b.Quantity)
		if err != nil {
			return nil, fmt.Errorf("balances[%d] quantity: %w", i, err)
		}
		p.Balances = append(p.Balances, event.Balance{UserID: userID, Symbol: b.Symbol, Quantity: qty})
	}

	for i, t := range f.Trades {
		te, err := t.toEvent(userID, i)
		if err != nil {
			return nil, fmt.Errorf("trades[%d]: %w", i, err)
		}
		p.Trades = append(p.Trades, te)
	}

	for sym, s := range f.Prices {
		price, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("prices[%s]: %w", sym, err)
		}
		p.Prices[event.NormalizeSymbol(sym)] = price
	}
	return p, nil
}

func (t tradeRecord) toEvent(userID uuid.UUID, index int) (event.TradeEvent, error) {
	side, err := event.ParseSide(t.Side)
	if err != nil {
		return event.TradeEvent{}, err
	}
	qty, err := decimal.NewFromString(t.Quantity)
	if err != nil {
		return event.TradeEvent{}, fmt.Errorf("quantity: %w", err)
	}
	price, err := decimal.NewFromString(t.Price)
	if err != nil {
		return event.TradeEvent{}, fmt.Errorf("price: %w", err)
	}

	id := uuid.NewSHA1(userID, []byte(fmt.Sprintf("trade-%d", index)))
	if t.ID != "" {
		if id, err = uuid.Parse(t.ID); err != nil {
			return event.TradeEvent{}, fmt.Errorf("id: %w", err)
		}
	}
	status := event.StatusCompleted
	if t.Status != "" {
		status = event.TradeStatus(t.Status)
	}

	return event.TradeEvent{
		TradeID:    id,
		UserID:     userID,
		Symbol:     t.Symbol,
		Side:       side,
		Quantity:   qty,
		Price:      price,
		Status:     status,
		OccurredAt: t.OccurredAt.UTC(),
	}, nil
}

// MemoryStore serves balances and trades from memory. It backs the offline
// CLI and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	balances map[uuid.UUID][]event.Balance
	trades   map[uuid.UUID][]event.TradeEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[uuid.UUID][]event.Balance),
		trades:   make(map[uuid.UUID][]event.TradeEvent),
	}
}

// Put registers a user with their balances and trades.
func (m *MemoryStore) Put(userID uuid.UUID, balances []event.Balance, trades []event.TradeEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] = append([]event.Balance(nil), balances...)
	m.trades[userID] = append([]event.TradeEvent(nil), trades...)
}

// PutPortfolio registers a decoded snapshot file.
func (m *MemoryStore) PutPortfolio(p *Portfolio) {
	m.Put(p.UserID, p.Balances, p.Trades)
}

func (m *MemoryStore) GetBalances(ctx context.Context, userID uuid.UUID) ([]event.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.balances[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, event.ErrUserNotFound)
	}
	return append([]event.Balance(nil), b...), nil
}

// GetTrades mirrors PostgresStore: ascending occurredAt, window.End applied.
func (m *MemoryStore) GetTrades(ctx context.Context, userID uuid.UUID, window *event.DateRange) ([]event.TradeEvent, error) {
	m.mu.RLock()
	trades, ok := m.trades[userID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, event.ErrUserNotFound)
	}

	out := make([]event.TradeEvent, 0, len(trades))
	for _, t := range trades {
		if window == nil || window.Includes(t.OccurredAt) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}
