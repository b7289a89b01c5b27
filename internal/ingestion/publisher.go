package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"PortfolioAnalytics/internal/event"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/shopspring/decimal"
)

// QuotePublisher writes quotes into the quote bucket. Operators use it from
// portfolioctl to seed or correct prices.
type QuotePublisher struct {
	kv jetstream.KeyValue
}

func NewQuotePublisher(kv jetstream.KeyValue) *QuotePublisher {
	return &QuotePublisher{kv: kv}
}

// Publish stores the quote and returns the new key revision.
func (p *QuotePublisher) Publish(ctx context.Context, symbol string, price decimal.Decimal, asOf time.Time) (uint64, error) {
	if price.IsNegative() {
		return 0, fmt.Errorf("publish %s: negative price %s", symbol, price)
	}
	data, err := EncodeQuote(symbol, price, asOf)
	if err != nil {
		return 0, fmt.Errorf("encode quote: %w", err)
	}
	rev, err := p.kv.Put(ctx, event.NormalizeSymbol(symbol), data)
	if err != nil {
		return 0, fmt.Errorf("put quote %s: %w", symbol, err)
	}
	return rev, nil
}

// Delete removes a symbol from the bucket.
func (p *QuotePublisher) Delete(ctx context.Context, symbol string) error {
	if err := p.kv.Delete(ctx, event.NormalizeSymbol(symbol)); err != nil {
		return fmt.Errorf("delete quote %s: %w", symbol, err)
	}
	return nil
}

// RequestInvalidation asks every running instance listening on subject to
// drop the symbols (all when empty). It returns the count removed by the
// first instance to reply.
func RequestInvalidation(ctx context.Context, nc *nats.Conn, subject string, symbols []string) (int, error) {
	if subject == "" {
		subject = DefaultInvalidationSubject
	}
	data, err := EncodeInvalidation(symbols)
	if err != nil {
		return 0, fmt.Errorf("encode invalidation: %w", err)
	}
	msg, err := nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		return 0, fmt.Errorf("request invalidation: %w", err)
	}

	var reply invalidationReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return 0, fmt.Errorf("decode invalidation reply: %w", err)
	}
	if reply.Error != "" {
		return 0, fmt.Errorf("invalidation rejected: %s", reply.Error)
	}
	return reply.Removed, nil
}
