package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PortfolioAnalytics/internal/event"
	"PortfolioAnalytics/internal/pricing"

	"github.com/nats-io/nats.go/jetstream"
)

// DefaultQuoteBucket is the JetStream KV bucket the market data feed writes
// the latest quote per symbol into. Keys are upper-case symbols.
const DefaultQuoteBucket = "PORTFOLIO_QUOTES"

// OpenQuoteBucket creates the quote bucket if needed. Only the latest value
// per key is kept.
func OpenQuoteBucket(ctx context.Context, js jetstream.JetStream, bucket string) (jetstream.KeyValue, error) {
	if bucket == "" {
		bucket = DefaultQuoteBucket
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "latest market quote per symbol",
		History:     1,
		TTL:         24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("open quote bucket %s: %w", bucket, err)
	}
	return kv, nil
}

// KVQuoteSource is the pricing.Source backed by the quote bucket.
type KVQuoteSource struct {
	kv jetstream.KeyValue
}

func NewKVQuoteSource(kv jetstream.KeyValue) *KVQuoteSource {
	return &KVQuoteSource{kv: kv}
}

func (s *KVQuoteSource) GetPrice(ctx context.Context, symbol string) (pricing.SourceQuote, error) {
	key := event.NormalizeSymbol(symbol)
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return pricing.SourceQuote{}, fmt.Errorf("%s: %w", key, pricing.ErrNoQuote)
		}
		return pricing.SourceQuote{}, fmt.Errorf("get quote %s: %w", key, err)
	}

	q, err := ParseQuote(entry.Value())
	if err != nil {
		return pricing.SourceQuote{}, fmt.Errorf("%s rev %d: %w", key, entry.Revision(), err)
	}
	if q.AsOf.IsZero() {
		q.AsOf = entry.Created().UTC()
	}
	return q, nil
}
