package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"PortfolioAnalytics/internal/event"
	"PortfolioAnalytics/internal/pricing"

	"github.com/shopspring/decimal"
)

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers.

// quoteJSON is the value stored per symbol in the quote bucket.
// price accepts a JSON number or a decimal string.
type quoteJSON struct {
	Symbol  string          `json:"symbol,omitempty"`
	Price   decimal.Decimal `json:"price"`
	AsOfUs  int64           `json:"as_of_us,omitempty"`
	Source  string          `json:"source,omitempty"`
	present bool
}

func (q *quoteJSON) UnmarshalJSON(data []byte) error {
	type plain quoteJSON
	var raw struct {
		plain
		Price *decimal.Decimal `json:"price"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*q = quoteJSON(raw.plain)
	if raw.Price != nil {
		q.Price = *raw.Price
		q.present = true
	}
	return nil
}

// ParseQuote decodes a quote bucket value.
func ParseQuote(data []byte) (pricing.SourceQuote, error) {
	var j quoteJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return pricing.SourceQuote{}, fmt.Errorf("parse quote: %w", err)
	}
	if !j.present {
		return pricing.SourceQuote{}, fmt.Errorf("parse quote: missing price")
	}
	if j.Price.IsNegative() {
		return pricing.SourceQuote{}, fmt.Errorf("parse quote: negative price %s", j.Price)
	}

	q := pricing.SourceQuote{Price: j.Price}
	if j.AsOfUs > 0 {
		q.AsOf = time.UnixMicro(j.AsOfUs).UTC()
	}
	return q, nil
}

// EncodeQuote is the inverse of ParseQuote.
func EncodeQuote(symbol string, price decimal.Decimal, asOf time.Time) ([]byte, error) {
	j := quoteJSON{Symbol: event.NormalizeSymbol(symbol), Price: price}
	if !asOf.IsZero() {
		j.AsOfUs = asOf.UnixMicro()
	}
	type plain quoteJSON
	return json.Marshal(plain(j))
}

// invalidationJSON is the admin invalidation message. An empty or missing
// symbols list means "everything".
type invalidationJSON struct {
	Symbols []string `json:"symbols"`
}

// ParseInvalidation decodes an invalidation request. An empty payload is a
// full invalidation.
func ParseInvalidation(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var j invalidationJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse invalidation: %w", err)
	}
	out := make([]string, 0, len(j.Symbols))
	for _, s := range j.Symbols {
		if s = event.NormalizeSymbol(s); s != "" {
			out = append(out, s)
		}
	}
	if len(j.Symbols) > 0 && len(out) == 0 {
		return nil, fmt.Errorf("parse invalidation: no valid symbols in %q", j.Symbols)
	}
	return out, nil
}

// EncodeInvalidation is the inverse of ParseInvalidation.
func EncodeInvalidation(symbols []string) ([]byte, error) {
	return json.Marshal(invalidationJSON{Symbols: symbols})
}
