package event

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteStatus describes how trustworthy a cached price is.
type QuoteStatus int32

const (
	QuoteUnavailable QuoteStatus = iota
	QuoteFresh
	QuoteStale
)

func (s QuoteStatus) String() string {
	switch s {
	case QuoteFresh:
		return "ok"
	case QuoteStale:
		return "stale"
	default:
		return "unavailable"
	}
}

// PriceQuote is the latest known price for an asset.
// FetchedAt is when the price was obtained from the source (zero if unavailable).
type PriceQuote struct {
	Symbol    string
	Price     decimal.Decimal
	FetchedAt time.Time
	Status    QuoteStatus
}

// Usable reports whether the quote may contribute to value totals.
func (q PriceQuote) Usable() bool {
	return q.Status == QuoteFresh || q.Status == QuoteStale
}

// Unavailable builds the marker quote for a symbol without a price.
func Unavailable(symbol string) PriceQuote {
	return PriceQuote{Symbol: symbol, Status: QuoteUnavailable}
}
