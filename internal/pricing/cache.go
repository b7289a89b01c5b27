package pricing

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"PortfolioAnalytics/internal/event"
	"PortfolioAnalytics/internal/observability"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Config controls cache freshness.
type Config struct {
	// TTL is how long a fetched price is served without asking the source.
	TTL time.Duration
	// StaleGrace extends TTL for fallback use when the source fails.
	StaleGrace time.Duration
	// FetchTimeout bounds every source call.
	FetchTimeout time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

func DefaultConfig() Config {
	return Config{
		TTL:          30 * time.Second,
		StaleGrace:   5 * time.Minute,
		FetchTimeout: 2 * time.Second,
	}
}

// maxParallelFetch bounds GetPrices fan-out per request.
const maxParallelFetch = 16

type entry struct {
	quote    event.PriceQuote
	storedAt time.Time
}

// Stats is a point-in-time view of the cache. Generation counts
// invalidations since start.
type Stats struct {
	Entries    int
	Generation uint64
}

// Cache memoizes quotes per symbol with a TTL.
//
// Concurrent misses for one symbol share a single source call. Fresh reads
// only take the read lock and never wait on a refresh. Invalidating a symbol
// bumps that symbol's generation and a full invalidation bumps the epoch; a
// fetch that started under an older (generation, epoch) pair still answers
// its callers but is not stored.
type Cache struct {
	source  Source
	cfg     Config
	now     func() time.Time
	log     zerolog.Logger
	metrics *observability.Metrics

	group singleflight.Group

	mu         sync.RWMutex
	entries    map[string]entry
	symGen     map[string]uint64
	epoch      uint64
	generation uint64
}

// fetchGen identifies the cache state a fetch started under.
type fetchGen struct {
	sym   uint64
	epoch uint64
}

// NewCache creates a cache in front of source. metrics may be nil.
func NewCache(source Source, cfg Config, log zerolog.Logger, metrics *observability.Metrics) *Cache {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultConfig().FetchTimeout
	}
	return &Cache{
		source:  source,
		cfg:     cfg,
		now:     now,
		log:     log.With().Str("component", "price_cache").Logger(),
		metrics: metrics,
		entries: make(map[string]entry),
		symGen:  make(map[string]uint64),
	}
}

// GetPrice returns the quote for symbol. It never returns an error: a failed
// refresh degrades to a stale quote inside the grace period, or to an
// unavailable marker.
func (c *Cache) GetPrice(ctx context.Context, symbol string) event.PriceQuote {
	symbol = event.NormalizeSymbol(symbol)

	c.mu.RLock()
	e, ok := c.entries[symbol]
	gen := fetchGen{sym: c.symGen[symbol], epoch: c.epoch}
	c.mu.RUnlock()

	if ok && c.now().Sub(e.storedAt) < c.cfg.TTL {
		c.metrics.PriceLookup("hit")
		return e.quote
	}
	c.metrics.PriceLookup("miss")

	key := symbol + "@" + strconv.FormatUint(gen.sym, 10) + "/" + strconv.FormatUint(gen.epoch, 10)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return c.fetch(ctx, symbol, gen)
	})

	select {
	case res := <-ch:
		if res.Err == nil {
			return res.Val.(event.PriceQuote)
		}
		return c.fallback(symbol, res.Err)
	case <-ctx.Done():
		return c.fallback(symbol, ctx.Err())
	}
}

// GetPrices looks up every symbol concurrently.
func (c *Cache) GetPrices(ctx context.Context, symbols []string) map[string]event.PriceQuote {
	quotes := make([]event.PriceQuote, len(symbols))

	var g errgroup.Group
	g.SetLimit(maxParallelFetch)
	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			quotes[i] = c.GetPrice(ctx, sym)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]event.PriceQuote, len(symbols))
	for _, q := range quotes {
		out[q.Symbol] = q
	}
	return out
}

// fetch runs once per symbol, generation and epoch. The source call is detached from
// the first caller's cancellation so that other waiters are not failed by it.
func (c *Cache) fetch(ctx context.Context, symbol string, gen fetchGen) (event.PriceQuote, error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	sq, err := c.source.GetPrice(fctx, symbol)
	c.metrics.PriceFetched(time.Since(start), err)
	if err != nil {
		return event.PriceQuote{}, fmt.Errorf("fetch %s: %w", symbol, err)
	}
	if sq.Price.IsNegative() {
		return event.PriceQuote{}, fmt.Errorf("fetch %s: negative price %s", symbol, sq.Price)
	}

	stored := c.now()
	fetchedAt := sq.AsOf
	if fetchedAt.IsZero() {
		fetchedAt = stored
	}
	q := event.PriceQuote{
		Symbol:    symbol,
		Price:     sq.Price,
		FetchedAt: fetchedAt,
		Status:    event.QuoteFresh,
	}

	c.mu.Lock()
	if c.symGen[symbol] == gen.sym && c.epoch == gen.epoch {
		c.entries[symbol] = entry{quote: q, storedAt: stored}
	}
	n := len(c.entries)
	c.mu.Unlock()
	c.metrics.SetCacheEntries(n)

	return q, nil
}

func (c *Cache) fallback(symbol string, cause error) event.PriceQuote {
	c.mu.RLock()
	e, ok := c.entries[symbol]
	c.mu.RUnlock()

	if ok && c.now().Sub(e.storedAt) <= c.cfg.TTL+c.cfg.StaleGrace {
		c.metrics.PriceLookup("stale")
		c.log.Warn().Err(cause).
			Str("symbol", symbol).
			Time("fetched_at", e.quote.FetchedAt).
			Msg("quote refresh failed, serving stale price")
		q := e.quote
		q.Status = event.QuoteStale
		return q
	}

	c.metrics.PriceLookup("unavailable")
	c.log.Warn().Err(cause).Str("symbol", symbol).Msg("price unavailable")
	return event.Unavailable(symbol)
}

// Invalidate drops the named symbols, or every entry when none are given.
// It returns the number of entries removed and counts them as an admin
// invalidation.
func (c *Cache) Invalidate(symbols ...string) int {
	return c.InvalidateFrom("admin", symbols...)
}

// InvalidateFrom is Invalidate with the origin reported in metrics.
func (c *Cache) InvalidateFrom(origin string, symbols ...string) int {
	c.mu.Lock()
	c.generation++
	removed := 0
	if len(symbols) == 0 {
		c.epoch++
		removed = len(c.entries)
		c.entries = make(map[string]entry)
		c.symGen = make(map[string]uint64)
	} else {
		for _, s := range symbols {
			s = event.NormalizeSymbol(s)
			c.symGen[s]++
			if _, ok := c.entries[s]; ok {
				delete(c.entries, s)
				removed++
			}
		}
	}
	n := len(c.entries)
	c.mu.Unlock()

	c.metrics.Invalidated(origin, removed)
	c.metrics.SetCacheEntries(n)
	c.log.Debug().Str("origin", origin).Strs("symbols", symbols).Int("removed", removed).Msg("cache invalidated")
	return removed
}

// Clear drops all entries.
func (c *Cache) Clear() {
	c.Invalidate()
}

// Sweep removes entries too old to be served even as stale.
func (c *Cache) Sweep() int {
	cutoff := c.cfg.TTL + c.cfg.StaleGrace
	now := c.now()

	c.mu.Lock()
	removed := 0
	for sym, e := range c.entries {
		if now.Sub(e.storedAt) > cutoff {
			delete(c.entries, sym)
			removed++
		}
	}
	n := len(c.entries)
	c.mu.Unlock()

	c.metrics.Invalidated("sweep", removed)
	c.metrics.SetCacheEntries(n)
	return removed
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Entries: len(c.entries), Generation: c.generation}
}
