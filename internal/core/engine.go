package core

import (
	"context"
	"fmt"
	"time"

	"PortfolioAnalytics/internal/event"
	"PortfolioAnalytics/internal/ledger"
	"PortfolioAnalytics/internal/observability"
	"PortfolioAnalytics/internal/performance"
	"PortfolioAnalytics/internal/risk"
	"PortfolioAnalytics/internal/valuation"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Result holds the three views computed from one snapshot.
type Result struct {
	Summary     valuation.Summary
	Risk        risk.Profile
	Performance performance.Report
	// Warnings are data-integrity signals. They never fail a request.
	Warnings []ledger.Warning
	Digest   string
}

// Engine evaluates snapshots. It holds no per-request state and is safe for
// concurrent use.
type Engine struct {
	builder *ledger.Builder
	risk    *risk.Engine
	log     zerolog.Logger
	metrics *observability.Metrics
}

// NewEngine wires the engine. vol may be nil for the built-in volatility table;
// metrics may be nil.
func NewEngine(vol risk.VolatilityTable, log zerolog.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{
		builder: ledger.NewBuilder(),
		risk:    risk.NewEngine(vol),
		log:     log.With().Str("component", "engine").Logger(),
		metrics: metrics,
	}
}

// Evaluate replays the ledger once and computes summary, risk and
// performance in parallel. Identical snapshots give identical results.
func (e *Engine) Evaluate(ctx context.Context, snap Snapshot) (*Result, error) {
	start := time.Now()
	window := snap.Window.Resolve(snap.AsOf)
	if err := window.Validate(); err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	full := e.builder.Build(snap.Trades, event.DateRange{})
	windowed := full
	if !window.IsZero() {
		windowed = e.builder.Build(snap.Trades, window)
	}

	warnings := make([]ledger.Warning, 0, len(full.Warnings))
	warnings = append(warnings, full.Warnings...)
	warnings = append(warnings, ledger.Reconcile(full, snap.Balances)...)

	res := &Result{Warnings: warnings}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		res.Summary = valuation.Value(snap.Balances, full, snap.Quotes, snap.AsOf)
		res.Risk = e.risk.Assess(res.Summary)
		return nil
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		res.Performance = performance.Evaluate(snap.Balances, windowed, snap.Quotes, window, snap.AsOf)
		return nil
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		res.Digest = Digest(snap)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	e.report(snap, res)
	e.metrics.Evaluated(time.Since(start), res.Summary.Count)
	return res, nil
}

func (e *Engine) report(snap Snapshot, res *Result) {
	for _, w := range res.Warnings {
		e.metrics.LedgerWarning(string(w.Kind))
		ev := e.log.Warn().
			Str("user_id", snap.UserID.String()).
			Str("kind", string(w.Kind)).
			Str("detail", w.Detail)
		if w.Symbol != "" {
			ev = ev.Str("symbol", w.Symbol)
		}
		if !w.Quantity.IsZero() {
			ev = ev.Str("quantity", w.Quantity.String())
		}
		ev.Msg("ledger inconsistency")
	}
	e.log.Debug().
		Str("user_id", snap.UserID.String()).
		Int("held_assets", res.Summary.Count).
		Str("digest", res.Digest).
		Msg("snapshot evaluated")
}
