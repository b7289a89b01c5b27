package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PortfolioAnalytics/internal/core"
	"PortfolioAnalytics/internal/event"
	"PortfolioAnalytics/internal/observability"
	"PortfolioAnalytics/internal/valuation"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// BalanceReader returns a user's recorded balances. Unknown users yield an
// error wrapping event.ErrUserNotFound.
type BalanceReader interface {
	GetBalances(ctx context.Context, userID uuid.UUID) ([]event.Balance, error)
}

// TradeReader returns a user's trade history ordered by occurredAt. A nil
// window means the whole history; otherwise readers may drop trades after
// window.End but must keep earlier ones.
type TradeReader interface {
	GetTrades(ctx context.Context, userID uuid.UUID, window *event.DateRange) ([]event.TradeEvent, error)
}

// PriceReader resolves quotes for a set of symbols. It never fails; missing
// prices come back as unavailable quotes.
type PriceReader interface {
	GetPrices(ctx context.Context, symbols []string) map[string]event.PriceQuote
}

// Service serves the portfolio analytics queries. Every call is read-only and
// independent; the only shared mutable state lives behind PriceReader.
type Service struct {
	balances BalanceReader
	trades   TradeReader
	prices   PriceReader
	engine   *core.Engine
	now      func() time.Time
	log      zerolog.Logger
	metrics  *observability.Metrics
}

func NewService(
	balances BalanceReader,
	trades TradeReader,
	prices PriceReader,
	engine *core.Engine,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *Service {
	return &Service{
		balances: balances,
		trades:   trades,
		prices:   prices,
		engine:   engine,
		now:      time.Now,
		log:      log.With().Str("component", "query").Logger(),
		metrics:  metrics,
	}
}

// SetClock replaces the as-of clock.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// GetPortfolioSummary returns the valuation view.
func (s *Service) GetPortfolioSummary(ctx context.Context, userID uuid.UUID) (resp *SummaryResponse, err error) {
	defer s.observe("summary", userID, time.Now(), &err)

	res, err := s.evaluate(ctx, userID, event.DateRange{})
	if err != nil {
		return nil, err
	}
	return newSummaryResponse(userID, res.Summary), nil
}

// GetPortfolioRisk returns the risk view.
func (s *Service) GetPortfolioRisk(ctx context.Context, userID uuid.UUID) (resp *RiskResponse, err error) {
	defer s.observe("risk", userID, time.Now(), &err)

	res, err := s.evaluate(ctx, userID, event.DateRange{})
	if err != nil {
		return nil, err
	}
	return newRiskResponse(userID, res.Risk), nil
}

// GetPortfolioPerformance returns the performance view, optionally windowed.
func (s *Service) GetPortfolioPerformance(
	ctx context.Context,
	userID uuid.UUID,
	window event.DateRange,
) (resp *PerformanceResponse, err error) {
	defer s.observe("performance", userID, time.Now(), &err)

	res, err := s.evaluate(ctx, userID, window)
	if err != nil {
		return nil, err
	}
	return newPerformanceResponse(userID, res.Performance), nil
}

// GetPortfolioAnalytics returns all three views from one shared snapshot
// together with the snapshot digest.
func (s *Service) GetPortfolioAnalytics(
	ctx context.Context,
	userID uuid.UUID,
	window event.DateRange,
) (resp *AnalyticsResponse, err error) {
	defer s.observe("analytics", userID, time.Now(), &err)

	res, err := s.evaluate(ctx, userID, window)
	if err != nil {
		return nil, err
	}
	return &AnalyticsResponse{
		Summary:        newSummaryResponse(userID, res.Summary),
		Risk:           newRiskResponse(userID, res.Risk),
		Performance:    newPerformanceResponse(userID, res.Performance),
		SnapshotDigest: res.Digest,
	}, nil
}

func (s *Service) evaluate(ctx context.Context, userID uuid.UUID, window event.DateRange) (*core.Result, error) {
	snap, err := s.snapshot(ctx, userID, window)
	if err != nil {
		return nil, err
	}
	res, err := s.engine.Evaluate(ctx, snap)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", userID, err)
	}
	return res, nil
}

// snapshot validates the request, then reads balances and trades
// concurrently and prices every held symbol through the cache.
func (s *Service) snapshot(ctx context.Context, userID uuid.UUID, window event.DateRange) (core.Snapshot, error) {
	if userID == uuid.Nil {
		return core.Snapshot{}, ErrInvalidUserID
	}
	asOf := s.now().UTC()
	resolved := window.Resolve(asOf)
	if err := resolved.Validate(); err != nil {
		return core.Snapshot{}, fmt.Errorf("%w: %v", ErrInvalidDateRange, err)
	}

	var (
		balances []event.Balance
		trades   []event.TradeEvent
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		balances, err = s.balances.GetBalances(gctx, userID)
		return upstream("balances", err)
	})
	g.Go(func() error {
		// The summary and reconciliation need the whole history; the engine
		// applies the window in memory.
		var err error
		trades, err = s.trades.GetTrades(gctx, userID, nil)
		return upstream("trades", err)
	})
	if err := g.Wait(); err != nil {
		return core.Snapshot{}, err
	}

	return core.Snapshot{
		UserID:   userID,
		AsOf:     asOf,
		Balances: balances,
		Trades:   trades,
		Quotes:   s.prices.GetPrices(ctx, valuation.HeldSymbols(balances)),
		Window:   resolved,
	}, nil
}

// upstream wraps reader failures. Not-found and cancellation pass through
// unchanged so callers can tell them apart.
func upstream(source string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, event.ErrUserNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return &UpstreamError{Source: source, Err: err}
	}
}

func (s *Service) observe(endpoint string, userID uuid.UUID, start time.Time, errp *error) {
	err := *errp
	code := ErrorCode(err)
	s.metrics.ObserveQuery(endpoint, time.Since(start), code)

	switch code {
	case "":
		s.log.Debug().Str("endpoint", endpoint).Str("user_id", userID.String()).
			Dur("took", time.Since(start)).Msg("query served")
	case CodeInvalidArgument, CodeNotFound:
		s.log.Info().Err(err).Str("endpoint", endpoint).Str("user_id", userID.String()).Msg("query rejected")
	default:
		s.log.Error().Err(err).Str("endpoint", endpoint).Str("user_id", userID.String()).
			Str("code", code).Msg("query failed")
	}
}
