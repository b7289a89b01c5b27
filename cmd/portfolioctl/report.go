package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"PortfolioAnalytics/internal/core"
	"PortfolioAnalytics/internal/observability"
	"PortfolioAnalytics/internal/persistence"
	"PortfolioAnalytics/internal/pricing"
	"PortfolioAnalytics/internal/query"
	"PortfolioAnalytics/internal/risk"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type reportOptions struct {
	snapshot   string
	volatility string
	startDate  string
	endDate    string
	compact    bool
	verbose    bool
}

// newReportCmd builds one offline report command. windowed commands accept
// --start-date and --end-date.
func newReportCmd(name, short string, windowed bool) *cobra.Command {
	opts := &reportOptions{}
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := runReport(contextOf(cmd), name, opts)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			if !opts.compact {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(resp)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.snapshot, "snapshot", "s", "", "portfolio snapshot YAML file")
	f.StringVar(&opts.volatility, "volatility", "", "volatility table YAML (defaults to the built-in table)")
	f.BoolVar(&opts.compact, "compact", false, "print single-line JSON")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log ledger warnings to stderr")
	if windowed {
		f.StringVar(&opts.startDate, "start-date", "", "window start (RFC3339 or YYYY-MM-DD)")
		f.StringVar(&opts.endDate, "end-date", "", "window end (RFC3339 or YYYY-MM-DD, whole day)")
	}
	_ = cmd.MarkFlagRequired("snapshot")
	return cmd
}

func runReport(ctx context.Context, name string, opts *reportOptions) (any, error) {
	p, err := persistence.LoadSnapshotFile(opts.snapshot)
	if err != nil {
		return nil, err
	}

	vol := risk.NewStaticVolatility()
	if opts.volatility != "" {
		if vol, err = risk.LoadVolatilityFile(opts.volatility); err != nil {
			return nil, err
		}
	}

	log := observability.NewNopLogger()
	if opts.verbose {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			Level(zerolog.WarnLevel).With().Timestamp().Logger()
	}

	// Snapshot prices count as fetched at the snapshot time so that repeated
	// runs print identical output.
	asOf := time.Now().UTC()
	if p.AsOf != nil {
		asOf = *p.AsOf
	}
	clock := func() time.Time { return asOf }

	store := persistence.NewMemoryStore()
	store.PutPortfolio(p)
	cfg := pricing.DefaultConfig()
	cfg.Now = clock
	cache := pricing.NewCache(pricing.NewStaticSource(p.Prices), cfg, log, nil)
	svc := query.NewService(store, store, cache, core.NewEngine(vol, log, nil), log, nil)
	svc.SetClock(clock)

	window, err := query.ParseDateRange(opts.startDate, opts.endDate)
	if err != nil {
		return nil, err
	}

	switch name {
	case "summary":
		return svc.GetPortfolioSummary(ctx, p.UserID)
	case "risk":
		return svc.GetPortfolioRisk(ctx, p.UserID)
	case "performance":
		return svc.GetPortfolioPerformance(ctx, p.UserID, window)
	case "analytics":
		return svc.GetPortfolioAnalytics(ctx, p.UserID, window)
	default:
		return nil, fmt.Errorf("unknown report %q", name)
	}
}
