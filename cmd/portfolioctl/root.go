package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "portfolioctl",
		Short: "Portfolio analytics operator tool",
		Long: `portfolioctl evaluates portfolio snapshot files offline and operates the
quote bucket and price cache of a running portfolio-analytics deployment.

Offline reports:
  portfolioctl summary --snapshot portfolio.yaml
  portfolioctl performance --snapshot portfolio.yaml --start-date 2024-01-01

Live operations (NATS):
  portfolioctl price set BTC 45000.12
  portfolioctl cache invalidate BTC ETH`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newReportCmd("summary", "Portfolio valuation with allocation per asset", false),
		newReportCmd("risk", "Concentration, diversification and volatility scores", false),
		newReportCmd("performance", "Gain, loss and ROI per asset", true),
		newReportCmd("analytics", "All views from one snapshot, with its digest", true),
		newPriceCmd(),
		newCacheCmd(),
	)
	return root
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
