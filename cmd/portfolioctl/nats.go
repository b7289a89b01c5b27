package main

import (
	"context"
	"fmt"
	"time"

	"PortfolioAnalytics/internal/ingestion"
	"PortfolioAnalytics/internal/observability"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

type natsOptions struct {
	url     string
	bucket  string
	subject string
	timeout time.Duration
}

func (o *natsOptions) bind(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&o.url, "nats-url", envOrDefault("PA_NATS_URL", "nats://localhost:4222"), "NATS server URL")
	f.StringVar(&o.bucket, "bucket", envOrDefault("PA_QUOTE_BUCKET", ingestion.DefaultQuoteBucket), "quote KV bucket")
	f.StringVar(&o.subject, "subject", envOrDefault("PA_INVALIDATION_SUBJECT", ingestion.DefaultInvalidationSubject), "invalidation subject")
	f.DurationVar(&o.timeout, "timeout", 5*time.Second, "operation timeout")
}

func newPriceCmd() *cobra.Command {
	opts := &natsOptions{}
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Manage quotes in the quote bucket",
	}
	opts.bind(cmd)

	var asOf string
	set := &cobra.Command{
		Use:   "set SYMBOL PRICE",
		Short: "Publish a quote",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			price, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("price: %w", err)
			}
			var ts time.Time
			if asOf != "" {
				if ts, err = time.Parse(time.RFC3339, asOf); err != nil {
					return fmt.Errorf("as-of: %w", err)
				}
			}

			ctx, cancel := context.WithTimeout(contextOf(cmd), opts.timeout)
			defer cancel()
			nc, js, err := ingestion.ConnectNATS(opts.url, observability.NewNopLogger())
			if err != nil {
				return err
			}
			defer nc.Close()

			kv, err := ingestion.OpenQuoteBucket(ctx, js, opts.bucket)
			if err != nil {
				return err
			}
			rev, err := ingestion.NewQuotePublisher(kv).Publish(ctx, args[0], price, ts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s (revision %d)\n", args[0], price, rev)
			return nil
		},
	}
	set.Flags().StringVar(&asOf, "as-of", "", "quote time (RFC3339, default now)")

	del := &cobra.Command{
		Use:   "delete SYMBOL",
		Short: "Remove a quote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(contextOf(cmd), opts.timeout)
			defer cancel()
			nc, js, err := ingestion.ConnectNATS(opts.url, observability.NewNopLogger())
			if err != nil {
				return err
			}
			defer nc.Close()

			kv, err := ingestion.OpenQuoteBucket(ctx, js, opts.bucket)
			if err != nil {
				return err
			}
			return ingestion.NewQuotePublisher(kv).Delete(ctx, args[0])
		},
	}

	cmd.AddCommand(set, del)
	return cmd
}

func newCacheCmd() *cobra.Command {
	opts := &natsOptions{}
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Operate the price cache of running instances",
	}
	opts.bind(cmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "invalidate [SYMBOL...]",
		Short: "Drop cached prices (all when no symbol is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(contextOf(cmd), opts.timeout)
			defer cancel()
			nc, _, err := ingestion.ConnectNATS(opts.url, observability.NewNopLogger())
			if err != nil {
				return err
			}
			defer nc.Close()

			n, err := ingestion.RequestInvalidation(ctx, nc, opts.subject, args)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d cached prices\n", n)
			return nil
		},
	})
	return cmd
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
