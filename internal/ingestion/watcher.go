package ingestion

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// QuoteWatcher invalidates cached prices as soon as the quote bucket changes,
// so a new quote is picked up before the cache TTL runs out.
type QuoteWatcher struct {
	kv     jetstream.KeyValue
	target Invalidator
	log    zerolog.Logger
}

func NewQuoteWatcher(kv jetstream.KeyValue, target Invalidator, log zerolog.Logger) *QuoteWatcher {
	return &QuoteWatcher{kv: kv, target: target, log: log}
}

// Run blocks until ctx is cancelled.
func (w *QuoteWatcher) Run(ctx context.Context) error {
	watcher, err := w.kv.WatchAll(ctx, jetstream.UpdatesOnly())
	if err != nil {
		return fmt.Errorf("watch quote bucket: %w", err)
	}
	defer watcher.Stop()

	w.log.Info().Str("bucket", w.kv.Bucket()).Msg("watching quote bucket")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-watcher.Updates():
			if !ok {
				return nil
			}
			// nil marks the end of the initial values.
			if e == nil {
				continue
			}
			n := w.target.InvalidateFrom("watcher", e.Key())
			w.log.Debug().
				Str("symbol", e.Key()).
				Uint64("revision", e.Revision()).
				Str("op", e.Operation().String()).
				Int("removed", n).
				Msg("quote changed")
		}
	}
}
