package pricing

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Sweeper periodically evicts entries that are past their stale grace.
// Expiry is otherwise checked lazily on read; the sweeper only bounds memory.
type Sweeper struct {
	cron  *cron.Cron
	cache *Cache
	log   zerolog.Logger
}

// NewSweeper schedules cache.Sweep every interval.
func NewSweeper(cache *Cache, interval time.Duration, log zerolog.Logger) (*Sweeper, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", interval)
	}
	s := &Sweeper{
		cron:  cron.New(),
		cache: cache,
		log:   log.With().Str("component", "price_sweeper").Logger(),
	}
	if _, err := s.cron.AddFunc("@every "+interval.String(), s.run); err != nil {
		return nil, fmt.Errorf("schedule sweep: %w", err)
	}
	return s, nil
}

func (s *Sweeper) run() {
	if n := s.cache.Sweep(); n > 0 {
		s.log.Debug().Int("evicted", n).Msg("swept expired quotes")
	}
}

func (s *Sweeper) Start() {
	s.cron.Start()
	s.log.Info().Msg("sweeper started")
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("sweeper stopped")
}
