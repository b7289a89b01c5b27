package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// DefaultInvalidationSubject carries admin cache invalidation requests.
const DefaultInvalidationSubject = "portfolio.prices.invalidate"

// Invalidator drops cached prices. An empty symbol list means all. origin
// labels the invalidation in metrics.
type Invalidator interface {
	InvalidateFrom(origin string, symbols ...string) int
}

type invalidationReply struct {
	Removed int    `json:"removed"`
	Error   string `json:"error,omitempty"`
}

// InvalidationListener applies invalidation requests published on NATS core
// to the local price cache. Every instance subscribes without a queue group so
// that a request reaches all of them.
type InvalidationListener struct {
	nc      *nats.Conn
	subject string
	target  Invalidator
	log     zerolog.Logger
	sub     *nats.Subscription
}

func NewInvalidationListener(nc *nats.Conn, subject string, target Invalidator, log zerolog.Logger) *InvalidationListener {
	if subject == "" {
		subject = DefaultInvalidationSubject
	}
	return &InvalidationListener{
		nc:      nc,
		subject: subject,
		target:  target,
		log:     log.With().Str("subject", subject).Logger(),
	}
}

func (l *InvalidationListener) Start() error {
	sub, err := l.nc.Subscribe(l.subject, l.handle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", l.subject, err)
	}
	l.sub = sub
	l.log.Info().Msg("listening for price invalidations")
	return nil
}

func (l *InvalidationListener) handle(msg *nats.Msg) {
	var reply invalidationReply
	symbols, err := ParseInvalidation(msg.Data)
	if err != nil {
		l.log.Warn().Err(err).Msg("bad invalidation request")
		reply.Error = err.Error()
	} else {
		reply.Removed = l.target.InvalidateFrom("admin", symbols...)
		l.log.Info().Strs("symbols", symbols).Int("removed", reply.Removed).Msg("prices invalidated")
	}

	if msg.Reply == "" {
		return
	}
	data, _ := json.Marshal(reply)
	if err := msg.Respond(data); err != nil {
		l.log.Warn().Err(err).Msg("invalidation reply failed")
	}
}

// Stop unsubscribes. It is safe to call before Start.
func (l *InvalidationListener) Stop() {
	if l.sub == nil {
		return
	}
	if err := l.sub.Unsubscribe(); err != nil {
		l.log.Warn().Err(err).Msg("unsubscribe failed")
	}
	l.sub = nil
}
