package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the analytics service.
// Every method is safe to call on a nil *Metrics so that engines and tests can
// run without a registry.
type Metrics struct {
	// --- Price cache ---
	PriceLookups       *prometheus.CounterVec
	PriceFetchDuration *prometheus.HistogramVec
	PriceCacheEntries  prometheus.Gauge
	PriceInvalidations *prometheus.CounterVec

	// --- Ledger / engine ---
	LedgerWarnings   *prometheus.CounterVec
	EvaluateDuration prometheus.Histogram
	HeldAssets       prometheus.Histogram

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics against reg.
// A nil reg registers with the process default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	latencyBuckets := []float64{
		0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005,
		0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5,
	}

	return &Metrics{
		PriceLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pa_price_cache_lookups_total",
			Help: "Price cache lookups by result (hit, miss, stale, unavailable)",
		}, []string{"result"}),

		PriceFetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pa_price_fetch_duration_seconds",
			Help:    "Quote source call latency",
			Buckets: latencyBuckets,
		}, []string{"outcome"}),

		PriceCacheEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "pa_price_cache_entries",
			Help: "Symbols currently held in the price cache",
		}),

		PriceInvalidations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pa_price_cache_invalidations_total",
			Help: "Cache invalidations by origin (admin, watcher, sweep)",
		}, []string{"origin"}),

		LedgerWarnings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pa_ledger_warnings_total",
			Help: "Data-integrity warnings raised while replaying trades",
		}, []string{"kind"}),

		EvaluateDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pa_engine_evaluate_duration_seconds",
			Help:    "Time to build the ledger and compute all views for one snapshot",
			Buckets: latencyBuckets,
		}),

		HeldAssets: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pa_engine_held_assets",
			Help:    "Held assets per evaluated portfolio",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),

		QueryRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pa_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pa_query_duration_seconds",
			Help:    "Query latency",
			Buckets: latencyBuckets,
		}, []string{"endpoint"}),

		QueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pa_query_errors_total",
			Help: "Query errors",
		}, []string{"endpoint", "code"}),
	}
}

func (m *Metrics) PriceLookup(result string) {
	if m == nil {
		return
	}
	m.PriceLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) PriceFetched(d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.PriceFetchDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) SetCacheEntries(n int) {
	if m == nil {
		return
	}
	m.PriceCacheEntries.Set(float64(n))
}

func (m *Metrics) Invalidated(origin string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PriceInvalidations.WithLabelValues(origin).Add(float64(n))
}

func (m *Metrics) LedgerWarning(kind string) {
	if m == nil {
		return
	}
	m.LedgerWarnings.WithLabelValues(kind).Inc()
}

func (m *Metrics) Evaluated(d time.Duration, heldAssets int) {
	if m == nil {
		return
	}
	m.EvaluateDuration.Observe(d.Seconds())
	m.HeldAssets.Observe(float64(heldAssets))
}

// ObserveQuery records one finished query. code is empty on success.
func (m *Metrics) ObserveQuery(endpoint string, d time.Duration, code string) {
	if m == nil {
		return
	}
	status := "ok"
	if code != "" {
		status = "error"
		m.QueryErrors.WithLabelValues(endpoint, code).Inc()
	}
	m.QueryRequests.WithLabelValues(endpoint, status).Inc()
	m.QueryDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}
