// Package risk derives concentration, diversification and volatility scores
// from valuation weights.
package risk

import (
	"math"
	"time"

	"PortfolioAnalytics/internal/valuation"

	"gonum.org/v1/gonum/floats"
)

// Metadata carries the inputs behind the headline scores.
type Metadata struct {
	LargestHolding           string
	LargestHoldingPercentage float64
	HerfindahlIndex          float64
	EffectiveAssets          float64
}

// Profile is the risk view of one snapshot. Scores are percentages in [0,100].
type Profile struct {
	ConcentrationRisk    float64
	DiversificationScore float64
	VolatilityEstimate   float64
	Timestamp            time.Time
	Metadata             Metadata
}

type Engine struct {
	vol VolatilityTable
}

// NewEngine uses the built-in volatility table when vol is nil.
func NewEngine(vol VolatilityTable) *Engine {
	if vol == nil {
		vol = NewStaticVolatility()
	}
	return &Engine{vol: vol}
}

// Assess computes the profile from priced assets of summary.
// Unpriced assets carry no weight.
func (e *Engine) Assess(summary valuation.Summary) Profile {
	p := Profile{Timestamp: summary.Timestamp}
	if !summary.TotalValue.IsPositive() {
		return p
	}

	var (
		symbols []string
		weights []float64
		vols    []float64
	)
	for _, a := range summary.Assets {
		if !a.Priced() {
			continue
		}
		symbols = append(symbols, a.Symbol)
		weights = append(weights, a.Value.Div(summary.TotalValue).InexactFloat64())
		vols = append(vols, e.vol.Volatility(a.Symbol))
	}
	if len(weights) == 0 {
		return p
	}

	hhi := floats.Dot(weights, weights)
	// Assets are value-ordered, so the first maximum is the largest holding
	// with ties broken by symbol.
	largest := floats.MaxIdx(weights)
	maxWeight := weights[largest]

	p.ConcentrationRisk = clamp(100 * maxWeight)
	p.DiversificationScore = clamp(100 * (1 - hhi))
	p.VolatilityEstimate = clamp(floats.Dot(weights, vols))
	p.Metadata = Metadata{
		LargestHolding:           symbols[largest],
		LargestHoldingPercentage: clamp(100 * maxWeight),
		HerfindahlIndex:          hhi,
	}
	if hhi > 0 {
		p.Metadata.EffectiveAssets = 1 / hhi
	}
	return p
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}
