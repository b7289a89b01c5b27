package query

import (
	"time"

	"PortfolioAnalytics/internal/performance"
	"PortfolioAnalytics/internal/risk"
	"PortfolioAnalytics/internal/valuation"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AssetSummary is one held asset in a portfolio summary.
type AssetSummary struct {
	Symbol               string   `json:"symbol"`
	Quantity             float64  `json:"quantity"`
	CurrentPrice         *float64 `json:"currentPrice"` // null when unavailable
	Value                float64  `json:"value"`
	AveragePrice         *float64 `json:"averagePrice"` // null when no trade history
	AllocationPercentage float64  `json:"allocationPercentage"`
	PriceStatus          string   `json:"priceStatus"`
}

// SummaryResponse is the valuation view.
type SummaryResponse struct {
	UserID          uuid.UUID      `json:"userId"`
	TotalValue      float64        `json:"totalValue"`
	Assets          []AssetSummary `json:"assets"`
	Count           int            `json:"count"`
	Timestamp       time.Time      `json:"timestamp"`
	PricesFetchedAt *time.Time     `json:"pricesFetchedAt"`
}

// RiskMetadata explains the headline risk scores.
type RiskMetadata struct {
	LargestHolding           string  `json:"largestHolding"`
	LargestHoldingPercentage float64 `json:"largestHoldingPercentage"`
	HerfindahlIndex          float64 `json:"herfindahlIndex"`
	EffectiveAssets          float64 `json:"effectiveAssets"`
}

// RiskResponse is the risk view. Scores are percentages in [0,100].
type RiskResponse struct {
	UserID               uuid.UUID    `json:"userId"`
	ConcentrationRisk    float64      `json:"concentrationRisk"`
	DiversificationScore float64      `json:"diversificationScore"`
	VolatilityEstimate   float64      `json:"volatilityEstimate"`
	Timestamp            time.Time    `json:"timestamp"`
	Metadata             RiskMetadata `json:"metadata"`
}

// AssetPerformance is gain/loss of one asset.
type AssetPerformance struct {
	Symbol       string   `json:"symbol"`
	Quantity     float64  `json:"quantity"`
	CostBasis    float64  `json:"costBasis"`
	CurrentPrice *float64 `json:"currentPrice"`
	CurrentValue float64  `json:"currentValue"`
	Gain         float64  `json:"gain"`
	Loss         float64  `json:"loss"`
	ROI          float64  `json:"roi"`
	Trades       int      `json:"trades"`
	PriceStatus  string   `json:"priceStatus"`
}

// PerformanceResponse is the performance view.
type PerformanceResponse struct {
	UserID            uuid.UUID          `json:"userId"`
	TotalGain         float64            `json:"totalGain"`
	TotalLoss         float64            `json:"totalLoss"`
	ROI               float64            `json:"roi"`
	TotalCostBasis    float64            `json:"totalCostBasis"`
	TotalCurrentValue float64            `json:"totalCurrentValue"`
	NetGain           float64            `json:"netGain"`
	AssetPerformance  []AssetPerformance `json:"assetPerformance"`
	Timestamp         time.Time          `json:"timestamp"`
	StartDate         *time.Time         `json:"startDate,omitempty"`
	EndDate           *time.Time         `json:"endDate,omitempty"`
}

// AnalyticsResponse carries all three views computed from one snapshot.
type AnalyticsResponse struct {
	Summary        *SummaryResponse     `json:"summary"`
	Risk           *RiskResponse        `json:"risk"`
	Performance    *PerformanceResponse `json:"performance"`
	SnapshotDigest string               `json:"snapshotDigest"`
}

func toFloatPtr(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	f := d.InexactFloat64()
	return &f
}

func newSummaryResponse(userID uuid.UUID, s valuation.Summary) *SummaryResponse {
	assets := make([]AssetSummary, 0, len(s.Assets))
	for _, a := range s.Assets {
		assets = append(assets, AssetSummary{
			Symbol:               a.Symbol,
			Quantity:             a.Quantity.InexactFloat64(),
			CurrentPrice:         toFloatPtr(a.Price),
			Value:                a.Value.InexactFloat64(),
			AveragePrice:         toFloatPtr(a.AveragePrice),
			AllocationPercentage: a.AllocationPercentage,
			PriceStatus:          a.PriceStatus.String(),
		})
	}
	return &SummaryResponse{
		UserID:          userID,
		TotalValue:      s.TotalValue.InexactFloat64(),
		Assets:          assets,
		Count:           s.Count,
		Timestamp:       s.Timestamp,
		PricesFetchedAt: s.PricesFetchedAt,
	}
}

func newRiskResponse(userID uuid.UUID, p risk.Profile) *RiskResponse {
	return &RiskResponse{
		UserID:               userID,
		ConcentrationRisk:    p.ConcentrationRisk,
		DiversificationScore: p.DiversificationScore,
		VolatilityEstimate:   p.VolatilityEstimate,
		Timestamp:            p.Timestamp,
		Metadata: RiskMetadata{
			LargestHolding:           p.Metadata.LargestHolding,
			LargestHoldingPercentage: p.Metadata.LargestHoldingPercentage,
			HerfindahlIndex:          p.Metadata.HerfindahlIndex,
			EffectiveAssets:          p.Metadata.EffectiveAssets,
		},
	}
}

func newPerformanceResponse(userID uuid.UUID, r performance.Report) *PerformanceResponse {
	assets := make([]AssetPerformance, 0, len(r.Assets))
	for _, a := range r.Assets {
		assets = append(assets, AssetPerformance{
			Symbol:       a.Symbol,
			Quantity:     a.Quantity.InexactFloat64(),
			CostBasis:    a.CostBasis.InexactFloat64(),
			CurrentPrice: toFloatPtr(a.CurrentPrice),
			CurrentValue: a.CurrentValue.InexactFloat64(),
			Gain:         a.Gain.InexactFloat64(),
			Loss:         a.Loss.InexactFloat64(),
			ROI:          a.ROI,
			Trades:       a.WindowTrades,
			PriceStatus:  a.PriceStatus.String(),
		})
	}
	return &PerformanceResponse{
		UserID:            userID,
		TotalGain:         r.TotalGain.InexactFloat64(),
		TotalLoss:         r.TotalLoss.InexactFloat64(),
		ROI:               r.ROI,
		TotalCostBasis:    r.TotalCostBasis.InexactFloat64(),
		TotalCurrentValue: r.TotalCurrentValue.InexactFloat64(),
		NetGain:           r.NetGain.InexactFloat64(),
		AssetPerformance:  assets,
		Timestamp:         r.Timestamp,
		StartDate:         r.StartDate,
		EndDate:           r.EndDate,
	}
}
