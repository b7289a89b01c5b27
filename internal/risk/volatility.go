package risk

import (
	"fmt"
	"os"

	"PortfolioAnalytics/internal/event"

	"gopkg.in/yaml.v3"
)

// DefaultFallbackVolatility is used for symbols missing from a table.
const DefaultFallbackVolatility = 80.0

// VolatilityTable maps a symbol to its expected annualized volatility in
// percent. It stands in for a realized-volatility estimator.
type VolatilityTable interface {
	Volatility(symbol string) float64
}

// StaticVolatility is a fixed lookup table.
type StaticVolatility struct {
	table    map[string]float64
	fallback float64
}

var defaultVolatility = map[string]float64{
	"BTC":   60,
	"ETH":   75,
	"BNB":   70,
	"SOL":   90,
	"XRP":   80,
	"ADA":   85,
	"DOT":   85,
	"AVAX":  90,
	"LINK":  85,
	"LTC":   70,
	"MATIC": 90,
	"DOGE":  100,
	"USDT":  1,
	"USDC":  1,
	"DAI":   2,
}

// NewStaticVolatility returns the built-in table with the default fallback.
func NewStaticVolatility() *StaticVolatility {
	return NewStaticVolatilityFrom(defaultVolatility, DefaultFallbackVolatility)
}

// NewStaticVolatilityFrom copies table; negative entries are clamped to zero.
func NewStaticVolatilityFrom(table map[string]float64, fallback float64) *StaticVolatility {
	v := &StaticVolatility{table: make(map[string]float64, len(table)), fallback: clamp(fallback)}
	for sym, vol := range table {
		v.table[event.NormalizeSymbol(sym)] = clamp(vol)
	}
	return v
}

func (v *StaticVolatility) Volatility(symbol string) float64 {
	if vol, ok := v.table[event.NormalizeSymbol(symbol)]; ok {
		return vol
	}
	return v.fallback
}

type volatilityFile struct {
	Fallback *float64           `yaml:"fallback"`
	Assets   map[string]float64 `yaml:"assets"`
}

// LoadVolatilityFile reads a YAML table of the form
//
//	fallback: 80
//	assets:
//	  BTC: 60
//
// Entries override the built-in defaults.
func LoadVolatilityFile(path string) (*StaticVolatility, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read volatility file: %w", err)
	}
	return ParseVolatility(data)
}

func ParseVolatility(data []byte) (*StaticVolatility, error) {
	var f volatilityFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse volatility table: %w", err)
	}

	merged := make(map[string]float64, len(defaultVolatility)+len(f.Assets))
	for sym, vol := range defaultVolatility {
		merged[sym] = vol
	}
	for sym, vol := range f.Assets {
		if vol < 0 {
			return nil, fmt.Errorf("volatility for %s must be >= 0, got %v", sym, vol)
		}
		merged[event.NormalizeSymbol(sym)] = vol
	}

	fallback := DefaultFallbackVolatility
	if f.Fallback != nil {
		fallback = *f.Fallback
	}
	return NewStaticVolatilityFrom(merged, fallback), nil
}
