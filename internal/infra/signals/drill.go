package signals

import (
	"errors"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

const DrillLabel = "drill"

// StressProfile is the deterministic shock applied to drill evaluations.
type StressProfile struct {
	PriceShockPct       float64 `yaml:"price_shock_pct" default:"8" validate:"gte=0,lt=100"`
	LiquidityHaircut    float64 `yaml:"liquidity_haircut" default:"0.35" validate:"gt=0,lte=1"`
	StalenessAddSeconds int64   `yaml:"staleness_add_seconds" default:"900" validate:"gte=0"`
}

var DefaultStressProfile = StressProfile{
	PriceShockPct:       8,
	LiquidityHaircut:    0.35,
	StalenessAddSeconds: 900,
}

func (p StressProfile) Validate() error {
	if p.PriceShockPct < 0 || p.PriceShockPct >= 100 {
		return errors.New("price shock must be in [0,100)")
	}
	if p.LiquidityHaircut <= 0 || p.LiquidityHaircut > 1 {
		return errors.New("liquidity haircut must be in (0,1]")
	}
	if p.StalenessAddSeconds < 0 {
		return errors.New("staleness add must be non-negative")
	}
	return nil
}

// Apply shocks the dex price down, cuts liquidity, ages the feed and
// recomputes divergence.
func (p StressProfile) Apply(s domain.SignalSet) domain.SignalSet {
	s.DexPrice = s.DexPrice * (1 - p.PriceShockPct/100)
	s.LiquidityUSD = s.LiquidityUSD * p.LiquidityHaircut
	s.StalenessSeconds += p.StalenessAddSeconds
	s.SourceLabel += "+" + DrillLabel
	return s.WithDivergence()
}
