package usecase

import (
	"fmt"
	"math"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

const RiskScorerVersion = "risk.v1"

// Breakdown holds the clamped per-component scores behind a result.
type Breakdown struct {
	Divergence int `json:"divergence"`
	Staleness  int `json:"staleness"`
	Liquidity  int `json:"liquidity"`
	Funding    int `json:"funding"`
}

func (b Breakdown) Total() int {
	return clamp(b.Divergence+b.Staleness+b.Liquidity+b.Funding, 0, 100)
}

type tier struct {
	bound float64
	score int
}

// Tiers are checked top down; the first strictly exceeded bound wins.
var (
	divergenceTiers = []tier{{15, 40}, {10, 35}, {5, 25}, {2, 15}, {1, 8}}
	stalenessTiers  = []tier{{3600, 30}, {1800, 22}, {600, 15}, {90, 7}}
	fundingTiers    = []tier{{0.5, 10}, {0.2, 6}, {0.1, 3}}
	// liquidity tiers use a strict lower-than comparison
	liquidityTiers = []tier{{100_000, 20}, {500_000, 14}, {1_000_000, 8}, {5_000_000, 3}}
)

const (
	maxDivergenceScore = 40
	maxStalenessScore  = 30
	maxLiquidityScore  = 20
	maxFundingScore    = 10
)

// RiskScorer is a pure function of a signal set. It holds no state and is
// safe for concurrent use.
type RiskScorer struct{}

func NewRiskScorer() *RiskScorer {
	return &RiskScorer{}
}

func (s *RiskScorer) Score(signals domain.SignalSet) domain.RiskScoreResult {
	breakdown := s.Breakdown(signals)
	score := breakdown.Total()
	level := levelForScore(score)
	return domain.RiskScoreResult{
		Score:              score,
		Level:              level,
		VulnerabilityClass: classify(signals),
		Actions:            recommendActions(signals, level),
	}
}

func (s *RiskScorer) Breakdown(signals domain.SignalSet) Breakdown {
	return Breakdown{
		Divergence: clamp(above(signals.DivergencePct, divergenceTiers), 0, maxDivergenceScore),
		Staleness:  clamp(above(float64(signals.StalenessSeconds), stalenessTiers), 0, maxStalenessScore),
		Liquidity:  clamp(below(signals.LiquidityUSD, liquidityTiers), 0, maxLiquidityScore),
		Funding:    clamp(above(math.Abs(signals.FundingRatePct), fundingTiers), 0, maxFundingScore),
	}
}

func above(v float64, tiers []tier) int {
	for _, t := range tiers {
		if v > t.bound {
			return t.score
		}
	}
	return 0
}

func below(v float64, tiers []tier) int {
	for _, t := range tiers {
		if v < t.bound {
			return t.score
		}
	}
	return 0
}

func levelForScore(score int) domain.RiskLevel {
	switch {
	case score >= 75:
		return domain.LevelCritical
	case score >= 55:
		return domain.LevelHigh
	case score >= 35:
		return domain.LevelMedium
	case score >= 15:
		return domain.LevelLow
	default:
		return domain.LevelSafe
	}
}

func classify(s domain.SignalSet) domain.VulnerabilityClass {
	switch {
	case s.DivergencePct > 10:
		return domain.VulnOracleDivergenceCritical
	case s.DivergencePct > 3:
		return domain.VulnOracleDivergenceElevated
	case s.StalenessSeconds > 3600:
		return domain.VulnStaleFeedCritical
	case s.StalenessSeconds > 600:
		return domain.VulnStaleFeed
	case s.LiquidityUSD < 500_000:
		return domain.VulnThinLiquidityCritical
	case s.LiquidityUSD < 2_000_000:
		return domain.VulnThinLiquidity
	default:
		return domain.VulnNominal
	}
}

func recommendActions(s domain.SignalSet, level domain.RiskLevel) []domain.Action {
	actions := make([]domain.Action, 0, 5)
	if level >= domain.LevelLow {
		actions = append(actions, domain.Action{
			Type:        domain.ActionMonitorClosely,
			Severity:    domain.SeverityLow,
			Description: fmt.Sprintf("Monitor %s feeds closely at %s risk", s.Asset, level),
		})
	}
	if s.DivergencePct > 2 {
		actions = append(actions, domain.Action{
			Type:        domain.ActionReduceLTV,
			Severity:    domain.SeverityMedium,
			Description: fmt.Sprintf("Reduce LTV by %d%%", SuggestedLTVReductionPct(s.DivergencePct)),
		})
	}
	if s.LiquidityUSD < 5_000_000 {
		actions = append(actions, domain.Action{
			Type:        domain.ActionCapSupply,
			Severity:    domain.SeverityMedium,
			Description: "Cap supply until liquidity recovers above $5M",
		})
	}
	if level >= domain.LevelHigh {
		actions = append(actions, domain.Action{
			Type:        domain.ActionPauseBorrows,
			Severity:    domain.SeverityHigh,
			Description: "Pause new borrows against " + s.Asset,
		})
	}
	if level >= domain.LevelCritical {
		actions = append(actions, domain.Action{
			Type:        domain.ActionFreezeMarket,
			Severity:    domain.SeverityCritical,
			Description: "Freeze the " + s.Asset + " market",
		})
	}
	return actions
}

// SuggestedLTVReductionPct is min(10, floor(divergence*2)).
func SuggestedLTVReductionPct(divergencePct float64) int {
	pct := math.Floor(divergencePct * 2)
	if pct > 10 {
		return 10
	}
	if pct < 0 {
		return 0
	}
	return int(pct)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
