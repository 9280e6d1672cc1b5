package domain

import (
	"math"
	"time"
)

// SignalSet is the merged market view for one asset at one evaluation.
// DivergencePct is derived; use WithDivergence after changing either price.
type SignalSet struct {
	Asset            string    `json:"asset"`
	OraclePrice      float64   `json:"oraclePrice"`
	DexPrice         float64   `json:"dexPrice"`
	DivergencePct    float64   `json:"divergencePct"`
	StalenessSeconds int64     `json:"stalenessSeconds"`
	LiquidityUSD     float64   `json:"liquidityUsd"`
	FundingRatePct   float64   `json:"fundingRatePct"`
	SourceLabel      string    `json:"sourceLabel"`
	BlockNumber      *uint64   `json:"blockNumber,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// WithDivergence returns a copy whose DivergencePct matches its two prices.
func (s SignalSet) WithDivergence() SignalSet {
	s.DivergencePct = DivergencePct(s.OraclePrice, s.DexPrice)
	return s
}

// DivergencePct is |oracle-dex|/oracle*100. A non-positive oracle price yields 0.
func DivergencePct(oraclePrice, dexPrice float64) float64 {
	if oraclePrice <= 0 || math.IsNaN(oraclePrice) || math.IsNaN(dexPrice) {
		return 0
	}
	return math.Abs(oraclePrice-dexPrice) / oraclePrice * 100
}

// PartialSignals is what a single provider managed to read. Nil fields are unknown.
// There is deliberately no divergence field: it is never taken from upstream.
type PartialSignals struct {
	OraclePrice      *float64
	DexPrice         *float64
	StalenessSeconds *int64
	LiquidityUSD     *float64
	FundingRatePct   *float64
	BlockNumber      *uint64
	SourceLabel      string
}

func (p PartialSignals) IsEmpty() bool {
	return p.OraclePrice == nil &&
		p.DexPrice == nil &&
		p.StalenessSeconds == nil &&
		p.LiquidityUSD == nil &&
		p.FundingRatePct == nil &&
		p.BlockNumber == nil
}

func Float64(v float64) *float64 { return &v }

func Int64(v int64) *int64 { return &v }

func Uint64(v uint64) *uint64 { return &v }
