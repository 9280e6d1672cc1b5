package signals

import (
	"math"
	"time"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

// Source is one row of the precedence table.
type Source struct {
	Label   string
	Signals domain.PartialSignals
}

type mergeField struct {
	name     string
	optional bool
	take     func(dst *domain.SignalSet, p domain.PartialSignals) bool
}

// mergeTable is evaluated once per field: the first source holding the field
// wins. Optional fields are never counted as back-filled.
var mergeTable = []mergeField{
	{name: "oraclePrice", take: func(dst *domain.SignalSet, p domain.PartialSignals) bool {
		if p.OraclePrice == nil {
			return false
		}
		dst.OraclePrice = *p.OraclePrice
		return true
	}},
	{name: "dexPrice", take: func(dst *domain.SignalSet, p domain.PartialSignals) bool {
		if p.DexPrice == nil {
			return false
		}
		dst.DexPrice = *p.DexPrice
		return true
	}},
	{name: "stalenessSeconds", take: func(dst *domain.SignalSet, p domain.PartialSignals) bool {
		if p.StalenessSeconds == nil {
			return false
		}
		dst.StalenessSeconds = *p.StalenessSeconds
		return true
	}},
	{name: "liquidityUsd", take: func(dst *domain.SignalSet, p domain.PartialSignals) bool {
		if p.LiquidityUSD == nil {
			return false
		}
		dst.LiquidityUSD = *p.LiquidityUSD
		return true
	}},
	{name: "fundingRatePct", take: func(dst *domain.SignalSet, p domain.PartialSignals) bool {
		if p.FundingRatePct == nil {
			return false
		}
		dst.FundingRatePct = *p.FundingRatePct
		return true
	}},
	{name: "blockNumber", optional: true, take: func(dst *domain.SignalSet, p domain.PartialSignals) bool {
		if p.BlockNumber == nil {
			return false
		}
		v := *p.BlockNumber
		dst.BlockNumber = &v
		return true
	}},
}

// Merge builds a signal set from sources in precedence order. The first
// source names the result; "+<label>" is appended for every later source that
// filled a required field. Divergence is always recomputed.
func Merge(asset string, now time.Time, sources ...Source) domain.SignalSet {
	out := domain.SignalSet{Asset: asset, Timestamp: now.UTC()}
	filledBy := make(map[int]bool, len(sources))
	for _, f := range mergeTable {
		for i, src := range sources {
			if f.take(&out, src.Signals) {
				if !f.optional {
					filledBy[i] = true
				}
				break
			}
		}
	}

	label := ""
	for i, src := range sources {
		if i == 0 {
			label = src.Label
			continue
		}
		if filledBy[i] {
			label += "+" + src.Label
		}
	}
	out.SourceLabel = label
	return out.WithDivergence()
}

// sanitize drops fields that cannot be evidence: non-positive or non-finite
// prices and liquidity, negative staleness, non-finite funding.
func sanitize(p domain.PartialSignals) domain.PartialSignals {
	if p.OraclePrice != nil && !validPrice(*p.OraclePrice) {
		p.OraclePrice = nil
	}
	if p.DexPrice != nil && !validPrice(*p.DexPrice) {
		p.DexPrice = nil
	}
	if p.LiquidityUSD != nil && !validPrice(*p.LiquidityUSD) {
		p.LiquidityUSD = nil
	}
	if p.StalenessSeconds != nil && *p.StalenessSeconds < 0 {
		p.StalenessSeconds = nil
	}
	if p.FundingRatePct != nil && !finite(*p.FundingRatePct) {
		p.FundingRatePct = nil
	}
	return p
}

func validPrice(v float64) bool {
	return finite(v) && v > 0
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
