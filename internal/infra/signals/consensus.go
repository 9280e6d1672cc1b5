package signals

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

// Reading is one price observation.
type Reading struct {
	Price       float64
	UpdatedAt   time.Time
	BlockNumber *uint64

	fallback bool
}

// Evaluator reads a price independently of its siblings.
type Evaluator interface {
	Read(ctx context.Context, asset string) (Reading, error)
}

// FallbackFunc supplies the price an erroring evaluator contributes.
type FallbackFunc func(asset string) float64

// ConsensusProvider asks every evaluator for the same reading and reports the
// median. Failed evaluators are replaced by the fallback price so the set
// size never changes.
type ConsensusProvider struct {
	name       string
	evaluators []Evaluator
	fallback   FallbackFunc
	limit      int
	now        func() time.Time
}

func NewConsensusProvider(name string, evaluators []Evaluator, fallback FallbackFunc, limit int) *ConsensusProvider {
	if name == "" {
		name = "consensus"
	}
	if limit <= 0 {
		limit = len(evaluators)
	}
	return &ConsensusProvider{
		name:       name,
		evaluators: evaluators,
		fallback:   fallback,
		limit:      limit,
		now:        time.Now,
	}
}

func (p *ConsensusProvider) Name() string {
	return p.name
}

func (p *ConsensusProvider) Fetch(ctx context.Context, asset string) (domain.PartialSignals, error) {
	if len(p.evaluators) == 0 {
		return domain.PartialSignals{}, fmt.Errorf("%w: no evaluators", domain.ErrSignalProviderUnavailable)
	}

	readings := make([]Reading, len(p.evaluators))
	var failed atomic.Int32

	var g errgroup.Group
	g.SetLimit(p.limit)
	for i, ev := range p.evaluators {
		g.Go(func() error {
			r, err := ev.Read(ctx, asset)
			if err != nil || !validPrice(r.Price) {
				failed.Add(1)
				readings[i] = Reading{Price: p.fallbackPrice(asset), fallback: true}
				return nil
			}
			readings[i] = r
			return nil
		})
	}
	_ = g.Wait()

	if int(failed.Load()) == len(p.evaluators) {
		return domain.PartialSignals{}, fmt.Errorf("%w: all %d evaluators failed", domain.ErrSignalProviderUnavailable, len(p.evaluators))
	}

	m := Median(readings)
	out := domain.PartialSignals{
		OraclePrice: domain.Float64(m.Price),
		SourceLabel: p.name,
	}
	if !m.fallback {
		if !m.UpdatedAt.IsZero() {
			out.StalenessSeconds = domain.Int64(stalenessSince(p.now(), m.UpdatedAt))
		}
		out.BlockNumber = m.BlockNumber
	}
	return out, nil
}

func (p *ConsensusProvider) fallbackPrice(asset string) float64 {
	if p.fallback == nil {
		return 0
	}
	return p.fallback(asset)
}

// Median returns sorted[n/2] of the readings ordered by ascending price.
// For an even count that is the upper of the two middle elements.
func Median(readings []Reading) Reading {
	if len(readings) == 0 {
		return Reading{}
	}
	sorted := append([]Reading(nil), readings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Price < sorted[j].Price
	})
	return sorted[len(sorted)/2]
}

func stalenessSince(now, updatedAt time.Time) int64 {
	s := int64(now.Sub(updatedAt) / time.Second)
	if s < 0 {
		return 0
	}
	return s
}
