package signals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

type MarketReading struct {
	DexPrice       *float64
	LiquidityUSD   *float64
	FundingRatePct *float64
}

type MarketData interface {
	Read(ctx context.Context, asset string) (MarketReading, error)
}

// PublicProvider combines an on-chain price feed with a public market-data
// API. The two reads run concurrently and either may fail alone.
type PublicProvider struct {
	name   string
	chain  Evaluator
	market MarketData
	now    func() time.Time
}

func NewPublicProvider(name string, chain Evaluator, market MarketData) *PublicProvider {
	if name == "" {
		name = "public"
	}
	return &PublicProvider{name: name, chain: chain, market: market, now: time.Now}
}

func (p *PublicProvider) Name() string {
	return p.name
}

func (p *PublicProvider) Fetch(ctx context.Context, asset string) (domain.PartialSignals, error) {
	var (
		chain            Reading
		market           MarketReading
		chainErr, mktErr error
	)

	// plain Group: one failed read must not cancel the other
	var g errgroup.Group
	if p.chain != nil {
		g.Go(func() error {
			chain, chainErr = p.chain.Read(ctx, asset)
			return nil
		})
	} else {
		chainErr = errors.New("chain feed not configured")
	}
	if p.market != nil {
		g.Go(func() error {
			market, mktErr = p.market.Read(ctx, asset)
			return nil
		})
	} else {
		mktErr = errors.New("market data not configured")
	}
	_ = g.Wait()

	if chainErr != nil && mktErr != nil {
		return domain.PartialSignals{}, fmt.Errorf("%w: chain: %v; market: %v", domain.ErrSignalProviderUnavailable, chainErr, mktErr)
	}

	out := domain.PartialSignals{SourceLabel: p.name}
	if chainErr == nil {
		out.OraclePrice = domain.Float64(chain.Price)
		out.BlockNumber = chain.BlockNumber
		if !chain.UpdatedAt.IsZero() {
			out.StalenessSeconds = domain.Int64(stalenessSince(p.now(), chain.UpdatedAt))
		}
	}
	if mktErr == nil {
		out.DexPrice = market.DexPrice
		out.LiquidityUSD = market.LiquidityUSD
		out.FundingRatePct = market.FundingRatePct
	}
	return out, nil
}
