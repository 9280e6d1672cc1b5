package signals

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
	"github.com/cosu123/reality-firewall-v3/internal/infra/httpjson"
)

func expandURL(template, asset string) string {
	return strings.ReplaceAll(template, "{asset}", url.PathEscape(asset))
}

type priceResponse struct {
	Price       *float64 `json:"price"`
	UpdatedAt   int64    `json:"updatedAt"`
	BlockNumber *uint64  `json:"blockNumber"`
}

// HTTPEvaluator reads a price document from an oracle node endpoint.
// The URL template may contain {asset}.
type HTTPEvaluator struct {
	client      *httpjson.Client
	urlTemplate string
}

func NewHTTPEvaluator(client *httpjson.Client, urlTemplate string) *HTTPEvaluator {
	return &HTTPEvaluator{client: client, urlTemplate: urlTemplate}
}

func (e *HTTPEvaluator) Read(ctx context.Context, asset string) (Reading, error) {
	var resp priceResponse
	if err := e.client.Get(ctx, expandURL(e.urlTemplate, asset), &resp); err != nil {
		return Reading{}, err
	}
	if resp.Price == nil {
		return Reading{}, fmt.Errorf("price missing for %s", asset)
	}
	r := Reading{Price: *resp.Price, BlockNumber: resp.BlockNumber}
	if resp.UpdatedAt > 0 {
		r.UpdatedAt = time.Unix(resp.UpdatedAt, 0).UTC()
	}
	return r, nil
}

type feedResponse struct {
	OraclePrice      *float64 `json:"oraclePrice"`
	DexPrice         *float64 `json:"dexPrice"`
	StalenessSeconds *int64   `json:"stalenessSeconds"`
	LiquidityUSD     *float64 `json:"liquidityUsd"`
	FundingRatePct   *float64 `json:"fundingRatePct"`
	BlockNumber      *uint64  `json:"blockNumber"`
}

// FeedProvider reads a subscription feed that may carry any subset of the
// signal fields.
type FeedProvider struct {
	name        string
	client      *httpjson.Client
	urlTemplate string
}

func NewFeedProvider(name string, client *httpjson.Client, urlTemplate string) *FeedProvider {
	if name == "" {
		name = "feed"
	}
	return &FeedProvider{name: name, client: client, urlTemplate: urlTemplate}
}

func (p *FeedProvider) Name() string {
	return p.name
}

func (p *FeedProvider) Fetch(ctx context.Context, asset string) (domain.PartialSignals, error) {
	var resp feedResponse
	if err := p.client.Get(ctx, expandURL(p.urlTemplate, asset), &resp); err != nil {
		return domain.PartialSignals{}, err
	}
	return domain.PartialSignals{
		OraclePrice:      resp.OraclePrice,
		DexPrice:         resp.DexPrice,
		StalenessSeconds: resp.StalenessSeconds,
		LiquidityUSD:     resp.LiquidityUSD,
		FundingRatePct:   resp.FundingRatePct,
		BlockNumber:      resp.BlockNumber,
		SourceLabel:      p.name,
	}, nil
}

type marketResponse struct {
	Price          *float64 `json:"price"`
	LiquidityUSD   *float64 `json:"liquidityUsd"`
	FundingRatePct *float64 `json:"fundingRatePct"`
}

// HTTPMarketData reads dex price, liquidity and funding from a public market API.
type HTTPMarketData struct {
	client      *httpjson.Client
	urlTemplate string
}

func NewHTTPMarketData(client *httpjson.Client, urlTemplate string) *HTTPMarketData {
	return &HTTPMarketData{client: client, urlTemplate: urlTemplate}
}

func (m *HTTPMarketData) Read(ctx context.Context, asset string) (MarketReading, error) {
	var resp marketResponse
	if err := m.client.Get(ctx, expandURL(m.urlTemplate, asset), &resp); err != nil {
		return MarketReading{}, err
	}
	return MarketReading{
		DexPrice:       resp.Price,
		LiquidityUSD:   resp.LiquidityUSD,
		FundingRatePct: resp.FundingRatePct,
	}, nil
}
