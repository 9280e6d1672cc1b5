package signals

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
	"github.com/cosu123/reality-firewall-v3/internal/infra/httpjson"
)

type fakeProvider struct {
	name    string
	partial domain.PartialSignals
	err     error
	block   bool
	calls   atomic.Int32
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Fetch(ctx context.Context, asset string) (domain.PartialSignals, error) {
	p.calls.Add(1)
	if p.block {
		<-ctx.Done()
		return domain.PartialSignals{}, ctx.Err()
	}
	return p.partial, p.err
}

type fakeEvaluator struct {
	price float64
	err   error
}

func (e fakeEvaluator) Read(context.Context, string) (Reading, error) {
	if e.err != nil {
		return Reading{}, e.err
	}
	return Reading{Price: e.price}, nil
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) ObserveProvider(provider, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[provider+"/"+outcome]++
}

func fixedClock() func() time.Time {
	ts := time.Date(2026, 5, 1, 10, 30, 15, 0, time.UTC)
	return func() time.Time { return ts }
}

func newSynthetic() *Synthetic {
	s := NewSynthetic(nil)
	s.now = fixedClock()
	return s
}

func TestMedian_FallbackCountsTowardSetSize(t *testing.T) {
	failing := errors.New("node down")
	provider := NewConsensusProvider("consensus", []Evaluator{
		fakeEvaluator{price: 2510},
		fakeEvaluator{err: failing},
		fakeEvaluator{price: 2490},
		fakeEvaluator{err: failing},
		fakeEvaluator{price: 2530},
	}, func(string) float64 { return 2400 }, 0)

	partial, err := provider.Fetch(context.Background(), "ETH")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	// full set sorted: 2400 2400 2490 2510 2530 -> middle 2490
	// successes alone would give 2510
	if partial.OraclePrice == nil || *partial.OraclePrice != 2490 {
		t.Fatalf("expected median 2490, got %v", partial.OraclePrice)
	}
}

func TestMedian_EvenCountPicksIndexHalf(t *testing.T) {
	m := Median([]Reading{{Price: 4}, {Price: 1}, {Price: 3}, {Price: 2}})
	if m.Price != 3 {
		t.Fatalf("expected sorted[2]=3, got %v", m.Price)
	}
	if Median(nil).Price != 0 {
		t.Fatal("expected zero reading for empty input")
	}
}

func TestConsensus_AllEvaluatorsFailIsNoData(t *testing.T) {
	provider := NewConsensusProvider("consensus", []Evaluator{
		fakeEvaluator{err: errors.New("a")},
		fakeEvaluator{err: errors.New("b")},
	}, func(string) float64 { return 2400 }, 1)

	if _, err := provider.Fetch(context.Background(), "ETH"); !errors.Is(err, domain.ErrSignalProviderUnavailable) {
		t.Fatalf("expected ErrSignalProviderUnavailable, got %v", err)
	}
}

func TestAggregator_FirstProviderShortCircuits(t *testing.T) {
	first := &fakeProvider{name: "consensus", partial: domain.PartialSignals{
		OraclePrice:      domain.Float64(2780),
		DexPrice:         domain.Float64(2502),
		StalenessSeconds: domain.Int64(650),
		LiquidityUSD:     domain.Float64(480_000),
		FundingRatePct:   domain.Float64(0.01),
		BlockNumber:      domain.Uint64(42),
	}}
	second := &fakeProvider{name: "feed", partial: domain.PartialSignals{OraclePrice: domain.Float64(1)}}
	recorder := &countingRecorder{}

	agg := NewAggregator([]Provider{first, second}, newSynthetic(), WithClock(fixedClock()), WithRecorder(recorder))
	set := agg.Acquire(context.Background(), "ETH", false)

	if second.calls.Load() != 0 {
		t.Fatal("expected second provider to be skipped")
	}
	if set.SourceLabel != "consensus" {
		t.Fatalf("expected pure consensus label, got %s", set.SourceLabel)
	}
	if set.DivergencePct != 10 {
		t.Fatalf("expected recomputed divergence 10, got %v", set.DivergencePct)
	}
	if set.BlockNumber == nil || *set.BlockNumber != 42 {
		t.Fatalf("expected block number 42, got %v", set.BlockNumber)
	}
	if recorder.counts["consensus/data"] != 1 || recorder.counts["feed/skipped"] != 1 {
		t.Fatalf("unexpected outcome counts %v", recorder.counts)
	}
}

func TestAggregator_PartialBackfillAndFallThrough(t *testing.T) {
	failing := &fakeProvider{name: "consensus", err: errors.New("boom")}
	empty := &fakeProvider{name: "feed", partial: domain.PartialSignals{OraclePrice: domain.Float64(-5)}}
	partial := &fakeProvider{name: "public", partial: domain.PartialSignals{
		OraclePrice: domain.Float64(2000),
		DexPrice:    domain.Float64(math.NaN()),
	}}

	synth := newSynthetic()
	agg := NewAggregator([]Provider{failing, empty, partial}, synth, WithClock(fixedClock()))
	set := agg.Acquire(context.Background(), "ETH", false)

	want := synth.Anchored("ETH", 2000)
	if set.OraclePrice != 2000 {
		t.Fatalf("expected oracle from public provider, got %v", set.OraclePrice)
	}
	if set.DexPrice != want.DexPrice || set.LiquidityUSD != want.LiquidityUSD || set.StalenessSeconds != want.StalenessSeconds {
		t.Fatalf("expected synthetic backfill, got %+v", set)
	}
	if set.SourceLabel != "public+synthetic" {
		t.Fatalf("unexpected label %s", set.SourceLabel)
	}
	if set.DivergencePct != domain.DivergencePct(2000, want.DexPrice) {
		t.Fatalf("divergence not recomputed: %v", set.DivergencePct)
	}
	if set.BlockNumber != nil {
		t.Fatalf("expected absent block number, got %v", *set.BlockNumber)
	}
}

func TestAggregator_BackfillFollowsObservedOracle(t *testing.T) {
	consensus := NewConsensusProvider("consensus", []Evaluator{
		fakeEvaluator{price: 3500},
		fakeEvaluator{price: 3501},
		fakeEvaluator{price: 3499},
	}, func(string) float64 { return 2500 }, 0)

	agg := NewAggregator([]Provider{consensus}, newSynthetic(), WithClock(fixedClock()))
	set := agg.Acquire(context.Background(), "ETH", false)

	if set.OraclePrice != 3500 {
		t.Fatalf("expected consensus oracle 3500, got %v", set.OraclePrice)
	}
	if set.SourceLabel != "consensus+synthetic" {
		t.Fatalf("unexpected label %s", set.SourceLabel)
	}
	// synthetic dex jitter stays within 0.2% of the anchor
	if set.DivergencePct > 0.25 {
		t.Fatalf("back-filled dex invented divergence %v (dex %v)", set.DivergencePct, set.DexPrice)
	}
}

func TestAggregator_BackfillFollowsObservedDex(t *testing.T) {
	feed := &fakeProvider{name: "feed", partial: domain.PartialSignals{DexPrice: domain.Float64(71_000)}}
	agg := NewAggregator([]Provider{feed}, newSynthetic(), WithClock(fixedClock()))

	set := agg.Acquire(context.Background(), "ETH", false)
	if set.OraclePrice != 71_000 || set.DexPrice != 71_000 {
		t.Fatalf("expected oracle anchored to observed dex, got %+v", set)
	}
	if set.DivergencePct != 0 {
		t.Fatalf("expected zero divergence, got %v", set.DivergencePct)
	}
}

func TestAggregator_TimeoutFallsBackToSynthetic(t *testing.T) {
	slow := &fakeProvider{name: "consensus", block: true}
	recorder := &countingRecorder{}
	agg := NewAggregator([]Provider{slow}, newSynthetic(),
		WithTimeout("consensus", 20*time.Millisecond),
		WithClock(fixedClock()),
		WithRecorder(recorder),
	)

	start := time.Now()
	set := agg.Acquire(context.Background(), "ETH", false)
	if time.Since(start) > time.Second {
		t.Fatal("provider timeout was not applied")
	}
	if set.SourceLabel != SyntheticLabel {
		t.Fatalf("expected synthetic label, got %s", set.SourceLabel)
	}
	if recorder.counts["consensus/timeout"] != 1 || recorder.counts["synthetic/synthetic"] != 1 {
		t.Fatalf("unexpected outcome counts %v", recorder.counts)
	}
	assertRangeInvariants(t, set)
}

func TestAggregator_DrillAppliesStress(t *testing.T) {
	base := &fakeProvider{name: "feed", partial: domain.PartialSignals{
		OraclePrice:      domain.Float64(2500),
		DexPrice:         domain.Float64(2500),
		StalenessSeconds: domain.Int64(10),
		LiquidityUSD:     domain.Float64(10_000_000),
		FundingRatePct:   domain.Float64(0),
	}}
	profile := StressProfile{PriceShockPct: 12, LiquidityHaircut: 0.5, StalenessAddSeconds: 700}
	agg := NewAggregator([]Provider{base}, newSynthetic(), WithStressProfile(profile), WithClock(fixedClock()))

	set := agg.Acquire(context.Background(), "ETH", true)
	if set.DexPrice != 2200 {
		t.Fatalf("expected shocked dex 2200, got %v", set.DexPrice)
	}
	if set.LiquidityUSD != 5_000_000 || set.StalenessSeconds != 710 {
		t.Fatalf("unexpected stressed set %+v", set)
	}
	if math.Abs(set.DivergencePct-12) > 1e-9 {
		t.Fatalf("expected divergence 12, got %v", set.DivergencePct)
	}
	if set.SourceLabel != "feed+drill" {
		t.Fatalf("unexpected label %s", set.SourceLabel)
	}

	again := agg.Acquire(context.Background(), "ETH", true)
	if again != set {
		t.Fatal("drill stress must be deterministic")
	}
}

func TestSynthetic_ReproducibleWithinMinute(t *testing.T) {
	s := NewSynthetic(map[string]float64{"eth": 3000})
	ts := time.Date(2026, 5, 1, 10, 30, 1, 0, time.UTC)
	s.now = func() time.Time { return ts }
	a := s.Generate("ETH")
	ts = ts.Add(50 * time.Second)
	b := s.Generate("ETH")
	if a.OraclePrice != b.OraclePrice || a.DexPrice != b.DexPrice || a.LiquidityUSD != b.LiquidityUSD {
		t.Fatal("expected identical output within one minute bucket")
	}
	if math.Abs(a.OraclePrice-3000) > 3000*0.006 {
		t.Fatalf("oracle price %v too far from configured base", a.OraclePrice)
	}

	for i := 0; i < 200; i++ {
		ts = ts.Add(time.Minute)
		for _, asset := range []string{"ETH", "BTC", "UNKNOWN"} {
			assertRangeInvariants(t, s.Generate(asset))
		}
	}
}

func TestPublicProvider_MergesConcurrentReads(t *testing.T) {
	chain := fakeEvaluator{price: 2501}
	market := fakeMarket{reading: MarketReading{DexPrice: domain.Float64(2499), LiquidityUSD: domain.Float64(9e6)}}
	p := NewPublicProvider("public", chain, market)

	partial, err := p.Fetch(context.Background(), "ETH")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if *partial.OraclePrice != 2501 || *partial.DexPrice != 2499 || *partial.LiquidityUSD != 9e6 {
		t.Fatalf("unexpected partial %+v", partial)
	}

	onlyMarket := NewPublicProvider("public", fakeEvaluator{err: errors.New("rpc down")}, market)
	partial, err = onlyMarket.Fetch(context.Background(), "ETH")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if partial.OraclePrice != nil || partial.DexPrice == nil {
		t.Fatalf("expected market-only partial, got %+v", partial)
	}

	neither := NewPublicProvider("public", fakeEvaluator{err: errors.New("rpc down")}, fakeMarket{err: errors.New("api down")})
	if _, err := neither.Fetch(context.Background(), "ETH"); !errors.Is(err, domain.ErrSignalProviderUnavailable) {
		t.Fatalf("expected ErrSignalProviderUnavailable, got %v", err)
	}
}

func TestHTTPProviders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(r.URL.Path, "/node/ETH"):
			_, _ = w.Write([]byte(`{"price":2500.25,"blockNumber":7}`))
		case strings.HasPrefix(r.URL.Path, "/feed/ETH"):
			_, _ = w.Write([]byte(`{"oraclePrice":2500,"liquidityUsd":3000000}`))
		case strings.HasPrefix(r.URL.Path, "/market/ETH"):
			_, _ = w.Write([]byte(`{"price":2490,"fundingRatePct":0.02}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	client := httpjson.NewClient()

	reading, err := NewHTTPEvaluator(client, srv.URL+"/node/{asset}").Read(context.Background(), "ETH")
	if err != nil {
		t.Fatalf("evaluator: %v", err)
	}
	if reading.Price != 2500.25 || reading.BlockNumber == nil || *reading.BlockNumber != 7 {
		t.Fatalf("unexpected reading %+v", reading)
	}

	feed, err := NewFeedProvider("feed", client, srv.URL+"/feed/{asset}").Fetch(context.Background(), "ETH")
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if *feed.OraclePrice != 2500 || feed.DexPrice != nil || *feed.LiquidityUSD != 3e6 {
		t.Fatalf("unexpected feed partial %+v", feed)
	}

	market, err := NewHTTPMarketData(client, srv.URL+"/market/{asset}").Read(context.Background(), "ETH")
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	if *market.DexPrice != 2490 || *market.FundingRatePct != 0.02 || market.LiquidityUSD != nil {
		t.Fatalf("unexpected market reading %+v", market)
	}

	if _, err := NewHTTPEvaluator(client, srv.URL+"/node/{asset}").Read(context.Background(), "BTC"); err == nil {
		t.Fatal("expected error for unknown asset")
	}
}

type fakeMarket struct {
	reading MarketReading
	err     error
}

func (m fakeMarket) Read(context.Context, string) (MarketReading, error) {
	return m.reading, m.err
}

func assertRangeInvariants(t *testing.T, s domain.SignalSet) {
	t.Helper()
	if !(s.OraclePrice > 0) || !(s.DexPrice > 0) || s.StalenessSeconds < 0 || !(s.LiquidityUSD > 0) {
		t.Fatalf("range invariant violated: %+v", s)
	}
	if s.DivergencePct != domain.DivergencePct(s.OraclePrice, s.DexPrice) {
		t.Fatalf("divergence inconsistent with prices: %+v", s)
	}
}
