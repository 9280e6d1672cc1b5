package signals

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

const DefaultProviderTimeout = 2 * time.Second

// Aggregator walks providers in priority order and never fails: the
// synthetic generator backs every missing field.
type Aggregator struct {
	providers      []Provider
	synthetic      *Synthetic
	timeouts       map[string]time.Duration
	defaultTimeout time.Duration
	stress         StressProfile
	logger         zerolog.Logger
	recorder       Recorder
	now            func() time.Time
}

type Option func(*Aggregator)

func WithTimeout(provider string, d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.timeouts[provider] = d
		}
	}
}

func WithDefaultTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.defaultTimeout = d
		}
	}
}

func WithStressProfile(p StressProfile) Option {
	return func(a *Aggregator) {
		a.stress = p
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

func WithRecorder(r Recorder) Option {
	return func(a *Aggregator) {
		if r != nil {
			a.recorder = r
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

func NewAggregator(providers []Provider, synthetic *Synthetic, opts ...Option) *Aggregator {
	if synthetic == nil {
		synthetic = NewSynthetic(nil)
	}
	a := &Aggregator{
		providers:      providers,
		synthetic:      synthetic,
		timeouts:       map[string]time.Duration{},
		defaultTimeout: DefaultProviderTimeout,
		stress:         DefaultStressProfile,
		logger:         zerolog.Nop(),
		recorder:       nopRecorder{},
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Acquire returns the merged signal set for asset. In drill mode the stress
// profile is applied after merging.
func (a *Aggregator) Acquire(ctx context.Context, asset string, drill bool) domain.SignalSet {
	sources := make([]Source, 0, 2)
	for i, p := range a.providers {
		partial, ok := a.tryFetch(ctx, p, asset)
		if !ok {
			continue
		}
		sources = append(sources, Source{Label: p.Name(), Signals: partial})
		for _, skipped := range a.providers[i+1:] {
			a.recorder.ObserveProvider(skipped.Name(), OutcomeSkipped)
		}
		break
	}
	if len(sources) == 0 {
		a.recorder.ObserveProvider(SyntheticLabel, OutcomeSynthetic)
		a.logger.Warn().Str("asset", asset).Msg("all signal providers empty, using synthetic set")
	}
	sources = append(sources, Source{Label: SyntheticLabel, Signals: a.synthetic.Partial(asset, observedPrice(sources))})

	set := Merge(asset, a.now(), sources...)
	if drill {
		set = a.stress.Apply(set)
	}
	return set
}

// observedPrice is the price the synthetic row is anchored to: the first
// network oracle price, else the first network dex price.
func observedPrice(sources []Source) float64 {
	for _, src := range sources {
		if src.Signals.OraclePrice != nil {
			return *src.Signals.OraclePrice
		}
		if src.Signals.DexPrice != nil {
			return *src.Signals.DexPrice
		}
	}
	return 0
}

func (a *Aggregator) tryFetch(ctx context.Context, p Provider, asset string) (domain.PartialSignals, bool) {
	timeout := a.defaultTimeout
	if d, ok := a.timeouts[p.Name()]; ok {
		timeout = d
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	partial, err := p.Fetch(pctx, asset)
	if err != nil {
		outcome := OutcomeError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(pctx.Err(), context.DeadlineExceeded) {
			outcome = OutcomeTimeout
		}
		a.recorder.ObserveProvider(p.Name(), outcome)
		a.logger.Warn().
			Str("provider", p.Name()).
			Str("asset", asset).
			Str("outcome", outcome).
			Err(err).
			Msg("signal provider failed")
		return domain.PartialSignals{}, false
	}

	partial = sanitize(partial)
	if partial.IsEmpty() {
		a.recorder.ObserveProvider(p.Name(), OutcomeEmpty)
		a.logger.Debug().Str("provider", p.Name()).Str("asset", asset).Msg("signal provider returned no usable fields")
		return domain.PartialSignals{}, false
	}
	a.recorder.ObserveProvider(p.Name(), OutcomeData)
	return partial, true
}
