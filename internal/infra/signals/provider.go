package signals

import (
	"context"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

// Provider is one source in the acquisition cascade. A provider may return a
// partial set; an error or an empty set means no data.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, asset string) (domain.PartialSignals, error)
}

const (
	OutcomeData      = "data"
	OutcomeEmpty     = "empty"
	OutcomeError     = "error"
	OutcomeTimeout   = "timeout"
	OutcomeSkipped   = "skipped"
	OutcomeSynthetic = "synthetic"
)

// Recorder counts provider outcomes.
type Recorder interface {
	ObserveProvider(provider, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveProvider(string, string) {}
