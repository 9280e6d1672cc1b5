package events

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

type Log struct {
	logger zerolog.Logger
}

func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger.With().Str("component", "events").Logger()}
}

func (l *Log) Publish(_ context.Context, event domain.Event) error {
	l.logger.Info().
		Str("type", string(event.Type)).
		Str("key", event.Key).
		Time("occurred_at", event.OccurredAt).
		Interface("payload", event.Payload).
		Msg("event")
	return nil
}

// Fanout delivers to every publisher and returns the first error.
type Fanout []domain.EventPublisher

func (f Fanout) Publish(ctx context.Context, event domain.Event) error {
	var first error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var (
	_ domain.EventPublisher = (*Log)(nil)
	_ domain.EventPublisher = Fanout(nil)
)
