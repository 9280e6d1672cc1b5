package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

var (
	ErrQueueFull   = errors.New("event queue full")
	ErrQueueClosed = errors.New("event queue closed")
)

const (
	DefaultQueueSize      = 1024
	DefaultPublishTimeout = 5 * time.Second
)

// Queue hands events to a slower publisher from a single background worker.
// Publish never waits on the downstream publisher: when the buffer is full the
// event is rejected with ErrQueueFull.
type Queue struct {
	next    domain.EventPublisher
	timeout time.Duration
	logger  zerolog.Logger

	mu     sync.RWMutex
	closed bool
	events chan domain.Event
	done   chan struct{}
}

func NewQueue(next domain.EventPublisher, size int, timeout time.Duration, logger zerolog.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	q := &Queue{
		next:    next,
		timeout: timeout,
		logger:  logger.With().Str("component", "event-queue").Logger(),
		events:  make(chan domain.Event, size),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) Publish(_ context.Context, event domain.Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.events <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for event := range q.events {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		err := q.next.Publish(ctx, event)
		cancel()
		if err != nil {
			q.logger.Warn().
				Err(err).
				Str("type", string(event.Type)).
				Str("key", event.Key).
				Msg("deliver event failed")
		}
	}
}

// Len reports events waiting for delivery.
func (q *Queue) Len() int {
	return len(q.events)
}

// Close stops accepting events and waits until the buffer is delivered.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return nil
	}
	q.closed = true
	close(q.events)
	q.mu.Unlock()
	<-q.done
	return nil
}

var _ domain.EventPublisher = (*Queue)(nil)
