package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func anchoredEvent() domain.Event {
	at := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	return domain.Event{
		Type:       domain.EventReceiptAnchored,
		Key:        "0xabc",
		OccurredAt: at,
		Payload: domain.ReceiptAnchored{
			EvidenceHash: "0xabc",
			AgentID:      "agent-1",
			Score:        64,
			Level:        3,
			AnchoredAt:   at,
		},
	}
}

func TestKafka_PublishRoutesByType(t *testing.T) {
	w := &fakeWriter{}
	k := newKafka(w, "rf.")
	if err := k.Publish(context.Background(), anchoredEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if msg.Topic != "rf.receipt-anchored" {
		t.Fatalf("unexpected topic %q", msg.Topic)
	}
	if string(msg.Key) != "0xabc" {
		t.Fatalf("unexpected key %q", msg.Key)
	}
	var decoded struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode value: %v", err)
	}
	if decoded.Type != "ReceiptAnchored" || decoded.Payload["score"].(float64) != 64 {
		t.Fatalf("unexpected value %s", msg.Value)
	}
}

func TestKafka_Errors(t *testing.T) {
	k := newKafka(&fakeWriter{}, "")
	if err := k.Publish(context.Background(), domain.Event{Type: "Unknown"}); err == nil {
		t.Fatal("expected error for unknown event type")
	}
	boom := errors.New("broker down")
	k = newKafka(&fakeWriter{err: boom}, "")
	if err := k.Publish(context.Background(), anchoredEvent()); !errors.Is(err, boom) {
		t.Fatalf("expected writer error, got %v", err)
	}
	if _, err := NewKafka(KafkaConfig{}); err == nil {
		t.Fatal("expected error without brokers")
	}
}

func TestMemory_FiltersByTypeAndKey(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.Publish(ctx, anchoredEvent())
	_ = m.Publish(ctx, domain.Event{Type: domain.EventPolicyEnforced, Key: "ETH-USD"})
	_ = m.Publish(ctx, domain.Event{Type: domain.EventPolicyEnforced, Key: "BTC-USD"})

	if got := len(m.Events(domain.EventPolicyEnforced, "")); got != 2 {
		t.Fatalf("expected 2 enforced events, got %d", got)
	}
	got := m.Events(domain.EventPolicyEnforced, "ETH-USD")
	if len(got) != 1 || got[0].Key != "ETH-USD" {
		t.Fatalf("unexpected filtered events %+v", got)
	}
}

func TestFanout_FirstError(t *testing.T) {
	var buf bytes.Buffer
	mem := NewMemory()
	boom := errors.New("boom")
	f := Fanout{newKafka(&fakeWriter{err: boom}, ""), mem, NewLog(zerolog.New(&buf))}
	if err := f.Publish(context.Background(), anchoredEvent()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if len(mem.Events(domain.EventReceiptAnchored, "")) != 1 {
		t.Fatal("later publishers must still receive the event")
	}
	if !strings.Contains(buf.String(), `"type":"ReceiptAnchored"`) {
		t.Fatalf("expected log line, got %s", buf.String())
	}
}

type gatedPublisher struct {
	entered chan domain.Event
	release chan struct{}
}

func (p *gatedPublisher) Publish(ctx context.Context, event domain.Event) error {
	p.entered <- event
	select {
	case <-p.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestQueue_PublishDoesNotWaitForDelivery(t *testing.T) {
	next := &gatedPublisher{entered: make(chan domain.Event, 4), release: make(chan struct{})}
	q := NewQueue(next, 1, time.Minute, zerolog.Nop())

	start := time.Now()
	if err := q.Publish(context.Background(), anchoredEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	<-next.entered // worker is now stuck downstream
	if err := q.Publish(context.Background(), anchoredEvent()); err != nil {
		t.Fatalf("buffered publish: %v", err)
	}
	if err := q.Publish(context.Background(), anchoredEvent()); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("publish waited on the downstream publisher")
	}

	close(next.release)
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := len(next.entered); got != 1 {
		t.Fatalf("expected buffered event delivered on close, got %d pending deliveries", got)
	}
	if err := q.Publish(context.Background(), anchoredEvent()); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
}

func TestQueue_DeliveryTimeoutIsBounded(t *testing.T) {
	next := &gatedPublisher{entered: make(chan domain.Event, 1), release: make(chan struct{})}
	q := NewQueue(next, 4, 20*time.Millisecond, zerolog.Nop())
	if err := q.Publish(context.Background(), anchoredEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	done := make(chan struct{})
	go func() {
		_ = q.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("close did not return after the delivery timeout")
	}
}
