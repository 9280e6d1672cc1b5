package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes each event type to its own topic, keyed so that events for
// one evidence hash or market land on one partition.
type Kafka struct {
	writer messageWriter
	topics map[domain.EventType]string
}

type KafkaConfig struct {
	Brokers      []string
	TopicPrefix  string
	Compression  string
	WriteTimeout time.Duration
	MaxAttempts  int
}

func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  parseCompression(cfg.Compression),
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newKafka(writer, cfg.TopicPrefix), nil
}

func newKafka(writer messageWriter, prefix string) *Kafka {
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		prefix = "firewall"
	}
	return &Kafka{
		writer: writer,
		topics: map[domain.EventType]string{
			domain.EventReceiptAnchored: prefix + ".receipt-anchored",
			domain.EventPolicyEnforced:  prefix + ".policy-enforced",
		},
	}
}

func (k *Kafka) Publish(ctx context.Context, event domain.Event) error {
	topic, ok := k.topics[event.Type]
	if !ok {
		return fmt.Errorf("no topic for event type %q", event.Type)
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(event.Key),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	})
}

func (k *Kafka) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

func parseCompression(s string) kafka.Compression {
	switch strings.ToLower(s) {
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Gzip
	}
}

var _ domain.EventPublisher = (*Kafka)(nil)
