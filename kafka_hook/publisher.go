// Package kafkahook publishes ledger events to a Kafka topic.
//
// Messages are keyed by coin uid so the events of one coin stay ordered
// within a partition. The value is the JSON encoded event.
package kafkahook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/xraph/coinledger/event"
	"github.com/xraph/coinledger/plugin"
)

// DefaultTopic is the topic events are written to unless configured.
const DefaultTopic = "coinledger.events"

var (
	_ plugin.Plugin     = (*Publisher)(nil)
	_ plugin.OnEvent    = (*Publisher)(nil)
	_ plugin.OnShutdown = (*Publisher)(nil)
)

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes every event it receives to Kafka.
type Publisher struct {
	writer MessageWriter
	logger *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// New creates a Publisher over w.
func New(w MessageWriter, opts ...Option) *Publisher {
	p := &Publisher{
		writer: w,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewWriter returns a kafka writer for topic on brokers. An empty topic
// uses DefaultTopic.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

// Name implements plugin.Plugin.
func (p *Publisher) Name() string { return "kafka-publisher" }

// OnEvent implements plugin.OnEvent.
func (p *Publisher) OnEvent(ctx context.Context, e *event.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("kafkahook: encode event %s: %w", e.ID, err)
	}

	msg := kafka.Message{
		Key:   []byte(e.CoinUID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(e.Kind)},
			{Key: "event_id", Value: []byte(e.ID.String())},
		},
		Time: e.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafkahook: publish %s: %w", e.Kind, err)
	}

	p.logger.Debug("event published", "kind", e.Kind, "coin_uid", e.CoinUID, "event_id", e.ID.String())
	return nil
}

// OnShutdown implements plugin.OnShutdown.
func (p *Publisher) OnShutdown(_ context.Context) error {
	return p.writer.Close()
}
