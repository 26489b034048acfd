package kafkahook

import (
	"context"
	"errors"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/xraph/coinledger/event"
)

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler receives each decoded event.
type Handler func(ctx context.Context, e *event.Event) error

// NewReader returns a kafka reader for topic in consumer group. An empty
// topic uses DefaultTopic.
func NewReader(brokers []string, topic, group string) *kafka.Reader {
	if topic == "" {
		topic = DefaultTopic
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
}

// Consume reads events from r until ctx is done, passing each to handle.
// A message is committed once handle returns nil. Messages that do not
// decode as events are logged and committed; a handler error stops Consume
// without committing the message.
func Consume(ctx context.Context, r MessageReader, handle Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		e, err := event.Decode(msg.Value)
		if err != nil {
			logger.Warn("kafka: skipping undecodable message",
				slog.Int64("offset", msg.Offset),
				slog.Int("partition", msg.Partition),
				slog.String("error", err.Error()),
			)
		} else if err := handle(ctx, e); err != nil {
			return err
		}

		if err := r.CommitMessages(ctx, msg); err != nil {
			return err
		}
	}
}
