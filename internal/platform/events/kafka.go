package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// kafkaBatchTimeout bounds how long the async writer holds a partial batch.
const kafkaBatchTimeout = 10 * time.Millisecond

// Writer is the subset of *kafka.Writer the mirror needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher mirrors the change feed onto a Kafka topic. Messages are
// keyed by event topic so changes to one record stay ordered.
type KafkaPublisher struct {
	writer Writer
}

// NewKafkaPublisher writes asynchronously: Publish only enqueues, and broker
// failures are logged from the writer's completion callback.
func NewKafkaPublisher(brokers []string, topic string, logger zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		Async:                  true,
		BatchTimeout:           kafkaBatchTimeout,
		Completion:             logCompletion(logger),
	}}
}

func logCompletion(logger zerolog.Logger) func([]kafka.Message, error) {
	return func(msgs []kafka.Message, err error) {
		if err != nil {
			logger.Warn().Err(err).Int("messages", len(msgs)).Msg("kafka change feed write failed")
		}
	}
}

func NewKafkaPublisherWithWriter(w Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(event.Topic),
		Value: b,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
		Time: event.Timestamp,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
