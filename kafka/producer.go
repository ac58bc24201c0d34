package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Producer writes sales events to one Kafka topic.
type Producer struct {
	writer *kafka.Writer
	topic  string
	logger *zap.Logger
}

// NewProducer builds an async writer; delivery failures are logged from
// the completion callback.
func NewProducer(brokers []string, topic string, logger *zap.Logger) *Producer {
	p := &Producer{
		topic:  topic,
		logger: logger.With(zap.String("component", "kafka_producer"), zap.String("topic", topic)),
	}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		Completion:   p.completion,
	}
	p.logger.Info("kafka producer initialized", zap.Strings("brokers", brokers))
	return p
}

func (p *Producer) completion(messages []kafka.Message, err error) {
	if err == nil {
		return
	}
	for _, m := range messages {
		p.logger.Warn("kafka delivery failed", zap.ByteString("key", m.Key), zap.Error(err))
	}
}

// Publish queues value under key. Messages with the same key land on the
// same partition, so per-topic order holds for consumers.
func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	return p.writer.WriteMessages(ctx, BuildMessage(key, value))
}

func (p *Producer) Close() error {
	p.logger.Info("closing kafka writer")
	return p.writer.Close()
}

// BuildMessage wraps a sales event as a Kafka message.
func BuildMessage(key string, value []byte) kafka.Message {
	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "source", Value: []byte("sales-service")},
		},
	}
}
