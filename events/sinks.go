package events

import (
	"context"
	"encoding/json"
	"time"

	"sales-service/models"
	awspkg "sales-service/pkg/aws"

	"go.uber.org/zap"
)

// Envelope is the record written to external sinks.
type Envelope struct {
	Topic      string      `json:"topic"`
	OccurredAt time.Time   `json:"occurredAt"`
	Payload    interface{} `json:"payload"`
}

// MessageWriter is satisfied by the Kafka producer.
type MessageWriter interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// AttachKafka relays local domain events (customer, order, orderProduct)
// to w keyed by topic. Product frames stay local.
func AttachKafka(b *Broadcaster, w MessageWriter, logger *zap.Logger) func() {
	return b.Subscribe(func(evt Event) {
		body, err := json.Marshal(Envelope{Topic: evt.Topic, OccurredAt: evt.OccurredAt, Payload: evt.Payload})
		if err != nil {
			logger.Error("kafka sink: marshal event", zap.String("topic", evt.Topic), zap.Error(err))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.Publish(ctx, evt.Topic, body); err != nil {
			logger.Warn("kafka sink: publish failed", zap.String("topic", evt.Topic), zap.Error(err))
		}
	}, TopicCustomer, TopicOrder, TopicOrderProduct)
}

// AttachSNS publishes order events to topicArn. Delivery is best-effort and
// happens off the dispatcher goroutine.
func AttachSNS(b *Broadcaster, publisher awspkg.SNSPublisher, topicArn string, logger *zap.Logger) func() {
	return b.Subscribe(func(evt Event) {
		body, err := json.Marshal(evt.Payload)
		if err != nil {
			logger.Error("sns sink: marshal event", zap.Error(err))
			return
		}
		attrs := map[string]string{"eventType": models.MessageTypeOrderUpdate}
		if msg, ok := evt.Payload.(models.OrderUpdateMessage); ok && msg.Action != "" {
			attrs["action"] = msg.Action
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := publisher.Publish(ctx, topicArn, body, attrs); err != nil {
				logger.Warn("sns sink: publish failed", zap.String("topic_arn", topicArn), zap.Error(err))
			}
		}()
	}, TopicOrder)
}
