package services

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// EventSink delivers a serialized event to a named topic, keyed by order id.
// Both the SNS client and the Kafka producer satisfy it.
type EventSink interface {
	Publish(ctx context.Context, topic, key string, message []byte) error
}

// EventPublisher emits order and payment events. Publishing is best effort:
// failures are logged and never reach the caller.
type EventPublisher struct {
	sink         EventSink
	orderTopic   string
	paymentTopic string
	logger       *zap.Logger
}

func NewEventPublisher(sink EventSink, orderTopic, paymentTopic string, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{sink: sink, orderTopic: orderTopic, paymentTopic: paymentTopic, logger: logger}
}

func (p *EventPublisher) PublishOrder(ctx context.Context, event interface{}, orderID string) {
	p.publish(ctx, p.orderTopic, orderID, event)
}

func (p *EventPublisher) PublishPayment(ctx context.Context, event interface{}, orderID string) {
	p.publish(ctx, p.paymentTopic, orderID, event)
}

func (p *EventPublisher) publish(ctx context.Context, topic, key string, event interface{}) {
	if p == nil || p.sink == nil || topic == "" {
		return
	}
	b, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal event", zap.Error(err))
		return
	}

	// Events outlive a cancelled request.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := p.sink.Publish(ctx, topic, key, b); err != nil {
		p.logger.Error("Failed to publish event", zap.String("topic", topic), zap.Error(err))
		return
	}
	p.logger.Debug("Published event", zap.String("topic", topic), zap.String("key", key))
}
