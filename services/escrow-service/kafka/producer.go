package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Producer publishes event payloads to Kafka topics. The topic is chosen per
// message so one writer serves both order and payment events.
type Producer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewProducer(brokers []string, logger *zap.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &Producer{writer: writer, logger: logger}
}

// Publish writes message to topic, keyed by key so events for one order stay ordered.
func (p *Producer) Publish(ctx context.Context, topic, key string, message []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: message,
	})
	if err != nil {
		p.logger.Error("Failed to send Kafka message", zap.String("topic", topic), zap.Error(err))
	}
	return err
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
