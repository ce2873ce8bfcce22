package publish

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher publishes payloads to a Kafka topic named after the channel.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, clientID string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: kafka.NewWriter(kafka.WriterConfig{
			Brokers:  brokers,
			Balancer: &kafka.LeastBytes{},
			Dialer: &kafka.Dialer{
				ClientID: clientID,
			},
			Async: false,
		}),
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, channel, payload string) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: channel,
		Value: []byte(payload),
		Time:  time.Now(),
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
