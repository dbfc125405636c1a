package repository

import (
	"context"

	"Rotator/internal/domain/models"
	"Rotator/internal/domain/repository"
	pkgkafka "Rotator/pkg/kafka"
)

// KafkaEventPublisher publishes every RebalanceResult keyed by run id.
type KafkaEventPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaEventPublisher(producer *pkgkafka.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

func (p *KafkaEventPublisher) PublishRebalance(ctx context.Context, r *models.RebalanceResult) error {
	return p.producer.Publish(ctx, p.topic, []byte(r.RunID), r)
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NoopEventPublisher is used when Kafka is disabled.
type NoopEventPublisher struct{}

func (NoopEventPublisher) PublishRebalance(context.Context, *models.RebalanceResult) error {
	return nil
}

func (NoopEventPublisher) Close() error { return nil }

var (
	_ repository.EventPublisher = (*KafkaEventPublisher)(nil)
	_ repository.EventPublisher = NoopEventPublisher{}
)
