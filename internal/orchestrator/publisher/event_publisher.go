package publisher

import (
	"context"
	"encoding/json"

	"fleetmaster/internal/models"
	"fleetmaster/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// DelegateEventPublisher publishes delegate lifecycle events to Kafka,
// keyed by the entity id so events for one delegate stay in order.
type DelegateEventPublisher struct {
	writer *kafka.Writer
	logger *logger.Logger
}

// NewDelegateEventPublisher creates a new DelegateEventPublisher.
func NewDelegateEventPublisher(brokers []string, topic string, logger *logger.Logger) *DelegateEventPublisher {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
	return &DelegateEventPublisher{
		writer: writer,
		logger: logger,
	}
}

// Publish sends a lifecycle event to the Kafka topic.
func (p *DelegateEventPublisher) Publish(ctx context.Context, event models.DelegateEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		p.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to marshal delegate event")
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.EntityID),
		Value: msgBytes,
	})
	if err != nil {
		p.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
			"topic":    p.writer.Topic,
			"entityId": event.EntityID,
		}).Error("Failed to write delegate event to Kafka")
		return err
	}
	return nil
}

// Close closes the underlying Kafka writer.
func (p *DelegateEventPublisher) Close() error {
	return p.writer.Close()
}
