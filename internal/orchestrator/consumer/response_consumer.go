package consumer

import (
	"context"
	"encoding/json"

	"fleetmaster/internal/models"
	"fleetmaster/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// ResponseHandler processes one decoded task response.
type ResponseHandler func(ctx context.Context, resp *models.DelegateTaskResponse) error

// ResponseConsumer consumes delegate task responses from Kafka. It is the
// alternate response path next to the HTTP submit endpoint; both feed the
// same correlator, whose duplicate absorption makes the at-least-once
// delivery of either path safe.
type ResponseConsumer struct {
	reader *kafka.Reader
	logger *logger.Logger
}

// NewResponseConsumer creates a new ResponseConsumer.
func NewResponseConsumer(brokers []string, topic, groupID string, logger *logger.Logger) *ResponseConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &ResponseConsumer{
		reader: reader,
		logger: logger,
	}
}

// Start begins consuming messages until the context is cancelled.
func (c *ResponseConsumer) Start(ctx context.Context, handler ResponseHandler) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("Stopping delegate response consumer...")
				return
			default:
				msg, err := c.reader.FetchMessage(ctx)
				if err != nil {
					if ctx.Err() == nil {
						c.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error fetching message from Kafka")
					}
					continue
				}

				var resp models.DelegateTaskResponse
				if err := json.Unmarshal(msg.Value, &resp); err != nil {
					c.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
						"topic":     msg.Topic,
						"partition": msg.Partition,
						"offset":    msg.Offset,
					}).Error("Failed to unmarshal delegate task response")
				} else if err := handler(ctx, &resp); err != nil {
					c.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
						"taskId": resp.TaskID,
					}).Error("Error handling delegate task response")
				}

				if err := c.reader.CommitMessages(ctx, msg); err != nil {
					c.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to commit Kafka message")
				}
			}
		}
	}()
}

// Close closes the underlying Kafka reader.
func (c *ResponseConsumer) Close() error {
	return c.reader.Close()
}
