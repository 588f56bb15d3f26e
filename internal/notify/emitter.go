// internal/notify/emitter.go
package notify

import (
	"context"
	"encoding/json"
	"time"

	"dca-platform/internal/common/aws"
	"dca-platform/internal/common/database"
	"dca-platform/internal/common/logger"
	"dca-platform/internal/models"
)

// Sink receives lifecycle events. Engines emit through this interface
// so tests can capture events without external transports.
type Sink interface {
	Emit(ctx context.Context, event models.NotificationEvent)
}

// Emitter publishes events to the notification collaborator over SNS
// and a Redis channel. Delivery is best-effort: publish failures are
// logged and never propagate to the mutating operation.
type Emitter struct {
	sns      *aws.SNSClient
	topicARN string
	redis    *database.RedisClient
	channel  string
	logger   logger.Logger
}

func NewEmitter(sns *aws.SNSClient, topicARN string, redis *database.RedisClient, channel string, log logger.Logger) *Emitter {
	return &Emitter{
		sns:      sns,
		topicARN: topicARN,
		redis:    redis,
		channel:  channel,
		logger:   log.WithFields(map[string]interface{}{"component": "notify"}),
	}
}

func (e *Emitter) Emit(ctx context.Context, event models.NotificationEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		e.logger.WithError(err).Error("failed to marshal notification event", map[string]interface{}{
			"event_type": string(event.Type),
			"case_id":    event.CaseID,
		})
		return
	}

	if e.sns != nil && e.topicARN != "" {
		if err := e.sns.PublishMessage(ctx, e.topicARN, string(payload)); err != nil {
			e.logger.WithError(err).Error("failed to publish event to SNS", map[string]interface{}{
				"event_type": string(event.Type),
				"case_id":    event.CaseID,
			})
		}
	}

	if e.redis != nil && e.channel != "" {
		if err := e.redis.Publish(ctx, e.channel, payload); err != nil {
			e.logger.WithError(err).Error("failed to publish event to redis", map[string]interface{}{
				"event_type": string(event.Type),
				"case_id":    event.CaseID,
			})
		}
	}
}

// CaptureSink records events in memory for tests.
type CaptureSink struct {
	Events []models.NotificationEvent
}

func (c *CaptureSink) Emit(_ context.Context, event models.NotificationEvent) {
	c.Events = append(c.Events, event)
}
