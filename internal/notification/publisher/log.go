package publisher

import (
	"context"
	"log/slog"

	"dutyflow/internal/notification/models"
)

// Log writes notifications to the logger instead of a broker. Used when no Kafka
// brokers are configured.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (p *Log) Publish(ctx context.Context, batch []*models.Notification) []error {
	for _, n := range batch {
		p.logger.InfoContext(ctx, "notification",
			"notification_id", n.ID.String(),
			"recipient_id", n.RecipientID.String(),
			"type", string(n.Type),
			"message", n.Message,
			"metadata", n.Metadata,
		)
	}
	return make([]error, len(batch))
}
