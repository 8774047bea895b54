package notifications

import (
	"context"

	"go.uber.org/zap"

	"github.com/charlesng35/loandesk/pkg/logger"
)

// LogChannel writes notifications to the structured log. It is the fallback
// channel when no external transport is configured.
type LogChannel struct {
	log *zap.Logger
}

// NewLogChannel returns a LogChannel writing to log, or to the module logger when log is nil.
func NewLogChannel(log *zap.Logger) *LogChannel {
	if log == nil {
		log = logger.WithModule("notifications")
	}
	return &LogChannel{log: log}
}

// Name implements Channel.
func (c *LogChannel) Name() string { return "log" }

// Send implements Channel.
func (c *LogChannel) Send(_ context.Context, msg Message) error {
	c.log.Info("notification",
		zap.String("notification_id", msg.NotificationID),
		zap.String("type", msg.Type),
		zap.String("recipient_id", msg.RecipientID),
		zap.String("entity_id", msg.EntityID),
		zap.String("title", msg.Title),
		zap.String("content", msg.Content),
	)
	return nil
}
