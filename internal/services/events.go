package services

import (
	"context"
	"time"

	"github.com/yungbote/gradebridge-backend/internal/platform/logger"
	"github.com/yungbote/gradebridge-backend/internal/platform/redisbus"
)

// EventPublisher is the slice of the redis bus services need. A nil publisher disables events.
type EventPublisher interface {
	Publish(ctx context.Context, ev redisbus.Event) error
}

func publish(ctx context.Context, log *logger.Logger, pub EventPublisher, ev redisbus.Event) {
	if pub == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if err := pub.Publish(context.WithoutCancel(ctx), ev); err != nil {
		log.Warn("publish event failed", "type", ev.Type, "error", err)
	}
}
