package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/healthspend/apiserver/internal/mq"
)

// EventPublisher sends domain events to a channel.
type EventPublisher interface {
	PublishEvent(ctx context.Context, channel string, event mq.Event) error
}

// publishEvent is best effort: failures are logged and never reach the caller.
func publishEvent(ctx context.Context, events EventPublisher, channel, eventType, id, userID string) {
	if events == nil {
		return
	}
	event := mq.Event{Type: eventType, ID: id, UserID: userID, OccurredAt: time.Now().UTC()}
	if err := events.PublishEvent(ctx, channel, event); err != nil {
		slog.WarnContext(ctx, "failed to publish event", "type", eventType, "id", id, "error", err)
	}
}
