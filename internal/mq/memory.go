package mq

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// MemoryBroker delivers messages between goroutines of one process.
type MemoryBroker struct {
	mu     sync.Mutex
	queues map[string]chan Message
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{queues: make(map[string]chan Message)}
}

func (b *MemoryBroker) queue(channel string) chan Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[channel]
	if !ok {
		q = make(chan Message, 256)
		b.queues[channel] = q
	}
	return q
}

func (b *MemoryBroker) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	msg := Message{ID: uuid.NewString(), Data: data, Attributes: attrs}
	select {
	case b.queue(channel) <- msg:
		return msg.ID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (b *MemoryBroker) Subscribe(ctx context.Context, channel string, handler Handler) error {
	q := b.queue(channel)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-q:
			if err := handler(ctx, msg); err != nil {
				b.requeue(q, channel, msg, err)
			}
		}
	}
}

// requeue gives a failed message one more delivery. It never blocks the
// consumer: a full queue or a second failure drops the message.
func (b *MemoryBroker) requeue(q chan Message, channel string, msg Message, err error) {
	if msg.redelivered {
		slog.Warn("dropping message after redelivery", "channel", channel, "message_id", msg.ID, "error", err)
		return
	}
	msg.redelivered = true
	select {
	case q <- msg:
	default:
		slog.Warn("dropping message, queue full", "channel", channel, "message_id", msg.ID, "error", err)
	}
}

func (b *MemoryBroker) Close() error {
	return nil
}
