package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/healthspend/apiserver/config"
)

const (
	BackendRabbitMQ = "rabbitmq"
	BackendPubSub   = "pubsub"
	BackendMemory   = "memory"
)

// Channels carrying domain events.
const (
	ChannelPredictions = "predictions"
	ChannelExpenses    = "expenses"
)

// Event types.
const (
	PredictionCreated = "prediction.created"
	ExpenseCreated    = "expense.created"
	ExpenseUpdated    = "expense.updated"
	ExpenseDeleted    = "expense.deleted"
)

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string

	redelivered bool
}

// Handler processes a message. Returning an error nacks the message.
type Handler func(ctx context.Context, msg Message) error

// Backend is implemented by every broker client.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// Event is the JSON body of a domain event.
type Event struct {
	Type       string    `json:"type"`
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// MQ publishes and consumes domain events over a Backend.
type MQ struct {
	backend Backend
}

func New(backend Backend) *MQ {
	return &MQ{backend: backend}
}

// Open connects to the broker selected by cfg.Backend. It returns nil, nil
// when events are disabled.
func Open(ctx context.Context, cfg config.MQConfig) (*MQ, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Backend {
	case "":
		return nil, nil
	case BackendRabbitMQ:
		backend, err = NewRabbitMQClient(cfg.RabbitMQ)
	case BackendPubSub:
		backend, err = NewPubSubClient(ctx, cfg.PubSub)
	case BackendMemory:
		backend = NewMemoryBroker()
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return New(backend), nil
}

// PublishEvent encodes event as JSON and sends it to channel. The event type
// is also carried as the "type" attribute.
func (m *MQ) PublishEvent(ctx context.Context, channel string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := m.backend.Publish(ctx, channel, data, map[string]string{"type": event.Type}); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// SubscribeEvents decodes every message on channel and passes it to fn.
// Messages that are not valid events are acknowledged and skipped.
func (m *MQ) SubscribeEvents(ctx context.Context, channel string, fn func(context.Context, Event) error) error {
	return m.backend.Subscribe(ctx, channel, func(ctx context.Context, msg Message) error {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return nil
		}
		return fn(ctx, event)
	})
}

func (m *MQ) Close() error {
	return m.backend.Close()
}
