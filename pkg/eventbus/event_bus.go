// Package eventbus provides event-driven communication infrastructure for
// workflow orchestration: the engine publishes every state transition here
// so external viewers observe progress without polling the engine.
package eventbus

import (
	"context"

	"github.com/dirigent-dev/dirigent/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
