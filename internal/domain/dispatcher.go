package domain

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/logger"
)

// EventHandler processes a domain event.
type EventHandler func(ctx context.Context, event *DomainEvent) error

// EventDispatcher fans committed domain events out to in-process observers
// (metrics, audit logging).
type EventDispatcher struct {
	handlers map[EventType][]EventHandler
	mu       sync.RWMutex
}

// NewEventDispatcher creates a new EventDispatcher.
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{
		handlers: make(map[EventType][]EventHandler),
	}
}

// Register registers a handler for the given event types.
func (d *EventDispatcher) Register(handler EventHandler, eventTypes ...EventType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, et := range eventTypes {
		d.handlers[et] = append(d.handlers[et], handler)
	}
}

// Dispatch calls every handler registered for the event, in registration
// order. A failing handler is logged and does not stop the others; the first
// error is returned. A nil dispatcher is a no-op.
func (d *EventDispatcher) Dispatch(ctx context.Context, event *DomainEvent) error {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	handlers := d.handlers[event.EventType]
	d.mu.RUnlock()

	var firstErr error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			logger.Error("Event handler failed",
				zap.String("event_type", string(event.EventType)),
				zap.String("aggregate_id", event.AggregateID),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("handler for %s failed: %w", event.EventType, err)
			}
		}
	}
	return firstErr
}
