package events

import (
	"sync/atomic"

	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
	dropped    atomic.Uint64
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers
// Usage: bus.Publish(RecordingStartedEvent{...})
func (b *Bus) Publish(ev Event) {
	// kelindar/event dispatches on the static type, so unwrap the interface first
	switch e := ev.(type) {
	case TargetSelectedEvent:
		event.Publish(b.dispatcher, e)
	case TargetClearedEvent:
		event.Publish(b.dispatcher, e)
	case PreviewStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case RecordingStartedEvent:
		event.Publish(b.dispatcher, e)
	case RecordingFinishedEvent:
		event.Publish(b.dispatcher, e)
	case SettingsChangedEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function
// The handler type determines which events it receives
// Returns an unsubscribe function
// Usage: unsub := bus.Subscribe(func(e RecordingFinishedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(TargetSelectedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(TargetClearedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PreviewStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RecordingStartedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RecordingFinishedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SettingsChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Return a no-op function if handler type is not recognized
		return func() {}
	}
}

// SubscribeToChannel forwards events of type T to ch for select loops such
// as SSE handlers. Events arriving while ch is full are dropped and counted.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
			bus.dropped.Add(1)
		}
	})
}

// Dropped returns how many events channel subscribers missed.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
