// Package state defines the event types pushed by the cloud event stream
// and a small publish/subscribe bus that fans them out to the MQTT and HTTP
// surfaces.
package state

import (
	"log/slog"
	"sync"
	"time"
)

// EventType identifies event categories.
type EventType string

const (
	// EventModeUpdate carries a new arm state for a base station.
	EventModeUpdate EventType = "mode_update"
	// EventCameraUpdate carries refreshed per-camera properties.
	EventCameraUpdate EventType = "camera_update"
	// EventAmbientUpdate carries a refreshed ambient sensor reading.
	EventAmbientUpdate EventType = "ambient_update"
	// EventPush carries an uncorrelated property push from the cloud feed.
	EventPush EventType = "push"
	// EventConnected and EventDisconnected track the event stream itself.
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
)

// Event represents a state change observed on the cloud feed or produced by
// a poll cycle.
type Event struct {
	Type      EventType `json:"type"`
	Resource  string    `json:"resource,omitempty"`
	DeviceID  string    `json:"device_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// AmbientReading is the payload for EventAmbientUpdate. Nil fields mean the
// channel reported no sample.
type AmbientReading struct {
	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	AirQuality  *float64 `json:"air_quality,omitempty"`
}

// CameraLevels is the payload for EventCameraUpdate, keyed by camera device ID.
type CameraLevels struct {
	Battery map[string]int `json:"battery,omitempty"`
	Signal  map[string]int `json:"signal,omitempty"`
}

// EventBus is a simple publish/subscribe event bus.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[int]chan Event
	nextID      int
	log         *slog.Logger
}

// NewEventBus creates a new event bus.
func NewEventBus(log *slog.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[int]chan Event),
		log:         log,
	}
}

// Publish sends an event to all subscribers. Slow subscribers lose events
// rather than blocking the feed.
func (b *EventBus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			b.log.Warn("event bus: subscriber buffer full, dropping event", "subscriber_id", id, "event_type", evt.Type)
		}
	}
}

// Subscribe returns a channel of events and an unsubscribe function.
func (b *EventBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}

	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
		// No publisher can still hold ch once it is removed under the
		// write lock, so closing here is safe.
		close(ch)
	}
	return ch, unsub
}
