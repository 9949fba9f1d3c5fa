// Package telemetry reports what the alarm clock does (alarms ringing, snoozes, settings
// changes) to an MQTT broker, so they can be graphed next to everything else in the house.
package telemetry

import (
	"encoding/json"
	"sync"
	"time"
)

// DefaultTopic is the topic events are published to unless configured otherwise.
const DefaultTopic = "home/alarm_clock/events"

// Event types.
const (
	Startup    = "STARTUP"
	AlarmFired = "ALARM_FIRED"
	Snoozed    = "SNOOZED"
	Silenced   = "SILENCED"
	TimeSet    = "TIME_SET"
	AlarmSet   = "ALARM_SET"
)

// Event is something that happened.
type Event struct {
	Timestamp time.Time
	Type      string
	Mode      string // mode after the event
	Time      string // the clock's time of day, HH:MM:SS
	Alarm     string // the alarm schedule, "HH:MM on" or "HH:MM off"
}

// Publisher sends events somewhere.  Publish must not block for long; it is called from the main
// loop.
type Publisher interface {
	Publish(Event) error
	Close() error
}

// Payload is the JSON message for an event.
type Payload struct {
	AlarmClock EventPayload `json:"alarm_clock"`
}

// EventPayload contains the event details.
type EventPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Mode      string `json:"mode"`
	Time      string `json:"time"`
	Alarm     string `json:"alarm"`
}

// FormatPayload creates the JSON payload for an event.
func FormatPayload(e Event) ([]byte, error) {
	return json.Marshal(Payload{
		AlarmClock: EventPayload{
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
			Event:     e.Type,
			Mode:      e.Mode,
			Time:      e.Time,
			Alarm:     e.Alarm,
		},
	})
}

// Discard drops every event.  It is used when no broker is configured.
type Discard struct{}

func (Discard) Publish(Event) error { return nil }
func (Discard) Close() error        { return nil }

// Fake records published events for test assertions.
type Fake struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

// Publish records the event.
func (f *Fake) Publish(e Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

// Close marks the publisher as closed.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Events returns a copy of the recorded events.
func (f *Fake) Events() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.events...)
}

// Types returns the type of every recorded event, in order.
func (f *Fake) Types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []string
	for _, e := range f.events {
		result = append(result, e.Type)
	}
	return result
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
