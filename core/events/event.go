package events

import "flightsurety/core/types"

// Event represents a structured state change emitted by a native engine.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. the bus, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

type eventWithPayload interface {
	Event() *types.Event
}

// Payload converts an emitted event to its canonical representation. Events
// that do not carry attributes are converted to an attribute-less payload.
func Payload(evt Event) *types.Event {
	if evt == nil {
		return nil
	}
	if provider, ok := evt.(eventWithPayload); ok {
		if payload := provider.Event(); payload != nil {
			return payload.Clone()
		}
	}
	return &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
}

// Recorder buffers emitted events in order until the caller decides whether
// the state transition that produced them commits.
type Recorder struct {
	events []*types.Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil {
		return
	}
	if payload := Payload(evt); payload != nil {
		r.events = append(r.events, payload)
	}
}

// Events returns the buffered events.
func (r *Recorder) Events() []*types.Event {
	if r == nil {
		return nil
	}
	return r.events
}

// Reset drops the buffered events.
func (r *Recorder) Reset() {
	if r == nil {
		return
	}
	r.events = nil
}
