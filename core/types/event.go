package types

import "sort"

// Event represents a typed event emitted by a committed state transition.
// Attributes carry the string-encoded payload consumed by off-chain agents and
// front-ends.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// NewEvent returns an event with an initialised attribute map.
func NewEvent(kind string) *Event {
	return &Event{Type: kind, Attributes: make(map[string]string)}
}

// EventType implements the core/events.Event interface so engines can emit the
// canonical payload directly.
func (e *Event) EventType() string {
	if e == nil {
		return ""
	}
	return e.Type
}

// Event returns the receiver so emitters can treat *Event and typed wrappers
// uniformly.
func (e *Event) Event() *Event { return e }

// With sets an attribute and returns the receiver for chaining.
func (e *Event) With(key, value string) *Event {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	attrs := make(map[string]string, len(e.Attributes))
	for k, v := range e.Attributes {
		attrs[k] = v
	}
	return &Event{Type: e.Type, Attributes: attrs}
}

// Keys returns the attribute keys in sorted order.
func (e *Event) Keys() []string {
	if e == nil {
		return nil
	}
	keys := make([]string, 0, len(e.Attributes))
	for k := range e.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
