package events

import (
	"sync"

	"github.com/google/uuid"

	"flightsurety/core/types"
)

// DefaultSubscriptionBuffer is the channel capacity handed to subscribers that
// do not request one explicitly.
const DefaultSubscriptionBuffer = 256

// Subscription delivers committed events of the requested types. The channel
// is closed when the subscription is cancelled or the bus stops.
type Subscription struct {
	ID    uuid.UUID
	C     <-chan *types.Event
	types map[string]struct{}
	ch    chan *types.Event
	bus   *Bus

	mu      sync.Mutex
	closed  bool
	dropped uint64
}

// Cancel stops delivery and closes the channel. It is safe to call more than
// once.
func (s *Subscription) Cancel() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.unsubscribe(s.ID)
}

// Dropped reports how many events were discarded because the subscriber fell
// behind.
func (s *Subscription) Dropped() uint64 {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Subscription) wants(kind string) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[kind]
	return ok
}

func (s *Subscription) deliver(evt *types.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- evt:
		return true
	default:
		s.dropped++
		return false
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Bus fans committed events out to subscribers. Publish never blocks: slow
// subscribers lose events rather than stalling the ledger.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uuid.UUID]*Subscription
	stopped bool
	onDrop  func(kind string)
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uuid.UUID]*Subscription)}
}

// SetDropHook installs a callback invoked whenever a delivery is dropped.
func (b *Bus) SetDropHook(fn func(kind string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDrop = fn
}

// Subscribe registers a subscriber for the given event types. No types means
// every event.
func (b *Bus) Subscribe(kinds ...string) *Subscription {
	return b.SubscribeBuffered(DefaultSubscriptionBuffer, kinds...)
}

// SubscribeBuffered is Subscribe with an explicit channel capacity.
func (b *Bus) SubscribeBuffered(buffer int, kinds ...string) *Subscription {
	if buffer <= 0 {
		buffer = DefaultSubscriptionBuffer
	}
	ch := make(chan *types.Event, buffer)
	sub := &Subscription{
		ID:    uuid.New(),
		C:     ch,
		ch:    ch,
		bus:   b,
		types: make(map[string]struct{}, len(kinds)),
	}
	for _, kind := range kinds {
		if kind == "" {
			continue
		}
		sub.types[kind] = struct{}{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		sub.close()
		return sub
	}
	b.subs[sub.ID] = sub
	return sub
}

func (b *Bus) unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	delete(b.subs, id)
	b.mu.Unlock()
	if ok {
		sub.close()
	}
}

// Publish delivers each event, in order, to every interested subscriber.
func (b *Bus) Publish(evts ...*types.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		return
	}
	for _, evt := range evts {
		if evt == nil {
			continue
		}
		for _, sub := range b.subs {
			if !sub.wants(evt.Type) {
				continue
			}
			if !sub.deliver(evt.Clone()) && b.onDrop != nil {
				b.onDrop(evt.Type)
			}
		}
	}
}

// Len returns the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Stop closes every subscription. Publish becomes a no-op afterwards.
func (b *Bus) Stop() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[uuid.UUID]*Subscription)
	b.stopped = true
	b.mu.Unlock()
	for _, sub := range subs {
		sub.close()
	}
}
