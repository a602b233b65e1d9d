package flight

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"flightsurety/core/events"
	fserrors "flightsurety/core/errors"
	"flightsurety/core/state"
)

// MaxDesignatorLength bounds the human flight designator.
const MaxDesignatorLength = 32

var (
	ErrNotAuthorized       = fmt.Errorf("flight: airline not funded: %w", fserrors.ErrNotAuthorized)
	ErrInvalidDesignator   = fmt.Errorf("flight: invalid designator: %w", fserrors.ErrInvalidState)
	ErrAlreadyRegistered   = fmt.Errorf("flight: already registered: %w", fserrors.ErrAlreadyExists)
	ErrUnknownFlight       = fmt.Errorf("flight: unknown flight: %w", fserrors.ErrUnknownEntity)
	ErrAlreadyFinalized    = fmt.Errorf("flight: status already finalized: %w", fserrors.ErrInvalidState)
	ErrInvalidStatusCode   = fmt.Errorf("flight: invalid status code: %w", fserrors.ErrInvalidState)
	errNilState            = errors.New("flight: state not configured")
	errNilAirlineDirectory = errors.New("flight: airline directory not configured")
)

// AirlineView answers whether an airline may publish flights.
type AirlineView interface {
	IsFunded(addr [20]byte) (bool, error)
}

func recordKey(key [32]byte) []byte {
	return append([]byte("flight/record/"), key[:]...)
}

func airlineIndexKey(airline [20]byte) []byte {
	return append([]byte("flight/by-airline/"), airline[:]...)
}

var allIndexKey = []byte("flight/index")

// Registry stores flights published by funded airlines. Flights are append
// only; the status is written once by Finalize.
type Registry struct {
	state    state.KV
	airlines AirlineView
	emitter  events.Emitter
	nowFn    func() int64
}

// NewRegistry binds a registry to kv.
func NewRegistry(kv state.KV, airlines AirlineView) *Registry {
	return &Registry{
		state:    kv,
		airlines: airlines,
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// SetNowFunc overrides the registration clock.
func (r *Registry) SetNowFunc(now func() int64) {
	if now == nil {
		r.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	r.nowFn = now
}

func (r *Registry) now() uint64 {
	if r == nil || r.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	return uint64(r.nowFn())
}

// NormalizeDesignator trims the designator and validates its length.
func NormalizeDesignator(designator string) (string, error) {
	trimmed := strings.TrimSpace(designator)
	if trimmed == "" || len(trimmed) > MaxDesignatorLength {
		return "", ErrInvalidDesignator
	}
	return trimmed, nil
}

// Register publishes a flight for airline at the current time.
func (r *Registry) Register(airline [20]byte, designator string) (*Flight, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	if r.airlines == nil {
		return nil, errNilAirlineDirectory
	}
	funded, err := r.airlines.IsFunded(airline)
	if err != nil {
		return nil, err
	}
	if !funded {
		return nil, ErrNotAuthorized
	}
	normalized, err := NormalizeDesignator(designator)
	if err != nil {
		return nil, err
	}
	ts := r.now()
	f := &Flight{
		Key:        Key(airline, normalized, ts),
		Airline:    airline,
		Designator: normalized,
		Timestamp:  ts,
		Status:     StatusUnknown,
	}
	if _, exists, err := r.Get(f.Key); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrAlreadyRegistered
	}
	if err := r.state.KVPut(recordKey(f.Key), f); err != nil {
		return nil, err
	}
	if err := r.state.KVAppend(airlineIndexKey(airline), f.Key[:]); err != nil {
		return nil, err
	}
	if err := r.state.KVAppend(allIndexKey, f.Key[:]); err != nil {
		return nil, err
	}
	r.emitter.Emit(NewRegisteredEvent(f))
	return f.Clone(), nil
}

// Get loads a flight by key.
func (r *Registry) Get(key [32]byte) (*Flight, bool, error) {
	if r == nil || r.state == nil {
		return nil, false, errNilState
	}
	f := new(Flight)
	ok, err := r.state.KVGet(recordKey(key), f)
	if err != nil || !ok {
		return nil, false, err
	}
	return f, true, nil
}

// Lookup loads a flight by its identifying triple.
func (r *Registry) Lookup(airline [20]byte, designator string, timestamp uint64) (*Flight, bool, error) {
	normalized, err := NormalizeDesignator(designator)
	if err != nil {
		return nil, false, nil
	}
	return r.Get(Key(airline, normalized, timestamp))
}

func (r *Registry) load(index [][]byte) ([]*Flight, error) {
	out := make([]*Flight, 0, len(index))
	for _, raw := range index {
		var key [32]byte
		copy(key[:], raw)
		f, ok, err := r.Get(key)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// ListByAirline returns the airline's flights in registration order.
func (r *Registry) ListByAirline(airline [20]byte) ([]*Flight, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	index, err := r.state.KVGetList(airlineIndexKey(airline))
	if err != nil {
		return nil, err
	}
	return r.load(index)
}

// List returns every flight in registration order.
func (r *Registry) List() ([]*Flight, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	index, err := r.state.KVGetList(allIndexKey)
	if err != nil {
		return nil, err
	}
	return r.load(index)
}

// Finalize records the consensus status for a flight. It succeeds exactly
// once per flight.
func (r *Registry) Finalize(key [32]byte, code StatusCode) (*Flight, error) {
	if !code.Valid() {
		return nil, ErrInvalidStatusCode
	}
	f, ok, err := r.Get(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknownFlight
	}
	if f.Finalized {
		return nil, ErrAlreadyFinalized
	}
	f.Status = code
	f.Finalized = true
	f.FinalizedAt = r.now()
	if err := r.state.KVPut(recordKey(key), f); err != nil {
		return nil, err
	}
	r.emitter.Emit(NewStatusEvent(f))
	return f.Clone(), nil
}
