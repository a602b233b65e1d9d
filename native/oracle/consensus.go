package oracle

import (
	"errors"
	"fmt"
	"time"

	"flightsurety/core/events"
	fserrors "flightsurety/core/errors"
	"flightsurety/core/state"
	"flightsurety/native/flight"
	"flightsurety/native/insurance"
)

var (
	ErrUnknownFlight     = fmt.Errorf("oracle: unknown flight: %w", fserrors.ErrUnknownEntity)
	ErrFlightFinalized   = fmt.Errorf("oracle: flight status already final: %w", fserrors.ErrInvalidState)
	ErrRequestNotOpen    = fmt.Errorf("oracle: %w", fserrors.ErrRequestNotOpen)
	ErrRequestClosed     = fmt.Errorf("oracle: %w", fserrors.ErrRequestClosed)
	ErrIndexMismatch     = fmt.Errorf("oracle: index not assigned to caller: %w", fserrors.ErrNotAuthorized)
	ErrNotOracle         = fmt.Errorf("oracle: caller is not a registered oracle: %w", fserrors.ErrNotAuthorized)
	ErrInvalidStatusCode = fmt.Errorf("oracle: invalid status code: %w", fserrors.ErrInvalidState)
	ErrNoFreeIndex       = fmt.Errorf("oracle: every index already has a closed request for this flight: %w", fserrors.ErrInvalidState)

	errNilFlights = errors.New("oracle: flight registry not configured")
	errNilBook    = errors.New("oracle: insurance book not configured")
)

// FlightLedger is the slice of the flight registry consensus needs.
type FlightLedger interface {
	Get(key [32]byte) (*flight.Flight, bool, error)
	Finalize(key [32]byte, code flight.StatusCode) (*flight.Flight, error)
}

// Insurer is credited when a flight is finalized as an airline fault.
type Insurer interface {
	CreditInsurees(flightKey [32]byte, bps uint64) (*insurance.CreditResult, error)
}

func requestKey(key [32]byte) []byte {
	return append([]byte("oracle/request/"), key[:]...)
}

// Engine opens status requests and finalizes flights once a status code
// collects a quorum of responses from oracles holding the request's index.
type Engine struct {
	state    state.KV
	registry *Registry
	flights  FlightLedger
	insurer  Insurer
	emitter  events.Emitter
	nowFn    func() int64
}

// NewEngine wires the consensus engine.
func NewEngine(kv state.KV, registry *Registry, flights FlightLedger, insurer Insurer) *Engine {
	return &Engine{
		state:    kv,
		registry: registry,
		flights:  flights,
		insurer:  insurer,
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the clock used to stamp requests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	return uint64(e.nowFn())
}

// Request loads a request by its tuple.
func (e *Engine) Request(index uint8, airline [20]byte, designator string, timestamp uint64) (*Request, bool, error) {
	return e.requestByKey(RequestKey(index, airline, designator, timestamp))
}

func (e *Engine) requestByKey(key [32]byte) (*Request, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	req := new(Request)
	ok, err := e.state.KVGet(requestKey(key), req)
	if err != nil || !ok {
		return nil, false, err
	}
	return req, true, nil
}

func (e *Engine) putRequest(req *Request) error {
	return e.state.KVPut(requestKey(req.Key()), req)
}

// IsResponseOpen reports whether responses are currently accepted for the
// tuple: the request exists, has not closed and its flight is not final.
func (e *Engine) IsResponseOpen(index uint8, airline [20]byte, designator string, timestamp uint64) (bool, error) {
	req, ok, err := e.Request(index, airline, designator, timestamp)
	if err != nil || !ok || req.Closed {
		return false, err
	}
	f, ok, err := e.flights.Get(req.FlightKey)
	if err != nil || !ok {
		return false, err
	}
	return !f.Finalized, nil
}

// FetchFlightStatus opens a status request for a flight under a freshly drawn
// index, stamped with the current time. If the same request is already open it
// is returned with opened=false and its request event is emitted again.
func (e *Engine) FetchFlightStatus(caller [20]byte, flightKey [32]byte) (*Request, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	if e.flights == nil {
		return nil, false, errNilFlights
	}
	f, ok, err := e.flights.Get(flightKey)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, ErrUnknownFlight
	}
	if f.Finalized {
		return nil, false, ErrFlightFinalized
	}
	// Requests are keyed by fetch time. Within one second a draw can land on
	// a request that already exists: an open one is announced again, a
	// closed one is skipped.
	now := e.now()
	attempts := 4 * e.registry.params.IndexSpace
	for i := 0; i < attempts; i++ {
		index, err := e.registry.DrawRequestIndex(caller, flightKey)
		if err != nil {
			return nil, false, err
		}
		existing, found, err := e.Request(index, f.Airline, f.Designator, now)
		if err != nil {
			return nil, false, err
		}
		if found && !existing.Closed {
			e.emitter.Emit(NewRequestEvent(existing))
			return existing, false, nil
		}
		if found {
			continue
		}
		req := &Request{
			Index:      index,
			FlightKey:  flightKey,
			Airline:    f.Airline,
			Designator: f.Designator,
			Timestamp:  now,
			Requester:  caller,
			OpenedAt:   now,
		}
		if err := e.putRequest(req); err != nil {
			return nil, false, err
		}
		e.emitter.Emit(NewRequestEvent(req))
		return req.Clone(), true, nil
	}
	return nil, false, ErrNoFreeIndex
}

// SubmitResponse records caller's status report for the request tuple.
//
// Each oracle counts at most once per status code; reports of different codes
// by the same oracle are tallied independently. The first code to reach the
// quorum closes the request. Unless that code is StatusUnknown the flight is
// finalized, and an airline-fault status credits the flight's policies.
func (e *Engine) SubmitResponse(caller [20]byte, index uint8, airline [20]byte, designator string, timestamp uint64, code flight.StatusCode) (*Response, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if !code.Valid() {
		return nil, ErrInvalidStatusCode
	}
	req, ok, err := e.Request(index, airline, designator, timestamp)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRequestNotOpen
	}
	if req.Closed {
		return nil, ErrRequestClosed
	}
	f, ok, err := e.flights.Get(req.FlightKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknownFlight
	}
	if f.Finalized {
		return nil, ErrRequestClosed
	}
	o, registered, err := e.registry.Get(caller)
	if err != nil {
		return nil, err
	}
	if !registered {
		return nil, ErrNotOracle
	}
	if !o.HasIndex(index) {
		return nil, ErrIndexMismatch
	}

	votes, counted := req.record(caller, code)
	resp := &Response{Counted: counted, Votes: votes}
	if !counted {
		resp.Request = req.Clone()
		return resp, nil
	}
	e.emitter.Emit(NewReportEvent(req, caller, code, votes))

	if votes >= e.registry.params.Quorum {
		req.Closed = true
		req.ClosedAt = e.now()
		req.Outcome = code
		resp.Closed = true
	}
	if err := e.putRequest(req); err != nil {
		return nil, err
	}
	if !resp.Closed {
		resp.Request = req.Clone()
		return resp, nil
	}
	e.emitter.Emit(NewClosedEvent(req))

	if code != flight.StatusUnknown {
		if _, err := e.flights.Finalize(req.FlightKey, code); err != nil {
			return nil, err
		}
		resp.Finalized = true
	}
	if code.AirlineFault() {
		if e.insurer == nil {
			return nil, errNilBook
		}
		credit, err := e.insurer.CreditInsurees(req.FlightKey, e.registry.params.PayoutBps)
		if err != nil {
			return nil, err
		}
		resp.Credited = credit.Policies
	}
	resp.Request = req.Clone()
	return resp, nil
}
