package oracle

import (
	"errors"
	"math/big"
	"testing"

	"flightsurety/core/events"
	fserrors "flightsurety/core/errors"
	"flightsurety/core/state"
	"flightsurety/native/flight"
	"flightsurety/native/insurance"
	"flightsurety/storage"
)

var unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func testParams() Params {
	return Params{
		MinStake:   new(big.Int).Set(unit),
		IndexCount: DefaultIndexCount,
		IndexSpace: DefaultIndexSpace,
		Quorum:     DefaultQuorum,
		PayoutBps:  insurance.DefaultPayoutBps,
	}
}

type allFunded struct{}

func (allFunded) IsFunded([20]byte) (bool, error) { return true, nil }

type noPayer struct{}

func (noPayer) Pay([20]byte, *big.Int) error { return nil }

func participant(n int) [20]byte {
	var out [20]byte
	out[0] = 0x0A
	out[18] = byte(n >> 8)
	out[19] = byte(n)
	return out
}

type harness struct {
	registry *Registry
	engine   *Engine
	flights  *flight.Registry
	book     *insurance.Book
	rec      *events.Recorder
	oracles  [][20]byte
	next     int
	clock    int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	kv := state.NewManager(storage.NewMemDB())
	rec := &events.Recorder{}
	flights := flight.NewRegistry(kv, allFunded{})
	flights.SetNowFunc(func() int64 { return 1_000 })
	flights.SetEmitter(rec)
	book := insurance.NewBook(kv, flights, noPayer{}, unit)
	book.SetEmitter(rec)
	registry := NewRegistry(kv, testParams())
	registry.SetEmitter(rec)
	engine := NewEngine(kv, registry, flights, book)
	engine.SetEmitter(rec)
	h := &harness{registry: registry, engine: engine, flights: flights, book: book, rec: rec, clock: 2_000}
	engine.SetNowFunc(func() int64 { return h.clock })
	return h
}

func (h *harness) addOracles(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		h.next++
		addr := participant(h.next)
		if _, err := h.registry.Register(addr, unit); err != nil {
			t.Fatalf("register oracle %d: %v", h.next, err)
		}
		h.oracles = append(h.oracles, addr)
	}
}

// holders returns at least want oracles assigned index, registering more when
// the current set is too small.
func (h *harness) holders(t *testing.T, index uint8, want int) [][20]byte {
	t.Helper()
	for attempt := 0; attempt < 200; attempt++ {
		var out [][20]byte
		for _, addr := range h.oracles {
			o, _, err := h.registry.Get(addr)
			if err != nil {
				t.Fatalf("get oracle: %v", err)
			}
			if o.HasIndex(index) {
				out = append(out, addr)
			}
		}
		if len(out) >= want {
			return out
		}
		h.addOracles(t, 1)
	}
	t.Fatalf("could not find %d oracles for index %d", want, index)
	return nil
}

func (h *harness) nonHolder(t *testing.T, index uint8) [20]byte {
	t.Helper()
	for attempt := 0; attempt < 200; attempt++ {
		for _, addr := range h.oracles {
			o, _, _ := h.registry.Get(addr)
			if !o.HasIndex(index) {
				return addr
			}
		}
		h.addOracles(t, 1)
	}
	t.Fatalf("every oracle holds index %d", index)
	return [20]byte{}
}

func (h *harness) newFlight(t *testing.T, designator string) *flight.Flight {
	t.Helper()
	f, err := h.flights.Register([20]byte{0xA1}, designator)
	if err != nil {
		t.Fatalf("register flight: %v", err)
	}
	return f
}

func countType(rec *events.Recorder, kind string) int {
	n := 0
	for _, evt := range rec.Events() {
		if evt.Type == kind {
			n++
		}
	}
	return n
}

func TestRegisterAssignsDistinctIndexes(t *testing.T) {
	h := newHarness(t)
	if _, err := h.registry.Register(participant(1), new(big.Int).Sub(unit, big.NewInt(1))); !errors.Is(err, ErrInsufficientStake) || !errors.Is(err, fserrors.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient stake, got %v", err)
	}
	if nonce, _ := h.registry.Nonce(); nonce != 0 {
		t.Fatalf("rejected registration must not draw, nonce %d", nonce)
	}

	h.addOracles(t, 19)
	for _, addr := range h.oracles {
		idx, err := h.registry.Indexes(addr)
		if err != nil {
			t.Fatalf("indexes: %v", err)
		}
		if len(idx) != DefaultIndexCount {
			t.Fatalf("expected %d indexes, got %v", DefaultIndexCount, idx)
		}
		seen := map[uint8]bool{}
		for _, v := range idx {
			if v >= DefaultIndexSpace || seen[v] {
				t.Fatalf("invalid index set %v", idx)
			}
			seen[v] = true
		}
	}
	if count, _ := h.registry.Count(); count != 19 {
		t.Fatalf("expected 19 oracles, got %d", count)
	}

	before, _ := h.registry.Indexes(h.oracles[0])
	nonce, _ := h.registry.Nonce()
	reg, err := h.registry.Register(h.oracles[0], unit)
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if !reg.Existing || FormatIndexes(reg.Oracle.Indexes) != FormatIndexes(before) {
		t.Fatalf("re-registration must return the existing indexes, got %+v", reg)
	}
	if after, _ := h.registry.Nonce(); after != nonce {
		t.Fatalf("re-registration must not draw")
	}
	if _, err := h.registry.Indexes(participant(999)); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected not registered, got %v", err)
	}
}

func TestIndexDrawIsReproducible(t *testing.T) {
	a, b := newHarness(t), newHarness(t)
	a.addOracles(t, 5)
	b.addOracles(t, 5)
	for i := range a.oracles {
		ia, _ := a.registry.Indexes(a.oracles[i])
		ib, _ := b.registry.Indexes(b.oracles[i])
		if FormatIndexes(ia) != FormatIndexes(ib) {
			t.Fatalf("oracle %d: %v != %v", i, ia, ib)
		}
	}
}

func TestFetchFlightStatus(t *testing.T) {
	h := newHarness(t)
	if _, _, err := h.engine.FetchFlightStatus(participant(500), [32]byte{1}); !errors.Is(err, ErrUnknownFlight) {
		t.Fatalf("expected unknown flight, got %v", err)
	}
	f := h.newFlight(t, "F1")
	req, opened, err := h.engine.FetchFlightStatus(participant(500), f.Key)
	if err != nil || !opened {
		t.Fatalf("fetch: opened=%v err=%v", opened, err)
	}
	if req.Airline != f.Airline || req.Designator != "F1" || req.Timestamp != 2_000 || req.OpenedAt != 2_000 {
		t.Fatalf("request must carry the flight and fetch time, got %+v", req)
	}
	if open, _ := h.engine.IsResponseOpen(req.Index, f.Airline, "F1", f.Timestamp); open {
		t.Fatalf("the registration time must not address the request")
	}
	open, err := h.engine.IsResponseOpen(req.Index, f.Airline, "F1", req.Timestamp)
	if err != nil || !open {
		t.Fatalf("request should be open (%v)", err)
	}
	if countType(h.rec, EventTypeOracleRequest) != 1 {
		t.Fatalf("expected one request event")
	}
}

func TestQuorumFinalizesAndCredits(t *testing.T) {
	h := newHarness(t)
	h.addOracles(t, 19)
	f := h.newFlight(t, "F1")
	insuree := [20]byte{0xB0}
	premium := new(big.Int).Quo(unit, big.NewInt(2))
	if _, err := h.book.Buy(insuree, f.Key, premium); err != nil {
		t.Fatalf("buy: %v", err)
	}
	req, _, err := h.engine.FetchFlightStatus(participant(500), f.Key)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	holders := h.holders(t, req.Index, 3)
	submit := func(oracle [20]byte, code flight.StatusCode) (*Response, error) {
		return h.engine.SubmitResponse(oracle, req.Index, f.Airline, f.Designator, req.Timestamp, code)
	}

	outsider := h.nonHolder(t, req.Index)
	if _, err := submit(outsider, flight.StatusLateAirline); !errors.Is(err, ErrIndexMismatch) {
		t.Fatalf("expected index mismatch, got %v", err)
	}
	if _, err := submit(participant(9999), flight.StatusLateAirline); !errors.Is(err, fserrors.ErrNotAuthorized) {
		t.Fatalf("expected unregistered caller to be rejected, got %v", err)
	}
	if _, err := h.engine.SubmitResponse(holders[0], (req.Index+1)%DefaultIndexSpace, f.Airline, f.Designator, req.Timestamp, flight.StatusOnTime); !errors.Is(err, ErrRequestNotOpen) {
		// The neighbouring index may only be open if it was drawn, which it was not.
		t.Fatalf("expected request not open, got %v", err)
	}

	resp, err := submit(holders[0], flight.StatusLateAirline)
	if err != nil || !resp.Counted || resp.Votes != 1 || resp.Closed {
		t.Fatalf("first response: %+v (%v)", resp, err)
	}
	resp, err = submit(holders[0], flight.StatusLateAirline)
	if err != nil || resp.Counted || resp.Votes != 1 {
		t.Fatalf("duplicate response must be a no-op: %+v (%v)", resp, err)
	}
	// A different code from the same oracle is tallied on its own.
	resp, err = submit(holders[0], flight.StatusOnTime)
	if err != nil || !resp.Counted || resp.Votes != 1 {
		t.Fatalf("split response: %+v (%v)", resp, err)
	}
	if _, err := submit(holders[1], flight.StatusLateAirline); err != nil {
		t.Fatalf("second response: %v", err)
	}
	resp, err = submit(holders[2], flight.StatusLateAirline)
	if err != nil {
		t.Fatalf("third response: %v", err)
	}
	if !resp.Closed || !resp.Finalized || resp.Credited != 1 || resp.Request.Outcome != flight.StatusLateAirline {
		t.Fatalf("quorum should close, finalize and credit: %+v", resp)
	}

	stored, _, _ := h.flights.Get(f.Key)
	if !stored.Finalized || stored.Status != flight.StatusLateAirline {
		t.Fatalf("flight not finalized: %+v", stored)
	}
	owed, _ := h.book.Withdrawable(insuree)
	if want := new(big.Int).Quo(new(big.Int).Mul(unit, big.NewInt(3)), big.NewInt(4)); owed.Cmp(want) != 0 {
		t.Fatalf("credited %s, want %s", owed, want)
	}

	if _, err := submit(holders[1], flight.StatusOnTime); !errors.Is(err, ErrRequestClosed) {
		t.Fatalf("expected request closed, got %v", err)
	}
	if open, _ := h.engine.IsResponseOpen(req.Index, f.Airline, f.Designator, req.Timestamp); open {
		t.Fatalf("closed request must not be open")
	}
	if _, _, err := h.engine.FetchFlightStatus(participant(500), f.Key); !errors.Is(err, ErrFlightFinalized) {
		t.Fatalf("expected finalized flight rejection, got %v", err)
	}
	if countType(h.rec, flight.EventTypeFlightStatus) != 1 || countType(h.rec, EventTypeOracleClosed) != 1 {
		t.Fatalf("expected one status and one closed event")
	}
}

func TestUnknownQuorumClosesWithoutFinalizing(t *testing.T) {
	h := newHarness(t)
	h.addOracles(t, 19)
	f := h.newFlight(t, "F2")
	req, _, err := h.engine.FetchFlightStatus(participant(500), f.Key)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	holders := h.holders(t, req.Index, 3)
	var resp *Response
	for _, o := range holders[:3] {
		resp, err = h.engine.SubmitResponse(o, req.Index, f.Airline, f.Designator, req.Timestamp, flight.StatusUnknown)
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	if !resp.Closed || resp.Finalized {
		t.Fatalf("unknown quorum should close without finalizing: %+v", resp)
	}
	stored, _, _ := h.flights.Get(f.Key)
	if stored.Finalized {
		t.Fatalf("flight must stay open for another request")
	}
	next, opened, err := h.engine.FetchFlightStatus(participant(500), f.Key)
	if err != nil || !opened || next.Index == req.Index {
		t.Fatalf("expected a fresh request on another index: %+v opened=%v err=%v", next, opened, err)
	}
}

func TestFinalizationClosesSiblingRequests(t *testing.T) {
	h := newHarness(t)
	h.addOracles(t, 19)
	f := h.newFlight(t, "F3")
	first, _, err := h.engine.FetchFlightStatus(participant(500), f.Key)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	var second *Request
	for i := 0; i < 50; i++ {
		req, opened, err := h.engine.FetchFlightStatus(participant(501+i), f.Key)
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if opened {
			second = req
			break
		}
	}
	if second == nil {
		t.Fatalf("could not open a second request")
	}
	for _, o := range h.holders(t, first.Index, 3)[:3] {
		if _, err := h.engine.SubmitResponse(o, first.Index, f.Airline, f.Designator, first.Timestamp, flight.StatusOnTime); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	holder := h.holders(t, second.Index, 1)[0]
	if _, err := h.engine.SubmitResponse(holder, second.Index, f.Airline, f.Designator, second.Timestamp, flight.StatusOnTime); !errors.Is(err, ErrRequestClosed) {
		t.Fatalf("sibling request must reject once the flight is final, got %v", err)
	}
	if open, _ := h.engine.IsResponseOpen(second.Index, f.Airline, f.Designator, second.Timestamp); open {
		t.Fatalf("sibling request must report closed")
	}
}

func TestRefetchAnnouncesEveryRequest(t *testing.T) {
	h := newHarness(t)
	f := h.newFlight(t, "F4")
	reused := 0
	for i := 1; i <= int(DefaultIndexSpace)+1; i++ {
		req, opened, err := h.engine.FetchFlightStatus(participant(500), f.Key)
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		if !opened {
			reused++
			if req.Timestamp != 2_000 || req.Closed {
				t.Fatalf("reused request must be the open one, got %+v", req)
			}
		}
		if got := countType(h.rec, EventTypeOracleRequest); got != i {
			t.Fatalf("fetch %d: expected %d request events, got %d", i, i, got)
		}
	}
	if reused == 0 {
		t.Fatalf("expected a draw to land on an open request")
	}

	h.clock += 60
	req, opened, err := h.engine.FetchFlightStatus(participant(500), f.Key)
	if err != nil || !opened {
		t.Fatalf("a later fetch must open a new request: opened=%v err=%v", opened, err)
	}
	if req.Timestamp != 2_060 {
		t.Fatalf("expected fetch time 2060, got %d", req.Timestamp)
	}
	evts := h.rec.Events()
	last := evts[len(evts)-1]
	if last.Type != EventTypeOracleRequest || last.Attributes["timestamp"] != "2060" {
		t.Fatalf("request event must carry the fetch time, got %+v", last)
	}
	if RequestKey(req.Index, f.Airline, "F4", 2_060) == RequestKey(req.Index, f.Airline, "F4", 2_000) {
		t.Fatalf("fetch time must be part of the request key")
	}
}
