package flight

import (
	"errors"
	"testing"

	"flightsurety/core/events"
	fserrors "flightsurety/core/errors"
	"flightsurety/core/state"
	"flightsurety/storage"
)

type fundedSet map[[20]byte]bool

func (s fundedSet) IsFunded(addr [20]byte) (bool, error) { return s[addr], nil }

func airline(fill byte) [20]byte {
	var out [20]byte
	out[19] = fill
	return out
}

func newTestRegistry(now int64, funded ...[20]byte) (*Registry, *events.Recorder, *int64) {
	set := fundedSet{}
	for _, a := range funded {
		set[a] = true
	}
	reg := NewRegistry(state.NewManager(storage.NewMemDB()), set)
	rec := &events.Recorder{}
	reg.SetEmitter(rec)
	clock := now
	reg.SetNowFunc(func() int64 { return clock })
	return reg, rec, &clock
}

func TestKeyIsStableAndDistinct(t *testing.T) {
	a, b := airline(1), airline(2)
	if Key(a, "F1", 10) != Key(a, "F1", 10) {
		t.Fatalf("key must be deterministic")
	}
	keys := map[[32]byte]string{}
	for name, key := range map[string][32]byte{
		"base":       Key(a, "F1", 10),
		"airline":    Key(b, "F1", 10),
		"designator": Key(a, "F2", 10),
		"time":       Key(a, "F1", 11),
	} {
		if other, dup := keys[key]; dup {
			t.Fatalf("%s collides with %s", name, other)
		}
		keys[key] = name
	}
}

func TestRegisterRequiresFundedAirline(t *testing.T) {
	funded, unfunded := airline(1), airline(2)
	reg, rec, _ := newTestRegistry(1_000, funded)

	if _, err := reg.Register(unfunded, "F1"); !errors.Is(err, ErrNotAuthorized) || !errors.Is(err, fserrors.ErrNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}
	if _, err := reg.Register(funded, "   "); !errors.Is(err, ErrInvalidDesignator) {
		t.Fatalf("expected invalid designator, got %v", err)
	}

	f, err := reg.Register(funded, " F1 ")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if f.Designator != "F1" || f.Timestamp != 1_000 || f.Key != Key(funded, "F1", 1_000) {
		t.Fatalf("unexpected flight %+v", f)
	}
	if f.Finalized || f.Status != StatusUnknown {
		t.Fatalf("new flight must be unknown and open")
	}
	if len(rec.Events()) != 1 || rec.Events()[0].Type != EventTypeFlightRegistered {
		t.Fatalf("expected one registration event, got %+v", rec.Events())
	}
	if rec.Events()[0].Attributes["designator"] != "F1" {
		t.Fatalf("event must carry the designator")
	}

	if _, err := reg.Register(funded, "F1"); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected duplicate within the same second to collide, got %v", err)
	}

	for _, designator := range []string{"F1", " F1", "F1\t"} {
		got, ok, err := reg.Lookup(funded, designator, 1_000)
		if err != nil || !ok || got.Key != f.Key {
			t.Fatalf("lookup %q: ok=%v err=%v", designator, ok, err)
		}
	}
	if _, ok, err := reg.Lookup(funded, "  ", 1_000); err != nil || ok {
		t.Fatalf("blank designator must not resolve: ok=%v err=%v", ok, err)
	}
}

func TestListAndFinalize(t *testing.T) {
	a := airline(1)
	reg, _, clock := newTestRegistry(1_000, a)
	first, err := reg.Register(a, "F1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	*clock = 2_000
	second, err := reg.Register(a, "F1")
	if err != nil {
		t.Fatalf("register again later: %v", err)
	}
	if first.Key == second.Key {
		t.Fatalf("repeated designators at different times must not collide")
	}
	list, err := reg.ListByAirline(a)
	if err != nil || len(list) != 2 {
		t.Fatalf("list: %d flights (%v)", len(list), err)
	}
	all, _ := reg.List()
	if len(all) != 2 {
		t.Fatalf("expected 2 flights overall, got %d", len(all))
	}

	if _, err := reg.Finalize(first.Key, StatusCode(7)); !errors.Is(err, ErrInvalidStatusCode) {
		t.Fatalf("expected invalid status code, got %v", err)
	}
	done, err := reg.Finalize(first.Key, StatusLateAirline)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !done.Finalized || done.Status != StatusLateAirline {
		t.Fatalf("unexpected finalized flight %+v", done)
	}
	if _, err := reg.Finalize(first.Key, StatusOnTime); !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("expected already finalized, got %v", err)
	}
	if _, err := reg.Finalize([32]byte{1}, StatusOnTime); !errors.Is(err, ErrUnknownFlight) {
		t.Fatalf("expected unknown flight, got %v", err)
	}
	stored, ok, _ := reg.Lookup(a, "F1", 1_000)
	if !ok || stored.Status != StatusLateAirline {
		t.Fatalf("lookup should see finalized status, got %+v", stored)
	}
}

func TestParseStatusCode(t *testing.T) {
	cases := []struct {
		in   string
		want StatusCode
		ok   bool
	}{
		{"20", StatusLateAirline, true},
		{" late_weather ", StatusLateWeather, true},
		{"0", StatusUnknown, true},
		{"15", 0, false},
		{"300", 0, false},
		{"delayed", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseStatusCode(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("parse %q: got %v err %v", tc.in, got, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("parse %q: expected error", tc.in)
		}
	}
}
