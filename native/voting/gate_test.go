package voting

import (
	"testing"

	"flightsurety/core/state"
	"flightsurety/storage"
)

func voter(fill byte) [20]byte {
	var out [20]byte
	out[0] = fill
	return out
}

func TestMajority(t *testing.T) {
	cases := map[int]int{0: 1, 1: 1, 2: 1, 3: 2, 4: 2, 5: 3, 6: 3}
	for n, want := range cases {
		if got := Majority(n); got != want {
			t.Fatalf("Majority(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestBallotDeduplicates(t *testing.T) {
	var b Ballot
	if !b.Cast(voter(1)) {
		t.Fatalf("first vote should count")
	}
	if b.Cast(voter(1)) {
		t.Fatalf("repeat vote must not count")
	}
	b.Cast(voter(2))
	if b.Count() != 2 {
		t.Fatalf("expected 2 votes, got %d", b.Count())
	}
	b.Reset()
	if b.Count() != 0 || b.Has(voter(1)) {
		t.Fatalf("reset should clear voters")
	}
}

func TestGateReachesQuorumOnce(t *testing.T) {
	gate := NewGate[[20]byte](state.NewManager(storage.NewMemDB()), "test/", AddressKey)
	candidate := voter(0xAA)

	out, err := gate.Vote(candidate, voter(1), 2)
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if !out.Counted || out.Passed || out.Votes != 1 {
		t.Fatalf("unexpected outcome %+v", out)
	}

	out, err = gate.Vote(candidate, voter(1), 2)
	if err != nil {
		t.Fatalf("re-vote: %v", err)
	}
	if out.Counted || out.Passed || out.Votes != 1 {
		t.Fatalf("re-vote must be a no-op, got %+v", out)
	}

	out, err = gate.Vote(candidate, voter(2), 2)
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if !out.Passed || out.Votes != 2 || out.Quorum != 2 {
		t.Fatalf("expected quorum, got %+v", out)
	}
	tally, err := gate.Tally(candidate)
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if tally != 0 {
		t.Fatalf("ballot should be cleared after passing, tally %d", tally)
	}
}

func TestGateClear(t *testing.T) {
	gate := NewGate[bool](state.NewManager(storage.NewMemDB()), "flag/", func(v bool) []byte {
		if v {
			return []byte{1}
		}
		return []byte{0}
	})
	if _, err := gate.Vote(false, voter(1), 3); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if n, _ := gate.Tally(false); n != 1 {
		t.Fatalf("expected 1 vote, got %d", n)
	}
	if n, _ := gate.Tally(true); n != 0 {
		t.Fatalf("candidates must not share ballots")
	}
	if err := gate.Clear(false); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n, _ := gate.Tally(false); n != 0 {
		t.Fatalf("expected cleared ballot, got %d", n)
	}
}
