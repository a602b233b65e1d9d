// Package voting implements deduplicated multi-party approval. Airline
// admission and the operational multisig both count distinct voters per
// candidate against a majority quorum.
package voting

import (
	"bytes"
	"errors"

	"flightsurety/core/state"
)

var errNilState = errors.New("voting: state not configured")

// Ballot is the set of distinct voters that approved one candidate.
type Ballot struct {
	Voters [][20]byte
}

// Has reports whether voter already approved.
func (b *Ballot) Has(voter [20]byte) bool {
	if b == nil {
		return false
	}
	for _, v := range b.Voters {
		if v == voter {
			return true
		}
	}
	return false
}

// Cast records voter. It returns false, leaving the ballot untouched, when the
// voter already approved.
func (b *Ballot) Cast(voter [20]byte) bool {
	if b.Has(voter) {
		return false
	}
	b.Voters = append(b.Voters, voter)
	return true
}

// Count returns the number of distinct voters.
func (b *Ballot) Count() int {
	if b == nil {
		return 0
	}
	return len(b.Voters)
}

// Reset forgets every vote.
func (b *Ballot) Reset() {
	if b == nil {
		return
	}
	b.Voters = nil
}

// Majority returns ceil(n/2), never less than one.
func Majority(n int) int {
	if n <= 1 {
		return 1
	}
	return (n + 1) / 2
}

// Outcome describes the effect of a single vote.
type Outcome struct {
	// Counted is false when the voter had already approved the candidate.
	Counted bool
	Votes   int
	Quorum  int
	// Passed is set once Votes reaches Quorum. The ballot is cleared at that
	// point.
	Passed bool
}

// Gate persists one ballot per candidate under a key prefix.
type Gate[C any] struct {
	state  state.KV
	prefix []byte
	keyOf  func(C) []byte
}

// NewGate binds a gate to kv. keyOf must map each candidate to a stable,
// unique byte string.
func NewGate[C any](kv state.KV, prefix string, keyOf func(C) []byte) *Gate[C] {
	return &Gate[C]{state: kv, prefix: []byte(prefix), keyOf: keyOf}
}

func (g *Gate[C]) key(candidate C) []byte {
	id := g.keyOf(candidate)
	out := make([]byte, 0, len(g.prefix)+len(id))
	out = append(out, g.prefix...)
	return append(out, id...)
}

// Ballot loads the pending ballot for candidate. A candidate without votes
// yields an empty ballot.
func (g *Gate[C]) Ballot(candidate C) (*Ballot, error) {
	if g == nil || g.state == nil {
		return nil, errNilState
	}
	ballot := new(Ballot)
	if _, err := g.state.KVGet(g.key(candidate), ballot); err != nil {
		return nil, err
	}
	return ballot, nil
}

// Tally returns the number of distinct approvals recorded for candidate.
func (g *Gate[C]) Tally(candidate C) (int, error) {
	ballot, err := g.Ballot(candidate)
	if err != nil {
		return 0, err
	}
	return ballot.Count(), nil
}

// Vote records voter's approval of candidate and evaluates the quorum.
func (g *Gate[C]) Vote(candidate C, voter [20]byte, quorum int) (Outcome, error) {
	ballot, err := g.Ballot(candidate)
	if err != nil {
		return Outcome{}, err
	}
	if quorum < 1 {
		quorum = 1
	}
	out := Outcome{Counted: ballot.Cast(voter), Quorum: quorum}
	out.Votes = ballot.Count()
	if out.Votes >= quorum {
		out.Passed = true
		return out, g.state.KVDelete(g.key(candidate))
	}
	if !out.Counted {
		return out, nil
	}
	return out, g.state.KVPut(g.key(candidate), ballot)
}

// Clear drops every vote recorded for candidate.
func (g *Gate[C]) Clear(candidate C) error {
	if g == nil || g.state == nil {
		return errNilState
	}
	return g.state.KVDelete(g.key(candidate))
}

// AddressKey is a keyOf helper for address candidates.
func AddressKey(addr [20]byte) []byte { return bytes.Clone(addr[:]) }
