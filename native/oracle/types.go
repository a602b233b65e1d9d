package oracle

import (
	"encoding/binary"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"flightsurety/native/flight"
)

const (
	DefaultIndexCount = 3
	DefaultIndexSpace = 10
	DefaultQuorum     = 3
)

// Params configures registration and consensus.
type Params struct {
	MinStake   *big.Int
	IndexCount int
	IndexSpace int
	Quorum     int
	// PayoutBps is the multiplier applied to premiums when a flight is
	// finalized as an airline fault.
	PayoutBps uint64
}

// Validate checks the parameters for internal consistency.
func (p Params) Validate() error {
	if p.MinStake == nil || p.MinStake.Sign() <= 0 {
		return fmt.Errorf("oracle: min stake must be positive")
	}
	if p.IndexSpace <= 0 || p.IndexSpace > 256 {
		return fmt.Errorf("oracle: index space must be within 1..256")
	}
	if p.IndexCount <= 0 || p.IndexCount > p.IndexSpace {
		return fmt.Errorf("oracle: index count must be within 1..index space")
	}
	if p.Quorum <= 0 {
		return fmt.Errorf("oracle: quorum must be positive")
	}
	if p.PayoutBps == 0 {
		return fmt.Errorf("oracle: payout multiplier must be positive")
	}
	return nil
}

// Oracle is a registered reporter. Indexes never change after registration.
type Oracle struct {
	Address      [20]byte
	Stake        *big.Int
	Indexes      []uint8
	RegisteredAt uint64
}

// Clone returns a deep copy of the oracle.
func (o *Oracle) Clone() *Oracle {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Stake = big.NewInt(0)
	if o.Stake != nil {
		clone.Stake.Set(o.Stake)
	}
	clone.Indexes = append([]uint8(nil), o.Indexes...)
	return &clone
}

// HasIndex reports whether index is one of the oracle's routing indexes.
func (o *Oracle) HasIndex(index uint8) bool {
	if o == nil {
		return false
	}
	for _, idx := range o.Indexes {
		if idx == index {
			return true
		}
	}
	return false
}

// Registration is the result of Register.
type Registration struct {
	Oracle *Oracle
	// Existing is set when the participant was already registered; nothing
	// changed and no stake should be taken.
	Existing bool
}

// Tally is the set of oracles that reported one status code.
type Tally struct {
	Code    flight.StatusCode
	Oracles [][20]byte
}

func (t *Tally) has(oracle [20]byte) bool {
	for _, o := range t.Oracles {
		if o == oracle {
			return true
		}
	}
	return false
}

// Request is a status request routed to oracles holding Index. The request is
// keyed by (Index, Airline, Designator, Timestamp) where Timestamp is the
// time the status was requested.
type Request struct {
	Index      uint8
	FlightKey  [32]byte
	Airline    [20]byte
	Designator string
	Timestamp  uint64
	Requester  [20]byte
	OpenedAt   uint64
	Closed     bool
	ClosedAt   uint64
	Outcome    flight.StatusCode
	Tallies    []Tally
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Tallies = make([]Tally, len(r.Tallies))
	for i, t := range r.Tallies {
		clone.Tallies[i] = Tally{Code: t.Code, Oracles: append([][20]byte(nil), t.Oracles...)}
	}
	return &clone
}

// Key returns the request identifier.
func (r *Request) Key() [32]byte {
	return RequestKey(r.Index, r.Airline, r.Designator, r.Timestamp)
}

// Votes returns the number of oracles that reported code.
func (r *Request) Votes(code flight.StatusCode) int {
	for _, t := range r.Tallies {
		if t.Code == code {
			return len(t.Oracles)
		}
	}
	return 0
}

// record adds oracle to code's tally. It returns the tally size and whether
// the oracle was newly counted.
func (r *Request) record(oracle [20]byte, code flight.StatusCode) (int, bool) {
	for i := range r.Tallies {
		t := &r.Tallies[i]
		if t.Code != code {
			continue
		}
		if t.has(oracle) {
			return len(t.Oracles), false
		}
		t.Oracles = append(t.Oracles, oracle)
		return len(t.Oracles), true
	}
	r.Tallies = append(r.Tallies, Tally{Code: code, Oracles: [][20]byte{oracle}})
	return 1, true
}

// RequestKey hashes the request tuple.
func RequestKey(index uint8, airline [20]byte, designator string, timestamp uint64) [32]byte {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], timestamp)
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256([]byte{index}, airline[:], []byte(designator), ts[:]))
	return out
}

// Response is the result of a submitted oracle response.
type Response struct {
	Request *Request
	// Counted is false when the oracle had already reported this code.
	Counted bool
	Votes   int
	// Closed is set when this response brought the code to quorum.
	Closed bool
	// Finalized is set when the flight status was written.
	Finalized bool
	Credited  int
}
