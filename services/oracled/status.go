package oracled

import (
	"math/rand/v2"
	"sync"

	"flightsurety/native/flight"
)

// StatusSource decides what an agent reports for a request.
type StatusSource interface {
	Status(req Request) flight.StatusCode
}

// FixedStatus always reports the same code.
type FixedStatus flight.StatusCode

func (f FixedStatus) Status(Request) flight.StatusCode { return flight.StatusCode(f) }

// RandomStatus draws uniformly from the defined status codes.
type RandomStatus struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomStatus(seed uint64) *RandomStatus {
	return &RandomStatus{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (r *RandomStatus) Status(Request) flight.StatusCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return flight.StatusCodes[r.rng.IntN(len(flight.StatusCodes))]
}
