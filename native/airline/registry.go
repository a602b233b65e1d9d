package airline

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"flightsurety/core/events"
	fserrors "flightsurety/core/errors"
	"flightsurety/core/state"
	"flightsurety/native/fund"
	"flightsurety/native/voting"
)

// DefaultBootstrapAirlines is the number of airlines admitted without a vote.
const DefaultBootstrapAirlines = 4

var (
	ErrNotAuthorized     = fmt.Errorf("airline: caller not authorized: %w", fserrors.ErrNotAuthorized)
	ErrNotAdmitted       = fmt.Errorf("airline: caller is not an admitted airline: %w", fserrors.ErrNotAuthorized)
	ErrAlreadyRegistered = fmt.Errorf("airline: already registered: %w", fserrors.ErrAlreadyExists)
	ErrInvalidCandidate  = fmt.Errorf("airline: invalid candidate: %w", fserrors.ErrInvalidState)

	errNilState = errors.New("airline: state not configured")
)

var (
	keyIndex         = []byte("airline/index")
	keyAdmittedCount = []byte("airline/count/admitted")
	keyFundedCount   = []byte("airline/count/funded")
)

func recordKey(addr [20]byte) []byte {
	return append([]byte("airline/record/"), addr[:]...)
}

// Registry admits airlines and tracks their lifecycle. Admission is
// unconditional for the owner and funded airlines until the bootstrap count is
// reached; afterwards each candidate needs votes from a majority of funded
// airlines.
type Registry struct {
	state     state.KV
	funds     *fund.Ledger
	votes     *voting.Gate[[20]byte]
	owner     [20]byte
	bootstrap uint64
	emitter   events.Emitter
	nowFn     func() int64
}

// NewRegistry binds a registry to kv. funds supplies the stake balances that
// gate voting.
func NewRegistry(kv state.KV, funds *fund.Ledger, owner [20]byte, bootstrap int) *Registry {
	if bootstrap <= 0 {
		bootstrap = DefaultBootstrapAirlines
	}
	return &Registry{
		state:     kv,
		funds:     funds,
		votes:     voting.NewGate[[20]byte](kv, "airline/votes/", voting.AddressKey),
		owner:     owner,
		bootstrap: uint64(bootstrap),
		emitter:   events.NoopEmitter{},
		nowFn:     func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
	r.funds.SetEmitter(emitter)
}

// SetNowFunc overrides the clock used for record timestamps.
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

// Get loads the airline record for addr.
func (r *Registry) Get(addr [20]byte) (*Airline, bool, error) {
	if r == nil || r.state == nil {
		return nil, false, errNilState
	}
	record := new(Airline)
	ok, err := r.state.KVGet(recordKey(addr), record)
	if err != nil || !ok {
		return nil, false, err
	}
	return record, true, nil
}

func (r *Registry) put(a *Airline) error {
	return r.state.KVPut(recordKey(a.Address), a)
}

// IsAirline reports whether addr has been admitted.
func (r *Registry) IsAirline(addr [20]byte) (bool, error) {
	record, ok, err := r.Get(addr)
	if err != nil || !ok {
		return false, err
	}
	return record.Status.Admitted(), nil
}

// IsFunded reports whether addr is a funded airline whose stake still meets
// the threshold.
func (r *Registry) IsFunded(addr [20]byte) (bool, error) {
	record, ok, err := r.Get(addr)
	if err != nil || !ok || record.Status != StatusFunded {
		return false, err
	}
	return r.funds.IsFunded(addr)
}

// StakeOf returns the stake deposited by addr.
func (r *Registry) StakeOf(addr [20]byte) (*big.Int, error) {
	return r.funds.BalanceOf(addr)
}

func (r *Registry) counter(key []byte) (uint64, error) {
	var n uint64
	if _, err := r.state.KVGet(key, &n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *Registry) bump(key []byte) error {
	n, err := r.counter(key)
	if err != nil {
		return err
	}
	return r.state.KVPut(key, n+1)
}

// AdmittedCount returns the number of Registered or Funded airlines.
func (r *Registry) AdmittedCount() (uint64, error) {
	if r == nil || r.state == nil {
		return 0, errNilState
	}
	return r.counter(keyAdmittedCount)
}

// FundedCount returns the number of Funded airlines.
func (r *Registry) FundedCount() (uint64, error) {
	if r == nil || r.state == nil {
		return 0, errNilState
	}
	return r.counter(keyFundedCount)
}

// Votes returns the pending vote tally for candidate.
func (r *Registry) Votes(candidate [20]byte) (int, error) {
	return r.votes.Tally(candidate)
}

// List returns every airline record in the order it was first seen.
func (r *Registry) List() ([]*Airline, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	index, err := r.state.KVGetList(keyIndex)
	if err != nil {
		return nil, err
	}
	out := make([]*Airline, 0, len(index))
	for _, raw := range index {
		var addr [20]byte
		copy(addr[:], raw)
		record, ok, err := r.Get(addr)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, record)
		}
	}
	return out, nil
}

// Register admits candidate on behalf of caller, or records caller's vote for
// it once the bootstrap phase is over.
func (r *Registry) Register(caller, candidate [20]byte) (*Admission, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	if candidate == ([20]byte{}) {
		return nil, ErrInvalidCandidate
	}
	record, exists, err := r.Get(candidate)
	if err != nil {
		return nil, err
	}
	if exists && record.Status.Admitted() {
		return nil, ErrAlreadyRegistered
	}
	if !exists {
		record = &Airline{Address: candidate}
	}
	admitted, err := r.AdmittedCount()
	if err != nil {
		return nil, err
	}
	callerFunded, err := r.IsFunded(caller)
	if err != nil {
		return nil, err
	}

	if admitted < r.bootstrap {
		if caller != r.owner && !callerFunded {
			return nil, ErrNotAuthorized
		}
		if err := r.admit(record, exists, caller); err != nil {
			return nil, err
		}
		return &Admission{Airline: record.Clone(), Admitted: true, Counted: true, Votes: 1, Quorum: 1}, nil
	}

	if !callerFunded {
		return nil, ErrNotAuthorized
	}
	funded, err := r.FundedCount()
	if err != nil {
		return nil, err
	}
	outcome, err := r.votes.Vote(candidate, caller, voting.Majority(int(funded)))
	if err != nil {
		return nil, err
	}
	result := &Admission{Counted: outcome.Counted, Votes: outcome.Votes, Quorum: outcome.Quorum}
	if outcome.Passed {
		if err := r.admit(record, exists, caller); err != nil {
			return nil, err
		}
		result.Admitted = true
		result.Airline = record.Clone()
		return result, nil
	}
	if !exists {
		record.Status = StatusProposed
		record.ProposedAt = r.now()
		if err := r.track(record); err != nil {
			return nil, err
		}
	}
	if outcome.Counted {
		r.emitter.Emit(NewVotedEvent(candidate, caller, outcome.Votes, outcome.Quorum))
	}
	result.Airline = record.Clone()
	return result, nil
}

func (r *Registry) track(record *Airline) error {
	if err := r.put(record); err != nil {
		return err
	}
	return r.state.KVAppend(keyIndex, record.Address[:])
}

func (r *Registry) admit(record *Airline, exists bool, sponsor [20]byte) error {
	now := r.now()
	if !exists {
		record.ProposedAt = now
	}
	record.Status = StatusRegistered
	record.AdmittedAt = now
	if err := r.track(record); err != nil {
		return err
	}
	if err := r.bump(keyAdmittedCount); err != nil {
		return err
	}
	r.emitter.Emit(NewAdmittedEvent(record, sponsor))
	return nil
}

// Fund deposits amount into caller's stake. Only admitted airlines may fund.
// The deposit that first reaches the threshold moves the airline to Funded.
func (r *Registry) Fund(caller [20]byte, amount *big.Int) (*fund.Deposit, error) {
	record, ok, err := r.Get(caller)
	if err != nil {
		return nil, err
	}
	if !ok || !record.Status.Admitted() {
		return nil, ErrNotAdmitted
	}
	deposit, err := r.funds.Deposit(caller, amount)
	if err != nil {
		return nil, err
	}
	if !deposit.Crossed || record.Status == StatusFunded {
		return deposit, nil
	}
	record.Status = StatusFunded
	record.FundedAt = r.now()
	if err := r.put(record); err != nil {
		return nil, err
	}
	if err := r.bump(keyFundedCount); err != nil {
		return nil, err
	}
	r.emitter.Emit(NewFundedEvent(record, deposit.Balance.String()))
	return deposit, nil
}
