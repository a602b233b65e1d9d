package core

import (
	"math/big"

	"flightsurety/native/airline"
	"flightsurety/native/bank"
	"flightsurety/native/flight"
	"flightsurety/native/insurance"
	"flightsurety/native/multisig"
	"flightsurety/native/oracle"
)

func (n *Node) read() (*engines, func()) {
	n.mu.RLock()
	return n.view(), n.mu.RUnlock
}

// IsOperational reports the committed operational flag.
func (n *Node) IsOperational() (bool, error) {
	e, done := n.read()
	defer done()
	return e.gate.IsOperational()
}

// Admins returns the governance admins, owner first.
func (n *Node) Admins() ([][20]byte, error) {
	e, done := n.read()
	defer done()
	return e.gate.Admins()
}

// PendingOperatingStatus returns the proposal collecting approvals and its
// approval count.
func (n *Node) PendingOperatingStatus() (*multisig.Pending, int, bool, error) {
	e, done := n.read()
	defer done()
	pending, ok, err := e.gate.Pending()
	if err != nil || !ok {
		return nil, 0, false, err
	}
	approvals, err := e.gate.Approvals()
	if err != nil {
		return nil, 0, false, err
	}
	return pending, approvals, true, nil
}

// Balance returns addr's spendable balance.
func (n *Node) Balance(addr [20]byte) (*big.Int, error) {
	e, done := n.read()
	defer done()
	return e.bank.Balance(addr)
}

// VaultBalance returns the funds held for airline stakes, oracle stakes and
// premiums.
func (n *Node) VaultBalance() (*big.Int, error) {
	return n.Balance(bank.VaultAddress())
}

// IsAirline reports whether addr is an admitted airline.
func (n *Node) IsAirline(addr [20]byte) (bool, error) {
	e, done := n.read()
	defer done()
	return e.airlines.IsAirline(addr)
}

// IsFundedAirline reports whether addr may vote and register flights.
func (n *Node) IsFundedAirline(addr [20]byte) (bool, error) {
	e, done := n.read()
	defer done()
	return e.airlines.IsFunded(addr)
}

// AirlineStake returns the stake addr deposited as an airline.
func (n *Node) AirlineStake(addr [20]byte) (*big.Int, error) {
	e, done := n.read()
	defer done()
	return e.airlines.StakeOf(addr)
}

// Airline loads an airline record, including proposed candidates.
func (n *Node) Airline(addr [20]byte) (*airline.Airline, bool, error) {
	e, done := n.read()
	defer done()
	return e.airlines.Get(addr)
}

// Airlines lists every known airline in registration order.
func (n *Node) Airlines() ([]*airline.Airline, error) {
	e, done := n.read()
	defer done()
	return e.airlines.List()
}

// AirlineVotes returns the votes a candidate has collected.
func (n *Node) AirlineVotes(candidate [20]byte) (int, error) {
	e, done := n.read()
	defer done()
	return e.airlines.Votes(candidate)
}

// Flight loads a flight by key.
func (n *Node) Flight(key [32]byte) (*flight.Flight, bool, error) {
	e, done := n.read()
	defer done()
	return e.flights.Get(key)
}

// Flights lists every registered flight.
func (n *Node) Flights() ([]*flight.Flight, error) {
	e, done := n.read()
	defer done()
	return e.flights.List()
}

// FlightsByAirline lists the flights registered by one airline.
func (n *Node) FlightsByAirline(addr [20]byte) ([]*flight.Flight, error) {
	e, done := n.read()
	defer done()
	return e.flights.ListByAirline(addr)
}

// IsOracleRegistered reports whether addr is a registered oracle.
func (n *Node) IsOracleRegistered(addr [20]byte) (bool, error) {
	e, done := n.read()
	defer done()
	return e.oracles.IsRegistered(addr)
}

// OracleIndexes returns the indexes assigned to a registered oracle.
func (n *Node) OracleIndexes(addr [20]byte) ([]uint8, error) {
	e, done := n.read()
	defer done()
	return e.oracles.Indexes(addr)
}

// Oracle loads an oracle record.
func (n *Node) Oracle(addr [20]byte) (*oracle.Oracle, bool, error) {
	e, done := n.read()
	defer done()
	return e.oracles.Get(addr)
}

// OracleRequest loads a status request by its tuple.
func (n *Node) OracleRequest(index uint8, airlineAddr [20]byte, designator string, timestamp uint64) (*oracle.Request, bool, error) {
	e, done := n.read()
	defer done()
	return e.consensus.Request(index, airlineAddr, designator, timestamp)
}

// IsResponseOpen reports whether submissions for the tuple are accepted.
func (n *Node) IsResponseOpen(index uint8, airlineAddr [20]byte, designator string, timestamp uint64) (bool, error) {
	e, done := n.read()
	defer done()
	return e.consensus.IsResponseOpen(index, airlineAddr, designator, timestamp)
}

// InsuranceAmount returns the premium insuree paid on a flight.
func (n *Node) InsuranceAmount(flightKey [32]byte, insuree [20]byte) (*big.Int, error) {
	e, done := n.read()
	defer done()
	return e.book.InsuranceAmount(flightKey, insuree)
}

// Policy loads insuree's policy on a flight.
func (n *Node) Policy(flightKey [32]byte, insuree [20]byte) (*insurance.Policy, bool, error) {
	e, done := n.read()
	defer done()
	return e.book.Policy(flightKey, insuree)
}

// PoliciesOf lists insuree's policies.
func (n *Node) PoliciesOf(insuree [20]byte) ([]*insurance.Policy, error) {
	e, done := n.read()
	defer done()
	return e.book.PoliciesOf(insuree)
}

// PoliciesFor lists the policies written on a flight.
func (n *Node) PoliciesFor(flightKey [32]byte) ([]*insurance.Policy, error) {
	e, done := n.read()
	defer done()
	return e.book.PoliciesFor(flightKey)
}

// Withdrawable returns the credited payout insuree may withdraw.
func (n *Node) Withdrawable(insuree [20]byte) (*big.Int, error) {
	e, done := n.read()
	defer done()
	return e.book.Withdrawable(insuree)
}
