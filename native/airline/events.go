package airline

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"flightsurety/core/types"
)

const (
	EventTypeAirlineAdmitted = "airline.admitted"
	EventTypeAirlineVoted    = "airline.voted"
	EventTypeAirlineFunded   = "airline.funded"
)

// NewAdmittedEvent is emitted when a candidate becomes Registered.
func NewAdmittedEvent(a *Airline, sponsor [20]byte) *types.Event {
	return types.NewEvent(EventTypeAirlineAdmitted).
		With("airline", common.Address(a.Address).Hex()).
		With("sponsor", common.Address(sponsor).Hex())
}

// NewVotedEvent is emitted when a vote is counted without reaching quorum.
func NewVotedEvent(candidate, voter [20]byte, votes, quorum int) *types.Event {
	return types.NewEvent(EventTypeAirlineVoted).
		With("airline", common.Address(candidate).Hex()).
		With("voter", common.Address(voter).Hex()).
		With("votes", strconv.Itoa(votes)).
		With("quorum", strconv.Itoa(quorum))
}

// NewFundedEvent is emitted once per airline when its stake first reaches the
// funding threshold.
func NewFundedEvent(a *Airline, stake string) *types.Event {
	return types.NewEvent(EventTypeAirlineFunded).
		With("airline", common.Address(a.Address).Hex()).
		With("stake", stake)
}
