package flight

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"flightsurety/core/types"
)

const (
	EventTypeFlightRegistered = "flight.registered"
	EventTypeFlightStatus     = "flight.status"
)

// NewRegisteredEvent carries everything an off-chain consumer needs to look
// the flight up again.
func NewRegisteredEvent(f *Flight) *types.Event {
	return types.NewEvent(EventTypeFlightRegistered).
		With("flightKey", common.Hash(f.Key).Hex()).
		With("airline", common.Address(f.Airline).Hex()).
		With("designator", f.Designator).
		With("timestamp", strconv.FormatUint(f.Timestamp, 10))
}

// NewStatusEvent is emitted when consensus finalizes a flight.
func NewStatusEvent(f *Flight) *types.Event {
	return types.NewEvent(EventTypeFlightStatus).
		With("flightKey", common.Hash(f.Key).Hex()).
		With("airline", common.Address(f.Airline).Hex()).
		With("designator", f.Designator).
		With("timestamp", strconv.FormatUint(f.Timestamp, 10)).
		With("status", strconv.Itoa(int(f.Status)))
}
