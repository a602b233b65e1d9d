package oracle

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"flightsurety/core/types"
	"flightsurety/native/flight"
)

const (
	EventTypeOracleRegistered = "oracle.registered"
	EventTypeOracleRequest    = "oracle.request"
	EventTypeOracleReport     = "oracle.report"
	EventTypeOracleClosed     = "oracle.closed"
)

// FormatIndexes renders indexes as a comma separated list.
func FormatIndexes(indexes []uint8) string {
	parts := make([]string, len(indexes))
	for i, idx := range indexes {
		parts[i] = strconv.Itoa(int(idx))
	}
	return strings.Join(parts, ",")
}

// NewRegisteredEvent is emitted when an oracle is admitted.
func NewRegisteredEvent(o *Oracle) *types.Event {
	return types.NewEvent(EventTypeOracleRegistered).
		With("oracle", common.Address(o.Address).Hex()).
		With("stake", o.Stake.String()).
		With("indexes", FormatIndexes(o.Indexes))
}

func requestEvent(kind string, r *Request) *types.Event {
	return types.NewEvent(kind).
		With("index", strconv.Itoa(int(r.Index))).
		With("airline", common.Address(r.Airline).Hex()).
		With("designator", r.Designator).
		With("timestamp", strconv.FormatUint(r.Timestamp, 10)).
		With("flightKey", common.Hash(r.FlightKey).Hex()).
		With("requestKey", common.Hash(r.Key()).Hex())
}

// NewRequestEvent announces an open request to oracle agents. The attributes
// carry the full submission tuple.
func NewRequestEvent(r *Request) *types.Event {
	return requestEvent(EventTypeOracleRequest, r).
		With("requester", common.Address(r.Requester).Hex())
}

// NewReportEvent is emitted for each counted oracle response.
func NewReportEvent(r *Request, oracle [20]byte, code flight.StatusCode, votes int) *types.Event {
	return requestEvent(EventTypeOracleReport, r).
		With("oracle", common.Address(oracle).Hex()).
		With("status", strconv.Itoa(int(code))).
		With("votes", strconv.Itoa(votes))
}

// NewClosedEvent is emitted when a status code reaches quorum.
func NewClosedEvent(r *Request) *types.Event {
	return requestEvent(EventTypeOracleClosed, r).
		With("status", strconv.Itoa(int(r.Outcome)))
}
