package rpc

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"flightsurety/native/airline"
	"flightsurety/native/bank"
	"flightsurety/native/flight"
	"flightsurety/native/insurance"
	"flightsurety/native/multisig"
	"flightsurety/native/oracle"
)

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Amounts are rendered in whole units with up to 18 decimals.
func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return bank.FormatUnits(v)
}

func hexAddress(a [20]byte) string { return common.Address(a).Hex() }

func hexKey(k [32]byte) string { return common.Hash(k).Hex() }

type StatusResponse struct {
	Owner       string           `json:"owner"`
	Operational bool             `json:"operational"`
	Admins      []string         `json:"admins"`
	Pending     *PendingResponse `json:"pending,omitempty"`
	Vault       string           `json:"vault"`
}

type PendingResponse struct {
	Value      bool   `json:"value"`
	ProposedBy string `json:"proposedBy"`
	ProposedAt uint64 `json:"proposedAt"`
	Approvals  int    `json:"approvals"`
}

func pendingResponse(p *multisig.Pending, approvals int) *PendingResponse {
	if p == nil {
		return nil
	}
	return &PendingResponse{
		Value:      p.Value,
		ProposedBy: hexAddress(p.ProposedBy),
		ProposedAt: p.ProposedAt,
		Approvals:  approvals,
	}
}

type BalanceResponse struct {
	Address      string `json:"address"`
	Balance      string `json:"balance"`
	Withdrawable string `json:"withdrawable"`
}

type AirlineResponse struct {
	Address    string `json:"address"`
	Status     string `json:"status"`
	Stake      string `json:"stake"`
	Votes      int    `json:"votes"`
	ProposedAt uint64 `json:"proposedAt,omitempty"`
	AdmittedAt uint64 `json:"admittedAt,omitempty"`
	FundedAt   uint64 `json:"fundedAt,omitempty"`
}

func airlineResponse(a *airline.Airline, stake *big.Int, votes int) AirlineResponse {
	return AirlineResponse{
		Address:    hexAddress(a.Address),
		Status:     a.Status.String(),
		Stake:      formatAmount(stake),
		Votes:      votes,
		ProposedAt: a.ProposedAt,
		AdmittedAt: a.AdmittedAt,
		FundedAt:   a.FundedAt,
	}
}

type FlightResponse struct {
	Key         string `json:"key"`
	Airline     string `json:"airline"`
	Designator  string `json:"designator"`
	Timestamp   uint64 `json:"timestamp"`
	Status      uint8  `json:"status"`
	StatusName  string `json:"statusName"`
	Finalized   bool   `json:"finalized"`
	FinalizedAt uint64 `json:"finalizedAt,omitempty"`
}

func flightResponse(f *flight.Flight) FlightResponse {
	return FlightResponse{
		Key:         hexKey(f.Key),
		Airline:     hexAddress(f.Airline),
		Designator:  f.Designator,
		Timestamp:   f.Timestamp,
		Status:      uint8(f.Status),
		StatusName:  f.Status.String(),
		Finalized:   f.Finalized,
		FinalizedAt: f.FinalizedAt,
	}
}

func flightResponses(flights []*flight.Flight) []FlightResponse {
	out := make([]FlightResponse, 0, len(flights))
	for _, f := range flights {
		out = append(out, flightResponse(f))
	}
	return out
}

type PolicyResponse struct {
	FlightKey    string `json:"flightKey"`
	Insuree      string `json:"insuree"`
	Premium      string `json:"premium"`
	Credited     string `json:"credited"`
	Withdrawable string `json:"withdrawable"`
	Paid         bool   `json:"paid"`
	PurchasedAt  uint64 `json:"purchasedAt"`
	CreditedAt   uint64 `json:"creditedAt,omitempty"`
	PaidAt       uint64 `json:"paidAt,omitempty"`
}

func policyResponse(p *insurance.Policy) PolicyResponse {
	return PolicyResponse{
		FlightKey:    hexKey(p.FlightKey),
		Insuree:      hexAddress(p.Insuree),
		Premium:      formatAmount(p.Premium),
		Credited:     formatAmount(p.Credited),
		Withdrawable: formatAmount(p.Withdrawable()),
		Paid:         p.Paid,
		PurchasedAt:  p.PurchasedAt,
		CreditedAt:   p.CreditedAt,
		PaidAt:       p.PaidAt,
	}
}

func policyResponses(policies []*insurance.Policy) []PolicyResponse {
	out := make([]PolicyResponse, 0, len(policies))
	for _, p := range policies {
		out = append(out, policyResponse(p))
	}
	return out
}

type OracleResponse struct {
	Address      string `json:"address"`
	Stake        string `json:"stake"`
	Indexes      []int  `json:"indexes"`
	RegisteredAt uint64 `json:"registeredAt"`
}

func indexList(indexes []uint8) []int {
	out := make([]int, len(indexes))
	for i, idx := range indexes {
		out[i] = int(idx)
	}
	return out
}

func oracleResponse(o *oracle.Oracle) OracleResponse {
	return OracleResponse{
		Address:      hexAddress(o.Address),
		Stake:        formatAmount(o.Stake),
		Indexes:      indexList(o.Indexes),
		RegisteredAt: o.RegisteredAt,
	}
}

type TallyResponse struct {
	Code    uint8    `json:"code"`
	Oracles []string `json:"oracles"`
}

type RequestResponse struct {
	Key        string          `json:"key"`
	Index      uint8           `json:"index"`
	FlightKey  string          `json:"flightKey"`
	Airline    string          `json:"airline"`
	Designator string          `json:"designator"`
	Timestamp  uint64          `json:"timestamp"`
	Requester  string          `json:"requester"`
	OpenedAt   uint64          `json:"openedAt"`
	Closed     bool            `json:"closed"`
	ClosedAt   uint64          `json:"closedAt,omitempty"`
	Outcome    *uint8          `json:"outcome,omitempty"`
	Tallies    []TallyResponse `json:"tallies"`
}

func requestResponse(req *oracle.Request) RequestResponse {
	out := RequestResponse{
		Key:        hexKey(req.Key()),
		Index:      req.Index,
		FlightKey:  hexKey(req.FlightKey),
		Airline:    hexAddress(req.Airline),
		Designator: req.Designator,
		Timestamp:  req.Timestamp,
		Requester:  hexAddress(req.Requester),
		OpenedAt:   req.OpenedAt,
		Closed:     req.Closed,
		ClosedAt:   req.ClosedAt,
		Tallies:    make([]TallyResponse, 0, len(req.Tallies)),
	}
	if req.Closed {
		code := uint8(req.Outcome)
		out.Outcome = &code
	}
	for _, t := range req.Tallies {
		oracles := make([]string, 0, len(t.Oracles))
		for _, o := range t.Oracles {
			oracles = append(oracles, hexAddress(o))
		}
		out.Tallies = append(out.Tallies, TallyResponse{Code: uint8(t.Code), Oracles: oracles})
	}
	return out
}
