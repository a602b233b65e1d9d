package core

import (
	"fmt"
	"math/big"

	"flightsurety/native/airline"
	"flightsurety/native/bank"
	"flightsurety/native/insurance"
	"flightsurety/native/oracle"
)

// Params are the economic and consensus parameters of the insurer.
type Params struct {
	AirlineFunding    *big.Int
	PolicyCap         *big.Int
	BootstrapAirlines int
	Oracle            oracle.Params
}

// DefaultParams returns one-unit funding, cap and oracle stake, a 1.5x payout,
// four bootstrap airlines and three of ten oracle indexes with a quorum of
// three.
func DefaultParams() Params {
	return Params{
		AirlineFunding:    bank.Unit(),
		PolicyCap:         bank.Unit(),
		BootstrapAirlines: airline.DefaultBootstrapAirlines,
		Oracle: oracle.Params{
			MinStake:   bank.Unit(),
			IndexCount: oracle.DefaultIndexCount,
			IndexSpace: oracle.DefaultIndexSpace,
			Quorum:     oracle.DefaultQuorum,
			PayoutBps:  insurance.DefaultPayoutBps,
		},
	}
}

// Validate rejects unusable parameters.
func (p Params) Validate() error {
	if p.AirlineFunding == nil || p.AirlineFunding.Sign() <= 0 {
		return fmt.Errorf("params: airline funding must be positive")
	}
	if p.PolicyCap == nil || p.PolicyCap.Sign() <= 0 {
		return fmt.Errorf("params: policy cap must be positive")
	}
	if p.BootstrapAirlines <= 0 {
		return fmt.Errorf("params: bootstrap airlines must be positive")
	}
	return p.Oracle.Validate()
}

// Clone returns a deep copy so callers cannot mutate the node's amounts.
func (p Params) Clone() Params {
	out := p
	if p.AirlineFunding != nil {
		out.AirlineFunding = new(big.Int).Set(p.AirlineFunding)
	}
	if p.PolicyCap != nil {
		out.PolicyCap = new(big.Int).Set(p.PolicyCap)
	}
	if p.Oracle.MinStake != nil {
		out.Oracle.MinStake = new(big.Int).Set(p.Oracle.MinStake)
	}
	return out
}
