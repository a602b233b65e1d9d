package config

import (
	"fmt"
	"math/big"
	"strings"

	"flightsurety/core"
	"flightsurety/crypto"
	"flightsurety/native/bank"
	"flightsurety/native/oracle"
)

// MaxIndexSpace bounds the oracle index space; indexes are single bytes.
const MaxIndexSpace = 256

// ValidateParams rejects parameters the node cannot run with.
func ValidateParams(p Params) error {
	_, err := p.Core()
	return err
}

// Core parses the configured parameters into their runtime form.
func (p Params) Core() (core.Params, error) {
	var out core.Params
	funding, err := parsePositive("AirlineFunding", p.AirlineFunding)
	if err != nil {
		return out, err
	}
	policyCap, err := parsePositive("PolicyCap", p.PolicyCap)
	if err != nil {
		return out, err
	}
	stake, err := parsePositive("OracleMinStake", p.OracleMinStake)
	if err != nil {
		return out, err
	}
	if p.PayoutBps == 0 {
		return out, fmt.Errorf("params: PayoutBps must be positive")
	}
	if p.BootstrapAirlines <= 0 {
		return out, fmt.Errorf("params: BootstrapAirlines must be positive")
	}
	if p.OracleIndexSpace <= 0 || p.OracleIndexSpace > MaxIndexSpace {
		return out, fmt.Errorf("params: OracleIndexSpace must be within 1..%d", MaxIndexSpace)
	}
	if p.OracleIndexCount <= 0 || p.OracleIndexCount > p.OracleIndexSpace {
		return out, fmt.Errorf("params: OracleIndexCount must be within 1..OracleIndexSpace")
	}
	if p.OracleQuorum <= 0 {
		return out, fmt.Errorf("params: OracleQuorum must be positive")
	}
	out = core.Params{
		AirlineFunding:    funding,
		PolicyCap:         policyCap,
		BootstrapAirlines: p.BootstrapAirlines,
		Oracle: oracle.Params{
			MinStake:   stake,
			IndexCount: p.OracleIndexCount,
			IndexSpace: p.OracleIndexSpace,
			Quorum:     p.OracleQuorum,
			PayoutBps:  p.PayoutBps,
		},
	}
	return out, out.Validate()
}

func parsePositive(field, raw string) (*big.Int, error) {
	value, err := bank.ParseUnits(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("params: invalid %s: %w", field, err)
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("params: %s must be positive", field)
	}
	return value, nil
}

// Allocations parses the genesis allocations.
func (c *Config) Allocations() (map[[20]byte]*big.Int, error) {
	out := make(map[[20]byte]*big.Int, len(c.Genesis))
	for i, alloc := range c.Genesis {
		addr, err := crypto.ParseAddress(alloc.Address)
		if err != nil {
			return nil, fmt.Errorf("genesis[%d]: %w", i, err)
		}
		amount, err := parsePositive(fmt.Sprintf("genesis[%d].Amount", i), alloc.Amount)
		if err != nil {
			return nil, err
		}
		if existing, ok := out[addr]; ok {
			existing.Add(existing, amount)
			continue
		}
		out[addr] = amount
	}
	return out, nil
}

// OwnerAddress parses the configured owner.
func (c *Config) OwnerAddress() ([20]byte, error) {
	if strings.TrimSpace(c.Owner) == "" {
		return [20]byte{}, fmt.Errorf("config: Owner is required")
	}
	return crypto.ParseAddress(c.Owner)
}
