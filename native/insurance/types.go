package insurance

import "math/big"

// BasisPoints is the denominator for payout multipliers.
const BasisPoints = 10_000

// DefaultPayoutBps credits 1.5x the premium.
const DefaultPayoutBps = 15_000

// Policy is one insuree's cover on one flight. Repeated purchases on the same
// flight top up the premium.
type Policy struct {
	FlightKey   [32]byte
	Insuree     [20]byte
	Premium     *big.Int
	Credited    *big.Int
	Paid        bool
	PurchasedAt uint64
	CreditedAt  uint64
	PaidAt      uint64
}

// Clone returns a deep copy of the policy with non-nil amounts.
func (p *Policy) Clone() *Policy {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Premium = cloneAmount(p.Premium)
	clone.Credited = cloneAmount(p.Credited)
	return &clone
}

// Withdrawable returns the credited amount still owed to the insuree.
func (p *Policy) Withdrawable() *big.Int {
	if p == nil || p.Paid || p.Credited == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(p.Credited)
}

// Payout computes premium * bps / BasisPoints, rounding down.
func Payout(premium *big.Int, bps uint64) *big.Int {
	if premium == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(premium, new(big.Int).SetUint64(bps))
	return out.Quo(out, big.NewInt(BasisPoints))
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// CreditResult summarises a CreditInsurees call.
type CreditResult struct {
	// AlreadyCredited is set when the flight had been credited before and the
	// call changed nothing.
	AlreadyCredited bool
	Policies        int
	Total           *big.Int
}
