package insurance

import (
	"github.com/ethereum/go-ethereum/common"

	"flightsurety/core/types"
)

const (
	EventTypeInsurancePurchased = "insurance.purchased"
	EventTypeInsuranceCredited  = "insurance.credited"
	EventTypeInsurancePaid      = "insurance.paid"
)

// NewPurchasedEvent reports the premium paid by this call and the policy total.
func NewPurchasedEvent(p *Policy, amount string) *types.Event {
	return types.NewEvent(EventTypeInsurancePurchased).
		With("flightKey", common.Hash(p.FlightKey).Hex()).
		With("insuree", common.Address(p.Insuree).Hex()).
		With("amount", amount).
		With("premium", p.Premium.String())
}

// NewCreditedEvent is emitted per policy when a flight pays out.
func NewCreditedEvent(p *Policy) *types.Event {
	return types.NewEvent(EventTypeInsuranceCredited).
		With("flightKey", common.Hash(p.FlightKey).Hex()).
		With("insuree", common.Address(p.Insuree).Hex()).
		With("premium", p.Premium.String()).
		With("credited", p.Credited.String())
}

// NewPaidEvent is emitted when an insuree withdraws.
func NewPaidEvent(insuree [20]byte, amount string) *types.Event {
	return types.NewEvent(EventTypeInsurancePaid).
		With("insuree", common.Address(insuree).Hex()).
		With("amount", amount)
}
