package insurance

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"flightsurety/core/events"
	fserrors "flightsurety/core/errors"
	"flightsurety/core/state"
	"flightsurety/native/flight"
)

var (
	ErrInvalidAmount     = fmt.Errorf("insurance: premium must be positive: %w", fserrors.ErrInvalidAmount)
	ErrExceedsCap        = fmt.Errorf("insurance: premium exceeds policy cap: %w", fserrors.ErrExceedsCap)
	ErrUnknownFlight     = fmt.Errorf("insurance: unknown flight: %w", fserrors.ErrUnknownEntity)
	ErrFlightFinalized   = fmt.Errorf("insurance: flight status already final: %w", fserrors.ErrInvalidState)
	ErrNothingToWithdraw = fmt.Errorf("insurance: %w", fserrors.ErrNothingToWithdraw)
	ErrInvalidMultiplier = fmt.Errorf("insurance: payout multiplier must be positive: %w", fserrors.ErrInvalidAmount)

	errNilState = errors.New("insurance: state not configured")
	errNilPayer = errors.New("insurance: payer not configured")
)

// FlightView resolves flight keys.
type FlightView interface {
	Get(key [32]byte) (*flight.Flight, bool, error)
}

// Payer releases funds held for insurees.
type Payer interface {
	Pay(recipient [20]byte, amount *big.Int) error
}

func policyKey(flightKey [32]byte, insuree [20]byte) []byte {
	out := make([]byte, 0, 17+32+20)
	out = append(out, "insurance/policy/"...)
	out = append(out, flightKey[:]...)
	return append(out, insuree[:]...)
}

func flightIndexKey(flightKey [32]byte) []byte {
	return append([]byte("insurance/by-flight/"), flightKey[:]...)
}

func insureeIndexKey(insuree [20]byte) []byte {
	return append([]byte("insurance/by-insuree/"), insuree[:]...)
}

func creditedKey(flightKey [32]byte) []byte {
	return append([]byte("insurance/credited/"), flightKey[:]...)
}

// Book records policies and settles payouts.
type Book struct {
	state   state.KV
	flights FlightView
	payer   Payer
	cap     *big.Int
	emitter events.Emitter
	nowFn   func() int64
}

// NewBook binds a book to kv. policyCap bounds the summed premium of a
// policy.
func NewBook(kv state.KV, flights FlightView, payer Payer, policyCap *big.Int) *Book {
	limit := big.NewInt(0)
	if policyCap != nil {
		limit.Set(policyCap)
	}
	return &Book{
		state:   kv,
		flights: flights,
		payer:   payer,
		cap:     limit,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (b *Book) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		b.emitter = events.NoopEmitter{}
		return
	}
	b.emitter = emitter
}

// SetNowFunc overrides the clock used for policy timestamps.
func (b *Book) SetNowFunc(now func() int64) {
	if now == nil {
		b.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	b.nowFn = now
}

func (b *Book) now() uint64 {
	if b == nil || b.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	return uint64(b.nowFn())
}

// Cap returns the per-policy premium ceiling.
func (b *Book) Cap() *big.Int { return new(big.Int).Set(b.cap) }

// Policy loads the policy held by insuree on a flight.
func (b *Book) Policy(flightKey [32]byte, insuree [20]byte) (*Policy, bool, error) {
	if b == nil || b.state == nil {
		return nil, false, errNilState
	}
	p := new(Policy)
	ok, err := b.state.KVGet(policyKey(flightKey, insuree), p)
	if err != nil || !ok {
		return nil, false, err
	}
	return p.Clone(), true, nil
}

func (b *Book) putPolicy(p *Policy) error {
	return b.state.KVPut(policyKey(p.FlightKey, p.Insuree), p)
}

// Buy records a premium paid by insuree on a flight. The summed premium of a
// policy may not exceed the cap.
func (b *Book) Buy(insuree [20]byte, flightKey [32]byte, amount *big.Int) (*Policy, error) {
	if b == nil || b.state == nil {
		return nil, errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	f, ok, err := b.flights.Get(flightKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknownFlight
	}
	if f.Finalized {
		return nil, ErrFlightFinalized
	}
	p, exists, err := b.Policy(flightKey, insuree)
	if err != nil {
		return nil, err
	}
	if !exists {
		p = &Policy{
			FlightKey:   flightKey,
			Insuree:     insuree,
			Premium:     big.NewInt(0),
			Credited:    big.NewInt(0),
			PurchasedAt: b.now(),
		}
	}
	total := new(big.Int).Add(p.Premium, amount)
	if total.Cmp(b.cap) > 0 {
		return nil, ErrExceedsCap
	}
	p.Premium = total
	if err := b.putPolicy(p); err != nil {
		return nil, err
	}
	if !exists {
		if err := b.state.KVAppend(flightIndexKey(flightKey), insuree[:]); err != nil {
			return nil, err
		}
		if err := b.state.KVAppend(insureeIndexKey(insuree), flightKey[:]); err != nil {
			return nil, err
		}
	}
	b.emitter.Emit(NewPurchasedEvent(p, amount.String()))
	return p.Clone(), nil
}

// InsuranceAmount returns the premium insuree paid on a flight, zero when no
// policy exists.
func (b *Book) InsuranceAmount(flightKey [32]byte, insuree [20]byte) (*big.Int, error) {
	p, ok, err := b.Policy(flightKey, insuree)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return p.Premium, nil
}

// PoliciesFor returns every policy written on a flight.
func (b *Book) PoliciesFor(flightKey [32]byte) ([]*Policy, error) {
	if b == nil || b.state == nil {
		return nil, errNilState
	}
	index, err := b.state.KVGetList(flightIndexKey(flightKey))
	if err != nil {
		return nil, err
	}
	out := make([]*Policy, 0, len(index))
	for _, raw := range index {
		var insuree [20]byte
		copy(insuree[:], raw)
		p, ok, err := b.Policy(flightKey, insuree)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// PoliciesOf returns every policy held by insuree.
func (b *Book) PoliciesOf(insuree [20]byte) ([]*Policy, error) {
	if b == nil || b.state == nil {
		return nil, errNilState
	}
	index, err := b.state.KVGetList(insureeIndexKey(insuree))
	if err != nil {
		return nil, err
	}
	out := make([]*Policy, 0, len(index))
	for _, raw := range index {
		var flightKey [32]byte
		copy(flightKey[:], raw)
		p, ok, err := b.Policy(flightKey, insuree)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Withdrawable sums the credited, unpaid payouts owed to insuree.
func (b *Book) Withdrawable(insuree [20]byte) (*big.Int, error) {
	policies, err := b.PoliciesOf(insuree)
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for _, p := range policies {
		total.Add(total, p.Withdrawable())
	}
	return total, nil
}

// IsCredited reports whether a flight's policies have been credited.
func (b *Book) IsCredited(flightKey [32]byte) (bool, error) {
	if b == nil || b.state == nil {
		return false, errNilState
	}
	return b.state.KVGet(creditedKey(flightKey), nil)
}

// CreditInsurees credits every policy on a flight with premium * bps /
// BasisPoints. A flight is credited at most once and each policy's credit is
// written at most once.
func (b *Book) CreditInsurees(flightKey [32]byte, bps uint64) (*CreditResult, error) {
	if bps == 0 {
		return nil, ErrInvalidMultiplier
	}
	done, err := b.IsCredited(flightKey)
	if err != nil {
		return nil, err
	}
	if done {
		return &CreditResult{AlreadyCredited: true, Total: big.NewInt(0)}, nil
	}
	policies, err := b.PoliciesFor(flightKey)
	if err != nil {
		return nil, err
	}
	result := &CreditResult{Total: big.NewInt(0)}
	now := b.now()
	for _, p := range policies {
		if p.Credited.Sign() > 0 {
			continue
		}
		p.Credited = Payout(p.Premium, bps)
		p.CreditedAt = now
		if err := b.putPolicy(p); err != nil {
			return nil, err
		}
		result.Policies++
		result.Total.Add(result.Total, p.Credited)
		b.emitter.Emit(NewCreditedEvent(p))
	}
	if err := b.state.KVPut(creditedKey(flightKey), now); err != nil {
		return nil, err
	}
	return result, nil
}

// Withdraw pays insuree every credited, unpaid payout. Policies are marked
// paid before the payer moves any funds.
func (b *Book) Withdraw(insuree [20]byte) (*big.Int, error) {
	if b == nil || b.state == nil {
		return nil, errNilState
	}
	if b.payer == nil {
		return nil, errNilPayer
	}
	policies, err := b.PoliciesOf(insuree)
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	now := b.now()
	for _, p := range policies {
		owed := p.Withdrawable()
		if owed.Sign() == 0 {
			continue
		}
		p.Paid = true
		p.PaidAt = now
		if err := b.putPolicy(p); err != nil {
			return nil, err
		}
		total.Add(total, owed)
	}
	if total.Sign() == 0 {
		return nil, ErrNothingToWithdraw
	}
	if err := b.payer.Pay(insuree, total); err != nil {
		return nil, err
	}
	b.emitter.Emit(NewPaidEvent(insuree, total.String()))
	return total, nil
}
