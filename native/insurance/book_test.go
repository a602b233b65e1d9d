package insurance

import (
	"errors"
	"math/big"
	"testing"

	"flightsurety/core/events"
	fserrors "flightsurety/core/errors"
	"flightsurety/core/state"
	"flightsurety/native/flight"
	"flightsurety/storage"
)

var unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func units(num, den int64) *big.Int {
	out := new(big.Int).Mul(unit, big.NewInt(num))
	return out.Quo(out, big.NewInt(den))
}

type flightTable map[[32]byte]*flight.Flight

func (t flightTable) Get(key [32]byte) (*flight.Flight, bool, error) {
	f, ok := t[key]
	if !ok {
		return nil, false, nil
	}
	return f.Clone(), true, nil
}

type payments struct {
	paid map[[20]byte]*big.Int
	fail error
}

func (p *payments) Pay(recipient [20]byte, amount *big.Int) error {
	if p.fail != nil {
		return p.fail
	}
	if p.paid == nil {
		p.paid = make(map[[20]byte]*big.Int)
	}
	if p.paid[recipient] == nil {
		p.paid[recipient] = big.NewInt(0)
	}
	p.paid[recipient].Add(p.paid[recipient], amount)
	return nil
}

func insuree(fill byte) [20]byte {
	var out [20]byte
	out[0] = fill
	return out
}

type fixture struct {
	book    *Book
	flights flightTable
	payer   *payments
	rec     *events.Recorder
	manager *state.Manager
	key     [32]byte
}

func newFixture() *fixture {
	key := flight.Key([20]byte{1}, "F1", 100)
	flights := flightTable{key: {Key: key, Airline: [20]byte{1}, Designator: "F1", Timestamp: 100}}
	payer := &payments{}
	manager := state.NewManager(storage.NewMemDB())
	book := NewBook(manager, flights, payer, unit)
	rec := &events.Recorder{}
	book.SetEmitter(rec)
	return &fixture{book: book, flights: flights, payer: payer, rec: rec, manager: manager, key: key}
}

func TestBuyValidation(t *testing.T) {
	f := newFixture()
	b := insuree(0xB0)

	cases := []struct {
		name   string
		key    [32]byte
		amount *big.Int
		want   error
	}{
		{"zero", f.key, big.NewInt(0), ErrInvalidAmount},
		{"negative", f.key, big.NewInt(-1), ErrInvalidAmount},
		{"unknown flight", [32]byte{9}, units(1, 2), ErrUnknownFlight},
		{"over cap", f.key, new(big.Int).Add(unit, units(1, 100_000_000)), ErrExceedsCap},
	}
	for _, tc := range cases {
		if _, err := f.book.Buy(b, tc.key, tc.amount); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	if !errors.Is(ErrExceedsCap, fserrors.ErrExceedsCap) || !errors.Is(ErrUnknownFlight, fserrors.ErrUnknownEntity) {
		t.Fatalf("module errors must wrap their kinds")
	}

	p, err := f.book.Buy(b, f.key, unit)
	if err != nil {
		t.Fatalf("buy at cap: %v", err)
	}
	if p.Premium.Cmp(unit) != 0 {
		t.Fatalf("premium = %s", p.Premium)
	}
	amount, err := f.book.InsuranceAmount(f.key, b)
	if err != nil || amount.Cmp(unit) != 0 {
		t.Fatalf("insurance amount = %v (%v)", amount, err)
	}
}

func TestTopUpStaysWithinCap(t *testing.T) {
	f := newFixture()
	b := insuree(0xB0)
	if _, err := f.book.Buy(b, f.key, units(6, 10)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := f.book.Buy(b, f.key, units(5, 10)); !errors.Is(err, ErrExceedsCap) {
		t.Fatalf("expected top-up over cap to fail, got %v", err)
	}
	if _, err := f.book.Buy(b, f.key, units(4, 10)); err != nil {
		t.Fatalf("top-up to cap: %v", err)
	}
	policies, _ := f.book.PoliciesFor(f.key)
	if len(policies) != 1 || policies[0].Premium.Cmp(unit) != 0 {
		t.Fatalf("expected a single policy at the cap, got %+v", policies)
	}
	if len(f.rec.Events()) != 2 {
		t.Fatalf("expected 2 purchase events, got %d", len(f.rec.Events()))
	}
}

func TestBuyRejectedOnFinalizedFlight(t *testing.T) {
	f := newFixture()
	f.flights[f.key].Finalized = true
	if _, err := f.book.Buy(insuree(1), f.key, units(1, 2)); !errors.Is(err, ErrFlightFinalized) {
		t.Fatalf("expected finalized flight rejection, got %v", err)
	}
}

func TestCreditIsIdempotent(t *testing.T) {
	f := newFixture()
	b, c := insuree(0xB0), insuree(0xC0)
	if _, err := f.book.Buy(b, f.key, units(1, 2)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := f.book.Buy(c, f.key, units(1, 10)); err != nil {
		t.Fatalf("buy: %v", err)
	}

	res, err := f.book.CreditInsurees(f.key, DefaultPayoutBps)
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if res.AlreadyCredited || res.Policies != 2 {
		t.Fatalf("unexpected credit result %+v", res)
	}
	if want := units(90, 100); res.Total.Cmp(want) != 0 {
		t.Fatalf("total credited = %s, want %s", res.Total, want)
	}

	res, err = f.book.CreditInsurees(f.key, DefaultPayoutBps)
	if err != nil {
		t.Fatalf("second credit: %v", err)
	}
	if !res.AlreadyCredited || res.Policies != 0 {
		t.Fatalf("second credit must be a no-op, got %+v", res)
	}
	owed, _ := f.book.Withdrawable(b)
	if want := units(75, 100); owed.Cmp(want) != 0 {
		t.Fatalf("withdrawable = %s, want %s", owed, want)
	}
	if _, err := f.book.CreditInsurees(f.key, 0); !errors.Is(err, ErrInvalidMultiplier) {
		t.Fatalf("expected invalid multiplier, got %v", err)
	}
}

func TestWithdraw(t *testing.T) {
	f := newFixture()
	b := insuree(0xB0)
	if _, err := f.book.Withdraw(b); !errors.Is(err, ErrNothingToWithdraw) {
		t.Fatalf("expected nothing to withdraw, got %v", err)
	}
	if _, err := f.book.Buy(b, f.key, units(1, 2)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := f.book.Withdraw(b); !errors.Is(err, ErrNothingToWithdraw) {
		t.Fatalf("uncredited policy must not pay, got %v", err)
	}
	if _, err := f.book.CreditInsurees(f.key, DefaultPayoutBps); err != nil {
		t.Fatalf("credit: %v", err)
	}

	paid, err := f.book.Withdraw(b)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if want := units(75, 100); paid.Cmp(want) != 0 || f.payer.paid[b].Cmp(want) != 0 {
		t.Fatalf("paid %s, payer saw %s", paid, f.payer.paid[b])
	}
	if _, err := f.book.Withdraw(b); !errors.Is(err, fserrors.ErrNothingToWithdraw) {
		t.Fatalf("second withdraw must fail, got %v", err)
	}
	p, _, _ := f.book.Policy(f.key, b)
	if !p.Paid || p.Withdrawable().Sign() != 0 {
		t.Fatalf("policy should be marked paid, got %+v", p)
	}
}

func TestWithdrawFailureLeavesTxDiscardable(t *testing.T) {
	f := newFixture()
	b := insuree(0xB0)
	if _, err := f.book.Buy(b, f.key, units(1, 2)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := f.book.CreditInsurees(f.key, DefaultPayoutBps); err != nil {
		t.Fatalf("credit: %v", err)
	}

	tx := f.manager.Begin()
	failing := &payments{fail: errors.New("vault empty")}
	scoped := NewBook(tx, f.flights, failing, unit)
	if _, err := scoped.Withdraw(b); err == nil {
		t.Fatalf("expected payer failure")
	}
	tx.Discard()

	owed, _ := f.book.Withdrawable(b)
	if owed.Cmp(units(75, 100)) != 0 {
		t.Fatalf("discarded withdrawal must leave the credit in place, got %s", owed)
	}
}
