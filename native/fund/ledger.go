package fund

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"flightsurety/core/events"
	fserrors "flightsurety/core/errors"
	"flightsurety/core/state"
	"flightsurety/core/types"
)

const EventTypeDeposited = "fund.deposited"

var (
	// ErrInvalidAmount rejects non-positive deposits.
	ErrInvalidAmount = fmt.Errorf("fund: deposit must be positive: %w", fserrors.ErrInvalidAmount)

	errNilState = errors.New("fund: state not configured")
)

// Deposit is the result of a successful deposit.
type Deposit struct {
	Balance *big.Int
	// Crossed is true only for the deposit that first lifts the balance to
	// the minimum threshold.
	Crossed bool
}

// Ledger tracks each airline's deposited stake.
type Ledger struct {
	state     state.KV
	threshold *big.Int
	emitter   events.Emitter
}

// NewLedger creates a ledger that considers an airline funded once its stake
// reaches threshold.
func NewLedger(kv state.KV, threshold *big.Int) *Ledger {
	floor := big.NewInt(0)
	if threshold != nil {
		floor.Set(threshold)
	}
	return &Ledger{state: kv, threshold: floor, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// Threshold returns the minimum stake.
func (l *Ledger) Threshold() *big.Int { return new(big.Int).Set(l.threshold) }

func stakeKey(airline [20]byte) []byte {
	return append([]byte("fund/stake/"), airline[:]...)
}

// BalanceOf returns the stake deposited by airline.
func (l *Ledger) BalanceOf(airline [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	balance := new(big.Int)
	if _, err := l.state.KVGet(stakeKey(airline), balance); err != nil {
		return nil, err
	}
	return balance, nil
}

// IsFunded reports whether airline's stake is at or above the threshold.
func (l *Ledger) IsFunded(airline [20]byte) (bool, error) {
	balance, err := l.BalanceOf(airline)
	if err != nil {
		return false, err
	}
	return balance.Cmp(l.threshold) >= 0, nil
}

// Deposit adds amount to airline's stake. Deposits only ever increase the
// balance.
func (l *Ledger) Deposit(airline [20]byte, amount *big.Int) (*Deposit, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	before, err := l.BalanceOf(airline)
	if err != nil {
		return nil, err
	}
	after := new(big.Int).Add(before, amount)
	if err := l.state.KVPut(stakeKey(airline), after); err != nil {
		return nil, err
	}
	result := &Deposit{
		Balance: new(big.Int).Set(after),
		Crossed: before.Cmp(l.threshold) < 0 && after.Cmp(l.threshold) >= 0,
	}
	l.emitter.Emit(types.NewEvent(EventTypeDeposited).
		With("airline", common.Address(airline).Hex()).
		With("amount", amount.String()).
		With("balance", after.String()))
	return result, nil
}
