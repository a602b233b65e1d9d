package bank

import (
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	fserrors "flightsurety/core/errors"
	"flightsurety/core/state"
	"flightsurety/core/types"
)

// Decimals is the number of fractional digits in one unit of value.
const Decimals = 18

var (
	// ErrInsufficientBalance is returned when attached value exceeds the
	// payer's spendable balance.
	ErrInsufficientBalance = fmt.Errorf("bank: insufficient balance: %w", fserrors.ErrInsufficientFunds)
	// ErrNegativeAmount rejects negative transfers.
	ErrNegativeAmount = fmt.Errorf("bank: negative amount: %w", fserrors.ErrInvalidAmount)

	errNilState = fmt.Errorf("bank: state not configured")

	unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)
)

var vaultAddress = func() [20]byte {
	var addr [20]byte
	copy(addr[:], ethcrypto.Keccak256([]byte("flightsurety/vault"))[12:])
	return addr
}()

// VaultAddress returns the account holding airline stakes, oracle stakes and
// premiums.
func VaultAddress() [20]byte { return vaultAddress }

// Unit returns one whole unit expressed in base units.
func Unit() *big.Int { return new(big.Int).Set(unit) }

func accountKey(addr [20]byte) []byte {
	return append([]byte("bank/account/"), addr[:]...)
}

// Ledger keeps spendable balances per address.
type Ledger struct {
	state state.KV
}

// NewLedger binds a ledger to the supplied key/value state.
func NewLedger(kv state.KV) *Ledger { return &Ledger{state: kv} }

// Account loads the account for addr. Missing accounts are returned empty.
func (l *Ledger) Account(addr [20]byte) (*types.Account, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	acc := new(types.Account)
	ok, err := l.state.KVGet(accountKey(addr), acc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return (*types.Account)(nil).Clone(), nil
	}
	return acc.Clone(), nil
}

func (l *Ledger) putAccount(addr [20]byte, acc *types.Account) error {
	return l.state.KVPut(accountKey(addr), acc)
}

// Balance returns the spendable balance of addr.
func (l *Ledger) Balance(addr [20]byte) (*big.Int, error) {
	acc, err := l.Account(addr)
	if err != nil {
		return nil, err
	}
	return acc.Balance, nil
}

// Credit mints amount into addr. It is used for genesis allocations and the
// development faucet.
func (l *Ledger) Credit(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	acc, err := l.Account(addr)
	if err != nil {
		return err
	}
	acc.Balance.Add(acc.Balance, amount)
	return l.putAccount(addr, acc)
}

// Transfer moves amount from one account to another. A zero amount is a no-op.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	fromAcc, err := l.Account(from)
	if err != nil {
		return err
	}
	if fromAcc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	fromAcc.Balance.Sub(fromAcc.Balance, amount)
	fromAcc.Nonce++
	if err := l.putAccount(from, fromAcc); err != nil {
		return err
	}
	toAcc, err := l.Account(to)
	if err != nil {
		return err
	}
	toAcc.Balance.Add(toAcc.Balance, amount)
	return l.putAccount(to, toAcc)
}

// Collect debits attached value from payer into the vault.
func (l *Ledger) Collect(payer [20]byte, amount *big.Int) error {
	return l.Transfer(payer, vaultAddress, amount)
}

// Pay releases amount from the vault to the recipient.
func (l *Ledger) Pay(recipient [20]byte, amount *big.Int) error {
	return l.Transfer(vaultAddress, recipient, amount)
}

// ParseUnits converts a decimal string such as "0.5" into base units. More
// than Decimals fractional digits are rejected rather than truncated.
func ParseUnits(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("bank: amount required")
	}
	if strings.HasPrefix(trimmed, "-") {
		return nil, ErrNegativeAmount
	}
	whole, frac, _ := strings.Cut(trimmed, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > Decimals {
		return nil, fmt.Errorf("bank: amount %q has more than %d decimals: %w", value, Decimals, fserrors.ErrInvalidAmount)
	}
	digits := whole + frac + strings.Repeat("0", Decimals-len(frac))
	out, ok := new(big.Int).SetString(digits, 10)
	if !ok || strings.ContainsAny(digits, "+-") {
		return nil, fmt.Errorf("bank: invalid amount %q: %w", value, fserrors.ErrInvalidAmount)
	}
	return out, nil
}

// MustParseUnits is ParseUnits for constants known to be valid.
func MustParseUnits(value string) *big.Int {
	out, err := ParseUnits(value)
	if err != nil {
		panic(err)
	}
	return out
}

// FormatUnits renders base units as a decimal string without trailing zeros.
func FormatUnits(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	sign := ""
	abs := new(big.Int).Set(amount)
	if abs.Sign() < 0 {
		sign = "-"
		abs.Neg(abs)
	}
	whole, frac := new(big.Int).QuoRem(abs, unit, new(big.Int))
	if frac.Sign() == 0 {
		return sign + whole.String()
	}
	fracStr := frac.String()
	fracStr = strings.Repeat("0", Decimals-len(fracStr)) + fracStr
	return sign + whole.String() + "." + strings.TrimRight(fracStr, "0")
}
