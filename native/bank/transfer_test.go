package bank

import (
	"errors"
	"math/big"
	"testing"

	fserrors "flightsurety/core/errors"
	"flightsurety/core/state"
	"flightsurety/storage"
)

func addr(fill byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = fill
	}
	return out
}

func TestParseAndFormatUnits(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1", "1000000000000000000"},
		{"0.5", "500000000000000000"},
		{".75", "750000000000000000"},
		{"1.00000001", "1000000010000000000"},
		{"12", "12000000000000000000"},
	}
	for _, tc := range cases {
		got, err := ParseUnits(tc.in)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.in, err)
		}
		if got.String() != tc.want {
			t.Fatalf("parse %q: got %s want %s", tc.in, got, tc.want)
		}
	}
	for _, bad := range []string{"", "-1", "abc", "1.0000000000000000001", "1.-5"} {
		if _, err := ParseUnits(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
	if got := FormatUnits(MustParseUnits("0.75")); got != "0.75" {
		t.Fatalf("format: got %s", got)
	}
	if got := FormatUnits(MustParseUnits("12")); got != "12" {
		t.Fatalf("format: got %s", got)
	}
	if got := FormatUnits(nil); got != "0" {
		t.Fatalf("format nil: got %s", got)
	}
}

func TestLedgerTransfers(t *testing.T) {
	ledger := NewLedger(state.NewManager(storage.NewMemDB()))
	alice, bob := addr(0x01), addr(0x02)

	if err := ledger.Credit(alice, big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := ledger.Collect(alice, big.NewInt(40)); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if err := ledger.Pay(bob, big.NewInt(15)); err != nil {
		t.Fatalf("pay: %v", err)
	}

	check := func(who [20]byte, want int64) {
		t.Helper()
		bal, err := ledger.Balance(who)
		if err != nil {
			t.Fatalf("balance: %v", err)
		}
		if bal.Int64() != want {
			t.Fatalf("balance: got %s want %d", bal, want)
		}
	}
	check(alice, 60)
	check(bob, 15)
	check(VaultAddress(), 25)

	err := ledger.Transfer(bob, alice, big.NewInt(16))
	if !errors.Is(err, ErrInsufficientBalance) || !errors.Is(err, fserrors.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if err := ledger.Transfer(bob, alice, big.NewInt(-1)); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected negative amount error, got %v", err)
	}
	if err := ledger.Transfer(bob, alice, big.NewInt(0)); err != nil {
		t.Fatalf("zero transfer: %v", err)
	}
	check(bob, 15)
}
