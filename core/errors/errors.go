// Package errors declares the error kinds shared by every native module.
// Module packages wrap these with their own sentinels so callers can match on
// either the precise failure or its kind.
package errors

import stderrors "errors"

var (
	// ErrNotAuthorized marks callers lacking the required role or state.
	ErrNotAuthorized = stderrors.New("not authorized")
	// ErrInvalidState marks calls against an object in the wrong lifecycle
	// state, including calls made while the system is not operational.
	ErrInvalidState = stderrors.New("invalid state")
	// ErrInvalidAmount marks values that are zero, negative or otherwise out
	// of bounds.
	ErrInvalidAmount = stderrors.New("invalid amount")
	// ErrExceedsCap marks values above a configured ceiling.
	ErrExceedsCap = stderrors.New("exceeds cap")
	// ErrUnknownEntity marks lookups of flights, oracles or airlines that do
	// not exist.
	ErrUnknownEntity = stderrors.New("unknown entity")
	// ErrAlreadyExists marks attempts to create something already present.
	ErrAlreadyExists = stderrors.New("already exists")
	// ErrRequestNotOpen marks oracle responses for a key that was never opened.
	ErrRequestNotOpen = stderrors.New("request not open")
	// ErrRequestClosed marks oracle responses for a key that already reached
	// consensus.
	ErrRequestClosed = stderrors.New("request closed")
	// ErrInsufficientFunds marks stakes below the configured minimum.
	ErrInsufficientFunds = stderrors.New("insufficient funds")
	// ErrNothingToWithdraw marks withdrawals with no credited payout pending.
	ErrNothingToWithdraw = stderrors.New("nothing to withdraw")
)
