package common

import (
	"fmt"

	fserrors "flightsurety/core/errors"
)

// ErrNotOperational is returned by every gated entry point while the
// operational flag is off.
var ErrNotOperational = fmt.Errorf("system not operational: %w", fserrors.ErrInvalidState)

// OperationalView exposes the committed operational flag.
type OperationalView interface {
	IsOperational() (bool, error)
}

// Guard fails with ErrNotOperational when the view reports the system as
// halted. A nil view is treated as operational.
func Guard(v OperationalView) error {
	if v == nil {
		return nil
	}
	ok, err := v.IsOperational()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotOperational
	}
	return nil
}
