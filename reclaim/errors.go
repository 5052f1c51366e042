package reclaim

import (
	"errors"
	"fmt"
)

var (
	ErrModeIncompatible  = errors.New("flash is in a quad transfer mode, /WP and /HOLD are data lines")
	ErrVendorUnsupported = errors.New("no strategy for this flash")
	ErrVerifyFailed      = errors.New("bit did not read back set")
	ErrRegisterAccess    = errors.New("register access failed")
	ErrBusy              = errors.New("reclaim already in progress")
)

// Outcome is the terminal result of a reclaim run.
type Outcome uint8

const (
	Success Outcome = iota + 1
	ModeIncompatible
	VendorUnsupported
	RegisterAccessFailure
	VerifyFailed
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case ModeIncompatible:
		return "mode incompatible"
	case VendorUnsupported:
		return "vendor unsupported"
	case RegisterAccessFailure:
		return "register access failure"
	case VerifyFailed:
		return "verify failed"
	}
	return "none"
}

func outcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, ErrModeIncompatible):
		return ModeIncompatible
	case errors.Is(err, ErrVendorUnsupported):
		return VendorUnsupported
	case errors.Is(err, ErrVerifyFailed):
		return VerifyFailed
	}
	return RegisterAccessFailure
}

// RegisterAccessError wraps a failure of the register access capability. It
// matches both ErrRegisterAccess and the underlying error.
type RegisterAccessError struct {
	Op  string
	Err error
}

func accessError(op string, err error) error {
	return &RegisterAccessError{Op: op, Err: err}
}

func (e *RegisterAccessError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RegisterAccessError) Unwrap() []error {
	return []error{ErrRegisterAccess, e.Err}
}
