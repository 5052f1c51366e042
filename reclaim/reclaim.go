// Package reclaim frees the /WP and /HOLD pins of a SPI NOR flash by setting
// the status register bit that turns their function off, so the host can use
// them as ordinary GPIOs.
package reclaim

import (
	"fmt"
	"sync"

	"github.com/BertoldVdb/qereclaim/hostpin"
	"github.com/BertoldVdb/qereclaim/statusreg"
)

type State uint8

const (
	StateInit State = iota
	StateModeCheck
	StateLatchRecovery
	StateVendorDispatch
	StateFinalize
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateModeCheck:
		return "mode check"
	case StateLatchRecovery:
		return "latch recovery"
	case StateVendorDispatch:
		return "vendor dispatch"
	case StateFinalize:
		return "finalize"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// PinControl is the part of the host pin capability the reclaimer needs.
type PinControl interface {
	SetMode(p hostpin.Pin, m hostpin.Mode) error
}

type Result struct {
	Outcome Outcome
	Err     error

	ChipID   uint32
	Strategy string

	// Attempt is the attempt that verified, only valid on Success.
	Attempt Attempt

	// LatchWasSet reports a write enable latch left set on entry.
	LatchWasSet bool

	Trace []State
}

type Reclaimer struct {
	access     RegisterAccess
	pins       PinControl
	strategies StrategyProvider

	mu sync.Mutex

	LogFunc func(format string, params ...any)
}

// New creates a reclaimer. A nil provider selects DefaultTable. With nil pins
// the pin functions are left to the caller.
func New(access RegisterAccess, pins PinControl, strategies StrategyProvider) *Reclaimer {
	if strategies == nil {
		strategies = DefaultTable()
	}
	return &Reclaimer{
		access:     access,
		pins:       pins,
		strategies: strategies,
	}
}

func (r *Reclaimer) log(format string, params ...any) {
	if r.LogFunc != nil {
		r.LogFunc(format, params...)
	}
}

// Reclaim runs once and reports whether the pins are free.
func (r *Reclaimer) Reclaim() bool {
	_, err := r.Run()
	return err == nil
}

func next(err error, s State) State {
	if err != nil {
		return StateFailed
	}
	return s
}

// Run executes the state machine. The returned error matches one of the
// package sentinels with errors.Is. A concurrent call returns ErrBusy and an
// empty Result.
func (r *Reclaimer) Run() (Result, error) {
	if !r.mu.TryLock() {
		return Result{}, ErrBusy
	}
	defer r.mu.Unlock()

	var (
		res        Result
		id         Identity
		err        error
		identified bool
	)

	state := StateInit
	for {
		res.Trace = append(res.Trace, state)
		r.log("reclaim: %s", state)

		switch state {
		case StateInit:
			id.ChipID, err = r.access.ReadChipID()
			if err != nil {
				err = accessError("read chip id", err)
			}
			identified = err == nil
			res.ChipID = id.ChipID
			r.log("reclaim: chip id %06x", id.ChipID)
			state = next(err, StateModeCheck)

		case StateModeCheck:
			if r.access.IsQuadTransferModeActive() {
				err = ErrModeIncompatible
			}
			state = next(err, StateLatchRecovery)

		case StateLatchRecovery:
			res.LatchWasSet, err = r.recoverLatch()
			state = next(err, StateVendorDispatch)

		case StateVendorDispatch:
			err = r.dispatch(id, &res)
			state = next(err, StateFinalize)

		case StateFinalize:
			err = r.finalize()
			state = next(err, StateDone)

		case StateDone:
			res.Outcome = Success
			r.log("reclaim: /WP and /HOLD released using %s", res.Attempt)
			return res, nil

		case StateFailed:
			/* Write disable is not a register write, quad mode gets it too */
			if identified {
				if cerr := r.access.ClearWriteEnableLatch(); cerr != nil {
					r.log("reclaim: write disable after failure: %v", cerr)
				}
			}
			res.Outcome = outcomeOf(err)
			res.Err = err
			r.log("reclaim: %s: %v", res.Outcome, err)
			return res, err
		}
	}
}

func (r *Reclaimer) recoverLatch() (bool, error) {
	set, err := r.access.IsWriteLatchSet()
	if err != nil {
		return false, accessError("read write enable latch", err)
	}
	if !set {
		return false, nil
	}

	r.log("reclaim: write enable latch was left set, an earlier status write failed")
	if err := r.access.ClearWriteEnableLatch(); err != nil {
		return true, accessError("write disable", err)
	}
	return true, nil
}

func (r *Reclaimer) identify(id Identity) Identity {
	src, ok := r.access.(SFDPSource)
	if !ok {
		return id
	}
	fp, err := src.SFDPFingerprint()
	if err != nil {
		r.log("reclaim: SFDP fingerprint unavailable: %v", err)
		return id
	}
	id.SFDPFingerprint = fp
	return id
}

func (r *Reclaimer) dispatch(id Identity, res *Result) error {
	id = r.identify(id)

	s, ok := r.strategies.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: chip id %06x", ErrVendorUnsupported, id.ChipID)
	}
	res.Strategy = s.Name
	r.log("reclaim: strategy %q", s.Name)

	if s.PreserveSR3 {
		sr3, err := r.access.ReadRegister(statusreg.SR3)
		if err != nil {
			r.log("reclaim: SR3 backup failed, not restoring: %v", err)
		} else {
			defer r.restoreSR3(sr3)
		}
	}

	e := Engine{Access: r.access, LogFunc: r.LogFunc}
	for _, a := range s.Attempts {
		ok, err := e.Apply(a)
		if err != nil {
			return err
		}
		if ok {
			res.Attempt = a
			return nil
		}
		r.log("reclaim: %s did not verify", a)
	}

	return fmt.Errorf("%w: %s", ErrVerifyFailed, s.Name)
}

/* Some parts lose the SR3 driver strength on a volatile SR2 write */
func (r *Reclaimer) restoreSR3(v byte) {
	if cur, err := r.access.ReadRegister(statusreg.SR3); err == nil && cur == v {
		return
	}

	err := r.access.WriteRegister(statusreg.SR3, uint16(v), statusreg.Volatile, statusreg.Width8)
	if err != nil {
		r.log("reclaim: SR3 restore failed: %v", err)
		return
	}
	r.log("reclaim: SR3 restored to %02x", v)
}

func (r *Reclaimer) finalize() error {
	if err := r.access.ClearWriteEnableLatch(); err != nil {
		return accessError("write disable", err)
	}

	if r.pins == nil {
		return nil
	}
	for i, p := range hostpin.All {
		if err := r.pins.SetMode(p, hostpin.ModeInput); err != nil {
			/* Both pins or neither */
			for _, q := range hostpin.All[:i] {
				if rerr := r.pins.SetMode(q, hostpin.ModeFlash); rerr != nil {
					r.log("reclaim: cannot return %s to the flash: %v", q, rerr)
				}
			}
			return accessError(fmt.Sprintf("set %s to input", p), err)
		}
	}
	return nil
}
