// Package diag holds bring-up tests that show whether a part really releases
// /WP and /HOLD when the bit is set. They write the status registers with
// the chosen options and drive the pins, so only run them on a test board.
package diag

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"

	"github.com/BertoldVdb/qereclaim/hostpin"
	"github.com/BertoldVdb/qereclaim/reclaim"
	"github.com/BertoldVdb/qereclaim/statusreg"
)

var (
	ErrNeedsS9      = errors.New("test only applies to parts with the bit at S9")
	ErrNotResident  = errors.New("critical section code is not resident outside the flash")
	ErrBusy         = errors.New("another test is running")
	ErrBadLocation  = errors.New("invalid bit location")
	ErrWidthInvalid = errors.New("16 bit writes need the bit at S9")
)

type Options struct {
	Location statusreg.Location

	// Use16Bit writes SR1 and SR2 together with the legacy 01h form.
	Use16Bit    bool
	NonVolatile bool

	// UsePreset leaves the bit as found and only reports it.
	UsePreset bool
}

type Suite struct {
	flash reclaim.RegisterAccess
	pins  hostpin.Control
	opts  Options

	mu sync.Mutex

	LogFunc func(format string, params ...any)
}

func New(flash reclaim.RegisterAccess, pins hostpin.Control, opts Options) (*Suite, error) {
	if !opts.Location.Valid() {
		return nil, ErrBadLocation
	}
	if opts.Use16Bit && !opts.Location.Supports(statusreg.Width16) {
		return nil, ErrWidthInvalid
	}

	return &Suite{
		flash: flash,
		pins:  pins,
		opts:  opts,
	}, nil
}

func (s *Suite) log(format string, params ...any) {
	if s.LogFunc != nil {
		s.LogFunc(format, params...)
	}
}

func (s *Suite) lock() error {
	if !s.mu.TryLock() {
		return ErrBusy
	}
	return nil
}

func (s *Suite) persistence() statusreg.Persistence {
	if s.opts.NonVolatile {
		return statusreg.NonVolatile
	}
	return statusreg.Volatile
}

func (s *Suite) width() statusreg.Width {
	if s.opts.Use16Bit {
		return statusreg.Width16
	}
	return statusreg.Width8
}

func (s *Suite) write8(r statusreg.Register, v byte) error {
	return s.flash.WriteRegister(r, uint16(v), s.persistence(), statusreg.Width8)
}

func (s *Suite) write16(sr1, sr2 byte) error {
	return s.flash.WriteRegister(statusreg.SR1, uint16(sr1)|uint16(sr2)<<8, s.persistence(), statusreg.Width16)
}

/* Hands the pins back to the flash, keeping the first error */
func (s *Suite) release(err *error, pins ...hostpin.Pin) {
	for _, p := range pins {
		if rerr := s.pins.SetMode(p, hostpin.ModeFlash); rerr != nil && *err == nil {
			*err = fmt.Errorf("release %s: %w", p, rerr)
		}
	}
}

func (s *Suite) drive(p hostpin.Pin, l gpio.Level) error {
	if err := s.pins.Out(p, l); err != nil {
		return err
	}
	return s.pins.SetMode(p, hostpin.ModeOutput)
}

func (s *Suite) setQE() (bool, error) {
	if err := s.flash.ClearWriteEnableLatch(); err != nil {
		return false, err
	}

	if s.opts.UsePreset {
		set, err := statusreg.Read(s.flash, s.opts.Location.Register())
		if err != nil {
			return false, err
		}
		qe := set.Has(s.opts.Location)
		s.log("diag: %s=%d used as found", s.opts.Location, b2i(qe))
		return qe, nil
	}

	e := reclaim.Engine{Access: s.flash, LogFunc: s.LogFunc}
	return e.Apply(reclaim.Attempt{
		Location:    s.opts.Location,
		Width:       s.width(),
		Persistence: s.persistence(),
	})
}

// SetQE sets the bit and reports whether it reads back set. With UsePreset
// it only reports the current state.
func (s *Suite) SetQE() (bool, error) {
	if err := s.lock(); err != nil {
		return false, err
	}
	defer s.mu.Unlock()

	return s.setQE()
}

// ProtectIsolation writes SRP1:SRP0=0:1 with every other bit clear, QE
// included, and reports whether SRP0 stuck. It arms /WP for the output test.
func (s *Suite) ProtectIsolation() (ok bool, err error) {
	if s.opts.Location != statusreg.LocationS9 {
		return false, ErrNeedsS9
	}
	if err := s.lock(); err != nil {
		return false, err
	}
	defer s.mu.Unlock()

	if err := s.flash.ClearWriteEnableLatch(); err != nil {
		return false, err
	}

	if err := s.drive(hostpin.WP, gpio.High); err != nil {
		return false, err
	}
	defer s.release(&err, hostpin.WP)

	if v, err := s.flash.ReadRegister(statusreg.SR1); err == nil && v&statusreg.BitSRP0 != 0 {
		s.log("diag: SRP0 already set")
	}

	/* SRP1 must stay clear, 1:1 can lock the registers for good */
	const sr1, sr2 byte = statusreg.BitSRP0, 0
	if s.opts.Use16Bit {
		err = s.write16(sr1, sr2)
	} else {
		err = s.writeSequence(
			regWrite{statusreg.SR2, sr2},
			regWrite{statusreg.SR1, sr1},
			regWrite{statusreg.SR2, sr2})
	}
	if err != nil {
		return false, err
	}

	v, err := s.flash.ReadRegister(statusreg.SR1)
	if err != nil {
		return false, err
	}
	return v&statusreg.BitSRP0 != 0, nil
}

// ProtectAndEnableClear clears SR1 and SR2 entirely and reports whether the
// writable SR1 bits read back zero.
func (s *Suite) ProtectAndEnableClear() (ok bool, err error) {
	if s.opts.Location != statusreg.LocationS9 {
		return false, ErrNeedsS9
	}
	if err := s.lock(); err != nil {
		return false, err
	}
	defer s.mu.Unlock()

	if err := s.flash.ClearWriteEnableLatch(); err != nil {
		return false, err
	}

	if err := s.drive(hostpin.WP, gpio.High); err != nil {
		return false, err
	}
	defer s.release(&err, hostpin.WP)

	if s.opts.Use16Bit {
		err = s.write16(0, 0)
	} else {
		err = s.writeSequence(
			regWrite{statusreg.SR1, 0},
			regWrite{statusreg.SR2, 0},
			regWrite{statusreg.SR1, 0})
	}
	if err != nil {
		return false, err
	}

	v, err := s.flash.ReadRegister(statusreg.SR1)
	if err != nil {
		return false, err
	}
	return v&^(statusreg.BitWIP|statusreg.BitWEL) == 0, nil
}

type regWrite struct {
	r statusreg.Register
	v byte
}

/* The order SR1 and SR2 must be written in differs between parts, so
 * callers repeat the first one at the end. */
func (s *Suite) writeSequence(seq ...regWrite) error {
	for _, w := range seq {
		if err := s.write8(w.r, w.v); err != nil {
			return fmt.Errorf("write %s: %w", w.r, err)
		}
	}
	return nil
}

/* Sets BP0 as a marker, checks it and clears it again. Only QE and SRP0
 * survive the write. */
func (s *Suite) markerWrite() (bool, error) {
	if err := s.flash.ClearWriteEnableLatch(); err != nil {
		return false, err
	}

	regs := []statusreg.Register{statusreg.SR1}
	if s.opts.Location == statusreg.LocationS9 {
		regs = append(regs, statusreg.SR2)
	}
	cur, err := statusreg.Read(s.flash, regs...)
	if err != nil {
		return false, err
	}

	keep := statusreg.BitSRP0
	if s.opts.Location == statusreg.LocationS6 {
		keep = statusreg.BitS6
	}
	sr1 := cur.Value(statusreg.SR1)&keep | statusreg.BitBP0
	sr2 := cur.Value(statusreg.SR2) & statusreg.BitQE

	write := func(sr1 byte) error {
		if s.opts.Use16Bit {
			return s.write16(sr1, sr2)
		}
		return s.write8(statusreg.SR1, sr1)
	}

	if err := write(sr1); err != nil {
		return false, err
	}
	v, err := s.flash.ReadRegister(statusreg.SR1)
	if err != nil {
		return false, err
	}

	if err := write(sr1 &^ statusreg.BitBP0); err != nil {
		return false, err
	}

	return v&statusreg.BitBP0 != 0, nil
}

// OutputWP drives /WP high and low around a marker write and classifies
// the result. Run ProtectIsolation first to arm the pin on S9 parts.
func (s *Suite) OutputWP() (r OutputTestResult, err error) {
	if err := s.lock(); err != nil {
		return r, err
	}
	defer s.mu.Unlock()

	r.Location = s.opts.Location

	/* /WP must not be asserted while the bit is written */
	if err := s.drive(hostpin.WP, gpio.High); err != nil {
		return r, err
	}
	defer s.release(&err, hostpin.WP)

	if r.QE, err = s.setQE(); err != nil {
		return r, err
	}

	sr1, err := s.flash.ReadRegister(statusreg.SR1)
	if err != nil {
		return r, err
	}
	r.SRP0 = sr1&statusreg.BitSRP0 != 0
	if s.opts.Location == statusreg.LocationS9 {
		sr2, err := s.flash.ReadRegister(statusreg.SR2)
		if err != nil {
			return r, err
		}
		r.SRP1 = sr2&statusreg.BitSRP1 != 0
	}

	if r.High, err = s.markerWrite(); err != nil {
		return r, err
	}

	if err := s.pins.Out(hostpin.WP, gpio.Low); err != nil {
		return r, err
	}
	if r.Low, err = s.markerWrite(); err != nil {
		return r, err
	}

	s.log("diag: %s", r)
	return r, nil
}

// OutputHold sets the bit and then drives /HOLD low inside cs. The flash
// must keep answering with the same id. On a host that executes from the
// flash a hang or watchdog reset during this test is the failure signal.
func (s *Suite) OutputHold(cs CriticalSection) (r HoldTestResult, err error) {
	if !cs.ResidentOutsideFlash() {
		return r, ErrNotResident
	}
	if err := s.lock(); err != nil {
		return r, err
	}
	defer s.mu.Unlock()

	if r.QE, err = s.setQE(); err != nil {
		return r, err
	}

	id, err := s.flash.ReadChipID()
	if err != nil {
		return r, err
	}

	err = cs.Run(func() error {
		if err := s.pins.SetMode(hostpin.Hold, hostpin.ModeOutput); err != nil {
			return err
		}
		if err := s.pins.Out(hostpin.Hold, gpio.Low); err != nil {
			return err
		}

		held, err := s.flash.ReadChipID()
		if err != nil {
			s.log("diag: no answer with /HOLD low: %v", err)
		}
		r.Responding = err == nil && held == id
		return nil
	})
	s.release(&err, hostpin.Hold)

	s.log("diag: %s", r)
	return r, err
}

// InputPins sets the bit, turns both pins into inputs and reads them.
func (s *Suite) InputPins() (r InputTestResult, err error) {
	if err := s.lock(); err != nil {
		return r, err
	}
	defer s.mu.Unlock()

	if r.QE, err = s.setQE(); err != nil {
		return r, err
	}

	defer s.release(&err, hostpin.All...)
	for _, p := range hostpin.All {
		if err := s.pins.SetMode(p, hostpin.ModeInput); err != nil {
			return r, err
		}
	}

	if r.WP, err = s.pins.Read(hostpin.WP); err != nil {
		return r, err
	}
	if r.Hold, err = s.pins.Read(hostpin.Hold); err != nil {
		return r, err
	}

	s.log("diag: %s", r)
	return r, nil
}

// PinShort drives each pin high and low and reads it back, to rule out a
// board level short before trusting the other tests.
func (s *Suite) PinShort() (r ShortTestResult, err error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	defer s.release(&err, hostpin.All...)
	for _, p := range hostpin.All {
		lv := PinLevels{Pin: p}

		if err := s.drive(p, gpio.High); err != nil {
			return r, err
		}
		if lv.DrivenHigh, err = s.pins.Read(p); err != nil {
			return r, err
		}
		if err := s.pins.Out(p, gpio.Low); err != nil {
			return r, err
		}
		if lv.DrivenLow, err = s.pins.Read(p); err != nil {
			return r, err
		}

		/* Leave /HOLD released before touching the next pin */
		if err := s.pins.Out(p, gpio.High); err != nil {
			return r, err
		}

		s.log("diag: %s", lv)
		r = append(r, lv)
	}
	return r, nil
}
