package reclaim

import (
	"errors"
	"reflect"
	"testing"

	"github.com/BertoldVdb/qereclaim/flashsim"
	"github.com/BertoldVdb/qereclaim/hostpin"
	"github.com/BertoldVdb/qereclaim/spiflash"
	"github.com/BertoldVdb/qereclaim/statusreg"
)

/* spy records the order of latch clears, register writes and pin changes */
type spy struct {
	RegisterAccess
	pins PinControl

	events []string
}

func (s *spy) WriteRegister(r statusreg.Register, value uint16, p statusreg.Persistence, w statusreg.Width) error {
	s.events = append(s.events, "write")
	return s.RegisterAccess.WriteRegister(r, value, p, w)
}

func (s *spy) ClearWriteEnableLatch() error {
	s.events = append(s.events, "clear")
	return s.RegisterAccess.ClearWriteEnableLatch()
}

func (s *spy) SetMode(p hostpin.Pin, m hostpin.Mode) error {
	s.events = append(s.events, "pin")
	return s.pins.SetMode(p, m)
}

func (s *spy) count(ev string) int {
	n := 0
	for _, e := range s.events {
		if e == ev {
			n++
		}
	}
	return n
}

func setup(t *testing.T, p flashsim.Profile) (*flashsim.Device, *spiflash.Flash) {
	dev := flashsim.New(p)
	f, err := spiflash.New(dev.Transfer, 64)
	if err != nil {
		t.Fatal("spiflash.New:", err)
	}
	f.LogFunc = t.Logf
	dev.ResetCounters()
	return dev, f
}

func newReclaimer(t *testing.T, p flashsim.Profile) (*Reclaimer, *flashsim.Device) {
	dev, f := setup(t, p)
	r := New(f, dev, nil)
	r.LogFunc = t.Logf
	return r, dev
}

var fullTrace = []State{StateInit, StateModeCheck, StateLatchRecovery, StateVendorDispatch, StateFinalize, StateDone}

func TestReclaimS6NonVolatile(t *testing.T) {
	r, dev := newReclaimer(t, flashsim.Macronix)

	res, err := r.Run()
	if err != nil {
		t.Fatal("Run:", err)
	}
	if res.Outcome != Success || res.ChipID != 0x1620C2 {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Attempt.Location != statusreg.LocationS6 || res.Attempt.Persistence != statusreg.NonVolatile {
		t.Error("wrong attempt", res.Attempt)
	}
	if dev.Register(statusreg.SR1) != 0x40 || dev.NonVolatile(statusreg.SR1) != 0x40 {
		t.Errorf("SR1 = %02x/%02x, want 40", dev.Register(statusreg.SR1), dev.NonVolatile(statusreg.SR1))
	}
	if !reflect.DeepEqual(res.Trace, fullTrace) {
		t.Error("trace", res.Trace)
	}
	for _, p := range hostpin.All {
		if dev.PinMode(p) != hostpin.ModeInput {
			t.Errorf("%s left in mode %s", p, dev.PinMode(p))
		}
	}
	if dev.WEL() {
		t.Error("WEL left set")
	}
}

func TestReclaimDefaultFallback(t *testing.T) {
	r, dev := newReclaimer(t, flashsim.No16Bit)

	if !r.Reclaim() {
		t.Fatal("Reclaim failed")
	}
	if dev.Register(statusreg.SR2)&statusreg.BitQE == 0 {
		t.Error("QE not set")
	}
	if dev.Rejected != 1 {
		t.Error("expected one rejected 16 bit write, got", dev.Rejected)
	}
	if len(dev.Writes) != 1 || dev.Writes[0].Width != statusreg.Width8 || dev.Writes[0].Register != statusreg.SR2 {
		t.Errorf("writes %+v", dev.Writes)
	}
	if dev.NonVolatile(statusreg.SR2) != 0 {
		t.Error("default strategy wrote the non-volatile register")
	}
}

func TestReclaimDefault16Bit(t *testing.T) {
	r, dev := newReclaimer(t, flashsim.WinbondLegacy)
	dev.SetRegister(statusreg.SR1, statusreg.BitBP0|statusreg.BitBP1)

	res, err := r.Run()
	if err != nil {
		t.Fatal(err)
	}
	if res.Attempt.Width != statusreg.Width16 {
		t.Error("fallback used on a part that takes 16 bit writes")
	}
	if dev.Register(statusreg.SR1) != statusreg.BitBP0|statusreg.BitBP1 || dev.Register(statusreg.SR2) != statusreg.BitQE {
		t.Errorf("registers %02x %02x", dev.Register(statusreg.SR1), dev.Register(statusreg.SR2))
	}
}

func TestReclaimQuadMode(t *testing.T) {
	for _, mode := range []byte{0, 1} {
		dev, f := setup(t, flashsim.Winbond)
		dev.SetBootMode(mode)
		dev.SetWEL(true)

		s := &spy{RegisterAccess: f, pins: dev}
		r := New(s, s, nil)

		res, err := r.Run()
		if !errors.Is(err, ErrModeIncompatible) || res.Outcome != ModeIncompatible {
			t.Errorf("mode %d: %v %s", mode, err, res.Outcome)
		}
		if s.count("write") != 0 || len(dev.Writes) != 0 || dev.Rejected != 0 || dev.PinModeCalls != 0 {
			t.Errorf("mode %d: register or pin access in quad mode: %v", mode, s.events)
		}
		if !reflect.DeepEqual(s.events, []string{"clear"}) || dev.WEL() {
			t.Errorf("mode %d: latch left set: %v", mode, s.events)
		}
		if !reflect.DeepEqual(res.Trace, []State{StateInit, StateModeCheck, StateFailed}) {
			t.Error("trace", res.Trace)
		}
	}

	/* An explicit DIO setting overrides the image header */
	dev, f := setup(t, flashsim.Winbond)
	dev.SetBootMode(0)
	f.SetTransferMode(spiflash.ModeDIO)
	if !New(f, dev, nil).Reclaim() {
		t.Error("explicit DIO mode rejected")
	}
}

func TestReclaimVerifyFailed(t *testing.T) {
	r, dev := newReclaimer(t, flashsim.Winbond)
	dev.IgnoreWrites = true

	res, err := r.Run()
	if !errors.Is(err, ErrVerifyFailed) || res.Outcome != VerifyFailed {
		t.Fatalf("expected VerifyFailed, got %v %s", err, res.Outcome)
	}
	if dev.PinModeCalls != 0 {
		t.Error("pins changed after a failed verify")
	}
	if dev.WEL() {
		t.Error("WEL left set")
	}
	if res.Trace[len(res.Trace)-1] != StateFailed {
		t.Error("trace", res.Trace)
	}
}

func TestReclaimLatchRecovery(t *testing.T) {
	dev, f := setup(t, flashsim.GigaDevice)
	dev.SetWEL(true)

	s := &spy{RegisterAccess: f, pins: dev}
	r := New(s, s, nil)

	res, err := r.Run()
	if err != nil {
		t.Fatal(err)
	}
	if !res.LatchWasSet {
		t.Error("stuck latch not reported")
	}

	firstWrite, lastWrite, firstPin, lastClear := -1, -1, -1, -1
	for i, e := range s.events {
		switch e {
		case "write":
			if firstWrite < 0 {
				firstWrite = i
			}
			lastWrite = i
		case "pin":
			if firstPin < 0 {
				firstPin = i
			}
		case "clear":
			if firstPin < 0 {
				lastClear = i
			}
		}
	}
	if firstWrite < 0 || s.events[0] != "clear" {
		t.Fatal("latch not cleared before the first write:", s.events)
	}
	if lastClear < lastWrite || lastClear > firstPin {
		t.Error("latch not cleared between the last write and the pin change:", s.events)
	}
	if s.count("pin") != 2 {
		t.Error("expected both pins to be released")
	}
	if dev.WEL() {
		t.Error("WEL left set")
	}
}

func TestReclaimIdempotent(t *testing.T) {
	for _, p := range []flashsim.Profile{flashsim.Winbond, flashsim.GigaDevice, flashsim.XMC, flashsim.Macronix, flashsim.EON} {
		r, dev := newReclaimer(t, p)
		dev.SetRegister(statusreg.SR3, 0x60)

		if !r.Reclaim() {
			t.Fatal(p.Name, "first run failed")
		}
		dev.ResetCounters()

		res, err := r.Run()
		if err != nil || res.Outcome != Success {
			t.Error(p.Name, "second run failed:", err)
		}
		if len(dev.Writes) != 0 || dev.Rejected != 0 {
			t.Errorf("%s: second run wrote %+v", p.Name, dev.Writes)
		}
	}
}

func TestReclaimEON(t *testing.T) {
	r, dev := newReclaimer(t, flashsim.EON)
	if !r.Reclaim() {
		t.Fatal("EN25Q32C not reclaimed")
	}
	if dev.Register(statusreg.SR1) != statusreg.BitS6 || dev.NonVolatile(statusreg.SR1) != 0 {
		t.Error("WPDis not set volatile")
	}

	r, dev = newReclaimer(t, flashsim.EONUnsupported)
	res, err := r.Run()
	if !errors.Is(err, ErrVendorUnsupported) || res.Outcome != VendorUnsupported {
		t.Error("unsupported EON part:", err)
	}
	if len(dev.Writes) != 0 || dev.PinModeCalls != 0 {
		t.Error("unsupported part touched")
	}

	/* A caller-supplied rule covers it */
	table, err := DefaultTable().With(Rule{
		Name: "en25q32", Vendor: VendorEON, IDMask: 0xFFFF, IDMatch: 0x331C,
		Strategy: strategyS6Volatile,
	})
	if err != nil {
		t.Fatal(err)
	}
	_, f := setup(t, flashsim.EONUnsupported)
	if !New(f, nil, table).Reclaim() {
		t.Error("custom rule not used")
	}
}

func TestReclaimPreservesSR3(t *testing.T) {
	r, dev := newReclaimer(t, flashsim.XMC)
	dev.SetRegister(statusreg.SR3, 0x60)

	res, err := r.Run()
	if err != nil {
		t.Fatal(err)
	}
	if !res.Attempt.Location.Valid() || dev.Register(statusreg.SR2)&statusreg.BitQE == 0 {
		t.Error("QE not set")
	}
	if dev.Register(statusreg.SR3) != 0x60 {
		t.Errorf("SR3 = %02x, driver strength lost", dev.Register(statusreg.SR3))
	}
	last := dev.Writes[len(dev.Writes)-1]
	if last.Register != statusreg.SR3 || last.Persistence != statusreg.Volatile {
		t.Errorf("SR3 restore %+v", last)
	}
	if dev.NonVolatile(statusreg.SR3) != 0x60 || dev.NonVolatile(statusreg.SR2) != 0 {
		t.Error("non-volatile registers changed")
	}
}

func TestReclaimSFDPRule(t *testing.T) {
	dev, f := setup(t, flashsim.XMC)
	fp, err := f.SFDPFingerprint()
	if err != nil {
		t.Fatal(err)
	}

	table, _ := DefaultTable().With(Rule{
		Name: "xmc-sfdp", Vendor: VendorXMC, SFDPFingerprint: fp,
		Strategy: Strategy{
			Name:     "xmc by fingerprint",
			Attempts: []Attempt{{statusreg.LocationS9, statusreg.Width16, statusreg.Volatile}},
		},
	})

	res, err := New(f, dev, table).Run()
	if err != nil {
		t.Fatal(err)
	}
	if res.Strategy != "xmc by fingerprint" || res.Attempt.Width != statusreg.Width16 {
		t.Error("fingerprint rule not selected:", res.Strategy)
	}
}

func TestReclaimAccessFailure(t *testing.T) {
	r, dev := newReclaimer(t, flashsim.Winbond)
	dev.FailTransfers = flashsim.ErrInjected

	res, err := r.Run()
	if !errors.Is(err, ErrRegisterAccess) || !errors.Is(err, flashsim.ErrInjected) {
		t.Error("error does not wrap the cause:", err)
	}
	var rae *RegisterAccessError
	if !errors.As(err, &rae) || rae.Op != "read chip id" {
		t.Error("wrong error type", err)
	}
	if res.Outcome != RegisterAccessFailure || dev.PinModeCalls != 0 {
		t.Error("unexpected result", res.Outcome)
	}
}

func TestReclaimBusy(t *testing.T) {
	r, dev := newReclaimer(t, flashsim.Winbond)

	r.mu.Lock()
	if _, err := r.Run(); err != ErrBusy {
		t.Error("concurrent run not rejected:", err)
	}
	r.mu.Unlock()

	if dev.Transfers != 0 {
		t.Error("busy run touched the flash")
	}
	if !r.Reclaim() {
		t.Error("run after unlock failed")
	}
}

/* failingPins refuses to change one pin */
type failingPins struct {
	PinControl
	fail hostpin.Pin
}

func (f failingPins) SetMode(p hostpin.Pin, m hostpin.Mode) error {
	if p == f.fail {
		return flashsim.ErrInjected
	}
	return f.PinControl.SetMode(p, m)
}

func TestReclaimPinFailure(t *testing.T) {
	dev, f := setup(t, flashsim.Winbond)
	r := New(f, failingPins{PinControl: dev, fail: hostpin.Hold}, nil)
	r.LogFunc = t.Logf

	res, err := r.Run()
	if !errors.Is(err, ErrRegisterAccess) || res.Outcome != RegisterAccessFailure {
		t.Fatal("pin failure not reported:", res.Outcome, err)
	}
	if m := dev.PinMode(hostpin.WP); m != hostpin.ModeFlash {
		t.Errorf("/WP left in mode %s", m)
	}
	if dev.WEL() {
		t.Error("latch left set")
	}
}
