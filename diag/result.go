package diag

import (
	"fmt"
	"strings"

	"periph.io/x/conn/v3/gpio"

	"github.com/BertoldVdb/qereclaim/hostpin"
	"github.com/BertoldVdb/qereclaim/statusreg"
)

// Behavior is how a part treated /WP during the output test.
type Behavior uint8

const (
	// BehaviorWriteFailed means the marker write failed with /WP high, so
	// nothing can be concluded.
	BehaviorWriteFailed Behavior = iota
	// BehaviorIgnoresWP parts accepted the write with /WP low although the
	// protection was armed and QE was clear.
	BehaviorIgnoresWP
	// BehaviorWPDisabled parts accepted the write with /WP low because the
	// bit turned the pin function off.
	BehaviorWPDisabled
	// BehaviorHonorsSRP parts block the write with /WP low while SRP1:SRP0
	// is 0:1, even with QE set. Clearing SRP0 is needed to free the pin.
	BehaviorHonorsSRP
	// BehaviorHonorsWP parts block the write with /WP low and QE clear.
	BehaviorHonorsWP
	// BehaviorNotArmed means SRP1:SRP0 is not 0:1, the part was never asked
	// to look at /WP.
	BehaviorNotArmed
)

func (b Behavior) String() string {
	switch b {
	case BehaviorWriteFailed:
		return "write failed with /WP high"
	case BehaviorIgnoresWP:
		return "ignores /WP"
	case BehaviorWPDisabled:
		return "/WP disabled by the bit"
	case BehaviorHonorsSRP:
		return "honours SRP1:SRP0 regardless of QE"
	case BehaviorHonorsWP:
		return "honours /WP (bit clear)"
	case BehaviorNotArmed:
		return "protection not armed, inconclusive"
	}
	return fmt.Sprintf("behavior(%d)", uint8(b))
}

type OutputTestResult struct {
	Location statusreg.Location
	QE       bool
	SRP0     bool
	SRP1     bool

	// High and Low report whether the marker write went through with /WP
	// driven high and low.
	High bool
	Low  bool
}

func (r OutputTestResult) armed() bool {
	return r.SRP0 && !r.SRP1
}

func (r OutputTestResult) Classify() Behavior {
	switch {
	case !r.High:
		return BehaviorWriteFailed
	case !r.Low && r.QE:
		return BehaviorHonorsSRP
	case !r.Low:
		return BehaviorHonorsWP
	case !r.armed():
		return BehaviorNotArmed
	case r.QE:
		return BehaviorWPDisabled
	}
	return BehaviorIgnoresWP
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func passFail(b bool) string {
	if b {
		return "pass"
	}
	return "fail"
}

func (r OutputTestResult) String() string {
	return fmt.Sprintf("%s=%d SRP1:SRP0=%d:%d /WP high: %s, /WP low: %s (%s)",
		r.Location, b2i(r.QE), b2i(r.SRP1), b2i(r.SRP0), passFail(r.High), passFail(r.Low), r.Classify())
}

type HoldTestResult struct {
	QE bool

	// Responding is true when the flash still answered with the same id
	// while /HOLD was driven low.
	Responding bool
}

func (r HoldTestResult) String() string {
	switch {
	case r.Responding && r.QE:
		return "pass: /HOLD disabled"
	case r.Responding:
		return "flash answered with the bit clear, the part may have no /HOLD function"
	}
	return "fail: flash stopped answering with /HOLD low"
}

type InputTestResult struct {
	QE   bool
	WP   gpio.Level
	Hold gpio.Level
}

func (r InputTestResult) String() string {
	return fmt.Sprintf("bit=%d /WP=%s /HOLD=%s", b2i(r.QE), r.WP, r.Hold)
}

type PinLevels struct {
	Pin hostpin.Pin

	// DrivenHigh and DrivenLow are the levels read back while driving.
	DrivenHigh gpio.Level
	DrivenLow  gpio.Level
}

// Stuck reports a pin that reads the same level whatever is driven.
func (p PinLevels) Stuck() (gpio.Level, bool) {
	return p.DrivenHigh, p.DrivenHigh == p.DrivenLow
}

func (p PinLevels) OK() bool {
	return p.DrivenHigh == gpio.High && p.DrivenLow == gpio.Low
}

func (p PinLevels) String() string {
	if l, stuck := p.Stuck(); stuck {
		return fmt.Sprintf("%s stuck %s", p.Pin, l)
	}
	if !p.OK() {
		return fmt.Sprintf("%s inverted", p.Pin)
	}
	return fmt.Sprintf("%s ok", p.Pin)
}

type ShortTestResult []PinLevels

func (r ShortTestResult) OK() bool {
	for _, p := range r {
		if !p.OK() {
			return false
		}
	}
	return true
}

func (r ShortTestResult) String() string {
	parts := make([]string, len(r))
	for i, p := range r {
		parts[i] = p.String()
	}
	return strings.Join(parts, ", ")
}
