package reclaim

import (
	"fmt"

	"github.com/BertoldVdb/qereclaim/statusreg"
)

// Engine performs a single attempt at setting the bit. It does not retry and
// does not undo side effects on other bits; fallbacks belong to the strategy.
type Engine struct {
	Access RegisterAccess

	LogFunc func(format string, params ...any)
}

func (e *Engine) log(format string, params ...any) {
	if e.LogFunc != nil {
		e.LogFunc(format, params...)
	}
}

// Apply returns true when the bit reads back set. An attempt the location
// cannot support is a programming error and panics.
func (e *Engine) Apply(a Attempt) (bool, error) {
	if err := a.validate(); err != nil {
		panic("reclaim: " + err.Error())
	}

	/* A latch left over from a rejected write would turn the next opcode
	 * into a write with the wrong persistence */
	if err := e.Access.ClearWriteEnableLatch(); err != nil {
		return false, accessError("write disable", err)
	}

	target := a.Location.Register()
	regs := []statusreg.Register{target}
	if a.Width == statusreg.Width16 {
		regs = []statusreg.Register{statusreg.SR1, statusreg.SR2}
	}

	before, err := statusreg.Read(e.Access, regs...)
	if err != nil {
		return false, accessError("read", err)
	}

	if before.Has(a.Location) {
		e.log("reclaim: %s already set (%s)", a.Location, before)
		return true, nil
	}

	want := before.With(a.Location)

	reg := target
	value := uint16(want.Value(target))
	if a.Width == statusreg.Width16 {
		reg = statusreg.SR1
		value = want.Combined()
	}

	e.log("reclaim: %s: %s -> %s", a, before, want)
	if err := e.Access.WriteRegister(reg, value, a.Persistence, a.Width); err != nil {
		return false, accessError(fmt.Sprintf("write %s", reg), err)
	}

	after, err := statusreg.Read(e.Access, regs...)
	if err != nil {
		return false, accessError("read back", err)
	}

	if d := after.Diff(before); d != [3]byte{} {
		e.log("reclaim: read back %s, changed bits %02x", after, d)
	}

	return after.Has(a.Location), nil
}
