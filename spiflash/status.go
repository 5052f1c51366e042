package spiflash

import (
	"fmt"
	"time"

	"github.com/BertoldVdb/qereclaim/statusreg"
)

/* Non-volatile status register writes can take up to 15ms on most parts */
const statusWriteTimeout = time.Second

func (f *Flash) ReadRegister(r statusreg.Register) (byte, error) {
	var op byte
	switch r {
	case statusreg.SR1:
		op = opReadSR1
	case statusreg.SR2:
		op = opReadSR2
	case statusreg.SR3:
		op = opReadSR3
	default:
		return 0, ErrRegisterNotSupported
	}

	var result [1]byte
	if err := f.spi([]byte{op}, result[:]); err != nil {
		return 0, err
	}
	return result[0], nil
}

// WriteRegister writes a status register. A 16 bit write is only possible on
// SR1, in which case the upper byte goes to SR2. Parts that do not know the
// command silently ignore it, so the caller must read the value back.
func (f *Flash) WriteRegister(r statusreg.Register, value uint16, p statusreg.Persistence, w statusreg.Width) error {
	var cmd []byte
	switch {
	case w == statusreg.Width16 && r == statusreg.SR1:
		cmd = []byte{opWriteSR1, byte(value), byte(value >> 8)}
	case w == statusreg.Width16:
		return fmt.Errorf("%s: %w", r, ErrWidthNotSupported)
	case w != statusreg.Width8:
		return ErrWidthNotSupported
	case r == statusreg.SR1:
		cmd = []byte{opWriteSR1, byte(value)}
	case r == statusreg.SR2:
		cmd = []byte{opWriteSR2, byte(value)}
	case r == statusreg.SR3:
		cmd = []byte{opWriteSR3, byte(value)}
	default:
		return ErrRegisterNotSupported
	}

	if err := f.writeEnable(p == statusreg.NonVolatile); err != nil {
		return err
	}

	if err := f.spi(cmd, nil); err != nil {
		return err
	}

	f.log("spiflash: wrote %s=%0*x (%d bit, %s)", r, int(w)/4, value, w, p)

	return f.waitIdle(statusWriteTimeout)
}

func (f *Flash) ClearWriteEnableLatch() error {
	return f.spi([]byte{opWriteDisable}, nil)
}

func (f *Flash) IsWriteLatchSet() (bool, error) {
	status, err := f.statusRead()
	if err != nil {
		return false, err
	}
	return status&statusreg.BitWEL != 0, nil
}
