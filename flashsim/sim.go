// Package flashsim simulates a SPI NOR flash at the opcode level together with
// the two host pins wired to its /WP and /HOLD inputs.
package flashsim

import (
	"encoding/binary"
	"errors"
	"sync"

	"periph.io/x/conn/v3/gpio"

	"github.com/BertoldVdb/qereclaim/hostpin"
	"github.com/BertoldVdb/qereclaim/image"
	"github.com/BertoldVdb/qereclaim/statusreg"
)

var ErrInjected = errors.New("flashsim: injected transfer failure")

// Write records a status register write the device accepted.
type Write struct {
	Register    statusreg.Register
	Value       uint16
	Width       statusreg.Width
	Persistence statusreg.Persistence
}

type pinState struct {
	mode  hostpin.Mode
	level gpio.Level
	stuck *gpio.Level
}

type Device struct {
	mu sync.Mutex
	p  Profile

	nv  [3]byte
	vol [3]byte

	wel      bool
	volArmed bool

	mem  [256]byte
	pins [2]pinState

	// FailTransfers makes every transfer fail with this error.
	FailTransfers error
	// IgnoreWrites makes the device drop every status register write.
	IgnoreWrites bool

	Writes       []Write
	Rejected     int
	PinModeCalls int
	Transfers    int
}

func New(p Profile) *Device {
	d := &Device{p: p}
	for i := range d.mem {
		d.mem[i] = 0xFF
	}
	return d
}

func (d *Device) Profile() Profile {
	return d.p
}

// SetRegister presets both projections of a register.
func (d *Device) SetRegister(r statusreg.Register, v byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nv[r] = v
	d.vol[r] = v
}

// Register returns the volatile (active) value.
func (d *Device) Register(r statusreg.Register) byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.vol[r]
}

func (d *Device) NonVolatile(r statusreg.Register) byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nv[r]
}

// SetWEL simulates an earlier write that left the latch set.
func (d *Device) SetWEL(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.wel = v
}

func (d *Device) WEL() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.wel
}

// SetBootMode writes an ESP8266 image header with the given flash mode byte.
func (d *Device) SetBootMode(mode byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.mem[:], []byte{image.Magic, 0x01, mode, 0x20})
}

// PowerCycle reloads the volatile registers from their non-volatile copy.
func (d *Device) PowerCycle() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vol = d.nv
	d.wel = false
	d.volArmed = false
}

// Short ties a pin to a fixed level, as a solder bridge would.
func (d *Device) Short(p hostpin.Pin, l gpio.Level) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pins[p].stuck = &l
}

func (d *Device) PinMode(p hostpin.Pin) hostpin.Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pins[p].mode
}

func (d *Device) ResetCounters() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Writes = nil
	d.Rejected = 0
	d.PinModeCalls = 0
	d.Transfers = 0
}

/* Level seen on the flash side. Released pins are pulled up on the board. */
func (d *Device) line(p hostpin.Pin) gpio.Level {
	s := d.pins[p]
	if s.stuck != nil {
		return *s.stuck
	}
	if s.mode == hostpin.ModeOutput {
		return s.level
	}
	return gpio.High
}

func (d *Device) qe() bool {
	l := d.p.Location
	if !l.Valid() {
		return false
	}
	return d.vol[l.Register()]&l.Mask() != 0
}

func (d *Device) holding() bool {
	return d.p.Hold && !d.qe() && d.line(hostpin.Hold) == gpio.Low
}

func (d *Device) protected() bool {
	srp0 := d.vol[statusreg.SR1]&statusreg.BitSRP0 != 0
	srp1 := d.p.Registers > 1 && d.vol[statusreg.SR2]&statusreg.BitSRP1 != 0
	if !srp0 || srp1 || d.line(hostpin.WP) != gpio.Low {
		return false
	}

	switch d.p.WP {
	case WPUnlessQE:
		return !d.qe()
	case WPHonorsSRP:
		return true
	}
	return false
}

func (d *Device) readRegister(r statusreg.Register) byte {
	if int(r) >= d.p.Registers {
		return 0xFF
	}
	v := d.vol[r]
	if r == statusreg.SR1 {
		v &^= statusreg.BitWIP | statusreg.BitWEL
		if d.wel {
			v |= statusreg.BitWEL
		}
	}
	return v
}

func (d *Device) reject() {
	d.Rejected++
	if !d.p.LatchStuckOnReject {
		d.wel = false
	}
	d.volArmed = false
}

func (d *Device) writeRegisters(width statusreg.Width, value uint16, regs ...statusreg.Register) {
	if !d.wel && !d.volArmed {
		return
	}
	if d.IgnoreWrites || d.protected() {
		d.wel = false
		d.volArmed = false
		return
	}

	volatileOnly := d.volArmed
	for i, r := range regs {
		mask := byte(0xFF)
		if r == statusreg.SR1 {
			mask = 0xFC
		}
		v := byte(value >> (8 * i))

		d.vol[r] = d.vol[r]&^mask | v&mask
		if !volatileOnly {
			d.nv[r] = d.nv[r]&^mask | v&mask
		}

		if r == statusreg.SR2 && volatileOnly && d.p.ClearsSR3OnSR2Write {
			d.vol[statusreg.SR3] &^= sr3DriverStrength
		}
	}

	p := statusreg.NonVolatile
	if volatileOnly {
		p = statusreg.Volatile
	}
	d.Writes = append(d.Writes, Write{Register: regs[0], Value: value, Width: width, Persistence: p})

	d.wel = false
	d.volArmed = false
}

func fill(in []byte, src []byte, offset int) {
	for i := range in {
		if offset+i >= 0 && offset+i < len(src) {
			in[i] = src[offset+i]
		} else {
			in[i] = 0xFF
		}
	}
}

// Transfer implements spiflash.SPIFunc: out is clocked out, then in is read.
func (d *Device) Transfer(out []byte, in []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.Transfers++
	if d.FailTransfers != nil {
		return d.FailTransfers
	}

	if len(out) == 0 || d.holding() {
		fill(in, nil, 0)
		return nil
	}

	data := out[1:]
	addr := func() int {
		if len(data) < 3 {
			return -1
		}
		return int(data[0])<<16 | int(data[1])<<8 | int(data[2])
	}

	switch out[0] {
	case 0x9F:
		fill(in, d.p.JEDEC[:], 0)

	case 0x05:
		fill(in, []byte{d.readRegister(statusreg.SR1)}, 0)
	case 0x35:
		fill(in, []byte{d.readRegister(statusreg.SR2)}, 0)
	case 0x15:
		fill(in, []byte{d.readRegister(statusreg.SR3)}, 0)

	case 0x06:
		d.wel = true
		d.volArmed = false
	case 0x50:
		if d.p.Volatile {
			d.volArmed = true
		}
	case 0x04:
		d.wel = false
		d.volArmed = false

	case 0x01:
		switch {
		case len(data) == 1:
			d.writeRegisters(statusreg.Width8, uint16(data[0]), statusreg.SR1)
		case len(data) == 2 && d.p.Accepts16 && d.p.Registers > 1:
			d.writeRegisters(statusreg.Width16, binary.LittleEndian.Uint16(data), statusreg.SR1, statusreg.SR2)
		default:
			d.reject()
		}
	case 0x31:
		if len(data) == 1 && d.p.Accepts8SR2 && d.p.Registers > 1 {
			d.writeRegisters(statusreg.Width8, uint16(data[0]), statusreg.SR2)
		} else {
			d.reject()
		}
	case 0x11:
		if len(data) == 1 && d.p.Registers > 2 {
			d.writeRegisters(statusreg.Width8, uint16(data[0]), statusreg.SR3)
		} else {
			d.reject()
		}

	case 0x03:
		fill(in, d.mem[:], addr())
	case 0x5A:
		fill(in, d.p.SFDP, addr())

	default:
		fill(in, nil, 0)
	}

	return nil
}

func (d *Device) SetMode(p hostpin.Pin, m hostpin.Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.PinModeCalls++
	d.pins[p].mode = m
	return nil
}

func (d *Device) Out(p hostpin.Pin, l gpio.Level) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pins[p].level = l
	return nil
}

func (d *Device) Read(p hostpin.Pin) (gpio.Level, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.line(p), nil
}
