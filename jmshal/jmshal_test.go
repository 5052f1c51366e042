package jmshal

import (
	"encoding/binary"
	"errors"
	"testing"

	"periph.io/x/conn/v3/gpio"

	"github.com/BertoldVdb/qereclaim/flashsim"
	"github.com/BertoldVdb/qereclaim/hostpin"
	"github.com/BertoldVdb/qereclaim/reclaim"
	"github.com/BertoldVdb/qereclaim/spiflash"
	"github.com/BertoldVdb/qereclaim/statusreg"
)

/* bridge emulates the XDATA window of the controller with a flash on its SPI port */
type bridge struct {
	xdata [0x10000]byte
	flash *flashsim.Device

	fifo     []byte
	readback int
	commands int
	fail     error
}

func newBridge(p flashsim.Profile) *bridge {
	b := &bridge{flash: flashsim.New(p)}
	b.xdata[regGPIODir] = 0xff
	b.xdata[regGPIOIn] = 0xff
	return b
}

func (b *bridge) offset(cmd []byte) (uint16, int, error) {
	if len(cmd) != 12 || cmd[0] != cmdXDATA {
		return 0, 0, errors.New("unknown command")
	}
	return binary.BigEndian.Uint16(cmd[6:]), int(cmd[4]), nil
}

func (b *bridge) Read(cmd []byte, data *[]byte) error {
	b.commands++
	if b.fail != nil {
		return b.fail
	}

	if len(cmd) == 3 && cmd[0] == 0xe0 {
		binary.BigEndian.PutUint32((*data)[12:], 0x00010203)
		return nil
	}

	offset, n, err := b.offset(cmd)
	if err != nil {
		return err
	}
	if cmd[11] != memXDATARead || n != len(*data) {
		return errors.New("bad read")
	}
	copy(*data, b.xdata[offset:])
	return nil
}

func (b *bridge) Write(cmd []byte, data []byte) error {
	b.commands++
	if b.fail != nil {
		return b.fail
	}

	offset, n, err := b.offset(cmd)
	if err != nil {
		return err
	}
	if cmd[11] != memXDATAWrite || n != len(data) {
		return errors.New("bad write")
	}

	for i, v := range data {
		b.store(offset+uint16(i), v)
	}
	return nil
}

func (b *bridge) store(offset uint16, v byte) {
	switch offset {
	case regSPITx:
		b.fifo = append(b.fifo, v)
	case regSPIReadback:
		b.readback++
	case regSPIStart:
		in := make([]byte, b.readback)
		b.flash.Transfer(b.fifo, in)
		copy(b.xdata[regSPIRx:], in)
		b.fifo = nil
		b.readback = 0
	case regGPIODir, regGPIOOut:
		b.xdata[offset] = v
		b.mirror()
	default:
		b.xdata[offset] = v
	}
}

/* Routes the GPIO registers to the simulated pins, GPIO1 is /WP and GPIO2 is /HOLD */
func (b *bridge) mirror() {
	for p, bit := range map[hostpin.Pin]byte{hostpin.WP: 1 << 1, hostpin.Hold: 1 << 2} {
		if b.xdata[regGPIODir]&bit == 0 {
			b.flash.SetMode(p, hostpin.ModeOutput)
			b.flash.Out(p, b.xdata[regGPIOOut]&bit != 0)
		} else {
			b.flash.SetMode(p, hostpin.ModeInput)
		}

		if l, _ := b.flash.Read(p); l {
			b.xdata[regGPIOIn] |= bit
		} else {
			b.xdata[regGPIOIn] &^= bit
		}
	}
}

func newHal(t *testing.T, p flashsim.Profile) (*JMSHal, *bridge) {
	b := newBridge(p)
	d, err := New(b, DefaultPinMap)
	if err != nil {
		t.Fatal("New:", err)
	}
	d.LogFunc = t.Logf
	return d, b
}

func TestXDATAChunks(t *testing.T) {
	d, b := newHal(t, flashsim.Winbond)

	data := make([]byte, 600)
	for i := range data {
		data[i] = byte(i)
	}

	b.commands = 0
	if n, err := d.XDATAWrite(0x1000, data); n != len(data) || err != nil {
		t.Fatal("XDATAWrite:", n, err)
	}
	if b.commands != 3 {
		t.Error("expected three commands, got", b.commands)
	}

	back := make([]byte, len(data))
	if _, err := d.XDATARead(0x1000, back); err != nil {
		t.Fatal(err)
	}
	for i := range back {
		if back[i] != data[i] {
			t.Fatalf("mismatch at %d", i)
		}
	}

	if n, _ := d.XDATARead(0xfff0, back); n != 0x10 {
		t.Error("read wrapped past the end of XDATA:", n)
	}
}

func TestSPI(t *testing.T) {
	d, _ := newHal(t, flashsim.Winbond)

	if err := d.SPI(make([]byte, 10), make([]byte, 7)); err != ErrorSPIViolated {
		t.Error("oversized transaction accepted:", err)
	}

	id := make([]byte, 3)
	if err := d.SPI([]byte{0x9f}, id); err != nil {
		t.Fatal(err)
	}
	if id[0] != 0xef || id[1] != 0x40 || id[2] != 0x16 {
		t.Errorf("bad id %x", id)
	}
}

func TestVersionGet(t *testing.T) {
	d, _ := newHal(t, flashsim.Winbond)
	if v, err := d.VersionGet(); err != nil || v != 0x00010203 {
		t.Errorf("version %08x %v", v, err)
	}
}

func TestPinMap(t *testing.T) {
	if _, err := New(newBridge(flashsim.Winbond), PinMap{WP: 3, Hold: 3}); !errors.Is(err, ErrPinMap) {
		t.Error("shared GPIO accepted:", err)
	}
	if _, err := New(newBridge(flashsim.Winbond), PinMap{WP: 8, Hold: 1}); !errors.Is(err, ErrPinMap) {
		t.Error("GPIO out of range accepted:", err)
	}
}

func TestGPIO(t *testing.T) {
	d, b := newHal(t, flashsim.Winbond)

	if err := d.Out(hostpin.WP, gpio.Low); err != nil {
		t.Fatal(err)
	}
	if err := d.SetMode(hostpin.WP, hostpin.ModeOutput); err != nil {
		t.Fatal(err)
	}
	if b.xdata[regGPIODir] != 0xfd {
		t.Errorf("direction register %02x", b.xdata[regGPIODir])
	}
	if l, err := d.Read(hostpin.WP); err != nil || l != gpio.Low {
		t.Error("driven pin did not read back low:", l, err)
	}

	if err := d.SetMode(hostpin.WP, hostpin.ModeFlash); err != nil {
		t.Fatal(err)
	}
	if b.xdata[regGPIODir] != 0xff {
		t.Error("pin not released")
	}

	b.commands = 0
	d.SetMode(hostpin.Hold, hostpin.ModeInput)
	if b.commands != 0 {
		t.Error("unchanged direction was written")
	}
}

func TestReclaimOverBridge(t *testing.T) {
	d, b := newHal(t, flashsim.GigaDevice)

	/* Boards usually come up with both pins driven high */
	for _, p := range hostpin.All {
		d.Out(p, gpio.High)
		d.SetMode(p, hostpin.ModeOutput)
	}

	f, err := spiflash.New(d.SPI, d.SPIMaxTransactionSize())
	if err != nil {
		t.Fatal("spiflash.New:", err)
	}

	r := reclaim.New(f, d, nil)
	r.LogFunc = t.Logf

	res, err := r.Run()
	if err != nil || res.Outcome != reclaim.Success {
		t.Fatal("reclaim failed:", res.Outcome, err)
	}
	if b.flash.Register(statusreg.SR2)&statusreg.BitQE == 0 {
		t.Error("QE not set in the flash")
	}
	for _, p := range hostpin.All {
		if m := b.flash.PinMode(p); m != hostpin.ModeInput {
			t.Errorf("%s left in mode %s", p, m)
		}
	}
}

func TestTransportError(t *testing.T) {
	d, b := newHal(t, flashsim.Winbond)
	b.fail = errors.New("unplugged")

	if err := d.SPI([]byte{0x05}, make([]byte, 1)); err != b.fail {
		t.Error("transport error lost:", err)
	}
}
