// Package ft232h uses an FTDI MPSSE bridge as SPI master for the flash. Two
// spare GPIOs are wired to the flash /WP and /HOLD pins.
package ft232h

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/ftdi"

	"github.com/BertoldVdb/qereclaim/hostpin"
)

const (
	VendorFTDI      = 0x0403
	ProductFT232H   = 0x6014
	ProductFT2232H  = 0x6010
	maxTransaction  = 65536 // [AN_108]
	hardwareCSName  = "D3"
	defaultWPName   = "D5"
	defaultHoldName = "D6"
)

var (
	ErrNotFound = errors.New("no FT232H/FT2232H found")
	ErrClosed   = errors.New("SPI port closed")
)

type Options struct {
	/* Zero accepts both the FT232H and the FT2232H */
	ProductID uint16
	Clock     physic.Frequency

	/* An empty CS uses the MPSSE chip select on D3 */
	CS   string
	WP   string
	Hold string
}

func (o *Options) defaults() {
	if o.Clock == 0 {
		o.Clock = physic.MegaHertz
	}
	if o.WP == "" {
		o.WP = defaultWPName
	}
	if o.Hold == "" {
		o.Hold = defaultHoldName
	}
}

/* line is the part of gpio.PinIO used for the flash pins */
type line interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	Out(l gpio.Level) error
	Read() gpio.Level
}

type txer interface {
	Tx(w, r []byte) error
}

type Device struct {
	ft   *ftdi.FT232H
	port io.Closer
	conn txer
	cs   line

	pins  [2]line
	modes [2]hostpin.Mode
	level [2]gpio.Level

	LogFunc func(format string, params ...any)
}

func (d *Device) log(format string, params ...any) {
	if d.LogFunc != nil {
		d.LogFunc(format, params...)
	}
}

var hostInitialized atomic.Bool

// Open finds the bridge and connects its SPI port in mode 0.
func Open(opts Options) (*Device, error) {
	opts.defaults()
	if err := checkDistinct(opts.CS, opts.WP, opts.Hold); err != nil {
		return nil, err
	}

	if hostInitialized.CompareAndSwap(false, true) {
		if _, err := host.Init(); err != nil {
			return nil, fmt.Errorf("host initialization failed: %w", err)
		}
	}

	ft, err := find(opts.ProductID)
	if err != nil {
		return nil, err
	}

	d := &Device{ft: ft}

	for i, name := range []string{opts.WP, opts.Hold} {
		if d.pins[i], err = d.pin(name); err != nil {
			return nil, err
		}
	}
	if opts.CS != "" && opts.CS != hardwareCSName {
		if d.cs, err = d.pin(opts.CS); err != nil {
			return nil, err
		}
	}

	port, err := ft.SPI()
	if err != nil {
		return nil, fmt.Errorf("failed to get SPI port: %w", err)
	}

	/* MPSSE only does mode 0 and 2 */
	conn, err := port.Connect(opts.Clock, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("SPI connection failed: %w", err)
	}
	d.conn, d.port = conn, port

	if d.cs != nil {
		if err := d.cs.Out(gpio.High); err != nil {
			d.Close()
			return nil, err
		}
	}

	/* Both pins start released */
	for _, p := range hostpin.All {
		if err := d.SetMode(p, hostpin.ModeFlash); err != nil {
			d.Close()
			return nil, err
		}
	}

	return d, nil
}

// Close gives the SPI port back to the driver. The pins keep their mode, a
// reclaimed pair stays released.
func (d *Device) Close() error {
	if d.port == nil {
		return nil
	}
	err := d.port.Close()
	d.port, d.conn = nil, nil
	return err
}

func find(productID uint16) (*ftdi.FT232H, error) {
	info := ftdi.Info{}
	for _, dev := range ftdi.All() {
		dev.Info(&info)
		if info.VenID != VendorFTDI {
			continue
		}
		if productID != 0 && info.DevID != productID {
			continue
		}
		if productID == 0 && info.DevID != ProductFT232H && info.DevID != ProductFT2232H {
			continue
		}
		if ft, ok := dev.(*ftdi.FT232H); ok {
			return ft, nil
		}
	}

	return nil, ErrNotFound
}

func (d *Device) pin(name string) (line, error) {
	bank, n, err := parsePin(name)
	if err != nil {
		return nil, err
	}

	dbus := [8]gpio.PinIO{d.ft.D0, d.ft.D1, d.ft.D2, d.ft.D3, d.ft.D4, d.ft.D5, d.ft.D6, d.ft.D7}
	cbus := [8]gpio.PinIO{d.ft.C0, d.ft.C1, d.ft.C2, d.ft.C3, d.ft.C4, d.ft.C5, d.ft.C6, d.ft.C7}
	if bank == 'D' {
		return dbus[n], nil
	}
	return cbus[n], nil
}

// SPI clocks out followed by len(in) dummy bytes and returns what the flash
// sent during the dummy phase.
func (d *Device) SPI(out []byte, in []byte) (err error) {
	if d.conn == nil {
		return ErrClosed
	}
	if len(out)+len(in) > maxTransaction {
		return fmt.Errorf("transaction of %d bytes too large", len(out)+len(in))
	}

	buf := make([]byte, len(out)+len(in))
	copy(buf, out)
	for i := len(out); i < len(buf); i++ {
		buf[i] = 0xFF
	}

	if d.cs != nil {
		if err = d.cs.Out(gpio.Low); err != nil {
			return err
		}
		defer func() {
			if csErr := d.cs.Out(gpio.High); csErr != nil && err == nil {
				err = csErr
			}
		}()
	}

	if err = d.conn.Tx(buf, buf); err != nil {
		return err
	}

	copy(in, buf[len(out):])
	return nil
}

func (d *Device) SPIMaxTransactionSize() int {
	return maxTransaction
}

func (d *Device) line(p hostpin.Pin) (line, error) {
	if int(p) >= len(d.pins) {
		return nil, fmt.Errorf("unknown pin %s", p)
	}
	return d.pins[p], nil
}

func (d *Device) SetMode(p hostpin.Pin, m hostpin.Mode) error {
	l, err := d.line(p)
	if err != nil {
		return err
	}

	switch m {
	case hostpin.ModeFlash, hostpin.ModeInput:
		err = l.In(gpio.PullNoChange, gpio.NoEdge)
	case hostpin.ModeOutput:
		err = l.Out(d.level[p])
	default:
		return fmt.Errorf("unknown mode %s", m)
	}
	if err != nil {
		return err
	}

	d.log("%s -> %s", p, m)
	d.modes[p] = m
	return nil
}

/* Out only latches the level until the pin is switched to output */
func (d *Device) Out(p hostpin.Pin, level gpio.Level) error {
	l, err := d.line(p)
	if err != nil {
		return err
	}

	d.level[p] = level
	if d.modes[p] != hostpin.ModeOutput {
		return nil
	}
	return l.Out(level)
}

func (d *Device) Read(p hostpin.Pin) (gpio.Level, error) {
	l, err := d.line(p)
	if err != nil {
		return gpio.Low, err
	}
	return l.Read(), nil
}
