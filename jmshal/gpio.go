package jmshal

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"

	"github.com/BertoldVdb/qereclaim/hostpin"
)

const (
	/* A cleared bit enables the output driver */
	regGPIODir = 0x7054
	regGPIOOut = 0x7058
	regGPIOIn  = 0x705c

	gpioCount = 8
)

var ErrPinMap = errors.New("invalid GPIO assignment")

// PinMap gives the bridge GPIO number wired to each flash pin.
type PinMap struct {
	WP   uint8
	Hold uint8
}

/* GPIO4 drives the activity LED on most boards */
var DefaultPinMap = PinMap{WP: 1, Hold: 2}

func (m PinMap) validate() error {
	if m.WP >= gpioCount || m.Hold >= gpioCount || m.WP == m.Hold {
		return fmt.Errorf("%w: wp=%d hold=%d", ErrPinMap, m.WP, m.Hold)
	}
	return nil
}

func (m PinMap) mask(p hostpin.Pin) (byte, error) {
	switch p {
	case hostpin.WP:
		return 1 << m.WP, nil
	case hostpin.Hold:
		return 1 << m.Hold, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrPinMap, p)
}

func (d *JMSHal) gpioLoad() error {
	var buf [5]byte
	if _, err := d.XDATARead(regGPIODir, buf[:]); err != nil {
		return err
	}

	d.dir = buf[0]
	d.out = buf[4]
	return nil
}

func (d *JMSHal) SetMode(p hostpin.Pin, m hostpin.Mode) error {
	mask, err := d.pins.mask(p)
	if err != nil {
		return err
	}

	dir := d.dir
	switch m {
	case hostpin.ModeFlash, hostpin.ModeInput:
		/* The pins are only strapped to the flash, releasing them is enough */
		dir |= mask
	case hostpin.ModeOutput:
		dir &^= mask
	default:
		return fmt.Errorf("%w: mode %s", ErrPinMap, m)
	}

	if dir == d.dir {
		return nil
	}

	d.log("GPIO %s -> %s (dir %02x)", p, m, dir)
	if err := d.XDATAWriteByte(regGPIODir, dir); err != nil {
		return err
	}
	d.dir = dir
	return nil
}

func (d *JMSHal) Out(p hostpin.Pin, l gpio.Level) error {
	mask, err := d.pins.mask(p)
	if err != nil {
		return err
	}

	out := d.out &^ mask
	if l {
		out |= mask
	}

	if err := d.XDATAWriteByte(regGPIOOut, out); err != nil {
		return err
	}
	d.out = out
	return nil
}

func (d *JMSHal) Read(p hostpin.Pin) (gpio.Level, error) {
	mask, err := d.pins.mask(p)
	if err != nil {
		return gpio.Low, err
	}

	value, err := d.XDATAReadByte(regGPIOIn)
	if err != nil {
		return gpio.Low, err
	}
	return value&mask != 0, nil
}
