// Package jmshal drives a JMicron JMS578 USB-SATA bridge through its vendor
// SCSI commands. The flash under test hangs off the bridge SPI port and two
// bridge GPIOs are wired to its /WP and /HOLD pins.
package jmshal

import (
	"encoding/binary"
)

// Transport carries the vendor SCSI commands, scsi.SCSI implements it.
type Transport interface {
	Read(cmd []byte, data *[]byte) error
	Write(cmd []byte, data []byte) error
}

type JMSHal struct {
	dev Transport

	pins PinMap
	dir  byte
	out  byte

	LogFunc func(format string, params ...any)
}

func (d *JMSHal) log(format string, params ...any) {
	if d.LogFunc != nil {
		d.LogFunc(format, params...)
	}
}

func New(dev Transport, pins PinMap) (*JMSHal, error) {
	if err := pins.validate(); err != nil {
		return nil, err
	}

	d := &JMSHal{
		dev:  dev,
		pins: pins,
	}

	if err := d.gpioLoad(); err != nil {
		return nil, err
	}

	return d, nil
}

// VersionGet returns the firmware version reported by the bridge.
func (d *JMSHal) VersionGet() (uint32, error) {
	cmd := []byte{0xe0, 0xf4, 0xe7}

	result := make([]byte, 16)
	if err := d.dev.Read(cmd, &result); err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint32(result[12:]), nil
}
