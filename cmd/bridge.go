package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"periph.io/x/conn/v3/physic"

	"github.com/BertoldVdb/qereclaim/flashsim"
	"github.com/BertoldVdb/qereclaim/ft232h"
	"github.com/BertoldVdb/qereclaim/hostpin"
	"github.com/BertoldVdb/qereclaim/jmshal"
	"github.com/BertoldVdb/qereclaim/scsi"
	"github.com/BertoldVdb/qereclaim/spiflash"
)

// bridge is an opened host bridge with the flash behind it.
type bridge struct {
	flash *spiflash.Flash
	pins  hostpin.Control

	/* Only the JMS578 reports a firmware version */
	version func() (uint32, error)
	close   func() error
}

func (b *bridge) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

/* Set by the tests to look at the simulated part after a command */
var simDevice *flashsim.Device

func parseGPIO(name string, def uint8) (uint8, error) {
	if name == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(name, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid JMS578 GPIO %q", name)
	}
	return uint8(n), nil
}

func openBridge() (*bridge, error) {
	b := &bridge{}

	var (
		spi   spiflash.SPIFunc
		maxTx int
	)

	bc := cfg.Bridge
	switch bc.Type {
	case "sim":
		p, ok := flashsim.Lookup(bc.Profile)
		if !ok {
			return nil, fmt.Errorf("unknown simulated part %q", bc.Profile)
		}
		dev := simDevice
		if dev == nil {
			dev = flashsim.New(p)
		}
		spi, maxTx, b.pins = dev.Transfer, 256, dev

	case "ft232h":
		/* Accepts PPPP or VVVV:PPPP as printed by list */
		var pid uint64
		if bc.Device != "" {
			_, product, found := strings.Cut(bc.Device, ":")
			if !found {
				product = bc.Device
			}
			var err error
			if pid, err = strconv.ParseUint(product, 16, 16); err != nil {
				return nil, fmt.Errorf("invalid FTDI product id %q", bc.Device)
			}
		}

		ft, err := ft232h.Open(ft232h.Options{
			ProductID: uint16(pid),
			Clock:     physic.Frequency(bc.ClockHz) * physic.Hertz,
			CS:        bc.CS,
			WP:        bc.WP,
			Hold:      bc.Hold,
		})
		if err != nil {
			return nil, err
		}
		ft.LogFunc = logf()
		spi, maxTx, b.pins = ft.SPI, ft.SPIMaxTransactionSize(), ft
		b.close = ft.Close

	case "jms578":
		pins := jmshal.DefaultPinMap
		var err error
		if pins.WP, err = parseGPIO(bc.WP, pins.WP); err != nil {
			return nil, err
		}
		if pins.Hold, err = parseGPIO(bc.Hold, pins.Hold); err != nil {
			return nil, err
		}

		sdev, err := scsi.New(bc.Device)
		if err != nil {
			return nil, err
		}

		jms, err := jmshal.New(sdev, pins)
		if err != nil {
			sdev.Close()
			return nil, err
		}
		jms.LogFunc = logf()

		spi, maxTx, b.pins = jms.SPI, jms.SPIMaxTransactionSize(), jms
		b.version = jms.VersionGet
		b.close = sdev.Close

	default:
		return nil, fmt.Errorf("unknown bridge %q", bc.Type)
	}

	f, err := spiflash.New(spi, maxTx)
	if err != nil {
		b.Close()
		return nil, err
	}
	f.LogFunc = logf()

	mode, err := spiflash.ParseTransferMode(cfg.Flash.Mode)
	if err != nil {
		b.Close()
		return nil, err
	}
	f.SetTransferMode(mode)

	b.flash = f
	return b, nil
}
