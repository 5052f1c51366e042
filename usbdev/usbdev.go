// Package usbdev lists the USB bridges that can reach a flash.
package usbdev

import (
	"context"
	"fmt"

	"github.com/google/gousb"
)

type Kind string

const (
	KindFT232H Kind = "ft232h"
	KindJMS578 Kind = "jms578"
	KindSim    Kind = "sim"
)

type Bridge struct {
	Kind        Kind
	Description string
	VendorID    uint16
	ProductID   uint16
	Bus         int
	Address     int
}

// Label returns a user-friendly description for the bridge.
func (b Bridge) Label() string {
	if b.Kind == KindSim {
		return b.Description
	}
	return fmt.Sprintf("%s (%04x:%04x, bus %d device %d)", b.Description, b.VendorID, b.ProductID, b.Bus, b.Address)
}

// Device returns the string the bridge opener expects for --device.
func (b Bridge) Device() string {
	return fmt.Sprintf("%04x:%04x", b.VendorID, b.ProductID)
}

type knownBridge struct {
	Kind        Kind
	VendorID    uint16
	ProductID   uint16
	Description string
}

var knownBridges = []knownBridge{
	{KindFT232H, 0x0403, 0x6014, "FTDI FT232H"},
	{KindFT232H, 0x0403, 0x6010, "FTDI FT2232H"},
	{KindJMS578, 0x152d, 0x0578, "JMicron JMS578"},
}

func classify(desc *gousb.DeviceDesc) (Bridge, bool) {
	for _, known := range knownBridges {
		if uint16(desc.Vendor) == known.VendorID && uint16(desc.Product) == known.ProductID {
			return Bridge{
				Kind:        known.Kind,
				Description: known.Description,
				VendorID:    known.VendorID,
				ProductID:   known.ProductID,
				Bus:         desc.Bus,
				Address:     desc.Address,
			}, true
		}
	}
	return Bridge{}, false
}

// Discover enumerates the connected bridges. The simulator is always listed
// last so the tool can be tried without hardware.
func Discover(ctx context.Context) ([]Bridge, error) {
	var results []Bridge
	usb := gousb.NewContext()
	defer usb.Close()

	/* Nothing is opened, the callback only inspects descriptors */
	_, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		if b, ok := classify(desc); ok {
			results = append(results, b)
		}
		return false
	})
	if err != nil && err != gousb.ErrorAccess {
		return results, err
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}

	results = append(results, Bridge{
		Kind:        KindSim,
		Description: "Simulated flash (no hardware)",
	})

	return results, nil
}
