// Package hostpin describes the two host pins that are shared with the flash
// /WP and /HOLD functions.
package hostpin

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
)

type Pin uint8

const (
	WP   Pin = iota // ESP8266 GPIO10
	Hold            // ESP8266 GPIO9
)

var All = []Pin{WP, Hold}

func (p Pin) String() string {
	switch p {
	case WP:
		return "/WP"
	case Hold:
		return "/HOLD"
	}
	return fmt.Sprintf("pin(%d)", uint8(p))
}

type Mode uint8

const (
	// ModeFlash hands the pin back to the flash interface.
	ModeFlash Mode = iota
	ModeInput
	ModeOutput
)

func (m Mode) String() string {
	switch m {
	case ModeFlash:
		return "flash"
	case ModeInput:
		return "input"
	case ModeOutput:
		return "output"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// Control is the pin capability of the host platform.
type Control interface {
	SetMode(p Pin, m Mode) error
	Out(p Pin, l gpio.Level) error
	Read(p Pin) (gpio.Level, error)
}
