package spiflash

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BertoldVdb/qereclaim/image"
)

// TransferMode is the SPI mode the boot ROM uses to fetch code from the flash.
type TransferMode uint8

const (
	ModeAuto TransferMode = iota
	ModeQIO
	ModeQOUT
	ModeDIO
	ModeDOUT
)

var modeNames = map[TransferMode]string{
	ModeAuto: "auto",
	ModeQIO:  "qio",
	ModeQOUT: "qout",
	ModeDIO:  "dio",
	ModeDOUT: "dout",
}

func (m TransferMode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

func (m TransferMode) Quad() bool {
	return m == ModeQIO || m == ModeQOUT
}

func ParseTransferMode(s string) (TransferMode, error) {
	s = strings.ToLower(s)
	if s == "" {
		return ModeAuto, nil
	}
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	return ModeAuto, fmt.Errorf("unknown flash mode %q", s)
}

var imageModes = map[image.FlashMode]TransferMode{
	image.ModeQIO:  ModeQIO,
	image.ModeQOUT: ModeQOUT,
	image.ModeDIO:  ModeDIO,
	image.ModeDOUT: ModeDOUT,
}

// BootHeader reads the ESP8266 boot image header at offset 0.
func (f *Flash) BootHeader() (image.Header, error) {
	var buf [image.HeaderSize]byte
	if _, err := f.Read(0, buf[:]); err != nil {
		return image.Header{}, err
	}
	return image.ParseHeader(buf[:])
}

func (f *Flash) SetTransferMode(m TransferMode) {
	f.mode = m
}

// TransferMode resolves the configured mode. In auto mode the boot image
// header at offset 0 decides, as it does for the boot ROM.
func (f *Flash) TransferMode() (TransferMode, error) {
	if f.mode != ModeAuto {
		return f.mode, nil
	}

	hdr, err := f.BootHeader()
	if errors.Is(err, image.ErrorInvalidHeader) {
		/* Blank or foreign flash, nothing to go by */
		return ModeAuto, nil
	} else if err != nil {
		return ModeAuto, err
	}

	return imageModes[hdr.Mode], nil
}

func (f *Flash) IsQuadTransferModeActive() bool {
	m, err := f.TransferMode()
	if err != nil {
		f.log("spiflash: cannot determine flash mode: %v", err)
		return false
	}
	return m.Quad()
}
