// Package image reads ESP8266 boot image headers. The boot ROM takes the SPI flash
// mode from the image header, which decides whether /WP and /HOLD are data
// lines.
package image

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	Magic      = 0xE9
	HeaderSize = 8

	/* The ROM loader gives up beyond this */
	maxSegments = 16
)

var (
	ErrorInvalidLength = errors.New("image length not valid")
	ErrorInvalidHeader = errors.New("header is not valid")
)

type FlashMode uint8

const (
	ModeQIO FlashMode = iota
	ModeQOUT
	ModeDIO
	ModeDOUT
)

func (m FlashMode) String() string {
	switch m {
	case ModeQIO:
		return "QIO"
	case ModeQOUT:
		return "QOUT"
	case ModeDIO:
		return "DIO"
	case ModeDOUT:
		return "DOUT"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

func (m FlashMode) Quad() bool {
	return m == ModeQIO || m == ModeQOUT
}

type Header struct {
	Segments int
	Mode     FlashMode

	/* Size in the high nibble, SPI clock in the low one */
	SizeFreq byte
	Entry    uint32
}

var flashSizes = map[byte]int{
	0x0: 512 << 10,
	0x1: 256 << 10,
	0x2: 1 << 20,
	0x3: 2 << 20,
	0x4: 4 << 20,
	0x8: 8 << 20,
	0x9: 16 << 20,
}

var flashFreqs = map[byte]int{
	0x0: 40,
	0x1: 26,
	0x2: 20,
	0xF: 80,
}

// FlashSize returns the flash size in bytes the image was built for.
func (h Header) FlashSize() (int, bool) {
	size, ok := flashSizes[h.SizeFreq>>4]
	return size, ok
}

// Frequency returns the SPI clock in MHz.
func (h Header) Frequency() (int, bool) {
	freq, ok := flashFreqs[h.SizeFreq&0xF]
	return freq, ok
}

func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrorInvalidLength
	}

	h := Header{
		Segments: int(b[1]),
		Mode:     FlashMode(b[2]),
		SizeFreq: b[3],
		Entry:    binary.LittleEndian.Uint32(b[4:]),
	}

	if b[0] != Magic || h.Mode > ModeDOUT || h.Segments == 0 || h.Segments > maxSegments {
		return Header{}, ErrorInvalidHeader
	}

	return h, nil
}
