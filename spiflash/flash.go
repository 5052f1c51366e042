package spiflash

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

type SPIFunc func(out []byte, in []byte) error

var (
	ErrNoFlash              = errors.New("no flash detected")
	ErrTimeout              = errors.New("timeout")
	ErrWidthNotSupported    = errors.New("register cannot be written with this width")
	ErrRegisterNotSupported = errors.New("unknown status register")
	ErrTransactionTooSmall  = errors.New("transaction size too small for command")
)

const (
	opReadID              = 0x9F
	opRead                = 0x03
	opReadSFDP            = 0x5A
	opReadSR1             = 0x05
	opReadSR2             = 0x35
	opReadSR3             = 0x15
	opWriteSR1            = 0x01
	opWriteSR2            = 0x31
	opWriteSR3            = 0x11
	opWriteEnable         = 0x06
	opWriteEnableVolatile = 0x50
	opWriteDisable        = 0x04
)

type Flash struct {
	spi SPIFunc

	deviceID [4]byte
	device   flashDevice
	known    bool

	mode TransferMode

	maxBytesPerTransaction int

	LogFunc func(format string, params ...any)
}

func (f *Flash) log(format string, params ...any) {
	if f.LogFunc != nil {
		f.LogFunc(format, params...)
	}
}

func New(spi SPIFunc, maxBytesPerTransaction int) (*Flash, error) {
	f := &Flash{
		spi: spi,

		maxBytesPerTransaction: maxBytesPerTransaction,
	}

	if err := f.readDeviceID(); err != nil {
		if err := f.readDeviceID(); err != nil {
			return nil, err
		}
	}

	return f, nil
}

func (f *Flash) readDeviceID() error {
	var id [4]byte
	if err := f.spi([]byte{opReadID}, id[:]); err != nil {
		return err
	}

	if (id[0] == 0 && id[1] == 0 && id[2] == 0) || (id[0] == 0xFF && id[1] == 0xFF && id[2] == 0xFF) {
		return ErrNoFlash
	}

	f.deviceID = id
	f.device, f.known = deviceLookup(binary.BigEndian.Uint32(id[:]))
	return nil
}

func (f *Flash) DeviceID() [4]byte {
	return f.deviceID
}

// ChipID returns the identification of the last query.
func (f *Flash) ChipID() ChipID {
	return chipIDFromJEDEC(f.deviceID)
}

// ReadChipID queries the identification again. It does not rely on anything
// learned earlier, so it can be used as the very first command.
func (f *Flash) ReadChipID() (uint32, error) {
	if err := f.readDeviceID(); err != nil {
		return 0, err
	}
	return uint32(f.ChipID()), nil
}

// Name returns the part name if the device is in the table.
func (f *Flash) Name() (string, bool) {
	if !f.known {
		return "", false
	}
	return f.device.name, true
}

func (f *Flash) writeEnable(p bool) error {
	if p {
		return f.spi([]byte{opWriteEnable}, nil)
	}
	return f.spi([]byte{opWriteEnableVolatile}, nil)
}

func (f *Flash) statusRead() (uint8, error) {
	var result [1]byte
	err := f.spi([]byte{opReadSR1}, result[:])
	return result[0], err
}

func (f *Flash) waitIdle(maxDuration time.Duration) error {
	timeout := time.Now().Add(maxDuration)
	for time.Now().Before(timeout) {
		if status, err := f.statusRead(); err != nil {
			return err
		} else if status&1 == 0 {
			return nil
		}
	}
	return ErrTimeout
}

func (f *Flash) read(offset uint32, data []byte) (int, error) {
	if f.maxBytesPerTransaction <= 4 {
		return 0, ErrTransactionTooSmall
	}
	if len(data)+4 > f.maxBytesPerTransaction {
		data = data[:f.maxBytesPerTransaction-4]
	}

	var out [4]byte
	binary.BigEndian.PutUint32(out[:], offset)
	out[0] = opRead

	if err := f.spi(out[:], data); err != nil {
		return 0, err
	}

	return len(data), nil
}

func (f *Flash) Read(offset uint32, data []byte) (int, error) {
	return completeIO(offset, data, f.read)
}

func (f *Flash) String() string {
	if name, ok := f.Name(); ok {
		return fmt.Sprintf("%s (%s)", name, f.ChipID())
	}
	return f.ChipID().String()
}

// completeIO repeats f until buf is done, f may handle less than asked.
func completeIO(offset uint32, buf []byte, f func(offset uint32, buf []byte) (int, error)) (int, error) {
	index := 0

	for len(buf) > 0 {
		n, err := f(offset, buf)
		index += n
		offset += uint32(n)

		if err != nil {
			return index, err
		}
		if n == 0 {
			return index, ErrTransactionTooSmall
		}

		buf = buf[n:]
	}

	return index, nil
}
