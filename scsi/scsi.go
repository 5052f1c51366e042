// Package scsi issues raw SCSI commands through the Linux SG_IO ioctl. The
// vendor commands of USB-SATA bridges reach the controller this way.
package scsi

import (
	"errors"
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	SG_DXFER_NONE        = -1
	SG_DXFER_TO_DEV      = -2
	SG_DXFER_FROM_DEV    = -3
	SG_DXFER_TO_FROM_DEV = -4

	SG_INFO_OK_MASK = 0x1
	SG_INFO_OK      = 0x0

	SG_IO = 0x2285

	statusCheckCondition = 0x02
	senseLength          = 32
)

var (
	ErrNotFound  = errors.New("USB device not found")
	ErrAmbiguous = errors.New("more than one USB device found")
)

type SGIOHdr struct {
	InterfaceID    int32   // 'S' for SCSI generic (required)
	DxferDirection int32   // data transfer direction
	CmdLen         uint8   // SCSI command length (<= 16 bytes)
	MxSbLen        uint8   // max length to write to sbp
	IovecCount     uint16  // 0 implies no scatter gather
	DxferLen       uint32  // byte count of data transfer
	DxferP         uintptr // points to data transfer memory or scatter gather list
	CmdP           uintptr // points to command to perform
	SbP            uintptr // points to sense_buffer memory
	Timeout        uint32  // MAX_UINT -> no timeout (unit: millisec)
	Flags          uint32  // 0 -> default, see SG_FLAG...
	PackID         int32   // unused internally (normally)
	UsrPtr         uintptr // unused internally
	Status         uint8   // SCSI status
	MaskedStatus   uint8   // shifted, masked scsi status
	MsgStatus      uint8   // messaging level data (optional)
	SbLenWr        uint8   // byte count actually written to sbp
	HostStatus     uint16  // errors from host adapter
	DriverStatus   uint16  // errors from software driver
	ResID          int32   // dxfer_len - actual_transferred
	Duration       uint32  // time taken by cmd (unit: millisec)
	Info           uint32  // auxiliary information
}

// StatusError is returned when the kernel flags a command as failed without
// usable sense data.
type StatusError struct {
	Status       uint8
	HostStatus   uint16
	DriverStatus uint16
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("SCSI Status: %02x, Host Status: %04x, Driver Status: %04x", e.Status, e.HostStatus, e.DriverStatus)
}

type SCSI struct {
	path    string
	fd      int
	Timeout uint32
}

// New opens a SCSI generic or block device. A path of the form VVVV:PPPP
// selects the single USB mass storage device with that vendor and product.
func New(path string) (*SCSI, error) {
	s := &SCSI{
		path:    path,
		fd:      -1,
		Timeout: 3000,
	}

	err := s.open()
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SCSI) resolve() (string, error) {
	vid, pid, ok := isUsbPath(s.path)
	if !ok {
		return s.path, nil
	}

	devs, err := FindBlockDevices(vid, pid)
	if err != nil {
		return "", err
	}
	switch len(devs) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, s.path)
	case 1:
		return devs[0], nil
	}
	return "", fmt.Errorf("%w: %v", ErrAmbiguous, devs)
}

func (s *SCSI) open() error {
	path, err := s.resolve()
	if err != nil {
		return err
	}

	s.fd, err = unix.Open(path, unix.O_RDWR, 0600)
	if err != nil {
		s.fd = -1
		return fmt.Errorf("open %s: %w", path, err)
	}
	return nil
}

// Reopen waits for the device to come back, for example after a bus reset.
func (s *SCSI) Reopen() error {
	s.Close()
	time.Sleep(400 * time.Millisecond)

	for i := 0; i < 100; i++ {
		time.Sleep(100 * time.Millisecond)
		if err := s.open(); err == nil {
			return nil
		}
	}

	return s.open()
}

func (s *SCSI) Close() error {
	if s.fd < 0 {
		return nil
	}

	fd := s.fd
	s.fd = -1

	return unix.Close(fd)
}

func (s *SCSI) SGIO(hdr *SGIOHdr, sense []byte) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(s.fd), SG_IO, uintptr(unsafe.Pointer(hdr)))
	if errno != 0 {
		return errno
	}

	if hdr.Info&SG_INFO_OK_MASK == SG_INFO_OK {
		return nil
	}

	if hdr.Status == statusCheckCondition && hdr.SbLenWr > 0 {
		if err, ok := DecodeSense(sense[:hdr.SbLenWr]); ok {
			return err
		}
	}

	return &StatusError{
		Status:       hdr.Status,
		HostStatus:   hdr.HostStatus,
		DriverStatus: hdr.DriverStatus,
	}
}

func (s *SCSI) command(cmd []byte, data []byte, direction int32) (int, error) {
	if s.fd < 0 {
		return 0, unix.EBADF
	}

	sense := make([]byte, senseLength)

	hdr := SGIOHdr{
		InterfaceID:    'S',
		SbP:            uintptr(unsafe.Pointer(&sense[0])),
		Timeout:        s.Timeout,
		MxSbLen:        uint8(len(sense)),
		DxferDirection: direction,

		CmdLen: uint8(len(cmd)),
		CmdP:   uintptr(unsafe.Pointer(&cmd[0])),
	}

	if len(data) > 0 {
		hdr.DxferP = uintptr(unsafe.Pointer(&data[0]))
		hdr.DxferLen = uint32(len(data))
	} else if direction != SG_DXFER_TO_DEV {
		hdr.DxferDirection = SG_DXFER_NONE
	}

	err := s.SGIO(&hdr, sense)
	return int(hdr.ResID), err
}

// Read runs cmd and receives into *data, which is trimmed when the device
// returned fewer bytes.
func (s *SCSI) Read(cmd []byte, data *[]byte) error {
	resid, err := s.command(cmd, *data, SG_DXFER_FROM_DEV)
	if err != nil {
		return err
	}
	if resid > 0 && resid <= len(*data) {
		*data = (*data)[:len(*data)-resid]
	}
	return nil
}

func (s *SCSI) Write(cmd []byte, data []byte) error {
	_, err := s.command(cmd, data, SG_DXFER_TO_DEV)
	return err
}
