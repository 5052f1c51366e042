package spiflash

import (
	"encoding/binary"
	"errors"

	"github.com/snksoft/crc"
	"github.com/u-root/u-root/pkg/flash/sfdp"
)

const sfdpSignature = 0x50444653 // "SFDP"

var ErrSFDPOffset = errors.New("offset outside the SFDP address space")

// SFDPRevision holds the SFDP header revision and the location of the first
// (basic) parameter table. A zero value means the part has no SFDP.
type SFDPRevision struct {
	Major, Minor     uint8
	ParameterHeaders int

	ParamMajor, ParamMinor uint8
	TableDwords            int
	TablePointer           uint32
}

func (r SFDPRevision) Present() bool {
	return r.TablePointer != 0
}

var crcTable = crc.NewTable(crc.CRC32)

func (f *Flash) sfdpRead(offset uint32, out []byte) (int, error) {
	const cmdLen = 5
	if f.maxBytesPerTransaction <= cmdLen {
		return 0, ErrTransactionTooSmall
	}
	if len(out)+cmdLen > f.maxBytesPerTransaction {
		out = out[:f.maxBytesPerTransaction-cmdLen]
	}

	/* Opcode, 24 bit address, one dummy byte */
	cmd := []byte{opReadSFDP, byte(offset >> 16), byte(offset >> 8), byte(offset), 0xFF}
	if err := f.spi(cmd, out); err != nil {
		return 0, err
	}

	return len(out), nil
}

func (f *Flash) sfdpReadAt(offset uint32, out []byte) error {
	_, err := completeIO(offset, out, f.sfdpRead)
	return err
}

/* io.ReaderAt over the SFDP address space */
type sfdpSpace struct {
	f *Flash
}

func (s sfdpSpace) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > 1<<24 {
		return 0, ErrSFDPOffset
	}
	return completeIO(uint32(off), p, s.f.sfdpRead)
}

func (f *Flash) SFDPRevision() (SFDPRevision, error) {
	var buf [16]byte
	if err := f.sfdpReadAt(0, buf[:]); err != nil {
		return SFDPRevision{}, err
	}

	if binary.LittleEndian.Uint32(buf[:]) != sfdpSignature {
		return SFDPRevision{}, nil
	}

	return SFDPRevision{
		Minor:            buf[4],
		Major:            buf[5],
		ParameterHeaders: int(buf[6]) + 1,

		ParamMinor:   buf[9],
		ParamMajor:   buf[10],
		TableDwords:  int(buf[11]),
		TablePointer: binary.LittleEndian.Uint32(buf[12:]) & 0xFFFFFF,
	}, nil
}

// SFDPBasicTable returns the raw first parameter table, nil if there is none.
func (f *Flash) SFDPBasicTable() ([]byte, SFDPRevision, error) {
	rev, err := f.SFDPRevision()
	if err != nil || !rev.Present() {
		return nil, rev, err
	}

	table := make([]byte, rev.TableDwords*4)
	if err := f.sfdpReadAt(rev.TablePointer, table); err != nil {
		return nil, rev, err
	}
	return table, rev, nil
}

// SFDPFingerprint is a CRC-32 over the basic parameter table. Parts with the
// same JEDEC id but a different die revision usually differ here.
func (f *Flash) SFDPFingerprint() (uint32, error) {
	table, _, err := f.SFDPBasicTable()
	if err != nil || table == nil {
		return 0, err
	}

	h := crc.NewHashWithTable(crcTable)
	h.Update(table)
	return h.CRC32(), nil
}

// SFDP parses all parameter tables.
func (f *Flash) SFDP() (*sfdp.SFDP, error) {
	return sfdp.Read(sfdpSpace{f})
}
