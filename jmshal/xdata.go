package jmshal

import (
	"encoding/binary"
)

const (
	cmdXDATA = 0xdf

	/* The command can read flash as well, only XDATA is used here */
	memXDATARead  = 0xfd
	memXDATAWrite = 0xfe

	xdataMaxChunk = 255
)

func xdataCommand(offset uint16, length int, mem byte) []byte {
	cmd := make([]byte, 12)
	cmd[0] = cmdXDATA
	cmd[4] = byte(length)
	binary.BigEndian.PutUint16(cmd[6:], offset)
	cmd[11] = mem
	return cmd
}

func (d *JMSHal) xdataRead(offset uint16, buf []byte) (int, error) {
	if len(buf) > xdataMaxChunk {
		buf = buf[:xdataMaxChunk]
	}

	if err := d.dev.Read(xdataCommand(offset, len(buf), memXDATARead), &buf); err != nil {
		return 0, err
	}
	return len(buf), nil
}

func (d *JMSHal) xdataWrite(offset uint16, buf []byte) (int, error) {
	if len(buf) > xdataMaxChunk {
		buf = buf[:xdataMaxChunk]
	}

	if err := d.dev.Write(xdataCommand(offset, len(buf), memXDATAWrite), buf); err != nil {
		return 0, err
	}
	return len(buf), nil
}

/* Splits buf over as many commands as needed, it never wraps past 0xFFFF */
func completeIO(offset uint16, buf []byte, f func(offset uint16, buf []byte) (int, error)) (int, error) {
	if room := 0x10000 - int(offset); len(buf) > room {
		buf = buf[:room]
	}

	done := 0
	for len(buf) > 0 {
		n, err := f(offset, buf)
		done += n
		if err != nil {
			return done, err
		}

		offset += uint16(n)
		buf = buf[n:]
	}

	return done, nil
}

func (d *JMSHal) XDATARead(offset uint16, buf []byte) (int, error) {
	return completeIO(offset, buf, d.xdataRead)
}

func (d *JMSHal) XDATAWrite(offset uint16, buf []byte) (int, error) {
	return completeIO(offset, buf, d.xdataWrite)
}

func (d *JMSHal) XDATAReadByte(offset uint16) (byte, error) {
	var buf [1]byte
	_, err := d.XDATARead(offset, buf[:])
	return buf[0], err
}

func (d *JMSHal) XDATAWriteByte(offset uint16, value byte) error {
	_, err := d.XDATAWrite(offset, []byte{value})
	return err
}
