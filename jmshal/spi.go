package jmshal

import (
	"errors"
	"time"
)

var (
	ErrorSPIViolated = errors.New("SPI interface cannot handle transaction")
	ErrorSPITimeout  = errors.New("SPI transfer did not complete")
)

const (
	regSPITx       = 0x7140
	regSPIReadback = 0x7141
	regSPIStart    = 0x714c
	regSPIRx       = 0x7150

	spiFIFOSize = 16
	spiTimeout  = time.Second
)

// SPI performs a half duplex transfer: out is sent, then in is filled. Both
// share the 16 byte FIFO of the bridge.
func (d *JMSHal) SPI(out []byte, in []byte) error {
	if len(out)+len(in) > spiFIFOSize {
		return ErrorSPIViolated
	}

	for _, m := range out {
		if err := d.XDATAWriteByte(regSPITx, m); err != nil {
			return err
		}
	}

	/* Tell the engine which received bytes to keep */
	for i := range in {
		if err := d.XDATAWriteByte(regSPIReadback, byte(i)); err != nil {
			return err
		}
	}

	if err := d.XDATAWriteByte(regSPIStart, 1); err != nil {
		return err
	}

	deadline := time.Now().Add(spiTimeout)
	for {
		busy, err := d.XDATAReadByte(regSPIStart)
		if err != nil {
			return err
		}
		if busy == 0 {
			break
		}
		if time.Now().After(deadline) {
			return ErrorSPITimeout
		}
	}

	_, err := d.XDATARead(regSPIRx, in)
	return err
}

func (d *JMSHal) SPIMaxTransactionSize() int {
	return spiFIFOSize
}
