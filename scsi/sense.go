package scsi

import (
	"fmt"
)

type SenseKey uint8

const (
	SenseNoSense        SenseKey = 0x0
	SenseRecoveredError SenseKey = 0x1
	SenseNotReady       SenseKey = 0x2
	SenseMediumError    SenseKey = 0x3
	SenseHardwareError  SenseKey = 0x4
	SenseIllegalRequest SenseKey = 0x5
	SenseUnitAttention  SenseKey = 0x6
	SenseDataProtect    SenseKey = 0x7
	SenseAbortedCommand SenseKey = 0xb
)

var senseKeyNames = map[SenseKey]string{
	SenseNoSense:        "no sense",
	SenseRecoveredError: "recovered error",
	SenseNotReady:       "not ready",
	SenseMediumError:    "medium error",
	SenseHardwareError:  "hardware error",
	SenseIllegalRequest: "illegal request",
	SenseUnitAttention:  "unit attention",
	SenseDataProtect:    "data protect",
	SenseAbortedCommand: "aborted command",
}

func (k SenseKey) String() string {
	if name, ok := senseKeyNames[k]; ok {
		return name
	}
	return fmt.Sprintf("sense key %x", uint8(k))
}

// SenseError carries the sense data of a command that ended in CHECK
// CONDITION. Bridges answer unknown vendor commands with an illegal request.
type SenseError struct {
	Key  SenseKey
	ASC  uint8
	ASCQ uint8
}

func (e *SenseError) Error() string {
	return fmt.Sprintf("SCSI %s (ASC %02x, ASCQ %02x)", e.Key, e.ASC, e.ASCQ)
}

/* Handles both fixed (70h/71h) and descriptor (72h/73h) format */
func DecodeSense(sense []byte) (*SenseError, bool) {
	if len(sense) < 1 {
		return nil, false
	}

	switch sense[0] & 0x7f {
	case 0x70, 0x71:
		if len(sense) < 14 {
			return nil, false
		}
		return &SenseError{
			Key:  SenseKey(sense[2] & 0xf),
			ASC:  sense[12],
			ASCQ: sense[13],
		}, true

	case 0x72, 0x73:
		if len(sense) < 4 {
			return nil, false
		}
		return &SenseError{
			Key:  SenseKey(sense[1] & 0xf),
			ASC:  sense[2],
			ASCQ: sense[3],
		}, true
	}

	return nil, false
}
