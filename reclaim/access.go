package reclaim

import (
	"github.com/BertoldVdb/qereclaim/statusreg"
)

// RegisterAccess is the only way the engine talks to the flash. Every call
// goes to the device; nothing is cached between calls.
type RegisterAccess interface {
	ReadRegister(r statusreg.Register) (byte, error)
	WriteRegister(r statusreg.Register, value uint16, p statusreg.Persistence, w statusreg.Width) error
	ClearWriteEnableLatch() error
	IsWriteLatchSet() (bool, error)
	IsQuadTransferModeActive() bool
	ReadChipID() (uint32, error)
}

// Identity is what the strategy lookup gets to see of a part.
type Identity struct {
	ChipID uint32

	// SFDPFingerprint is optional, zero when unknown.
	SFDPFingerprint uint32
}

func (i Identity) Vendor() byte {
	return byte(i.ChipID)
}

// SFDPSource is implemented by adapters that can provide an SFDP fingerprint
// as an additional hint to tell parts with the same id apart.
type SFDPSource interface {
	SFDPFingerprint() (uint32, error)
}
