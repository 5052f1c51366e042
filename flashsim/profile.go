package flashsim

import (
	"encoding/binary"

	"github.com/BertoldVdb/qereclaim/statusreg"
)

// WPBehavior describes how a part treats its /WP input.
type WPBehavior uint8

const (
	// WPIgnored parts never look at /WP.
	WPIgnored WPBehavior = iota
	// WPUnlessQE parts honour /WP with SRP1:SRP0=0:1 until the QE (or WPDis)
	// bit is set.
	WPUnlessQE
	// WPHonorsSRP parts honour /WP with SRP1:SRP0=0:1 regardless of QE.
	WPHonorsSRP
)

// Profile captures the status register quirks of one flash family.
type Profile struct {
	Name  string
	JEDEC [3]byte

	Location  statusreg.Location
	Registers int

	Accepts16   bool // legacy 01h with two data bytes
	Accepts8SR2 bool // 31h
	Volatile    bool // 50h

	LatchStuckOnReject  bool // a rejected write leaves WEL set
	ClearsSR3OnSR2Write bool // volatile SR2 writes wipe the SR3 driver strength

	WP   WPBehavior
	Hold bool

	SFDP []byte
}

/* Driver strength field of SR3 */
const sr3DriverStrength = 0x60

func sfdpImage(minor byte, table []uint32) []byte {
	const tablePtr = 0x30

	img := make([]byte, tablePtr+len(table)*4)
	for i := range img {
		img[i] = 0xFF
	}

	copy(img, "SFDP")
	img[4] = minor
	img[5] = 1
	img[6] = 0 // one parameter header
	img[7] = 0xFF

	img[8] = 0x00
	img[9] = minor
	img[10] = 1
	img[11] = byte(len(table))
	binary.LittleEndian.PutUint32(img[12:], tablePtr|0xFF000000)

	for i, dw := range table {
		binary.LittleEndian.PutUint32(img[tablePtr+i*4:], dw)
	}
	return img
}

var (
	Winbond = Profile{
		Name: "Winbond W25Q32", JEDEC: [3]byte{0xEF, 0x40, 0x16},
		Location: statusreg.LocationS9, Registers: 3,
		Accepts16: true, Accepts8SR2: true, Volatile: true,
		WP: WPHonorsSRP, Hold: true,
		SFDP: sfdpImage(5, []uint32{0xFFF120E5, 0x01FFFFFF, 0x6B08EB44, 0xBB423B08}),
	}

	// WinbondLegacy only knows the 16 bit write status register command.
	WinbondLegacy = Profile{
		Name: "Winbond W25Q32 (old)", JEDEC: [3]byte{0xEF, 0x40, 0x16},
		Location: statusreg.LocationS9, Registers: 2,
		Accepts16: true, Volatile: true,
		WP: WPHonorsSRP, Hold: true,
	}

	GigaDevice = Profile{
		Name: "GigaDevice GD25Q32", JEDEC: [3]byte{0xC8, 0x40, 0x16},
		Location: statusreg.LocationS9, Registers: 3,
		Accepts8SR2: true, Volatile: true, LatchStuckOnReject: true,
		WP: WPUnlessQE, Hold: true,
		SFDP: sfdpImage(0, []uint32{0xFFF920E5, 0x01FFFFFF, 0x6B08EB44, 0xBB423B08}),
	}

	MysteryD8 = Profile{
		Name: "25Q32ET", JEDEC: [3]byte{0xD8, 0x40, 0x16},
		Location: statusreg.LocationS9, Registers: 3,
		Accepts8SR2: true, Volatile: true, LatchStuckOnReject: true,
		WP: WPUnlessQE, Hold: true,
	}

	XMC = Profile{
		Name: "XMC XM25QH32B", JEDEC: [3]byte{0x20, 0x40, 0x16},
		Location: statusreg.LocationS9, Registers: 3,
		Accepts16: true, Accepts8SR2: true, Volatile: true, ClearsSR3OnSR2Write: true,
		WP: WPHonorsSRP, Hold: true,
		SFDP: sfdpImage(6, []uint32{0xFFF320E5, 0x01FFFFFF, 0x6B08EB44, 0xBB423B08}),
	}

	EON = Profile{
		Name: "EON EN25Q32C", JEDEC: [3]byte{0x1C, 0x30, 0x16},
		Location: statusreg.LocationS6, Registers: 1,
		Volatile: true, LatchStuckOnReject: true,
		WP: WPUnlessQE,
	}

	EONUnsupported = Profile{
		Name: "EON EN25Q32", JEDEC: [3]byte{0x1C, 0x33, 0x16},
		Location: statusreg.LocationS6, Registers: 1,
		Volatile: true, LatchStuckOnReject: true,
		WP: WPUnlessQE,
	}

	Macronix = Profile{
		Name: "Macronix MX25L3233F", JEDEC: [3]byte{0xC2, 0x20, 0x16},
		Location: statusreg.LocationS6, Registers: 1,
		WP: WPUnlessQE, Hold: true,
	}

	ISSI = Profile{
		Name: "ISSI IS25LP032", JEDEC: [3]byte{0x9D, 0x60, 0x16},
		Location: statusreg.LocationS6, Registers: 1,
		WP: WPUnlessQE, Hold: true,
	}

	// No16Bit is an unknown vendor that rejects the legacy 16 bit write.
	No16Bit = Profile{
		Name: "generic without 16 bit writes", JEDEC: [3]byte{0xFF, 0x40, 0x16},
		Location: statusreg.LocationS9, Registers: 3,
		Accepts8SR2: true, Volatile: true, LatchStuckOnReject: true,
		WP: WPUnlessQE, Hold: true,
	}
)

// Profiles maps the names accepted by the simulated bridge to the parts.
var Profiles = map[string]Profile{
	"winbond":        Winbond,
	"winbond-legacy": WinbondLegacy,
	"gigadevice":     GigaDevice,
	"mystery-d8":     MysteryD8,
	"xmc":            XMC,
	"eon":            EON,
	"eon-unknown":    EONUnsupported,
	"macronix":       Macronix,
	"issi":           ISSI,
	"no-16bit":       No16Bit,
}

func Lookup(name string) (Profile, bool) {
	p, ok := Profiles[name]
	return p, ok
}
