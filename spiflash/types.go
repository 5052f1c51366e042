package spiflash

import "fmt"

// ChipID is the identification packed the way the ESP8266 SDK reports it:
// manufacturer in bits 0-7, memory type in bits 8-15, capacity in 16-23.
type ChipID uint32

func chipIDFromJEDEC(id [4]byte) ChipID {
	return ChipID(uint32(id[0]) | uint32(id[1])<<8 | uint32(id[2])<<16)
}

func (c ChipID) Vendor() byte {
	return byte(c)
}

func (c ChipID) MemoryType() byte {
	return byte(c >> 8)
}

// Capacity is log2 of the size in bytes.
func (c ChipID) Capacity() byte {
	return byte(c >> 16)
}

func (c ChipID) String() string {
	return fmt.Sprintf("0x%06X", uint32(c))
}

type flashDevice struct {
	deviceID uint32
	name     string
}

var devices = []flashDevice{
	{deviceID: 0x1f65, name: "Adesto AT25DN512"},
	{deviceID: 0xef3012, name: "Winbond W25X20"},
	{deviceID: 0xef4016, name: "Winbond W25Q32"},
	{deviceID: 0xc84016, name: "GigaDevice GD25Q32"},
	{deviceID: 0xd84016, name: "25Q32ET (vendor D8)"},
	{deviceID: 0x204016, name: "XMC XM25QH32"},
	{deviceID: 0x1c3016, name: "EON EN25Q32"},
	{deviceID: 0x1c7018, name: "EON EN25QH128A"},
	{deviceID: 0xc22016, name: "Macronix MX25L3233F"},
	{deviceID: 0x9d6016, name: "ISSI IS25LP032"},
	{deviceID: 0xe04016, name: "BergMicro BG25Q32"},
	{deviceID: 0x5e4016, name: "Zbit ZB25VQ32"},
}

var vendors = map[byte]string{
	0x1C: "EON",
	0x1F: "Adesto",
	0x20: "XMC",
	0x5E: "Zbit",
	0x9D: "ISSI/PMC",
	0xC2: "Macronix",
	0xC8: "GigaDevice",
	0xD8: "Mystery vendor D8",
	0xE0: "BergMicro",
	0xEF: "Winbond",
}

// VendorName returns a human readable name for a manufacturer byte. The byte
// is not unique across JEP106 banks, so this is only a hint.
func VendorName(v byte) string {
	if name, ok := vendors[v]; ok {
		return name
	}
	return fmt.Sprintf("unknown (0x%02X)", v)
}

func rightAlign(in uint32) (uint32, uint32) {
	mask := uint32(0)

	for (in >> 24) == 0 {
		in <<= 8
		mask <<= 8
		mask |= 0xFF
	}
	return in, ^mask
}

func deviceLookup(id uint32) (flashDevice, bool) {
	for _, m := range devices {
		compare, mask := rightAlign(m.deviceID)

		if id&mask == compare {
			return m, true
		}
	}
	return flashDevice{}, false
}
