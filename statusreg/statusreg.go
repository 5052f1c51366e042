// Package statusreg models the status registers of a SPI NOR flash as far as
// they matter for disabling the /WP and /HOLD pin functions.
package statusreg

import "fmt"

type Register uint8

const (
	SR1 Register = iota
	SR2
	SR3
)

func (r Register) String() string {
	switch r {
	case SR1:
		return "SR1"
	case SR2:
		return "SR2"
	case SR3:
		return "SR3"
	}
	return fmt.Sprintf("SR?(%d)", uint8(r))
}

func (r Register) Valid() bool {
	return r <= SR3
}

type Width uint8

const (
	Width8  Width = 8
	Width16 Width = 16
)

type Persistence uint8

const (
	Volatile Persistence = iota
	NonVolatile
)

func (p Persistence) String() string {
	if p == NonVolatile {
		return "non-volatile"
	}
	return "volatile"
}

/* Status register 1 */
const (
	BitWIP  byte = 1 << 0
	BitWEL  byte = 1 << 1
	BitBP0  byte = 1 << 2
	BitBP1  byte = 1 << 3
	BitBP2  byte = 1 << 4
	BitS6   byte = 1 << 6
	BitSRP0 byte = 1 << 7
)

/* Status register 2 */
const (
	BitSRP1 byte = 1 << 0
	BitQE   byte = 1 << 1
)

// Location is the place of the bit that switches off the /WP and /HOLD pin
// functions. Vendors disagree on it, exactly one applies per part.
type Location uint8

const (
	LocationInvalid Location = iota
	LocationS9               // QE, bit 1 of SR2
	LocationS6               // QE or WPDis, bit 6 of SR1
)

func (l Location) Valid() bool {
	return l == LocationS9 || l == LocationS6
}

func (l Location) String() string {
	switch l {
	case LocationS9:
		return "S9"
	case LocationS6:
		return "S6"
	}
	return "S?"
}

func (l Location) Register() Register {
	switch l {
	case LocationS9:
		return SR2
	case LocationS6:
		return SR1
	}
	panic(fmt.Sprintf("statusreg: invalid bit location %d", uint8(l)))
}

func (l Location) Mask() byte {
	switch l {
	case LocationS9:
		return BitQE
	case LocationS6:
		return BitS6
	}
	panic(fmt.Sprintf("statusreg: invalid bit location %d", uint8(l)))
}

// Supports reports whether the location can be written with the given width.
// Only S9 has a 16 bit form, through the legacy combined SR1+SR2 write.
func (l Location) Supports(w Width) bool {
	switch w {
	case Width8:
		return l.Valid()
	case Width16:
		return l == LocationS9
	}
	return false
}

// ParseLocation accepts "S9"/"9" and "S6"/"6".
func ParseLocation(s string) (Location, error) {
	switch s {
	case "S9", "s9", "9":
		return LocationS9, nil
	case "S6", "s6", "6":
		return LocationS6, nil
	}
	return LocationInvalid, fmt.Errorf("unknown QE bit location %q", s)
}
