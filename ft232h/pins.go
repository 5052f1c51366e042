package ft232h

import (
	"fmt"
	"strings"
)

/* D0-D2 carry SCK, MOSI and MISO */
const firstFreeDBus = 3

// parsePin accepts the periph names of the ADBUS (D0-D7) and ACBUS (C0-C7)
// lines that are not taken by the SPI engine.
func parsePin(name string) (byte, int, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if len(name) != 2 || (name[0] != 'D' && name[0] != 'C') || name[1] < '0' || name[1] > '7' {
		return 0, 0, fmt.Errorf("invalid FTDI pin %q", name)
	}

	bank, n := name[0], int(name[1]-'0')
	if bank == 'D' && n < firstFreeDBus {
		return 0, 0, fmt.Errorf("pin %s is used by SPI", name)
	}
	return bank, n, nil
}

func checkDistinct(cs, wp, hold string) error {
	if cs == "" {
		cs = hardwareCSName
	}

	seen := map[string]bool{}
	for _, name := range []string{cs, wp, hold} {
		name = strings.ToUpper(strings.TrimSpace(name))
		if seen[name] {
			return fmt.Errorf("pin %s assigned twice (cs=%s wp=%s hold=%s)", name, cs, wp, hold)
		}
		seen[name] = true
	}
	return nil
}
