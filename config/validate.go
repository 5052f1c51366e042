package config

import (
	"fmt"
	"strings"

	"github.com/BertoldVdb/qereclaim/reclaim"
	"github.com/BertoldVdb/qereclaim/spiflash"
	"github.com/BertoldVdb/qereclaim/statusreg"
)

var bridgeTypes = map[string]bool{
	"":       true,
	"sim":    true,
	"ft232h": true,
	"jms578": true,
}

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("no configuration")
	}

	if !bridgeTypes[strings.ToLower(cfg.Bridge.Type)] {
		return fmt.Errorf("bridge: unknown type %q", cfg.Bridge.Type)
	}

	if _, err := spiflash.ParseTransferMode(cfg.Flash.Mode); err != nil {
		return fmt.Errorf("flash: %w", err)
	}

	// ------------------------------------------------------------
	// VENDOR TABLE
	// ------------------------------------------------------------

	builtin := make(map[string]bool)
	for _, name := range reclaim.DefaultTable().Names() {
		builtin[name] = true
	}
	for _, name := range cfg.Vendors.Disable {
		if !builtin[strings.ToLower(name)] {
			return fmt.Errorf("vendors: cannot disable unknown rule %q", name)
		}
	}

	seen := make(map[string]bool)
	for i, r := range cfg.Vendors.Rules {
		if r.Name == "" {
			return fmt.Errorf("vendors: rule %d has no name", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("vendors: rule %q defined twice", r.Name)
		}
		seen[r.Name] = true

		if r.IDMask == 0 && r.IDMatch != 0 {
			return fmt.Errorf("vendors: rule %q: id_match without id_mask", r.Name)
		}
		if r.IDMask != 0 && r.IDMatch&^r.IDMask != 0 {
			return fmt.Errorf("vendors: rule %q: id_match %06x has bits outside id_mask %06x", r.Name, r.IDMatch, r.IDMask)
		}
		if m := byte(r.IDMask); byte(r.IDMatch)&m != r.Vendor&m {
			return fmt.Errorf("vendors: rule %q: id_match contradicts vendor %02x", r.Name, r.Vendor)
		}

		if len(r.Attempts) == 0 {
			return fmt.Errorf("vendors: rule %q has no attempts", r.Name)
		}
		for j, a := range r.Attempts {
			if _, err := a.attempt(); err != nil {
				return fmt.Errorf("vendors: rule %q attempt %d: %w", r.Name, j, err)
			}
		}
	}

	return nil
}

func parsePersistence(s string) (statusreg.Persistence, error) {
	switch strings.ToLower(s) {
	case "", "volatile":
		return statusreg.Volatile, nil
	case "non-volatile", "nonvolatile":
		return statusreg.NonVolatile, nil
	}
	return statusreg.Volatile, fmt.Errorf("unknown persistence %q", s)
}

func (a AttemptConfig) attempt() (reclaim.Attempt, error) {
	loc, err := statusreg.ParseLocation(a.Location)
	if err != nil {
		return reclaim.Attempt{}, err
	}

	width := statusreg.Width8
	switch a.Width {
	case 0, 8:
	case 16:
		width = statusreg.Width16
	default:
		return reclaim.Attempt{}, fmt.Errorf("invalid width %d", a.Width)
	}
	if !loc.Supports(width) {
		return reclaim.Attempt{}, fmt.Errorf("%s cannot be written with a %d bit command", loc, width)
	}

	p, err := parsePersistence(a.Persistence)
	if err != nil {
		return reclaim.Attempt{}, err
	}

	return reclaim.Attempt{Location: loc, Width: width, Persistence: p}, nil
}
