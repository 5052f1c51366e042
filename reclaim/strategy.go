package reclaim

import (
	"fmt"

	"github.com/BertoldVdb/qereclaim/statusreg"
)

// Attempt is one way of setting the bit: where it lives, how wide the write
// is and whether it is meant to survive a power cycle.
type Attempt struct {
	Location    statusreg.Location
	Width       statusreg.Width
	Persistence statusreg.Persistence
}

func (a Attempt) String() string {
	return fmt.Sprintf("%s/%d-bit/%s", a.Location, a.Width, a.Persistence)
}

func (a Attempt) validate() error {
	if !a.Location.Valid() {
		return fmt.Errorf("invalid bit location %d", a.Location)
	}
	if !a.Location.Supports(a.Width) {
		return fmt.Errorf("%s cannot be written with a %d bit command", a.Location, a.Width)
	}
	if a.Persistence != statusreg.Volatile && a.Persistence != statusreg.NonVolatile {
		return fmt.Errorf("invalid persistence %d", a.Persistence)
	}
	return nil
}

// Strategy lists the attempts for a family, most specific first. Later
// attempts only run when the earlier ones did not verify.
type Strategy struct {
	Name     string
	Attempts []Attempt

	// PreserveSR3 saves SR3 before the write and restores it (volatile)
	// afterwards, for parts that wipe it on an SR2 write.
	PreserveSR3 bool
}

func (s Strategy) validate() error {
	if len(s.Attempts) == 0 {
		return fmt.Errorf("strategy %q has no attempts", s.Name)
	}
	for _, a := range s.Attempts {
		if err := a.validate(); err != nil {
			return fmt.Errorf("strategy %q: %w", s.Name, err)
		}
	}
	return nil
}

type Rule struct {
	Name   string
	Vendor byte

	// When IDMask is set the rule only covers ids with id&IDMask == IDMatch.
	// Other ids of the same vendor are unsupported, they do not fall through
	// to the default strategy. A rule restricted by fingerprint alone does
	// not do that.
	IDMask  uint32
	IDMatch uint32

	// SFDPFingerprint restricts the rule to one SFDP table when non-zero.
	SFDPFingerprint uint32

	Strategy Strategy
}

func (r Rule) matches(id Identity) bool {
	if id.Vendor() != r.Vendor {
		return false
	}
	if r.IDMask != 0 && id.ChipID&r.IDMask != r.IDMatch {
		return false
	}
	if r.SFDPFingerprint != 0 && id.SFDPFingerprint != r.SFDPFingerprint {
		return false
	}
	return true
}

// StrategyProvider picks the strategy for a part. Callers that need vendors
// the built-in table does not know can supply their own.
type StrategyProvider interface {
	Lookup(id Identity) (Strategy, bool)
}

type Table struct {
	Rules   []Rule
	Default *Strategy
}

func NewTable(rules []Rule, def *Strategy) (*Table, error) {
	t := &Table{Rules: rules, Default: def}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table) Validate() error {
	for _, r := range t.Rules {
		if err := r.Strategy.validate(); err != nil {
			return fmt.Errorf("rule %q: %w", r.Name, err)
		}
	}
	if t.Default != nil {
		return t.Default.validate()
	}
	return nil
}

func (t *Table) Lookup(id Identity) (Strategy, bool) {
	vendorKnown := false
	for _, r := range t.Rules {
		if r.matches(id) {
			return r.Strategy, true
		}
		/* An id-restricted rule claims the whole vendor */
		if r.Vendor == id.Vendor() && r.IDMask != 0 {
			vendorKnown = true
		}
	}

	if vendorKnown || t.Default == nil {
		return Strategy{}, false
	}
	return *t.Default, true
}

// Without returns a copy without the named rules. The name "default" drops
// the default strategy.
func (t *Table) Without(names ...string) *Table {
	drop := make(map[string]bool)
	for _, n := range names {
		drop[n] = true
	}

	n := &Table{}
	for _, r := range t.Rules {
		if !drop[r.Name] {
			n.Rules = append(n.Rules, r)
		}
	}
	if !drop[DefaultRuleName] {
		n.Default = t.Default
	}
	return n
}

// With returns a copy with rules placed in front of the existing ones.
func (t *Table) With(rules ...Rule) (*Table, error) {
	all := append(append([]Rule(nil), rules...), t.Rules...)
	return NewTable(all, t.Default)
}

// Names lists the rule names, for diagnostics and configuration checks.
func (t *Table) Names() []string {
	var names []string
	for _, r := range t.Rules {
		names = append(names, r.Name)
	}
	if t.Default != nil {
		names = append(names, DefaultRuleName)
	}
	return names
}

const DefaultRuleName = "default"

const (
	VendorGigaDevice = 0xC8
	VendorMysteryD8  = 0xD8
	VendorXMC        = 0x20
	VendorPMC        = 0x9D
	VendorMacronix   = 0xC2
	VendorEON        = 0x1C
)

var (
	strategySR2Volatile = Strategy{
		Name:     "S9 via 8-bit SR2",
		Attempts: []Attempt{{statusreg.LocationS9, statusreg.Width8, statusreg.Volatile}},
	}

	strategyXMC = Strategy{
		Name:        "S9 via 8-bit SR2, keep SR3",
		Attempts:    []Attempt{{statusreg.LocationS9, statusreg.Width8, statusreg.Volatile}},
		PreserveSR3: true,
	}

	/* These parts have no usable volatile form of the bit */
	strategyS6NonVolatile = Strategy{
		Name:     "S6 in SR1, non-volatile",
		Attempts: []Attempt{{statusreg.LocationS6, statusreg.Width8, statusreg.NonVolatile}},
	}

	strategyS6Volatile = Strategy{
		Name:     "S6 (WPDis) in SR1",
		Attempts: []Attempt{{statusreg.LocationS6, statusreg.Width8, statusreg.Volatile}},
	}

	/* The boot ROM writes QE with the legacy 16 bit command, parts that can
	 * run QIO images accept it. The 8 bit SR2 write is for DIO-only parts. */
	strategyDefault = Strategy{
		Name: "S9 via 16-bit SR1+SR2, fallback 8-bit SR2",
		Attempts: []Attempt{
			{statusreg.LocationS9, statusreg.Width16, statusreg.Volatile},
			{statusreg.LocationS9, statusreg.Width8, statusreg.Volatile},
		},
	}
)

// DefaultTable returns the built-in vendor table.
func DefaultTable() *Table {
	def := strategyDefault
	return &Table{
		Rules: []Rule{
			{Name: "gigadevice", Vendor: VendorGigaDevice, Strategy: strategySR2Volatile},
			{Name: "mystery-d8", Vendor: VendorMysteryD8, Strategy: strategySR2Volatile},
			{Name: "xmc", Vendor: VendorXMC, Strategy: strategyXMC},
			{Name: "pmc", Vendor: VendorPMC, Strategy: strategyS6NonVolatile},
			{Name: "macronix", Vendor: VendorMacronix, Strategy: strategyS6NonVolatile},

			/* EN25Q32A/B/C only, the other EON parts have no WPDis bit */
			{Name: "eon", Vendor: VendorEON, IDMask: 0xFFFF, IDMatch: 0x301C, Strategy: strategyS6Volatile},
		},
		Default: &def,
	}
}
