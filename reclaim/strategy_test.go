package reclaim

import (
	"testing"

	"github.com/BertoldVdb/qereclaim/statusreg"
)

func TestTableLookup(t *testing.T) {
	table := DefaultTable()
	if err := table.Validate(); err != nil {
		t.Fatal("built-in table invalid:", err)
	}

	tests := []struct {
		id       uint32
		ok       bool
		location statusreg.Location
		width    statusreg.Width
		persist  statusreg.Persistence
		attempts int
		sr3      bool
	}{
		{0x1640C8, true, statusreg.LocationS9, statusreg.Width8, statusreg.Volatile, 1, false},
		{0x1640D8, true, statusreg.LocationS9, statusreg.Width8, statusreg.Volatile, 1, false},
		{0x164020, true, statusreg.LocationS9, statusreg.Width8, statusreg.Volatile, 1, true},
		{0x16609D, true, statusreg.LocationS6, statusreg.Width8, statusreg.NonVolatile, 1, false},
		{0x1620C2, true, statusreg.LocationS6, statusreg.Width8, statusreg.NonVolatile, 1, false},
		{0x16301C, true, statusreg.LocationS6, statusreg.Width8, statusreg.Volatile, 1, false},
		{0x17301C, true, statusreg.LocationS6, statusreg.Width8, statusreg.Volatile, 1, false},
		{0x16331C, false, 0, 0, 0, 0, false},
		{0x18701C, false, 0, 0, 0, 0, false},
		{0x1640EF, true, statusreg.LocationS9, statusreg.Width16, statusreg.Volatile, 2, false},
		{0x1640FF, true, statusreg.LocationS9, statusreg.Width16, statusreg.Volatile, 2, false},
	}

	for _, tc := range tests {
		s, ok := table.Lookup(Identity{ChipID: tc.id})
		if ok != tc.ok {
			t.Errorf("%06x: ok=%v, want %v", tc.id, ok, tc.ok)
			continue
		}
		if !ok {
			continue
		}
		if len(s.Attempts) != tc.attempts {
			t.Errorf("%06x: %d attempts, want %d", tc.id, len(s.Attempts), tc.attempts)
			continue
		}
		a := s.Attempts[0]
		if a.Location != tc.location || a.Width != tc.width || a.Persistence != tc.persist {
			t.Errorf("%06x: first attempt %s", tc.id, a)
		}
		if s.PreserveSR3 != tc.sr3 {
			t.Errorf("%06x: PreserveSR3=%v", tc.id, s.PreserveSR3)
		}
	}

	def, _ := table.Lookup(Identity{ChipID: 0x1640FF})
	if def.Attempts[1] != (Attempt{statusreg.LocationS9, statusreg.Width8, statusreg.Volatile}) {
		t.Error("default fallback is not the 8 bit SR2 write:", def.Attempts[1])
	}
}

func TestTableWithout(t *testing.T) {
	table := DefaultTable().Without("macronix", DefaultRuleName)

	if _, ok := table.Lookup(Identity{ChipID: 0x1640EF}); ok {
		t.Error("default strategy still active")
	}
	if _, ok := table.Lookup(Identity{ChipID: 0x1620C2}); ok {
		t.Error("disabled vendor still matched")
	}
	if _, ok := table.Lookup(Identity{ChipID: 0x16609D}); !ok {
		t.Error("unrelated vendor dropped")
	}

	/* A disabled vendor is handled like any unknown one */
	s, ok := DefaultTable().Without("macronix").Lookup(Identity{ChipID: 0x1620C2})
	if !ok || s.Name != strategyDefault.Name {
		t.Error("disabled vendor did not fall back to the default:", s.Name, ok)
	}

	for _, n := range table.Names() {
		if n == "macronix" || n == DefaultRuleName {
			t.Error("Names lists a removed rule:", n)
		}
	}
}

func TestTableWith(t *testing.T) {
	custom := Rule{
		Name: "xm25qh32c", Vendor: VendorXMC, SFDPFingerprint: 0x12345678,
		Strategy: Strategy{
			Name:     "custom",
			Attempts: []Attempt{{statusreg.LocationS9, statusreg.Width16, statusreg.Volatile}},
		},
	}
	table, err := DefaultTable().With(custom)
	if err != nil {
		t.Fatal(err)
	}

	if s, _ := table.Lookup(Identity{ChipID: 0x164020, SFDPFingerprint: 0x12345678}); s.Name != "custom" {
		t.Error("custom rule not preferred:", s.Name)
	}
	if s, _ := table.Lookup(Identity{ChipID: 0x164020, SFDPFingerprint: 1}); !s.PreserveSR3 {
		t.Error("fingerprint mismatch did not reach the built-in rule:", s.Name)
	}

	/* A fingerprint rule for a vendor without built-in rule keeps the default for other parts */
	winbond := custom
	winbond.Name, winbond.Vendor = "w25q32jv", 0xEF
	table, err = DefaultTable().With(winbond)
	if err != nil {
		t.Fatal(err)
	}
	if s, ok := table.Lookup(Identity{ChipID: 0x1640EF}); !ok || s.Name != strategyDefault.Name {
		t.Error("unreadable fingerprint lost the default strategy:", s.Name, ok)
	}
	if s, ok := table.Lookup(Identity{ChipID: 0x1640EF, SFDPFingerprint: 7}); !ok || s.Name != strategyDefault.Name {
		t.Error("other fingerprint lost the default strategy:", s.Name, ok)
	}
	if s, _ := table.Lookup(Identity{ChipID: 0x1640EF, SFDPFingerprint: 0x12345678}); s.Name != "custom" {
		t.Error("fingerprint rule not used:", s.Name)
	}

	bad := Rule{Name: "bad", Vendor: 0x01, Strategy: Strategy{
		Name:     "s6 wide",
		Attempts: []Attempt{{statusreg.LocationS6, statusreg.Width16, statusreg.Volatile}},
	}}
	if _, err := DefaultTable().With(bad); err == nil {
		t.Error("16 bit S6 write accepted")
	}
	if _, err := NewTable([]Rule{{Name: "empty", Vendor: 0x01}}, nil); err == nil {
		t.Error("rule without attempts accepted")
	}
	if _, err := NewTable(nil, &Strategy{Name: "x", Attempts: []Attempt{{}}}); err == nil {
		t.Error("invalid location accepted")
	}
}
