package statusreg

import (
	"fmt"
	"strings"
)

type Reader interface {
	ReadRegister(r Register) (byte, error)
}

// Set is a snapshot of up to three status registers. It is only ever filled
// from an explicit read and is not kept beyond a single operation.
type Set struct {
	value [3]byte
	valid [3]bool
}

// Read fills a fresh Set with the requested registers.
func Read(rd Reader, regs ...Register) (Set, error) {
	var s Set
	for _, r := range regs {
		v, err := rd.ReadRegister(r)
		if err != nil {
			return s, fmt.Errorf("read %s: %w", r, err)
		}
		s.Put(r, v)
	}
	return s, nil
}

func (s *Set) Put(r Register, v byte) {
	s.value[r] = v
	s.valid[r] = true
}

func (s Set) Get(r Register) (byte, bool) {
	return s.value[r], s.valid[r]
}

// Value returns the register content, zero if it was never read.
func (s Set) Value(r Register) byte {
	return s.value[r]
}

func (s Set) Has(l Location) bool {
	return s.value[l.Register()]&l.Mask() != 0
}

// With returns a copy with the bit at l set.
func (s Set) With(l Location) Set {
	r := l.Register()
	s.value[r] |= l.Mask()
	s.valid[r] = true
	return s
}

// Combined is the layout of the legacy 16 bit write status register command:
// SR1 is sent first, SR2 second.
func (s Set) Combined() uint16 {
	return uint16(s.value[SR1]) | uint16(s.value[SR2])<<8
}

// SRP returns SRP1:SRP0.
func (s Set) SRP() (srp1, srp0 bool) {
	return s.value[SR2]&BitSRP1 != 0, s.value[SR1]&BitSRP0 != 0
}

// Diff returns, per register, the bits that differ between s and o. Only
// registers valid in both sets are compared.
func (s Set) Diff(o Set) [3]byte {
	var d [3]byte
	for i := range d {
		if s.valid[i] && o.valid[i] {
			d[i] = s.value[i] ^ o.value[i]
		}
	}
	return d
}

func (s Set) String() string {
	var parts []string
	for i := range s.value {
		if s.valid[i] {
			parts = append(parts, fmt.Sprintf("%s=%02x", Register(i), s.value[i]))
		}
	}
	if len(parts) == 0 {
		return "<empty>"
	}
	return strings.Join(parts, " ")
}
