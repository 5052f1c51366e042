package spiflash

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/u-root/u-root/pkg/flash/sfdp"

	"github.com/BertoldVdb/qereclaim/flashsim"
	"github.com/BertoldVdb/qereclaim/statusreg"
)

func newSim(t *testing.T, p flashsim.Profile, maxBytes int) (*Flash, *flashsim.Device) {
	dev := flashsim.New(p)
	f, err := New(dev.Transfer, maxBytes)
	if err != nil {
		t.Fatal("New failed:", err)
	}
	return f, dev
}

func TestChipID(t *testing.T) {
	f, _ := newSim(t, flashsim.EON, 16)

	id := f.ChipID()
	if id != 0x16301C {
		t.Errorf("chip id %s", id)
	}
	if id.Vendor() != 0x1C || id.MemoryType() != 0x30 || id.Capacity() != 0x16 {
		t.Error("chip id fields decoded wrong")
	}
	if name, ok := f.Name(); !ok || name != "EON EN25Q32" {
		t.Errorf("name lookup: %q %v", name, ok)
	}

	if raw, err := f.ReadChipID(); err != nil || raw != 0x16301C {
		t.Errorf("ReadChipID: %06x %v", raw, err)
	}
}

func TestNoFlash(t *testing.T) {
	empty := func(out []byte, in []byte) error {
		for i := range in {
			in[i] = 0xFF
		}
		return nil
	}
	if _, err := New(empty, 16); err != ErrNoFlash {
		t.Error("missing flash not detected:", err)
	}

	broken := errors.New("bus")
	if _, err := New(func([]byte, []byte) error { return broken }, 16); err != broken {
		t.Error("transport error not returned:", err)
	}
}

func TestRegisterWidths(t *testing.T) {
	f, dev := newSim(t, flashsim.Winbond, 16)

	if err := f.WriteRegister(statusreg.SR1, 0x0280, statusreg.Volatile, statusreg.Width16); err != nil {
		t.Fatal(err)
	}
	if dev.Register(statusreg.SR1) != 0x80 || dev.Register(statusreg.SR2) != 0x02 {
		t.Errorf("16 bit write landed wrong: %02x %02x", dev.Register(statusreg.SR1), dev.Register(statusreg.SR2))
	}
	if dev.NonVolatile(statusreg.SR2) != 0 {
		t.Error("volatile write changed the non-volatile copy")
	}

	if err := f.WriteRegister(statusreg.SR3, 0x60, statusreg.NonVolatile, statusreg.Width8); err != nil {
		t.Fatal(err)
	}
	if dev.NonVolatile(statusreg.SR3) != 0x60 {
		t.Error("non-volatile write did not persist")
	}

	if v, err := f.ReadRegister(statusreg.SR2); err != nil || v != 0x02 {
		t.Errorf("read SR2 = %02x, %v", v, err)
	}

	if err := f.WriteRegister(statusreg.SR2, 0, statusreg.Volatile, statusreg.Width16); !errors.Is(err, ErrWidthNotSupported) {
		t.Error("16 bit SR2 write accepted:", err)
	}
	if _, err := f.ReadRegister(statusreg.Register(7)); err != ErrRegisterNotSupported {
		t.Error("bad register accepted:", err)
	}
}

func TestWriteLatch(t *testing.T) {
	f, dev := newSim(t, flashsim.GigaDevice, 16)

	/* GigaDevice rejects the 16 bit form and keeps WEL set */
	if err := f.WriteRegister(statusreg.SR1, 0x0200, statusreg.NonVolatile, statusreg.Width16); err != nil {
		t.Fatal(err)
	}
	if set, err := f.IsWriteLatchSet(); err != nil || !set {
		t.Fatal("expected stuck WEL")
	}
	if dev.Register(statusreg.SR2) != 0 {
		t.Error("rejected write changed SR2")
	}

	if err := f.ClearWriteEnableLatch(); err != nil {
		t.Fatal(err)
	}
	if set, _ := f.IsWriteLatchSet(); set {
		t.Error("WEL still set after write disable")
	}
}

func TestTransferMode(t *testing.T) {
	f, dev := newSim(t, flashsim.Winbond, 16)

	if f.IsQuadTransferModeActive() {
		t.Error("blank flash reported as quad")
	}

	dev.SetBootMode(0)
	if m, err := f.TransferMode(); err != nil || m != ModeQIO {
		t.Errorf("mode %v %v", m, err)
	}
	if !f.IsQuadTransferModeActive() {
		t.Error("QIO image not detected")
	}

	f.SetTransferMode(ModeDOUT)
	if f.IsQuadTransferModeActive() {
		t.Error("explicit mode ignored")
	}

	if m, err := ParseTransferMode("QOUT"); err != nil || !m.Quad() {
		t.Error("ParseTransferMode failed")
	}
	if _, err := ParseTransferMode("octal"); err == nil {
		t.Error("bogus mode accepted")
	}
}

func TestSFDP(t *testing.T) {
	/* Small transactions force the reads to be split */
	f, dev := newSim(t, flashsim.XMC, 9)

	rev, err := f.SFDPRevision()
	if err != nil {
		t.Fatal(err)
	}
	if !rev.Present() || rev.Major != 1 || rev.Minor != 6 || rev.TableDwords != 4 || rev.TablePointer != 0x30 {
		t.Errorf("unexpected revision %+v", rev)
	}

	table, _, err := f.SFDPBasicTable()
	if err != nil {
		t.Fatal(err)
	}
	want := make([]byte, 16)
	copy(want, dev.Profile().SFDP[0x30:])
	if !bytes.Equal(table, want) || binary.LittleEndian.Uint32(table) != 0xFFF320E5 {
		t.Errorf("basic table %x", table)
	}

	s, err := f.SFDP()
	if err != nil {
		t.Fatal("SFDP:", err)
	}
	if s.MajorRev != 1 || s.MinorRev != 6 || len(s.Parameters) != 1 {
		t.Errorf("header %+v", s.Header)
	}
	/* 32 Mbit, stored as N-1 */
	if density, err := s.Param(sfdp.ParamFlashMemoryDensity); err != nil || density != 0x01FFFFFF {
		t.Errorf("density %x %v", density, err)
	}

	if _, err := (sfdpSpace{f}).ReadAt(make([]byte, 4), 0xFFFFFE); err != ErrSFDPOffset {
		t.Error("read past the SFDP address space:", err)
	}

	fpXMC, err := f.SFDPFingerprint()
	if err != nil || fpXMC == 0 {
		t.Fatal("no fingerprint", err)
	}

	g, _ := newSim(t, flashsim.GigaDevice, 64)
	fpGD, _ := g.SFDPFingerprint()
	if fpGD == fpXMC {
		t.Error("different tables gave the same fingerprint")
	}

	e, _ := newSim(t, flashsim.EON, 64)
	if rev, err := e.SFDPRevision(); err != nil || rev.Present() {
		t.Error("SFDP reported on a part without it")
	}
	var unsupported *sfdp.UnsupportedError
	if _, err := e.SFDP(); !errors.As(err, &unsupported) {
		t.Error("parsed SFDP on a part without it:", err)
	}
	if fp, err := e.SFDPFingerprint(); err != nil || fp != 0 {
		t.Error("fingerprint without SFDP")
	}
}

func TestRead(t *testing.T) {
	f, dev := newSim(t, flashsim.Winbond, 6)
	dev.SetBootMode(2)

	var hdr [4]byte
	if n, err := f.Read(0, hdr[:]); err != nil || n != 4 {
		t.Fatal(n, err)
	}
	if hdr != [4]byte{0xE9, 0x01, 0x02, 0x20} {
		t.Errorf("header %x", hdr)
	}

	tiny := &Flash{spi: dev.Transfer, maxBytesPerTransaction: 4}
	if _, err := tiny.Read(0, hdr[:]); err != ErrTransactionTooSmall {
		t.Error("expected ErrTransactionTooSmall:", err)
	}
}
