package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/u-root/u-root/pkg/flash/sfdp"

	"github.com/BertoldVdb/qereclaim/reclaim"
	"github.com/BertoldVdb/qereclaim/spiflash"
)

var idCmd = &cobra.Command{
	Use:   "id",
	Short: "Identify the flash and show the strategy that would be used",
	Long: `Reads the JEDEC id and the SFDP header of the flash and prints the strategy
the reclaim command would pick for it. Nothing is written.`,
	RunE: runID,
}

func init() {
	rootCmd.AddCommand(idCmd)
}

func runID(cmd *cobra.Command, args []string) error {
	b, err := openBridge()
	if err != nil {
		return err
	}
	defer b.Close()

	out := cmd.OutOrStdout()

	if b.version != nil {
		if v, err := b.version(); err == nil {
			fmt.Fprintf(out, "Bridge:   JMS578 firmware %08x\n", v)
		} else {
			fmt.Fprintf(out, "Bridge:   JMS578 firmware unknown (%v)\n", err)
		}
	}

	id := b.flash.ChipID()
	fmt.Fprintf(out, "Flash:    %s\n", b.flash)
	fmt.Fprintf(out, "Vendor:   %s\n", spiflash.VendorName(id.Vendor()))

	ident := reclaim.Identity{ChipID: uint32(id)}
	rev, err := b.flash.SFDPRevision()
	switch {
	case err != nil:
		fmt.Fprintf(out, "SFDP:     read failed (%v)\n", err)
	case !rev.Present():
		fmt.Fprintln(out, "SFDP:     not present")
	default:
		ident.SFDPFingerprint, err = b.flash.SFDPFingerprint()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "SFDP:     %d.%d, basic table %d.%d (%d dwords), fingerprint %08x\n",
			rev.Major, rev.Minor, rev.ParamMajor, rev.ParamMinor, rev.TableDwords, ident.SFDPFingerprint)

		/* Density is N-1 bits */
		if s, err := b.flash.SFDP(); err == nil {
			if density, err := s.Param(sfdp.ParamFlashMemoryDensity); err == nil && density&(1<<31) == 0 {
				fmt.Fprintf(out, "Density:  %d bits\n", density+1)
			}
		}
	}

	if hdr, err := b.flash.BootHeader(); err == nil {
		fmt.Fprintf(out, "Image:    %s, entry %08x", hdr.Mode, hdr.Entry)
		if size, ok := hdr.FlashSize(); ok {
			fmt.Fprintf(out, ", built for %d KiB", size>>10)
		}
		if freq, ok := hdr.Frequency(); ok {
			fmt.Fprintf(out, " at %d MHz", freq)
		}
		fmt.Fprintln(out)
	} else {
		fmt.Fprintln(out, "Image:    no boot image header")
	}

	mode, err := b.flash.TransferMode()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Mode:     %s\n", mode)

	table, err := cfg.Vendors.Table()
	if err != nil {
		return err
	}
	if s, ok := table.Lookup(ident); ok {
		fmt.Fprintf(out, "Strategy: %s\n", s.Name)
		for _, a := range s.Attempts {
			fmt.Fprintf(out, "  - %s\n", a)
		}
	} else {
		fmt.Fprintln(out, "Strategy: none, vendor unsupported")
	}

	return nil
}
