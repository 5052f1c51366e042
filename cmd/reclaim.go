package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BertoldVdb/qereclaim/reclaim"
)

var reclaimCmd = &cobra.Command{
	Use:   "reclaim",
	Short: "Set the bit that releases /WP and /HOLD",
	Long: `Identifies the flash, picks the vendor strategy and sets the bit that turns
off the /WP and /HOLD functions. On success both pins are left as inputs.
The command fails without touching the registers when the boot image runs
the flash in a quad mode.`,
	RunE: runReclaim,
}

func init() {
	rootCmd.AddCommand(reclaimCmd)
}

func runReclaim(cmd *cobra.Command, args []string) error {
	b, err := openBridge()
	if err != nil {
		return err
	}
	defer b.Close()

	table, err := cfg.Vendors.Table()
	if err != nil {
		return err
	}

	r := reclaim.New(b.flash, b.pins, table)
	r.LogFunc = logf()

	res, err := r.Run()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Chip ID:  0x%06X\n", res.ChipID)
	if res.Strategy != "" {
		fmt.Fprintf(out, "Strategy: %s\n", res.Strategy)
	}
	if res.LatchWasSet {
		fmt.Fprintln(out, "Write enable latch was left set, cleared it")
	}
	if res.Outcome == reclaim.Success {
		fmt.Fprintf(out, "Attempt:  %s\n", res.Attempt)
	}
	fmt.Fprintf(out, "Outcome:  %s\n", res.Outcome)

	if err != nil {
		return fmt.Errorf("reclaim: %w", err)
	}
	return nil
}
