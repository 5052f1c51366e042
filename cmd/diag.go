package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BertoldVdb/qereclaim/diag"
	"github.com/BertoldVdb/qereclaim/statusreg"
)

var (
	diagLocation    string
	diagUse16Bit    bool
	diagNonVolatile bool
	diagPreset      bool
)

var diagCmd = &cobra.Command{
	Use:   "diag",
	Short: "Bring-up tests for the /WP and /HOLD behaviour of a part",
	Long: `Tests that write the status registers and drive the /WP and /HOLD pins to
show how a part really behaves. Only run these on a test board: some of
them leave the block protection armed until the next power cycle.

Examples:
  qereclaim diag short                        # Check the pins are not shorted first
  qereclaim diag wp --location S9 --16bit     # Classify /WP handling
  qereclaim diag hold --location S6 --preset  # Use a bit that is already set`,
}

func init() {
	rootCmd.AddCommand(diagCmd)

	pf := diagCmd.PersistentFlags()
	pf.StringVarP(&diagLocation, "location", "l", "S9", "bit location: S9 (SR2 bit 1) or S6 (SR1 bit 6)")
	pf.BoolVar(&diagUse16Bit, "16bit", false, "write SR1 and SR2 with one 16 bit command")
	pf.BoolVar(&diagNonVolatile, "non-volatile", false, "use non-volatile writes")
	pf.BoolVar(&diagPreset, "preset", false, "do not write the bit, use the value already in the part")

	for _, c := range []*cobra.Command{
		{
			Use:   "set-qe",
			Short: "Set the bit and verify it",
			RunE:  diagRun(func(s *diag.Suite) (fmt.Stringer, error) { return okResult(s.SetQE()) }),
		},
		{
			Use:   "protect-isolation",
			Short: "Check SRP0 can be set on its own (S9 parts)",
			RunE:  diagRun(func(s *diag.Suite) (fmt.Stringer, error) { return okResult(s.ProtectIsolation()) }),
		},
		{
			Use:   "protect-clear",
			Short: "Clear SR1 and SR2 with /WP high (S9 parts)",
			RunE:  diagRun(func(s *diag.Suite) (fmt.Stringer, error) { return okResult(s.ProtectAndEnableClear()) }),
		},
		{
			Use:   "wp",
			Short: "Classify how /WP gates status register writes",
			RunE: diagRun(func(s *diag.Suite) (fmt.Stringer, error) {
				r, err := s.OutputWP()
				return r, err
			}),
		},
		{
			Use:   "hold",
			Short: "Check the flash keeps answering with /HOLD low",
			RunE: diagRun(func(s *diag.Suite) (fmt.Stringer, error) {
				r, err := s.OutputHold(diag.HostSection{})
				return r, err
			}),
		},
		{
			Use:   "inputs",
			Short: "Set the bit and read both pins as inputs",
			RunE: diagRun(func(s *diag.Suite) (fmt.Stringer, error) {
				r, err := s.InputPins()
				return r, err
			}),
		},
		{
			Use:   "short",
			Short: "Drive both pins high and low to find shorts",
			RunE: diagRun(func(s *diag.Suite) (fmt.Stringer, error) {
				r, err := s.PinShort()
				return r, err
			}),
		},
	} {
		diagCmd.AddCommand(c)
	}
}

type passResult bool

func (r passResult) String() string {
	if r {
		return "pass"
	}
	return "fail"
}

func okResult(ok bool, err error) (fmt.Stringer, error) {
	return passResult(ok), err
}

func diagRun(test func(s *diag.Suite) (fmt.Stringer, error)) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		loc, err := statusreg.ParseLocation(diagLocation)
		if err != nil {
			return err
		}

		b, err := openBridge()
		if err != nil {
			return err
		}
		defer b.Close()

		s, err := diag.New(b.flash, b.pins, diag.Options{
			Location:    loc,
			Use16Bit:    diagUse16Bit,
			NonVolatile: diagNonVolatile,
			UsePreset:   diagPreset,
		})
		if err != nil {
			return err
		}
		s.LogFunc = logf()

		r, err := test(s)
		if err != nil {
			return fmt.Errorf("%s: %w", cmd.Name(), err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", cmd.Name(), r)
		return nil
	}
}
