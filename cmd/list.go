package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/BertoldVdb/qereclaim/usbdev"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List connected bridges",
	Long: `Scans the USB bus for supported bridges (FT232H, FT2232H, JMS578) and prints
the value to pass to --bridge and --device for each.`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	bridges, err := usbdev.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discover bridges: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Detected bridges:")
	for _, b := range bridges {
		if b.Kind == usbdev.KindSim {
			fmt.Fprintf(out, "  - %s [--bridge %s]\n", b.Label(), b.Kind)
			continue
		}
		fmt.Fprintf(out, "  - %s [--bridge %s --device %s]\n", b.Label(), b.Kind, b.Device())
	}

	return nil
}
