package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/BertoldVdb/qereclaim/config"
)

var (
	// Global flags
	configPath string
	bridgeType string
	devicePath string
	simProfile string
	flashMode  string
	verbose    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "qereclaim",
	Short: "Free the /WP and /HOLD pins of a SPI NOR flash",
	Long: `Sets the status register bit that turns off the /WP and /HOLD functions of
a SPI NOR flash, so the two pins can be used as GPIOs by the host.

Examples:
  qereclaim id --bridge sim --profile gigadevice     # Identify a simulated part
  qereclaim reclaim --device /dev/sdb                # Reclaim through a JMS578
  qereclaim diag wp --bridge ft232h --location S9    # Check how the part treats /WP`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	pf.StringVarP(&bridgeType, "bridge", "b", "", "bridge type: jms578, ft232h or sim")
	pf.StringVarP(&devicePath, "device", "d", "", "bridge device (block device, VVVV:PPPP or FTDI product id)")
	pf.StringVar(&simProfile, "profile", "", "simulated part (sim bridge only)")
	pf.StringVar(&flashMode, "mode", "", "flash mode override: qio, qout, dio or dout")
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

/* Flags win over the file */
func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("bridge") {
		c.Bridge.Type = bridgeType
	}
	if flags.Changed("device") {
		c.Bridge.Device = devicePath
	}
	if flags.Changed("profile") {
		c.Bridge.Profile = simProfile
	}
	if flags.Changed("mode") {
		c.Flash.Mode = flashMode
	}

	if err := config.Validate(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	config.Normalize(c)

	cfg = c
	return nil
}

func logf() func(format string, params ...any) {
	if verbose {
		return log.Printf
	}
	return nil
}
