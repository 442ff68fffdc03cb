// Package cmd defines and implements the CLI commands for the cadwatch executable.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cadwatch",
		Short: "Chester County live incident board watcher",
		Long: `cadwatch polls the Chester County "WebCAD" live incident board on a fixed
interval, filters the incidents down to a configured set of municipalities,
and publishes every new or updated incident to an MQTT broker as JSON.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default searches ./cadwatch.yaml and /etc/cadwatch/)")

	cmd.AddCommand(newRunCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
