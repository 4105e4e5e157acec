package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dcpctl",
		Short: "Run and inspect DCP masters and slaves",
		Long: `dcpctl runs a DCP slave from a slave description, drives a slave
through a complete simulation as a master, and validates slave descriptions.

Configuration is read from --config (YAML, JSON or TOML) and can be
overridden with DCP_* environment variables, e.g. DCP_TRANSPORT_ADDRESS.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newSlaveCmd(&configPath))
	rootCmd.AddCommand(newMasterCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dcpctl %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
