package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"relaydesk/relay/pkg/cli"
)

var (
	// Global flags
	cfgFile     string
	controlAddr string
	outputFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Relay - single-upstream reverse proxy with a managed lifecycle",
	Long: `Relay forwards every HTTP request it receives to one upstream host:port.

The proxy listener can be started, stopped and reconfigured at runtime
through a local control API, and every lifecycle transition is recorded.

  relay run        start the relay process
  relay status     show whether the proxy is running and where it points
  relay config     read and edit the saved route`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "relay.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&controlAddr, "control", "", "control API address (default from config, else 127.0.0.1:7070)")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "text", "output format (text, json)")
}
