package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "grove",
	Short: "Grove - Federated plugin-execution control plane",
	Long: `Grove is the control plane of a federated plugin-execution platform.
A local garden can have any number of remote child gardens connected
over HTTP or STOMP; grove keeps connection configuration, status, and
system inventory consistent across the federation and propagates sync
and status-change events down the garden tree.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Grove version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(gardenCmd)
}
