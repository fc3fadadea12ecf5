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
	Use:   "labfleet",
	Short: "labfleet - control plane for lab-hosting worker fleets",
	Long: `labfleet manages a fleet of cloud VMs hosting a network-simulation
service. It provisions and imports workers, keeps a live projection of
their cloud and service state, reconciles lab inventories, pauses idle
workers, and serves a REST API with a live event stream.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"labfleet version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
	rootCmd.AddCommand(serverCmd)
}
