// Package cli implements the wastetrace command line interface.
package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "wastetrace",
	Short: "Track waste from citizen report to recycling",
	Long: `WasteTrace tracks municipal waste tickets through their lifecycle:
a citizen submits a photo of waste, a collector picks it up against a
proof photo, and the recycling step credits the citizen with eco points.

Run 'wastetrace serve' for the backend API and 'wastetrace dashboard'
for the role-gated dashboard server.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
