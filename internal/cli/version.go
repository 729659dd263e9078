package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is stamped by the build via -ldflags.
var Version = "0.1.0"

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the wastetrace version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("wastetrace %s\n", Version)
	},
}
