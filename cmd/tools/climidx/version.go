package main

import (
	"runtime"

	"github.com/spf13/cobra"
)

// versionCmd shows the build details for diagnostic purposes.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of climidx.",
	// skip config loading
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("climidx CLI\n")
		cmd.Printf("  Version: %s\n", Version)
		cmd.Printf("  Commit:  %s\n", GitCommit)
		cmd.Printf("  Built:   %s\n", BuildTime)
		cmd.Printf("  Runtime: %s\n", runtime.Version())
	},
}
