package txl

import (
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version, commit and build time",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("txl version: %s git_commit: %s build_time: %s\n", Version, CommitHash, BuildTimestamp)
	},
}
