package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/wptmeta/cmd/wptmeta/commands"
	"github.com/teranos/wptmeta/errors"
	"github.com/teranos/wptmeta/logger"
)

var rootCmd = &cobra.Command{
	Use:   "wptmeta",
	Short: "wptmeta - reconcile test expectation metadata with test run logs",
	Long: `wptmeta - reconcile test expectation metadata with test run logs.

wptmeta reads structured test logs from one or more run configurations and
updates the per-test expectation manifests so they describe what was observed,
using conditional values where configurations disagree.

Available commands:
  update   - Fold logs into the expectation metadata
  changes  - List test files changed between two revisions
  config   - Show, create or validate configuration
  version  - Show version information

Examples:
  wptmeta update --log linux.log --log mac.log
  wptmeta update --log run*.log --stability-runs 10 --format json
  wptmeta changes origin/main HEAD
  wptmeta config init`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("log-json")
		if err := logger.InitializeWithVerbosity(jsonLogs, verbosity); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit diagnostics as JSON lines on stderr")
	rootCmd.PersistentFlags().String("config", "", "Read configuration from this file instead of the default cascade")

	rootCmd.AddCommand(commands.UpdateCmd)
	rootCmd.AddCommand(commands.ChangesCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hints := errors.FlattenHints(err); hints != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hints)
		}
		os.Exit(1)
	}
}
