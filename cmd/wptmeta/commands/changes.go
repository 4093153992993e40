package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/wptmeta/catalog"
	"github.com/teranos/wptmeta/errors"
	"github.com/teranos/wptmeta/metadata"
	"github.com/teranos/wptmeta/vcs"
)

// ChangesCmd lists files changed between two revisions
var ChangesCmd = &cobra.Command{
	Use:   "changes REV_OLD [REV_NEW]",
	Short: "List test files changed between two revisions",
	Long: `List files of the test repository changed between two revisions,
one per line as "<kind> <path>", followed by catalog tests that were added
or removed rather than modified.

REV_NEW defaults to HEAD. The repository and the tests directory inside it
come from the [vcs] configuration section.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runChanges,
}

func runChanges(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	revNew := "HEAD"
	if len(args) == 2 {
		revNew = args[1]
	}
	changes, err := vcs.ChangedPaths(cfg.VCS.Repository, args[0], revNew)
	if err != nil {
		return err
	}
	changes = changes.Under(cfg.VCS.TestsDir)

	out := cmd.OutOrStdout()
	for _, p := range changes.Paths() {
		fmt.Fprintf(out, "%s %s\n", changes[p], p)
	}

	if len(cfg.Roots) == 0 {
		return nil
	}
	opts := metadata.FromConfig(cfg)
	ix, err := catalog.Load(context.Background(), opts.Sources, catalog.LoadOptions{Expected: opts.Expected})
	if err != nil {
		return err
	}
	for _, p := range vcs.UnexpectedChanges(ix.Roots(), changes) {
		fmt.Fprintf(out, "unexpected change: %s\n", p)
	}
	return nil
}
