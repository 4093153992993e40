package commands

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/wptmeta/config"
	"github.com/teranos/wptmeta/errors"
	"github.com/teranos/wptmeta/metadata"
	"github.com/teranos/wptmeta/report"
)

// UpdateCmd folds test logs into the expectation metadata
var UpdateCmd = &cobra.Command{
	Use:   "update [flags] --log FILE...",
	Short: "Update expectation metadata from test logs",
	Long: `Update expectation metadata from structured test logs.

Every configured root is loaded, each log is processed in order, changed
manifests are coalesced into minimal conditional values and each metadata
directory is replaced atomically. With --stability-runs, results that differ
between runs of the same configuration disable the test instead.

Flags override configuration files and WPTMETA_* environment variables.

Examples:
  wptmeta update --log linux.log --log mac.log
  wptmeta update --log 'logs/*.json' --ignore-existing
  wptmeta update --log run.log --stability-runs 10 --format yaml
  wptmeta update --log run.log --rev-old origin/main --rev-new HEAD`,
	Args: cobra.NoArgs,
	RunE: runUpdate,
}

func init() {
	f := UpdateCmd.Flags()
	f.StringArray("log", nil, "Structured log file to process (repeatable, globs allowed)")
	f.Bool("ignore-existing", false, "Discard existing expectations of every test seen in the logs")
	f.Int("stability-runs", 0, "Disable tests whose results differ across repeated runs (0 = off)")
	f.String("stability-message", "", "Value written to `disabled` for unstable tests")
	f.StringSlice("property-order", nil, "run_info properties used in conditions, most significant first")
	f.StringSlice("boolean-properties", nil, "run_info properties rendered as bare booleans")
	f.String("rev-old", "", "Report test files added or removed since this revision")
	f.String("rev-new", "", "Revision to compare --rev-old against (default HEAD)")
	f.String("format", "text", "Report format: text, json, yaml")
	f.Bool("dry-run", false, "Coalesce and report without writing metadata")
	_ = UpdateCmd.MarkFlagRequired("log")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()

	format, err := report.ParseFormat(mustString(cmd, "format"))
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	applyUpdateFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	logs, err := expandLogs(mustStringArray(cmd, "log"))
	if err != nil {
		return err
	}

	opts := metadata.FromConfig(cfg)
	opts.Logs = logs
	opts.DryRun, _ = f.GetBool("dry-run")
	opts.RevOld = mustString(cmd, "rev-old")
	opts.RevNew = mustString(cmd, "rev-new")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rep, runErr := metadata.UpdateExpected(ctx, opts)
	if rep == nil {
		return runErr
	}

	if format == report.FormatText {
		printSummary(rep, opts.DryRun)
	}
	if err := rep.Write(cmd.OutOrStdout(), format); err != nil {
		return err
	}
	return runErr
}

// applyUpdateFlags lets explicitly set flags win over every config source
func applyUpdateFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("ignore-existing") {
		cfg.Update.IgnoreExisting, _ = f.GetBool("ignore-existing")
	}
	if f.Changed("stability-runs") {
		cfg.Update.StabilityRuns, _ = f.GetInt("stability-runs")
	}
	if f.Changed("stability-message") {
		cfg.Update.StabilityMessage, _ = f.GetString("stability-message")
	}
	if f.Changed("property-order") {
		cfg.Update.PropertyOrder, _ = f.GetStringSlice("property-order")
	}
	if f.Changed("boolean-properties") {
		cfg.Update.BooleanProperties, _ = f.GetStringSlice("boolean-properties")
	}
}

// expandLogs resolves glob patterns; plain paths are kept as given so a
// missing file is reported when it is opened
func expandLogs(patterns []string) ([]string, error) {
	var out []string
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid log pattern %q", p)
		}
		if len(matches) == 0 {
			out = append(out, p)
			continue
		}
		out = append(out, matches...)
	}
	return out, nil
}

func printSummary(rep *report.Report, dryRun bool) {
	if dryRun {
		pterm.Warning.Println("DRY RUN MODE: no metadata was written")
	}
	pterm.Info.Printfln("Processed %d logs (%d events)", rep.Counts.Logs, rep.Counts.Events)
	if rep.Counts.UnknownTests > 0 {
		pterm.Warning.Printfln("%d events referenced tests missing from the catalog", rep.Counts.UnknownTests)
	}
	if rep.Counts.Dropped > 0 {
		pterm.Warning.Printfln("%d results had statuses invalid for their test kind", rep.Counts.Dropped)
	}
	pterm.Info.Printfln("Updated %d manifests", rep.Counts.Modified)
	for _, root := range rep.Roots {
		switch {
		case root.Error != "":
			pterm.Error.Printfln("%s: %s", root.Metadata, root.Error)
		case root.Unchanged:
			pterm.Info.Printfln("%s: unchanged", root.Metadata)
		default:
			pterm.Success.Printfln("%s: %d written, %d removed", root.Metadata, root.Written, root.Removed)
		}
	}
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

func mustStringArray(cmd *cobra.Command, name string) []string {
	v, _ := cmd.Flags().GetStringArray(name)
	return v
}
