// Package metadata runs a complete expectation update: load the catalogs,
// fold every log into the expectation trees, coalesce, write and report.
package metadata

import (
	"context"
	"time"

	"github.com/teranos/wptmeta/catalog"
	"github.com/teranos/wptmeta/config"
	"github.com/teranos/wptmeta/errors"
	"github.com/teranos/wptmeta/expected"
	"github.com/teranos/wptmeta/logger"
	"github.com/teranos/wptmeta/report"
	"github.com/teranos/wptmeta/updater"
	"github.com/teranos/wptmeta/vcs"
	"github.com/teranos/wptmeta/writer"
)

// Options configures one update run
type Options struct {
	Sources        []catalog.Source
	Logs           []string
	Expected       expected.Options
	IgnoreExisting bool
	Stability      expected.Stability
	Concurrency    int

	// DryRun coalesces and reports without writing any metadata
	DryRun bool

	// RevOld and RevNew enable change detection in Repository
	Repository string
	TestsDir   string
	RevOld     string
	RevNew     string
}

// FromConfig builds run options from configuration; logs and revisions come
// from the command line.
func FromConfig(cfg *config.Config) Options {
	opts := Options{
		Expected: expected.Options{
			PropertyOrder:     cfg.Update.PropertyOrder,
			BooleanProperties: cfg.Update.BooleanProperties,
		},
		IgnoreExisting: cfg.Update.IgnoreExisting,
		Repository:     cfg.VCS.Repository,
		TestsDir:       cfg.VCS.TestsDir,
	}
	if cfg.StabilityEnabled() {
		opts.Stability = expected.Stability{Runs: cfg.Update.StabilityRuns, Message: cfg.Update.StabilityMessage}
	}
	for _, root := range cfg.Roots {
		opts.Sources = append(opts.Sources, catalog.Source{
			Catalog:  root.Catalog,
			Metadata: root.Metadata,
			Include:  root.Include,
		})
	}
	return opts
}

// UpdateExpected updates the expectation metadata of every configured root
// from the given logs. Write failures of one root do not stop the others;
// they are returned combined, alongside a report covering every root.
func UpdateExpected(ctx context.Context, opts Options) (*report.Report, error) {
	log := logger.ComponentLogger("metadata")
	start := time.Now()

	ix, err := catalog.Load(ctx, opts.Sources, catalog.LoadOptions{
		Expected:    opts.Expected,
		Concurrency: opts.Concurrency,
	})
	if err != nil {
		return nil, errors.Wrap(err, "loading test catalogs")
	}

	rep := &report.Report{}
	if opts.RevOld != "" {
		changes, err := vcs.ChangedPaths(opts.Repository, opts.RevOld, revNew(opts.RevNew))
		if err != nil {
			return nil, errors.Wrap(err, "detecting changed test files")
		}
		rep.UnexpectedChanges = vcs.UnexpectedChanges(ix.Roots(), changes.Under(opts.TestsDir))
		for _, p := range rep.UnexpectedChanges {
			log.Warnw("test file changed unexpectedly", logger.FieldPath, p)
		}
	}

	u := updater.New(ix, updater.Options{IgnoreExisting: opts.IgnoreExisting})
	for _, file := range opts.Logs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		log.Infow("processing log", logger.FieldLogFile, file)
		if err := u.UpdateFromFile(file); err != nil {
			return nil, err
		}
	}
	stats := u.Stats()
	rep.Counts = report.Counts{
		Logs:         stats.Streams,
		Events:       stats.Events,
		UnknownTests: stats.UnknownTests,
		Dropped:      stats.Dropped,
	}

	for _, root := range ix.Roots() {
		for _, m := range root.Manifests() {
			if !m.Modified() {
				continue
			}
			rep.Counts.Modified++
			rep.AddDisabled(m.Coalesce(opts.Stability))
		}
	}

	var writeErr error
	if !opts.DryRun {
		for _, root := range ix.Roots() {
			res, err := writer.WriteRoot(ctx, root)
			entry := report.Root{
				Metadata:  root.Metadata,
				Unchanged: res.Unchanged,
				Written:   res.Written,
				Removed:   res.Removed,
			}
			if err != nil {
				entry.Error = err.Error()
				log.Errorw("failed to write metadata", logger.FieldMetadata, root.Metadata, logger.FieldError, err)
				writeErr = errors.CombineErrors(writeErr, errors.Wrapf(err, "writing %s", root.Metadata))
			}
			rep.Roots = append(rep.Roots, entry)
		}
	}

	log.Infow("update complete",
		logger.FieldCount, rep.Counts.Modified,
		"disabled", len(rep.Disabled),
		logger.FieldDurationMS, time.Since(start).Milliseconds())
	return rep, writeErr
}

func revNew(rev string) string {
	if rev == "" {
		return "HEAD"
	}
	return rev
}
