// Package updater folds structured test logs into expectation trees.
package updater

import (
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/teranos/wptmeta/errors"
	"github.com/teranos/wptmeta/expected"
	"github.com/teranos/wptmeta/logevent"
	"github.com/teranos/wptmeta/logger"
	"github.com/teranos/wptmeta/runinfo"
)

// skipStatus marks a test that did not run; it carries no result
const skipStatus = "SKIP"

// Resolver finds the expectation nodes events refer to
type Resolver interface {
	Test(id string) (*expected.TestNode, bool)
	Directory(scope string) (*expected.Manifest, bool)
}

// Options configures an Updater
type Options struct {
	// IgnoreExisting drops persisted `expected` data of a test the first
	// time it is seen, so the logs fully determine the new values.
	IgnoreExisting bool
}

// Stats counts what happened to the events of a run
type Stats struct {
	Streams      int
	Events       int
	Ignored      int
	UnknownTests int
	Dropped      int
}

// Updater holds the state of one reconciliation run. Streams are consumed
// one at a time; the active run_info and the open-test cache belong to the
// current stream, the set of visited tests to the whole run.
type Updater struct {
	index   Resolver
	opts    Options
	log     *zap.SugaredLogger
	visited map[string]struct{}
	stats   Stats

	runInfo runinfo.RunInfo
	open    map[string]*expected.TestNode
}

// New creates an Updater resolving ids through index
func New(index Resolver, opts Options) *Updater {
	return &Updater{
		index:   index,
		opts:    opts,
		log:     logger.ComponentLogger("updater"),
		visited: make(map[string]struct{}),
		runInfo: runinfo.RunInfo{},
		open:    make(map[string]*expected.TestNode),
	}
}

// Stats returns counters accumulated over every stream so far
func (u *Updater) Stats() Stats {
	return u.stats
}

// UpdateFromFile processes the log file at path
func (u *Updater) UpdateFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "opening log %s", path)
	}
	defer f.Close()

	if err := u.updateFromLog(f, path); err != nil {
		return errors.Wrapf(err, "log %s", path)
	}
	return nil
}

// UpdateFromLog processes one log stream. A malformed line aborts the
// stream with an error marked errors.ErrMalformedLog.
func (u *Updater) UpdateFromLog(r io.Reader) error {
	return u.updateFromLog(r, "")
}

func (u *Updater) updateFromLog(r io.Reader, name string) error {
	u.runInfo = runinfo.RunInfo{}
	u.open = make(map[string]*expected.TestNode)
	u.stats.Streams++

	log := u.log
	if name != "" {
		log = logger.ChildLogger(u.log, logger.FieldLogFile, name)
	}

	events := logevent.NewReader(r)
	for {
		ev, err := events.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		u.stats.Events++
		u.apply(log, ev)
	}
	log.Debugw("processed log stream", logger.FieldLine, events.Line())
	return nil
}

// Apply processes a single decoded event
func (u *Updater) Apply(ev logevent.Event) {
	u.apply(u.log, ev)
}

func (u *Updater) apply(log *zap.SugaredLogger, ev logevent.Event) {
	switch e := ev.(type) {
	case logevent.SuiteStart:
		u.runInfo = e.RunInfo
	case logevent.TestStart:
		u.testStart(log, e)
	case logevent.TestStatus:
		u.testStatus(log, e)
	case logevent.TestEnd:
		u.testEnd(log, e)
	case logevent.AssertionCount:
		if test := u.open[e.Test]; test != nil {
			test.SetAsserts(u.runInfo, e.Count)
		}
	case logevent.LsanLeak:
		u.lsanLeak(log, e)
	case logevent.Ignored:
		u.stats.Ignored++
	}
}

func (u *Updater) testStart(log *zap.SugaredLogger, e logevent.TestStart) {
	test, ok := u.index.Test(e.Test)
	if !ok {
		u.stats.UnknownTests++
		log.Warnw("test not found, skipping", logger.FieldTest, e.Test)
		return
	}
	u.open[e.Test] = test

	if _, seen := u.visited[e.Test]; seen {
		return
	}
	u.visited[e.Test] = struct{}{}
	if u.opts.IgnoreExisting {
		test.ClearExpected()
	}
}

func (u *Updater) testStatus(log *zap.SugaredLogger, e logevent.TestStatus) {
	test := u.open[e.Test]
	if test == nil {
		return
	}
	if !test.Manifest().Shape().AllowsSubtest(e.Status) {
		u.stats.Dropped++
		log.Warnw("status not valid for a subtest of this kind, dropping",
			logger.FieldTest, e.Test,
			logger.FieldSubtest, e.Subtest,
			logger.FieldStatus, e.Status)
		return
	}
	test.GetSubtest(e.Subtest).SetResult(u.runInfo, e.Status)
}

func (u *Updater) testEnd(log *zap.SugaredLogger, e logevent.TestEnd) {
	test := u.open[e.Test]
	if test == nil {
		return
	}
	delete(u.open, e.Test)

	if e.Status == skipStatus {
		return
	}
	if !test.Manifest().Shape().AllowsTest(e.Status) {
		u.stats.Dropped++
		log.Warnw("status not valid for this kind of test, dropping",
			logger.FieldTest, e.Test,
			logger.FieldStatus, e.Status)
		return
	}
	test.SetResult(u.runInfo, e.Status)
}

func (u *Updater) lsanLeak(log *zap.SugaredLogger, e logevent.LsanLeak) {
	dir, ok := u.index.Directory(e.Scope)
	if !ok {
		u.stats.UnknownTests++
		log.Warnw("leak scope not found, skipping", logger.FieldScope, e.Scope)
		return
	}
	dir.SetLsan(u.runInfo, e.Frames, e.Matched())
}
