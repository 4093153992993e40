package metadata

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/wptmeta/catalog"
	"github.com/teranos/wptmeta/config"
	"github.com/teranos/wptmeta/errors"
	"github.com/teranos/wptmeta/expected"
	wpttest "github.com/teranos/wptmeta/internal/testing"
	"github.com/teranos/wptmeta/writer"
)

const testID = "/path/to/test.htm"

var items = map[string]map[string][]string{
	"testharness": {"path/to/test.htm": {testID}},
}

const prior = "[test.htm]\n  [sub1]\n    expected: FAIL\n"

func run(subStatus string) []map[string]any {
	return []map[string]any{
		{"action": "test_start", "test": testID},
		{"action": "test_status", "test": testID, "subtest": "sub1", "status": subStatus, "expected": "FAIL"},
		{"action": "test_end", "test": testID, "status": "OK"},
	}
}

func options(roots ...*wpttest.Root) Options {
	opts := FromConfig(config.Default())
	for _, r := range roots {
		opts.Sources = append(opts.Sources, catalog.Source{Catalog: r.Catalog, Metadata: r.Metadata})
	}
	return opts
}

func TestUpdateExpected(t *testing.T) {
	root := wpttest.CreateTestRoot(t, "/", items)
	root.WriteManifest(t, "path/to/test.htm", prior)

	logs := t.TempDir()
	opts := options(root)
	opts.Logs = []string{
		wpttest.WriteLog(t, logs, "osx.log", wpttest.SuiteLog(map[string]any{"os": "osx", "debug": false}, run("FAIL")...)),
		wpttest.WriteLog(t, logs, "linux.log", wpttest.SuiteLog(map[string]any{"os": "linux", "debug": false}, run("TIMEOUT")...)),
	}

	rep, err := UpdateExpected(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Counts.Logs)
	assert.Equal(t, 1, rep.Counts.Modified)
	assert.Empty(t, rep.Disabled)
	require.Len(t, rep.Roots, 1)
	assert.Equal(t, 1, rep.Roots[0].Written)

	text, ok := root.ReadManifest(t, "path/to/test.htm")
	require.True(t, ok)
	assert.Equal(t, "[test.htm]\n  [sub1]\n    expected:\n      if os == \"linux\": TIMEOUT\n      FAIL\n", text)

	// a second pass over the same logs changes nothing
	rep, err = UpdateExpected(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Counts.Modified)
	assert.True(t, rep.Roots[0].Unchanged)
	again, _ := root.ReadManifest(t, "path/to/test.htm")
	assert.Equal(t, text, again)
}

func TestUpdateExpected_Stability(t *testing.T) {
	root := wpttest.CreateTestRoot(t, "/", items)
	root.WriteManifest(t, "path/to/test.htm", prior)

	logs := t.TempDir()
	linux := map[string]any{"os": "linux", "debug": false}
	opts := options(root)
	opts.Stability = expected.Stability{Runs: 2, Message: "flaky"}
	opts.Logs = []string{
		wpttest.WriteLog(t, logs, "run1.log", wpttest.SuiteLog(linux, run("PASS")...)),
		wpttest.WriteLog(t, logs, "run2.log", wpttest.SuiteLog(linux, run("FAIL")...)),
	}

	rep, err := UpdateExpected(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, rep.Disabled, 1)
	assert.Equal(t, "/path/to/test.htm | sub1", rep.Disabled[0].Name())
	assert.Equal(t, "flaky", rep.Disabled[0].Message)

	text, ok := root.ReadManifest(t, "path/to/test.htm")
	require.True(t, ok)
	assert.Contains(t, text, "    expected: FAIL\n")
	assert.Contains(t, text, "    disabled: flaky\n")
}

func TestUpdateExpected_DryRun(t *testing.T) {
	root := wpttest.CreateTestRoot(t, "/", items)
	root.WriteManifest(t, "path/to/test.htm", prior)

	opts := options(root)
	opts.DryRun = true
	opts.Logs = []string{wpttest.WriteLog(t, t.TempDir(), "run.log", wpttest.SuiteLog(nil, run("PASS")...))}

	rep, err := UpdateExpected(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Counts.Modified)
	assert.Empty(t, rep.Roots)

	text, _ := root.ReadManifest(t, "path/to/test.htm")
	assert.Equal(t, prior, text)
}

func TestUpdateExpected_MalformedLog(t *testing.T) {
	root := wpttest.CreateTestRoot(t, "/", items)
	root.WriteManifest(t, "path/to/test.htm", prior)

	records := wpttest.SuiteLog(nil, run("PASS")...)
	records = append(records, map[string]any{"action": "test_start"})

	opts := options(root)
	opts.Logs = []string{wpttest.WriteLog(t, t.TempDir(), "bad.log", records)}

	_, err := UpdateExpected(context.Background(), opts)
	require.Error(t, err)
	assert.True(t, errors.IsMalformedLog(err))

	text, _ := root.ReadManifest(t, "path/to/test.htm")
	assert.Equal(t, prior, text)
}

func TestUpdateExpected_WriteErrorsArePerRoot(t *testing.T) {
	first := wpttest.CreateTestRoot(t, "/", items)
	first.WriteManifest(t, "path/to/test.htm", prior)
	second := wpttest.CreateTestRoot(t, "/_mozilla/", map[string]map[string][]string{
		"testharness": {"m.html": {"/_mozilla/m.html"}},
	})

	held := flock.New(writer.LockPath(first.Metadata))
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer held.Close()

	opts := options(first, second)
	opts.Logs = []string{wpttest.WriteLog(t, t.TempDir(), "run.log", wpttest.SuiteLog(nil,
		append(run("PASS"), []map[string]any{
			{"action": "test_start", "test": "/_mozilla/m.html"},
			{"action": "test_end", "test": "/_mozilla/m.html", "status": "ERROR"},
		}...)...))}

	rep, err := UpdateExpected(context.Background(), opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrLocked))

	require.Len(t, rep.Roots, 2)
	assert.NotEmpty(t, rep.Roots[0].Error)
	assert.Empty(t, rep.Roots[1].Error)

	text, ok := second.ReadManifest(t, "m.html")
	require.True(t, ok)
	assert.Equal(t, "[m.html]\n  expected: ERROR\n", text)
}

func TestUpdateExpected_ChangeDetectionNeedsRepository(t *testing.T) {
	root := wpttest.CreateTestRoot(t, "/", items)
	opts := options(root)
	opts.Repository = filepath.Join(root.Dir, "not-a-repo")
	opts.RevOld = "HEAD~1"

	_, err := UpdateExpected(context.Background(), opts)
	assert.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Roots = []config.RootConfig{{Catalog: "MANIFEST.json", Metadata: "meta", Include: []string{"dom/**"}}}
	cfg.Update.StabilityRuns = 5
	cfg.Update.IgnoreExisting = true
	cfg.VCS.TestsDir = "testing/web-platform/tests"

	opts := FromConfig(cfg)
	require.Len(t, opts.Sources, 1)
	assert.Equal(t, catalog.Source{Catalog: "MANIFEST.json", Metadata: "meta", Include: []string{"dom/**"}}, opts.Sources[0])
	assert.Equal(t, expected.Stability{Runs: 5, Message: config.DefaultStabilityMessage}, opts.Stability)
	assert.True(t, opts.IgnoreExisting)
	assert.Equal(t, config.DefaultPropertyOrder, opts.Expected.PropertyOrder)
	assert.Equal(t, "testing/web-platform/tests", opts.TestsDir)

	assert.False(t, FromConfig(config.Default()).Stability.Enabled())
}
