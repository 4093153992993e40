package updater

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/wptmeta/catalog"
	"github.com/teranos/wptmeta/errors"
	"github.com/teranos/wptmeta/expected"
	wpttest "github.com/teranos/wptmeta/internal/testing"
	"github.com/teranos/wptmeta/logevent"
	"github.com/teranos/wptmeta/runinfo"
)

const testID = "/path/to/test.htm"

var items = map[string]map[string][]string{
	"testharness": {"path/to/test.htm": {testID}},
	"reftest":     {"path/ref.html": {"/path/ref.html"}},
}

var loadOpts = catalog.LoadOptions{
	Expected: expected.Options{
		PropertyOrder:     []string{"debug", "os", "version", "processor", "bits"},
		BooleanProperties: []string{"debug"},
	},
}

func loadIndex(t *testing.T, root *wpttest.Root) *catalog.Index {
	t.Helper()
	ix, err := catalog.Load(context.Background(), []catalog.Source{{Catalog: root.Catalog, Metadata: root.Metadata}}, loadOpts)
	require.NoError(t, err)
	return ix
}

func linux() map[string]any { return map[string]any{"os": "linux", "debug": false} }
func osx() map[string]any   { return map[string]any{"os": "osx", "debug": false} }

func harnessRun(status, subStatus string) []map[string]any {
	return []map[string]any{
		{"action": "test_start", "test": testID},
		{"action": "test_status", "test": testID, "subtest": "sub1", "status": subStatus, "expected": "PASS"},
		{"action": "test_end", "test": testID, "status": status},
	}
}

func TestUpdateFromFile_TwoConfigurations(t *testing.T) {
	root := wpttest.CreateTestRoot(t, "/", items)
	ix := loadIndex(t, root)
	u := New(ix, Options{})

	logs := t.TempDir()
	require.NoError(t, u.UpdateFromFile(wpttest.WriteLog(t, logs, "linux.log", wpttest.SuiteLog(linux(), harnessRun("OK", "FAIL")...))))
	require.NoError(t, u.UpdateFromFile(wpttest.WriteLog(t, logs, "osx.log", wpttest.SuiteLog(osx(), harnessRun("OK", "PASS")...))))

	test, ok := ix.Test(testID)
	require.True(t, ok)
	m := test.Manifest()
	assert.True(t, m.Modified())
	assert.Empty(t, m.Coalesce(expected.Stability{}))

	sub := test.Subtest("sub1")
	require.NotNil(t, sub)
	assert.Equal(t, "FAIL", sub.Expected(runinfo.RunInfo{"os": "linux", "debug": false}))
	assert.Equal(t, "PASS", sub.Expected(runinfo.RunInfo{"os": "osx", "debug": false}))
	assert.Equal(t, "OK", test.Expected(runinfo.RunInfo{"os": "linux", "debug": false}))
	assert.Contains(t, m.Serialize(), `if os == "linux": FAIL`)

	stats := u.Stats()
	assert.Equal(t, 2, stats.Streams)
	assert.Equal(t, 10, stats.Events)
	assert.Equal(t, 2, stats.Ignored) // suite_end records
}

func TestUpdateFromLog_UnknownTest(t *testing.T) {
	root := wpttest.CreateTestRoot(t, "/", items)
	ix := loadIndex(t, root)
	u := New(ix, Options{})

	logs := t.TempDir()
	file := wpttest.WriteLog(t, logs, "run.log", wpttest.SuiteLog(linux(),
		map[string]any{"action": "test_start", "test": "/not/in/catalog.html"},
		map[string]any{"action": "test_status", "test": "/not/in/catalog.html", "subtest": "x", "status": "FAIL"},
		map[string]any{"action": "test_end", "test": "/not/in/catalog.html", "status": "ERROR"},
	))
	require.NoError(t, u.UpdateFromFile(file))

	assert.Equal(t, 1, u.Stats().UnknownTests)
	for _, r := range ix.Roots() {
		for _, m := range r.Manifests() {
			assert.False(t, m.Modified(), m.TestPath)
		}
	}
}

func TestUpdateFromLog_DropsStatusOutsideShape(t *testing.T) {
	root := wpttest.CreateTestRoot(t, "/", items)
	ix := loadIndex(t, root)
	u := New(ix, Options{})

	u.Apply(logevent.TestStart{Test: "/path/ref.html"})
	u.Apply(logevent.TestStatus{Test: "/path/ref.html", Subtest: "x", Status: "FAIL"})
	u.Apply(logevent.TestEnd{Test: "/path/ref.html", Status: "OK"})

	assert.Equal(t, 2, u.Stats().Dropped)
	test, ok := ix.Test("/path/ref.html")
	require.True(t, ok)
	assert.Empty(t, test.Subtests())
	assert.False(t, test.Manifest().Modified())
}

func TestUpdateFromLog_SkipCarriesNoResult(t *testing.T) {
	root := wpttest.CreateTestRoot(t, "/", items)
	ix := loadIndex(t, root)
	u := New(ix, Options{})

	u.Apply(logevent.TestStart{Test: testID})
	u.Apply(logevent.TestEnd{Test: testID, Status: "SKIP"})
	// the test is closed, so later events for it are ignored
	u.Apply(logevent.TestStatus{Test: testID, Subtest: "late", Status: "FAIL"})

	test, _ := ix.Test(testID)
	assert.Empty(t, test.Results())
	assert.Nil(t, test.Subtest("late"))
	assert.False(t, test.Manifest().Modified())
}

func TestUpdateFromLog_EventsBeforeSuiteStart(t *testing.T) {
	root := wpttest.CreateTestRoot(t, "/", items)
	ix := loadIndex(t, root)
	u := New(ix, Options{})

	log := strings.Join([]string{
		`{"action": "test_start", "test": "/path/to/test.htm"}`,
		`{"action": "test_end", "test": "/path/to/test.htm", "status": "TIMEOUT"}`,
	}, "\n")
	require.NoError(t, u.UpdateFromLog(strings.NewReader(log)))

	test, _ := ix.Test(testID)
	require.Len(t, test.Results(), 1)
	assert.Empty(t, test.Results()[0].RunInfo)
	assert.Equal(t, "TIMEOUT", test.Results()[0].Value)
}

func TestUpdateFromLog_RunInfoResetsPerStream(t *testing.T) {
	root := wpttest.CreateTestRoot(t, "/", items)
	ix := loadIndex(t, root)
	u := New(ix, Options{})

	first := `{"action": "suite_start", "run_info": {"os": "linux"}}`
	second := `{"action": "test_start", "test": "/path/to/test.htm"}` + "\n" +
		`{"action": "test_end", "test": "/path/to/test.htm", "status": "OK"}`
	require.NoError(t, u.UpdateFromLog(strings.NewReader(first)))
	require.NoError(t, u.UpdateFromLog(strings.NewReader(second)))

	test, _ := ix.Test(testID)
	require.Len(t, test.Results(), 1)
	assert.Empty(t, test.Results()[0].RunInfo)
}

func TestUpdateFromLog_MalformedLine(t *testing.T) {
	root := wpttest.CreateTestRoot(t, "/", items)
	u := New(loadIndex(t, root), Options{})

	log := `{"action": "suite_start", "run_info": {}}` + "\n" + `{"action": "test_start"}`
	err := u.UpdateFromLog(strings.NewReader(log))
	require.Error(t, err)
	assert.True(t, errors.IsMalformedLog(err))
	assert.Contains(t, err.Error(), "line 2")
}

func TestUpdateFromFile_Missing(t *testing.T) {
	root := wpttest.CreateTestRoot(t, "/", items)
	u := New(loadIndex(t, root), Options{})

	err := u.UpdateFromFile(root.Dir + "/missing.log")
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestUpdate_IgnoreExisting(t *testing.T) {
	prior := "[test.htm]\n  expected: TIMEOUT\n  [stale]\n    expected: FAIL\n  [sub1]\n    expected: FAIL\n"

	t.Run("kept", func(t *testing.T) {
		root := wpttest.CreateTestRoot(t, "/", items)
		root.WriteManifest(t, "path/to/test.htm", prior)
		ix := loadIndex(t, root)
		u := New(ix, Options{})
		for _, ev := range []logevent.Event{
			logevent.TestStart{Test: testID},
			logevent.TestStatus{Test: testID, Subtest: "sub1", Status: "FAIL"},
			logevent.TestEnd{Test: testID, Status: "TIMEOUT"},
		} {
			u.Apply(ev)
		}
		test, _ := ix.Test(testID)
		test.Manifest().Coalesce(expected.Stability{})
		assert.Equal(t, prior, test.Manifest().Serialize())
	})

	t.Run("cleared", func(t *testing.T) {
		root := wpttest.CreateTestRoot(t, "/", items)
		root.WriteManifest(t, "path/to/test.htm", prior)
		ix := loadIndex(t, root)
		u := New(ix, Options{IgnoreExisting: true})
		for _, ev := range []logevent.Event{
			logevent.TestStart{Test: testID},
			logevent.TestStatus{Test: testID, Subtest: "sub1", Status: "FAIL"},
			logevent.TestEnd{Test: testID, Status: "OK"},
			// a second run of the same test must not clear the first one's results
			logevent.TestStart{Test: testID},
			logevent.TestStatus{Test: testID, Subtest: "sub1", Status: "FAIL"},
			logevent.TestEnd{Test: testID, Status: "OK"},
		} {
			u.Apply(ev)
		}
		test, _ := ix.Test(testID)
		assert.True(t, test.Manifest().Modified())
		test.Manifest().Coalesce(expected.Stability{})
		assert.Equal(t, "[test.htm]\n  [sub1]\n    expected: FAIL\n", test.Manifest().Serialize())
	})
}

func TestUpdate_AssertionCount(t *testing.T) {
	root := wpttest.CreateTestRoot(t, "/", items)
	ix := loadIndex(t, root)
	u := New(ix, Options{})

	u.Apply(logevent.TestStart{Test: testID})
	u.Apply(logevent.AssertionCount{Test: testID, Count: 4})
	u.Apply(logevent.TestEnd{Test: testID, Status: "OK"})
	// closed test
	u.Apply(logevent.AssertionCount{Test: testID, Count: 40})

	test, _ := ix.Test(testID)
	test.Manifest().Coalesce(expected.Stability{})
	assert.Equal(t, "[test.htm]\n  max-asserts: 5\n", test.Manifest().Serialize())
}

func TestUpdate_LsanLeak(t *testing.T) {
	root := wpttest.CreateTestRoot(t, "/", items)
	root.WriteManifest(t, "__dir__", "lsan-allowed: [known]\n")
	ix := loadIndex(t, root)
	u := New(ix, Options{})

	u.Apply(logevent.LsanLeak{Scope: "path/to/", Frames: []string{"leaky", "caller"}})
	u.Apply(logevent.LsanLeak{Scope: "path/to/", Frames: []string{"known"}})
	u.Apply(logevent.LsanLeak{Scope: "path/to/", Frames: []string{"matched"}, AllowedMatch: []string{"matched"}})
	u.Apply(logevent.LsanLeak{Scope: "nowhere/", Frames: []string{"lost"}})

	assert.Equal(t, 1, u.Stats().UnknownTests)
	dir, ok := ix.Directory("path/to/")
	require.True(t, ok)
	dir.Coalesce(expected.Stability{})
	assert.Equal(t, []string{"leaky"}, manifestList(t, dir))

	top, ok := ix.Directory("/")
	require.True(t, ok)
	assert.False(t, top.Modified())
}

func manifestList(t *testing.T, m *expected.Manifest) []string {
	t.Helper()
	kv := m.Root().Get(expected.PropLsanAllowed)
	require.NotNil(t, kv)
	return kv.Default().Value.List
}
