package writer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/wptmeta/catalog"
	"github.com/teranos/wptmeta/errors"
	"github.com/teranos/wptmeta/expected"
	wpttest "github.com/teranos/wptmeta/internal/testing"
	"github.com/teranos/wptmeta/logger"
	"github.com/teranos/wptmeta/runinfo"
)

var items = map[string]map[string][]string{
	"testharness": {
		"a/one.html": {"/a/one.html"},
		"a/two.html": {"/a/two.html"},
	},
}

func loadRoot(t *testing.T, root *wpttest.Root) *catalog.Root {
	t.Helper()
	ix, err := catalog.Load(context.Background(),
		[]catalog.Source{{Catalog: root.Catalog, Metadata: root.Metadata, Include: []string{"a/**"}}},
		catalog.LoadOptions{})
	require.NoError(t, err)
	require.Len(t, ix.Roots(), 1)
	return ix.Roots()[0]
}

func entries(t *testing.T, dir string) []string {
	t.Helper()
	list, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range list {
		names = append(names, e.Name())
	}
	return names
}

func TestWriteRoot(t *testing.T) {
	fixture := wpttest.CreateTestRoot(t, "/", items)
	fixture.WriteManifest(t, "a/two.html", "[two.html]\n  expected: TIMEOUT\n")
	fixture.WriteManifest(t, "other/kept.html", "[kept.html]\n  expected: CRASH\n")
	require.NoError(t, os.WriteFile(filepath.Join(fixture.Metadata, "README"), []byte("notes\n"), 0o644))

	root := loadRoot(t, fixture)
	one := root.Manifest("a/one.html").Test("/a/one.html")
	one.GetSubtest("sub").SetResult(runinfo.RunInfo{}, "FAIL")
	one.SetResult(runinfo.RunInfo{}, "OK")
	two := root.Manifest("a/two.html").Test("/a/two.html")
	two.SetResult(runinfo.RunInfo{}, "OK")
	for _, m := range root.Manifests() {
		m.Coalesce(expected.Stability{})
	}

	res, err := WriteRoot(context.Background(), root)
	require.NoError(t, err)
	assert.False(t, res.Unchanged)
	assert.Equal(t, 1, res.Written)
	assert.Equal(t, 1, res.Removed)
	assert.Equal(t, 2, res.Copied)

	text, ok := fixture.ReadManifest(t, "a/one.html")
	require.True(t, ok)
	assert.Equal(t, "[one.html]\n  [sub]\n    expected: FAIL\n", text)

	_, ok = fixture.ReadManifest(t, "a/two.html")
	assert.False(t, ok, "emptied manifest should be removed")

	text, ok = fixture.ReadManifest(t, "other/kept.html")
	require.True(t, ok, "manifests outside the include filter survive")
	assert.Equal(t, "[kept.html]\n  expected: CRASH\n", text)

	readme, err := os.ReadFile(filepath.Join(fixture.Metadata, "README"))
	require.NoError(t, err)
	assert.Equal(t, "notes\n", string(readme))

	// only the root, its lock file and the catalog remain beside it
	assert.ElementsMatch(t, []string{"MANIFEST.json", "meta", "meta.lock"}, entries(t, fixture.Dir))
}

func TestWriteRoot_Unchanged(t *testing.T) {
	fixture := wpttest.CreateTestRoot(t, "/", items)
	require.NoError(t, os.RemoveAll(fixture.Metadata))

	res, err := WriteRoot(context.Background(), loadRoot(t, fixture))
	require.NoError(t, err)
	assert.True(t, res.Unchanged)
	assert.NoDirExists(t, fixture.Metadata)
}

func TestWriteRoot_CreatesMissingRoot(t *testing.T) {
	fixture := wpttest.CreateTestRoot(t, "/", items)
	require.NoError(t, os.RemoveAll(fixture.Metadata))

	root := loadRoot(t, fixture)
	test := root.Manifest("a/one.html").Test("/a/one.html")
	test.SetResult(runinfo.RunInfo{}, "ERROR")
	root.Manifest("a/one.html").Coalesce(expected.Stability{})

	res, err := WriteRoot(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Written)

	text, ok := fixture.ReadManifest(t, "a/one.html")
	require.True(t, ok)
	assert.Equal(t, "[one.html]\n  expected: ERROR\n", text)
}

func TestWriteRoot_Locked(t *testing.T) {
	fixture := wpttest.CreateTestRoot(t, "/", items)
	fixture.WriteManifest(t, "a/one.html", "[one.html]\n  expected: ERROR\n")
	root := loadRoot(t, fixture)
	root.Manifest("a/one.html").Test("/a/one.html").SetResult(runinfo.RunInfo{}, "OK")
	root.Manifest("a/one.html").Coalesce(expected.Stability{})

	held := flock.New(LockPath(fixture.Metadata))
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer held.Close()

	_, err = WriteRoot(context.Background(), root)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrLocked))

	text, ok := fixture.ReadManifest(t, "a/one.html")
	require.True(t, ok)
	assert.Equal(t, "[one.html]\n  expected: ERROR\n", text, "locked root must not change")
}

func TestWriteRoot_Cancelled(t *testing.T) {
	fixture := wpttest.CreateTestRoot(t, "/", items)
	fixture.WriteManifest(t, "a/one.html", "[one.html]\n  expected: ERROR\n")
	root := loadRoot(t, fixture)
	root.Manifest("a/one.html").Test("/a/one.html").SetResult(runinfo.RunInfo{}, "OK")
	root.Manifest("a/one.html").Coalesce(expected.Stability{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := WriteRoot(ctx, root)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	text, ok := fixture.ReadManifest(t, "a/one.html")
	require.True(t, ok)
	assert.Equal(t, "[one.html]\n  expected: ERROR\n", text)
	assert.ElementsMatch(t, []string{"MANIFEST.json", "meta", "meta.lock"}, entries(t, fixture.Dir))
}

func TestSwap_RestoresBackupOnFailure(t *testing.T) {
	parent := t.TempDir()
	metadata := filepath.Join(parent, "meta")
	require.NoError(t, os.MkdirAll(filepath.Join(metadata, "a"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(metadata, "a", "one.html.ini"), []byte("[one.html]\n  expected: FAIL\n"), 0o644))

	err := swap(logger.ComponentLogger("writer"), filepath.Join(parent, "missing"), metadata)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "installing new metadata")

	data, err := os.ReadFile(filepath.Join(metadata, "a", "one.html.ini"))
	require.NoError(t, err)
	assert.Equal(t, "[one.html]\n  expected: FAIL\n", string(data))
	assert.Equal(t, []string{"meta"}, entries(t, parent))
}

func TestSwap_ReplacesMetadata(t *testing.T) {
	parent := t.TempDir()
	metadata := filepath.Join(parent, "meta")
	tmp := filepath.Join(parent, ".meta.new-1")
	require.NoError(t, os.MkdirAll(metadata, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(metadata, "old.ini"), nil, 0o644))
	require.NoError(t, os.MkdirAll(tmp, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "new.ini"), nil, 0o644))

	require.NoError(t, swap(logger.ComponentLogger("writer"), tmp, metadata))
	assert.Equal(t, []string{"new.ini"}, entries(t, metadata))
	assert.Equal(t, []string{"meta"}, entries(t, parent))
}

func TestLockPath(t *testing.T) {
	assert.Equal(t, filepath.Join("x", "meta.lock"), LockPath(filepath.Join("x", "meta")+string(filepath.Separator)))
}
