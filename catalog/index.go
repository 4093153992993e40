package catalog

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/teranos/wptmeta/errors"
	"github.com/teranos/wptmeta/expected"
	"github.com/teranos/wptmeta/logger"
)

// Source names a test root: its catalog file and the metadata directory
// holding its expectation manifests.
type Source struct {
	Catalog  string
	Metadata string
	Include  []string
}

// LoadOptions configures Load
type LoadOptions struct {
	Expected expected.Options
	// Concurrency bounds parallel manifest reads; 0 means GOMAXPROCS
	Concurrency int
}

// Root is a loaded test root
type Root struct {
	Source
	URLBase string

	manifests map[string]*expected.Manifest
	tests     []Item
}

// Manifests returns every manifest of the root sorted by test path
func (r *Root) Manifests() []*expected.Manifest {
	out := make([]*expected.Manifest, 0, len(r.manifests))
	for _, m := range r.manifests {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TestPath < out[j].TestPath })
	return out
}

// Manifest returns the manifest for a test path or directory id
func (r *Root) Manifest(testPath string) *expected.Manifest {
	return r.manifests[testPath]
}

// Tests returns the catalog items of the root
func (r *Root) Tests() []Item {
	return r.tests
}

// Entry locates an id within the loaded roots
type Entry struct {
	Root     *Root
	Manifest *expected.Manifest
}

// Index maps test ids and directory ids (`a/b/__dir__`) to their manifests
type Index struct {
	roots []*Root
	byID  map[string]Entry
}

// Roots returns the loaded roots in configuration order
func (ix *Index) Roots() []*Root {
	return ix.roots
}

// Lookup resolves a test id or directory id
func (ix *Index) Lookup(id string) (Entry, bool) {
	e, ok := ix.byID[id]
	return e, ok
}

// Test returns the expectation node of a test id
func (ix *Index) Test(id string) (*expected.TestNode, bool) {
	e, ok := ix.byID[id]
	if !ok {
		return nil, false
	}
	t := e.Manifest.Test(id)
	return t, t != nil
}

// Directory returns the directory manifest for a leak scope such as
// "path/to/" or "/"
func (ix *Index) Directory(scope string) (*expected.Manifest, bool) {
	e, ok := ix.byID[DirID(scope)]
	if !ok || !e.Manifest.IsDir() {
		return nil, false
	}
	return e.Manifest, true
}

// Len returns the number of indexed ids
func (ix *Index) Len() int {
	return len(ix.byID)
}

// DirID returns the id of the directory manifest for a scope
func DirID(scope string) string {
	return strings.TrimPrefix(path.Join("/", scope, expected.DirName), "/")
}

// dirKey is the index id of a directory manifest: its path under the
// root's url base, without the leading slash.
func dirKey(urlBase, testPath string) string {
	return strings.TrimPrefix(path.Join("/", urlBase, testPath), "/")
}

// MetadataPath returns where the manifest of a test path is stored
func MetadataPath(metadataRoot, testPath string) string {
	return filepath.Join(metadataRoot, filepath.FromSlash(testPath)+".ini")
}

// Load reads every catalog and the manifests it needs. Manifest files are
// read in parallel; tests that left the catalog are pruned and new ones
// added.
func Load(ctx context.Context, sources []Source, opts LoadOptions) (*Index, error) {
	log := logger.ComponentLogger("catalog")
	ix := &Index{byID: make(map[string]Entry)}

	for _, src := range sources {
		start := time.Now()
		root, err := loadRoot(ctx, src, opts)
		if err != nil {
			return nil, err
		}
		ix.roots = append(ix.roots, root)
		ix.add(root)
		log.Infow("loaded test root",
			logger.FieldCatalog, src.Catalog,
			logger.FieldMetadata, src.Metadata,
			logger.FieldCount, len(root.tests),
			logger.FieldTotalCount, len(root.manifests),
			logger.FieldDurationMS, time.Since(start).Milliseconds())
	}
	return ix, nil
}

func (ix *Index) add(root *Root) {
	log := logger.ComponentLogger("catalog")
	claim := func(id string, m *expected.Manifest) {
		if prev, dup := ix.byID[id]; dup && prev.Root != root {
			log.Warnw("id present in two roots, keeping the first",
				logger.FieldTest, id, logger.FieldCatalog, prev.Root.Catalog)
			return
		}
		ix.byID[id] = Entry{Root: root, Manifest: m}
	}
	for _, m := range root.Manifests() {
		if m.IsDir() {
			claim(dirKey(root.URLBase, m.TestPath), m)
			continue
		}
		for _, t := range m.Tests() {
			claim(t.ID, m)
		}
	}
}

type manifestRef struct {
	testPath string
	kind     expected.Kind
	ids      []string
}

func loadRoot(ctx context.Context, src Source, opts LoadOptions) (*Root, error) {
	f, err := ReadFile(src.Catalog)
	if err != nil {
		return nil, err
	}
	tests, err := f.Tests(src.Include)
	if err != nil {
		return nil, err
	}

	var refs []manifestRef
	dirs := make(map[string]bool)
	for _, item := range tests {
		refs = append(refs, manifestRef{testPath: item.Path, kind: item.Kind, ids: item.IDs})
		for dir := path.Dir(item.Path); ; dir = path.Dir(dir) {
			if dir == "." || dir == "/" {
				dirs[expected.DirName] = true
				break
			}
			dirs[dir+"/"+expected.DirName] = true
		}
	}
	for dir := range dirs {
		refs = append(refs, manifestRef{testPath: dir, kind: expected.KindNone})
	}

	loaded, err := readManifests(ctx, src.Metadata, f.URLBase, refs, opts)
	if err != nil {
		return nil, err
	}

	root := &Root{Source: src, URLBase: f.URLBase, manifests: make(map[string]*expected.Manifest, len(refs)), tests: tests}
	log := logger.ComponentLogger("catalog")
	for i, ref := range refs {
		m := loaded[i]
		root.manifests[ref.testPath] = m
		if m.IsDir() {
			continue
		}
		keep := make(map[string]struct{}, len(ref.ids))
		for _, id := range ref.ids {
			keep[id] = struct{}{}
		}
		for _, id := range m.PruneTests(keep) {
			log.Debugw("removed test no longer in catalog", logger.FieldTest, id, logger.FieldFile, ref.testPath)
		}
		for _, id := range ref.ids {
			m.AddTest(id)
		}
	}

	for testPath, m := range root.manifests {
		m.Parent = root.manifests[parentDirID(testPath)]
	}
	return root, nil
}

// parentDirID returns the directory manifest enclosing a test path or
// directory id; "" above the root.
func parentDirID(testPath string) string {
	dir := path.Dir(testPath)
	if path.Base(testPath) == expected.DirName {
		if dir == "." {
			return ""
		}
		dir = path.Dir(dir)
	}
	if dir == "." {
		return expected.DirName
	}
	return dir + "/" + expected.DirName
}

func readManifests(ctx context.Context, metadataRoot, urlBase string, refs []manifestRef, opts LoadOptions) ([]*expected.Manifest, error) {
	workers := opts.Concurrency
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	out := make([]*expected.Manifest, len(refs))
	p := pool.New().WithContext(ctx).WithMaxGoroutines(workers).WithCancelOnError().WithFirstError()
	for i, ref := range refs {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m, err := readManifest(metadataRoot, urlBase, ref, opts.Expected)
			if err != nil {
				return err
			}
			out[i] = m
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func readManifest(metadataRoot, urlBase string, ref manifestRef, opts expected.Options) (*expected.Manifest, error) {
	file := MetadataPath(metadataRoot, ref.testPath)
	fh, err := os.Open(file)
	if errors.Is(err, os.ErrNotExist) {
		return expected.New(ref.testPath, urlBase, ref.kind, opts), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", file)
	}
	defer fh.Close()

	m, err := expected.Load(fh, ref.testPath, urlBase, ref.kind, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", file)
	}
	return m, nil
}
