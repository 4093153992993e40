// Package expected is the in-memory expectation tree: one Manifest per test
// file or directory, holding TestNodes and their SubtestNodes. Observed
// results are recorded against the nodes while logs are read and folded
// into conditional values by Coalesce.
package expected

import (
	"io"
	"path"
	"sort"
	"strings"

	"github.com/teranos/wptmeta/errors"
	"github.com/teranos/wptmeta/manifest"
	"github.com/teranos/wptmeta/runinfo"
)

// DirName is the reserved test path component of directory manifests
const DirName = "__dir__"

// Manifest is the expectation tree of one test file, or of one directory
// when TestPath ends in DirName.
type Manifest struct {
	// TestPath is relative to the test root, without the .ini suffix
	TestPath string
	URLBase  string
	Kind     Kind
	// Parent is the enclosing directory manifest; nil at the root
	Parent *Manifest

	shape   ResultShape
	builder *conditionBuilder
	root    *manifest.Section
	tests   []*TestNode
	byID    map[string]*TestNode

	ownLsan  []string
	condLsan []string
	leaks    []Observation
	modified bool
}

// New returns an empty manifest for a test file or directory
func New(testPath, urlBase string, kind Kind, opts Options) *Manifest {
	return newManifest(&manifest.Section{}, testPath, urlBase, kind, opts)
}

// Load parses persisted expectations
func Load(r io.Reader, testPath, urlBase string, kind Kind, opts Options) (*Manifest, error) {
	root, err := manifest.Parse(r)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing expectations for %s", testPath)
	}
	return newManifest(root, testPath, urlBase, kind, opts), nil
}

func newManifest(root *manifest.Section, testPath, urlBase string, kind Kind, opts Options) *Manifest {
	m := &Manifest{
		TestPath: testPath,
		URLBase:  urlBase,
		Kind:     kind,
		shape:    kind.Shape(),
		builder:  newConditionBuilder(opts),
		root:     root,
		byID:     make(map[string]*TestNode),
	}
	if kv := root.Get(PropLsanAllowed); kv != nil {
		for _, cv := range kv.Values {
			if cv.IsDefault() {
				m.ownLsan = listOf(cv.Value)
			} else {
				m.condLsan = append(m.condLsan, listOf(cv.Value)...)
			}
		}
	}
	if !m.IsDir() {
		for _, sec := range root.Children {
			m.attachTest(m.dirURL()+sec.Name, sec)
		}
	}
	return m
}

func listOf(v manifest.Value) []string {
	if v.IsList {
		return append([]string(nil), v.List...)
	}
	if v.Text == "" {
		return nil
	}
	return []string{v.Text}
}

// IsDir reports whether this is a directory manifest
func (m *Manifest) IsDir() bool {
	return path.Base(m.TestPath) == DirName
}

// Root returns the top-level section
func (m *Manifest) Root() *manifest.Section {
	return m.root
}

// Shape returns the result shape of the tests in this manifest
func (m *Manifest) Shape() ResultShape {
	return m.shape
}

// Modified reports whether any recorded data differs from what was loaded
func (m *Manifest) Modified() bool {
	return m.modified
}

// IsEmpty reports whether there is nothing worth writing
func (m *Manifest) IsEmpty() bool {
	return m.root.IsEmpty()
}

// Serialize renders the manifest file contents
func (m *Manifest) Serialize() string {
	return manifest.Serialize(m.root)
}

// Tests returns the tests in file order
func (m *Manifest) Tests() []*TestNode {
	return m.tests
}

// Test returns a test by id or nil
func (m *Manifest) Test(id string) *TestNode {
	return m.byID[id]
}

// AddTest returns the test with the given id, creating it when absent
func (m *Manifest) AddTest(id string) *TestNode {
	if t := m.byID[id]; t != nil {
		return t
	}
	name := m.sectionName(id)
	sec := m.root.Child(name)
	if sec == nil {
		sec = &manifest.Section{Name: name}
		m.root.AddChild(sec)
	}
	return m.attachTest(id, sec)
}

func (m *Manifest) attachTest(id string, sec *manifest.Section) *TestNode {
	t := &TestNode{node: node{owner: m, section: sec}, ID: id}
	for _, child := range sec.Children {
		t.attachSubtest(child)
	}
	m.tests = append(m.tests, t)
	m.byID[id] = t
	return t
}

// PruneTests removes tests whose id is not in keep and returns their ids
func (m *Manifest) PruneTests(keep map[string]struct{}) []string {
	var removed []string
	kept := m.tests[:0]
	for _, t := range m.tests {
		if _, ok := keep[t.ID]; ok {
			kept = append(kept, t)
			continue
		}
		removed = append(removed, t.ID)
		delete(m.byID, t.ID)
		if !t.section.IsEmpty() {
			m.modified = true
		}
		m.root.RemoveChild(t.section.Name)
	}
	m.tests = kept
	return removed
}

// dirURL is the URL prefix shared by every test of the manifest
func (m *Manifest) dirURL() string {
	base := m.URLBase
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	dir := strings.Trim(path.Dir(m.TestPath), "/")
	if dir == "." || dir == "" {
		return base
	}
	return base + dir + "/"
}

func (m *Manifest) sectionName(id string) string {
	if prefix := m.dirURL(); strings.HasPrefix(id, prefix) && len(id) > len(prefix) {
		return id[len(prefix):]
	}
	return id[strings.LastIndex(id, "/")+1:]
}

// LsanAllowed returns the leak signatures allowed by this manifest itself
func (m *Manifest) LsanAllowed() []string {
	return m.ownLsan
}

// InheritedLsan returns the signatures allowed by enclosing directories
func (m *Manifest) InheritedLsan() []string {
	var out []string
	for p := m.Parent; p != nil; p = p.Parent {
		out = append(out, p.ownLsan...)
	}
	return out
}

// lsanKnown collects every signature allowed here or above, including those
// allowed only under a condition.
func (m *Manifest) lsanKnown() map[string]bool {
	known := make(map[string]bool)
	for d := m; d != nil; d = d.Parent {
		for _, sig := range d.ownLsan {
			known[sig] = true
		}
		for _, sig := range d.condLsan {
			known[sig] = true
		}
	}
	return known
}

// SetLsan records a leak reported under this directory. Leaks that matched
// an allow-list entry when they were reported carry no new information.
func (m *Manifest) SetLsan(ri runinfo.RunInfo, frames []string, allowedMatch bool) {
	if allowedMatch || len(frames) == 0 {
		return
	}
	sig := frames[0]
	m.leaks = append(m.leaks, Observation{RunInfo: ri, Value: sig})
	if !m.lsanKnown()[sig] {
		m.modified = true
	}
}

// coalesceLsan merges unknown leak signatures into the default entry of
// lsan-allowed. Conditional entries are kept as they are.
func (m *Manifest) coalesceLsan() {
	if len(m.leaks) == 0 {
		return
	}
	known := m.lsanKnown()
	set := make(map[string]bool)
	for _, sig := range m.ownLsan {
		set[sig] = true
	}
	added := false
	for _, leak := range m.leaks {
		if !known[leak.Value] {
			set[leak.Value] = true
			added = true
		}
	}
	if !added {
		return
	}
	allowed := make([]string, 0, len(set))
	for sig := range set {
		allowed = append(allowed, sig)
	}
	sort.Strings(allowed)

	var values []*manifest.ConditionalValue
	if kv := m.root.Get(PropLsanAllowed); kv != nil {
		for _, cv := range kv.Values {
			if !cv.IsDefault() {
				values = append(values, cv)
			}
		}
	}
	values = append(values, &manifest.ConditionalValue{Value: manifest.List(allowed...)})
	m.root.Set(PropLsanAllowed, values)
	m.ownLsan = allowed
}

// Coalesce folds every recorded observation into the tree: directory
// properties first, then each test after its subtests. It returns the
// tests and subtests stability mode disabled.
func (m *Manifest) Coalesce(st Stability) []Disabled {
	m.coalesceLsan()
	var out []Disabled
	for _, t := range m.tests {
		out = append(out, t.coalesce(st)...)
	}
	return out
}
