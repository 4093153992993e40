package expected

import (
	"github.com/teranos/wptmeta/logger"
	"github.com/teranos/wptmeta/manifest"
	"github.com/teranos/wptmeta/runinfo"
)

const (
	// PropExpected holds the expected status
	PropExpected = "expected"
	// PropDisabled marks a test or subtest as not run
	PropDisabled = "disabled"
	// PropMaxAsserts is the upper bound on assertion failures
	PropMaxAsserts = "max-asserts"
	// PropMinAsserts is the lower bound on assertion failures
	PropMinAsserts = "min-asserts"
	// PropLsanAllowed lists leak signatures allowed under a directory
	PropLsanAllowed = "lsan-allowed"
)

// Disabled identifies a test or subtest that stability mode disabled
type Disabled struct {
	Test    string
	Subtest string
	Message string
	Configs []runinfo.RunInfo
}

// node is the state shared by tests and subtests
type node struct {
	owner       *Manifest
	section     *manifest.Section
	results     []Observation
	newDisabled bool
}

// Section returns the manifest section backing the node
func (n *node) Section() *manifest.Section {
	return n.section
}

// Get returns a property of the node or nil
func (n *node) Get(prop string) *manifest.KeyValue {
	return n.section.Get(prop)
}

// NewDisabled reports whether stability mode disabled the node in this run
func (n *node) NewDisabled() bool {
	return n.newDisabled
}

// Results returns the observations recorded for `expected`
func (n *node) Results() []Observation {
	return n.results
}

func (n *node) entries(prop string) []*manifest.ConditionalValue {
	if kv := n.section.Get(prop); kv != nil {
		return kv.Values
	}
	return nil
}

func (n *node) setResult(ri runinfo.RunInfo, status, implicit string) {
	n.results = append(n.results, Observation{RunInfo: ri, Value: status})
	if resolve(n.entries(PropExpected), ri, implicit) != status {
		n.owner.modified = true
	}
}

func (n *node) clearExpected() {
	if n.section.Remove(PropExpected) {
		n.owner.modified = true
	}
}

// coalesceExpected replaces `expected` with the observed values. It
// returns the configurations for which the node was disabled instead.
func (n *node) coalesceExpected(label, implicit string, st Stability) []runinfo.RunInfo {
	if len(n.results) == 0 {
		return nil
	}
	u := &propertyUpdate{prior: n.entries(PropExpected), implicit: implicit, builder: n.owner.builder}
	res := u.run(n.results, st)

	switch {
	case len(res.unstable) > 0:
		n.disable(res.unstable, res.configs, st.message())
		return res.unstable
	case len(res.mismatch) > 0:
		if st.Enabled() {
			n.disable(res.mismatch, res.configs, st.message())
			return res.mismatch
		}
		logger.ComponentLogger("coalesce").Warnw("observations cannot be told apart by run_info, leaving expected unchanged",
			logger.FieldTest, label,
			logger.FieldCount, len(res.mismatch))
	case res.changed:
		n.section.Set(PropExpected, res.values)
	}
	return nil
}

// disable adds `disabled` entries selecting the given configurations,
// or an unconditional one when they cannot be told apart from the rest.
func (n *node) disable(configs, all []runinfo.RunInfo, message string) {
	b := n.owner.builder
	props := b.distinguishing(all)

	unconditional := len(all) == 1
	var added []*manifest.ConditionalValue
	for _, ri := range configs {
		if unconditional {
			break
		}
		cond := b.condition(ri, props)
		if cond == nil {
			unconditional = true
			break
		}
		added = append(added, &manifest.ConditionalValue{Cond: cond, Value: manifest.String(message)})
	}

	if unconditional {
		n.section.SetDefault(PropDisabled, manifest.String(message))
	} else {
		n.section.Set(PropDisabled, append(sortConditions(added), withoutDuplicates(n.entries(PropDisabled), added)...))
	}
	n.newDisabled = true
	n.owner.modified = true
}

func withoutDuplicates(existing, added []*manifest.ConditionalValue) []*manifest.ConditionalValue {
	seen := make(map[string]bool, len(added))
	for _, cv := range added {
		seen[cv.Cond.String()] = true
	}
	var out []*manifest.ConditionalValue
	for _, cv := range existing {
		if cv.Cond != nil && seen[cv.Cond.String()] {
			continue
		}
		out = append(out, cv)
	}
	return out
}

// TestNode is the expectation data of one test id
type TestNode struct {
	node
	ID       string
	subtests []*SubtestNode
	asserts  []assertObservation
}

type assertObservation struct {
	ri    runinfo.RunInfo
	count int
}

// Name is the section name of the test within its manifest
func (t *TestNode) Name() string {
	return t.section.Name
}

// Manifest returns the manifest owning the test
func (t *TestNode) Manifest() *Manifest {
	return t.owner
}

// Subtests returns subtests in discovery order
func (t *TestNode) Subtests() []*SubtestNode {
	return t.subtests
}

// Subtest returns an existing subtest or nil
func (t *TestNode) Subtest(name string) *SubtestNode {
	for _, s := range t.subtests {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// GetSubtest returns the named subtest, creating it when absent
func (t *TestNode) GetSubtest(name string) *SubtestNode {
	if s := t.Subtest(name); s != nil {
		return s
	}
	sec := t.section.Child(name)
	if sec == nil {
		sec = &manifest.Section{Name: name}
		t.section.AddChild(sec)
	}
	return t.attachSubtest(sec)
}

func (t *TestNode) attachSubtest(sec *manifest.Section) *SubtestNode {
	s := &SubtestNode{node: node{owner: t.owner, section: sec}, test: t}
	t.subtests = append(t.subtests, s)
	return s
}

// SetResult records the overall status observed under ri
func (t *TestNode) SetResult(ri runinfo.RunInfo, status string) {
	t.setResult(ri, status, t.owner.shape.DefaultTest)
}

// SetAsserts records an assertion count observed under ri
func (t *TestNode) SetAsserts(ri runinfo.RunInfo, count int) {
	t.asserts = append(t.asserts, assertObservation{ri: ri, count: count})
	hi, hasMax := t.intProperty(PropMaxAsserts)
	lo, hasMin := t.intProperty(PropMinAsserts)
	if (!hasMax && count > 0) || (hasMax && count > hi) || (hasMin && count < lo) {
		t.owner.modified = true
	}
}

// ClearExpected drops persisted `expected` data of the test and its subtests
func (t *TestNode) ClearExpected() {
	t.clearExpected()
	for _, s := range t.subtests {
		s.clearExpected()
	}
}

// Expected returns the status the test is expected to have under ri
func (t *TestNode) Expected(ri runinfo.RunInfo) string {
	return resolve(t.entries(PropExpected), ri, t.owner.shape.DefaultTest)
}

func (t *TestNode) coalesce(st Stability) []Disabled {
	var out []Disabled
	for _, s := range t.subtests {
		if configs := s.coalesceExpected(t.ID+" | "+s.Name(), t.owner.shape.DefaultSubtest, st); configs != nil {
			out = append(out, Disabled{Test: t.ID, Subtest: s.Name(), Message: st.message(), Configs: configs})
		}
	}
	if configs := t.coalesceExpected(t.ID, t.owner.shape.DefaultTest, st); configs != nil {
		out = append(out, Disabled{Test: t.ID, Message: st.message(), Configs: configs})
	}
	t.coalesceAsserts()
	return out
}

// SubtestNode is the expectation data of one named subtest
type SubtestNode struct {
	node
	test *TestNode
}

// Name is the subtest name
func (s *SubtestNode) Name() string {
	return s.section.Name
}

// Test returns the owning test
func (s *SubtestNode) Test() *TestNode {
	return s.test
}

// SetResult records the subtest status observed under ri
func (s *SubtestNode) SetResult(ri runinfo.RunInfo, status string) {
	s.setResult(ri, status, s.owner.shape.DefaultSubtest)
}

// Expected returns the status the subtest is expected to have under ri
func (s *SubtestNode) Expected(ri runinfo.RunInfo) string {
	return resolve(s.entries(PropExpected), ri, s.owner.shape.DefaultSubtest)
}
