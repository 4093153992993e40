package expected

import (
	"sort"

	"github.com/teranos/wptmeta/manifest"
	"github.com/teranos/wptmeta/runinfo"
)

// Options controls how conditions are written
type Options struct {
	// PropertyOrder lists run_info properties, most significant first.
	// Properties not listed follow in lexical order.
	PropertyOrder []string
	// BooleanProperties are rendered as `x` or `not x`
	BooleanProperties []string
}

// Stability enables flakiness handling: when repeated runs of one
// configuration disagree the test is disabled instead of updated.
type Stability struct {
	Runs    int
	Message string
}

// Enabled reports whether stability mode is on
func (s Stability) Enabled() bool {
	return s.Runs > 0
}

func (s Stability) message() string {
	if s.Message == "" {
		return "unstable"
	}
	return s.Message
}

type conditionBuilder struct {
	rank     map[string]int
	booleans map[string]bool
}

func newConditionBuilder(opts Options) *conditionBuilder {
	b := &conditionBuilder{
		rank:     make(map[string]int, len(opts.PropertyOrder)),
		booleans: make(map[string]bool, len(opts.BooleanProperties)),
	}
	for i, name := range opts.PropertyOrder {
		if _, ok := b.rank[name]; !ok {
			b.rank[name] = i
		}
	}
	for _, name := range opts.BooleanProperties {
		b.booleans[name] = true
	}
	return b
}

// order sorts property names by precedence, unlisted names last and lexically
func (b *conditionBuilder) order(names []string) []string {
	out := append([]string(nil), names...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, iok := b.rank[out[i]]
		rj, jok := b.rank[out[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		}
		return out[i] < out[j]
	})
	return out
}

// distinguishing returns the properties whose values differ between the
// observed configurations. With a single configuration there is nothing to
// tell apart, so every listed property it carries is used.
func (b *conditionBuilder) distinguishing(configs []runinfo.RunInfo) []string {
	if len(configs) == 1 {
		var listed []string
		for name := range configs[0] {
			if _, ok := b.rank[name]; ok {
				listed = append(listed, name)
			}
		}
		return b.order(listed)
	}

	seen := make(map[string]map[string]struct{})
	for _, ri := range configs {
		for name := range ri {
			if seen[name] == nil {
				seen[name] = make(map[string]struct{})
			}
		}
	}
	for name := range seen {
		for _, ri := range configs {
			v, _ := ri.Lookup(name)
			seen[name][runinfo.FormatValue(v)] = struct{}{}
		}
	}

	var varying []string
	for name, values := range seen {
		if len(values) > 1 {
			varying = append(varying, name)
		}
	}
	return b.order(varying)
}

// common reports whether every configuration carries the same value for
// each of the named properties.
func (b *conditionBuilder) common(configs []runinfo.RunInfo, names []string) bool {
	for _, name := range names {
		first, ok := configs[0].Lookup(name)
		if !ok {
			return false
		}
		want := runinfo.FormatValue(first)
		for _, ri := range configs[1:] {
			v, ok := ri.Lookup(name)
			if !ok || runinfo.FormatValue(v) != want {
				return false
			}
		}
	}
	return true
}

// condition builds the conjunction selecting ri over the given properties.
// A nil result means no property can be expressed.
func (b *conditionBuilder) condition(ri runinfo.RunInfo, props []string) manifest.Expr {
	var terms []manifest.Expr
	for _, name := range props {
		v, ok := ri.Lookup(name)
		if !ok || v == nil {
			continue
		}
		if t := b.term(name, v); t != nil {
			terms = append(terms, t)
		}
	}
	return manifest.And(terms...)
}

func (b *conditionBuilder) term(name string, v any) manifest.Expr {
	variable := &manifest.Variable{Name: name}
	if flag, ok := v.(bool); ok || b.booleans[name] {
		if !ok {
			flag = isTrue(v)
		}
		if flag {
			return variable
		}
		return &manifest.Not{X: variable}
	}

	var lit manifest.Expr
	switch val := v.(type) {
	case string:
		lit = &manifest.StringLit{Value: val}
	case float64:
		lit = &manifest.NumberLit{Value: val}
	case int:
		lit = &manifest.NumberLit{Value: float64(val)}
	default:
		return nil
	}
	return &manifest.Binary{Op: manifest.OpEq, Left: variable, Right: lit}
}

func isTrue(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return val != ""
	case float64:
		return val != 0
	case int:
		return val != 0
	}
	return true
}

// disjoint reports whether two conjunctions pin some property to different
// values, so that no configuration satisfies both. Terms other than simple
// comparisons are assumed to overlap.
func disjoint(a, b manifest.Expr) bool {
	pins := make(map[string]any)
	for _, t := range manifest.Terms(a) {
		if name, v, ok := pinned(t); ok {
			pins[name] = v
		}
	}
	for _, t := range manifest.Terms(b) {
		name, v, ok := pinned(t)
		if !ok {
			continue
		}
		if w, seen := pins[name]; seen && differ(w, v) {
			return true
		}
	}
	return false
}

func pinned(e manifest.Expr) (string, any, bool) {
	switch x := e.(type) {
	case *manifest.Variable:
		return x.Name, true, true
	case *manifest.Not:
		if v, ok := x.X.(*manifest.Variable); ok {
			return v.Name, false, true
		}
	case *manifest.Binary:
		v, ok := x.Left.(*manifest.Variable)
		if x.Op != manifest.OpEq || !ok {
			break
		}
		switch lit := x.Right.(type) {
		case *manifest.StringLit:
			return v.Name, lit.Value, true
		case *manifest.NumberLit:
			return v.Name, lit.Value, true
		}
	}
	return "", nil, false
}

func differ(a, b any) bool {
	switch x := a.(type) {
	case bool:
		y, ok := b.(bool)
		return ok && x != y
	case string:
		y, ok := b.(string)
		return ok && x != y
	case float64:
		y, ok := b.(float64)
		return ok && x != y
	}
	return false
}
