package expected

import (
	"sort"

	"github.com/teranos/wptmeta/manifest"
	"github.com/teranos/wptmeta/runinfo"
)

// Observation is one value recorded for a property under a run configuration
type Observation struct {
	RunInfo runinfo.RunInfo
	Value   string
}

type observed struct {
	ri    runinfo.RunInfo
	value string
}

// propertyUpdate turns the observations of one property into conditional
// values, starting from the entries currently persisted.
type propertyUpdate struct {
	prior    []*manifest.ConditionalValue
	implicit string
	builder  *conditionBuilder
}

type coalesced struct {
	values  []*manifest.ConditionalValue
	changed bool
	// configs are all distinct configurations observed, sorted by key
	configs []runinfo.RunInfo
	// unstable configurations disagreed with themselves under stability mode
	unstable []runinfo.RunInfo
	// mismatch lists configurations the built entries could not reproduce
	mismatch []runinfo.RunInfo
}

func (u *propertyUpdate) run(obs []Observation, st Stability) coalesced {
	table, unstable, configs := group(obs, st.Enabled())
	res := coalesced{configs: configs, unstable: unstable}
	if len(unstable) > 0 || len(table) == 0 {
		return res
	}

	if !u.disagrees(table) {
		return res
	}

	var values []*manifest.ConditionalValue
	if v, ok := uniform(table); ok {
		values = collapse([]*manifest.ConditionalValue{{Value: manifest.String(v)}}, u.implicit)
	} else {
		values = u.build(table)
	}

	for _, o := range table {
		if resolve(values, o.ri, u.implicit) != o.value {
			res.mismatch = append(res.mismatch, o.ri)
		}
	}
	if len(res.mismatch) > 0 {
		return res
	}
	res.values = values
	res.changed = true
	return res
}

func (u *propertyUpdate) disagrees(table []observed) bool {
	for _, o := range table {
		if resolve(u.prior, o.ri, u.implicit) != o.value {
			return true
		}
	}
	return false
}

func (u *propertyUpdate) build(table []observed) []*manifest.ConditionalValue {
	var kept []*manifest.ConditionalValue
	var pending []observed

	if len(u.prior) == 0 {
		kept = []*manifest.ConditionalValue{{Value: manifest.String(mostCommon(table, u.implicit))}}
		pending = table
	} else {
		matched := make([][]observed, len(u.prior))
		for _, o := range table {
			idx := firstMatch(u.prior, o.ri)
			if idx < 0 {
				pending = append(pending, o)
				continue
			}
			matched[idx] = append(matched[idx], o)
		}
		for i, cv := range u.prior {
			m := matched[i]
			switch {
			case len(m) == 0:
				kept = append(kept, cv)
			case agree(m):
				kept = append(kept, &manifest.ConditionalValue{Cond: cv.Cond, Value: manifest.String(m[0].value)})
			case cv.IsDefault():
				kept = append(kept, cv)
				pending = append(pending, m...)
			default:
				pending = append(pending, m...)
			}
		}
	}

	configs := make([]runinfo.RunInfo, len(table))
	for i, o := range table {
		configs[i] = o.ri
	}
	props := u.builder.distinguishing(configs)

	var need []observed
	for _, o := range pending {
		if resolve(kept, o.ri, u.implicit) != o.value {
			need = append(need, o)
		}
	}

	var fresh []*manifest.ConditionalValue
	for _, grp := range byValue(need) {
		for _, cond := range u.conditions(grp, table, kept, props) {
			if cond == nil {
				kept = withDefault(kept, grp[0].value)
				continue
			}
			fresh = append(fresh, &manifest.ConditionalValue{Cond: cond, Value: manifest.String(grp[0].value)})
		}
	}

	return collapse(append(sortConditions(fresh), kept...), u.implicit)
}

// conditions returns the conjunctions selecting grp, whose observations all
// carry one value. A single conjunction shared by the whole group is
// preferred; otherwise each configuration gets its own.
func (u *propertyUpdate) conditions(grp, table []observed, kept []*manifest.ConditionalValue, props []string) []manifest.Expr {
	if len(table) == 1 {
		return []manifest.Expr{u.builder.condition(grp[0].ri, props)}
	}
	if cond := u.shared(grp, table, kept, props); cond != nil {
		return []manifest.Expr{cond}
	}
	out := make([]manifest.Expr, 0, len(grp))
	for _, o := range grp {
		cond := u.shared([]observed{o}, table, kept, props)
		if cond == nil {
			cond = u.builder.condition(o.ri, props)
		}
		out = append(out, cond)
	}
	return out
}

// shared searches property subsets by size, in precedence order, for the
// smallest conjunction that holds for every configuration in grp and for no
// observed configuration or kept condition carrying another value.
func (u *propertyUpdate) shared(grp, table []observed, kept []*manifest.ConditionalValue, props []string) manifest.Expr {
	configs := make([]runinfo.RunInfo, len(grp))
	for i, o := range grp {
		configs[i] = o.ri
	}
	value := grp[0].value

	var found manifest.Expr
	for size := 1; size <= len(props) && found == nil; size++ {
		eachSubset(props, size, func(subset []string) bool {
			if !u.builder.common(configs, subset) {
				return true
			}
			cond := u.builder.condition(configs[0], subset)
			if cond == nil || len(manifest.Terms(cond)) != size {
				return true
			}
			if conflicts(cond, value, table, kept) {
				return true
			}
			found = cond
			return false
		})
	}
	return found
}

func conflicts(cond manifest.Expr, value string, table []observed, kept []*manifest.ConditionalValue) bool {
	for _, o := range table {
		if o.value != value && manifest.Matches(cond, o.ri) {
			return true
		}
	}
	for _, cv := range kept {
		if cv.IsDefault() || cv.Value.Text == value {
			continue
		}
		if !disjoint(cond, cv.Cond) {
			return true
		}
	}
	return false
}

// eachSubset calls fn with every size-k subset of names, keeping their
// order, until fn returns false.
func eachSubset(names []string, k int, fn func([]string) bool) {
	subset := make([]string, 0, k)
	var walk func(start int) bool
	walk = func(start int) bool {
		if len(subset) == k {
			return fn(append([]string(nil), subset...))
		}
		for i := start; i <= len(names)-(k-len(subset)); i++ {
			subset = append(subset, names[i])
			if !walk(i + 1) {
				return false
			}
			subset = subset[:len(subset)-1]
		}
		return true
	}
	walk(0)
}

// byValue splits observations by value, values in lexical order
func byValue(obs []observed) [][]observed {
	groups := make(map[string][]observed)
	var values []string
	for _, o := range obs {
		if _, ok := groups[o.value]; !ok {
			values = append(values, o.value)
		}
		groups[o.value] = append(groups[o.value], o)
	}
	sort.Strings(values)
	out := make([][]observed, len(values))
	for i, v := range values {
		out[i] = groups[v]
	}
	return out
}

// group folds observations by exact configuration. Without stability mode
// the last observation for a configuration wins; with it, configurations
// holding more than one distinct value are returned as unstable.
func group(obs []Observation, stable bool) ([]observed, []runinfo.RunInfo, []runinfo.RunInfo) {
	type bucket struct {
		ri     runinfo.RunInfo
		values []string
	}
	buckets := make(map[string]*bucket)
	var keys []string
	for _, o := range obs {
		key := o.RunInfo.Key()
		b, ok := buckets[key]
		if !ok {
			b = &bucket{ri: o.RunInfo}
			buckets[key] = b
			keys = append(keys, key)
		}
		b.values = append(b.values, o.Value)
	}
	sort.Strings(keys)

	var table []observed
	var unstable, configs []runinfo.RunInfo
	for _, key := range keys {
		b := buckets[key]
		configs = append(configs, b.ri)
		last := b.values[len(b.values)-1]
		if stable && !allEqual(b.values) {
			unstable = append(unstable, b.ri)
			continue
		}
		table = append(table, observed{ri: b.ri, value: last})
	}
	return table, unstable, configs
}

func resolve(entries []*manifest.ConditionalValue, ri runinfo.RunInfo, implicit string) string {
	if idx := firstMatch(entries, ri); idx >= 0 {
		return entries[idx].Value.Text
	}
	return implicit
}

func firstMatch(entries []*manifest.ConditionalValue, ri runinfo.RunInfo) int {
	for i, cv := range entries {
		if manifest.Matches(cv.Cond, ri) {
			return i
		}
	}
	return -1
}

func agree(obs []observed) bool {
	for _, o := range obs[1:] {
		if o.value != obs[0].value {
			return false
		}
	}
	return true
}

func uniform(table []observed) (string, bool) {
	if agree(table) {
		return table[0].value, true
	}
	return "", false
}

func allEqual(values []string) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}

// mostCommon picks the value observed for the most configurations; ties go
// to the implicit default, then to the lexically smallest value.
func mostCommon(table []observed, implicit string) string {
	counts := make(map[string]int)
	for _, o := range table {
		counts[o.value]++
	}
	best, bestCount := "", -1
	for v, n := range counts {
		switch {
		case n > bestCount:
			best, bestCount = v, n
		case n == bestCount:
			if v == implicit || (best != implicit && v < best) {
				best = v
			}
		}
	}
	return best
}

func withDefault(entries []*manifest.ConditionalValue, value string) []*manifest.ConditionalValue {
	out := make([]*manifest.ConditionalValue, 0, len(entries)+1)
	for _, cv := range entries {
		if !cv.IsDefault() {
			out = append(out, cv)
		}
	}
	return append(out, &manifest.ConditionalValue{Value: manifest.String(value)})
}

// sortConditions removes duplicate conditions and orders the rest with the
// most specific first, then by rendered text.
func sortConditions(entries []*manifest.ConditionalValue) []*manifest.ConditionalValue {
	seen := make(map[string]bool)
	var out []*manifest.ConditionalValue
	for _, cv := range entries {
		key := cv.Cond.String() + "\x00" + cv.Value.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, cv)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := len(manifest.Terms(out[i].Cond)), len(manifest.Terms(out[j].Cond))
		if ti != tj {
			return ti > tj
		}
		ci, cj := out[i].Cond.String(), out[j].Cond.String()
		if ci != cj {
			return ci < cj
		}
		return out[i].Value.String() < out[j].Value.String()
	})
	return out
}

// collapse removes redundant entries: conditionals directly before the
// default that repeat it, conditionals that all carry the default's value,
// and a lone default equal to the implicit value.
func collapse(entries []*manifest.ConditionalValue, implicit string) []*manifest.ConditionalValue {
	n := len(entries)
	if n == 0 {
		return nil
	}
	def := entries[n-1]
	if !def.IsDefault() {
		return entries
	}
	for len(entries) > 1 && entries[len(entries)-2].Value.Equal(def.Value) {
		entries = append(entries[:len(entries)-2], def)
	}
	if len(entries) == 1 && implicit != "" && def.Value.Equal(manifest.String(implicit)) {
		return nil
	}
	return entries
}
