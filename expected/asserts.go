package expected

import (
	"github.com/teranos/wptmeta/logger"
	"github.com/teranos/wptmeta/manifest"
)

const (
	// AssertsMargin is added to a newly observed assertion maximum
	AssertsMargin = 1
	// MaxAssertsFloor is the smallest max-asserts worth persisting
	MaxAssertsFloor = 1
)

func (t *TestNode) intProperty(prop string) (int, bool) {
	kv := t.section.Get(prop)
	if kv == nil {
		return 0, false
	}
	def := kv.Default()
	if def == nil {
		return 0, false
	}
	n, err := def.Value.AsInt()
	if err != nil {
		logger.ComponentLogger("coalesce").Warnw("ignoring non-numeric assertion bound",
			logger.FieldTest, t.ID,
			logger.FieldProperty, prop,
			logger.FieldError, err)
		return 0, false
	}
	return n, true
}

// coalesceAsserts widens the assertion bounds to cover every observed
// count. max-asserts only grows and min-asserts only shrinks; min-asserts
// is never introduced.
func (t *TestNode) coalesceAsserts() {
	if len(t.asserts) == 0 {
		return
	}
	lo, hi := t.asserts[0].count, t.asserts[0].count
	for _, a := range t.asserts[1:] {
		lo = min(lo, a.count)
		hi = max(hi, a.count)
	}

	bound, _ := t.intProperty(PropMaxAsserts)
	if m := max(bound, hi); m > bound {
		next := m + AssertsMargin
		if next < MaxAssertsFloor {
			t.section.Remove(PropMaxAsserts)
		} else {
			t.section.SetDefault(PropMaxAsserts, manifest.Int(next))
		}
	}

	if floor, ok := t.intProperty(PropMinAsserts); ok && lo < floor {
		if lo <= 0 {
			t.section.Remove(PropMinAsserts)
		} else {
			t.section.SetDefault(PropMinAsserts, manifest.Int(lo))
		}
	}
}
