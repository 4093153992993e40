// Package runinfo models the run configuration a test execution happened
// under: a flat mapping of property names (os, debug, version, ...) to scalar
// values as reported by the suite_start event.
package runinfo

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// RunInfo maps a property name to a bool, string or float64 value.
// A RunInfo is treated as immutable once recorded.
type RunInfo map[string]any

// Lookup returns the value of a property and whether it is set
func (r RunInfo) Lookup(name string) (any, bool) {
	v, ok := r[name]
	return v, ok
}

// Key returns a canonical string identifying the exact configuration.
// Two RunInfos have equal keys if and only if they hold the same properties
// with the same typed values.
func (r RunInfo) Key() string {
	names := r.Names()
	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(name))
		b.WriteByte('=')
		b.WriteString(FormatValue(r[name]))
	}
	return b.String()
}

// Names returns the property names in lexical order
func (r RunInfo) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Equal reports whether both configurations hold identical properties
func (r RunInfo) Equal(other RunInfo) bool {
	if len(r) != len(other) {
		return false
	}
	return r.Key() == other.Key()
}

// Clone returns a copy that does not share storage with r
func (r RunInfo) Clone() RunInfo {
	out := make(RunInfo, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String renders the configuration for diagnostics
func (r RunInfo) String() string {
	return "{" + r.Key() + "}"
}

// FormatValue renders a typed property value so that values of different
// types never collide: strings are quoted, numbers and booleans are bare.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(val)
	case string:
		return strconv.Quote(val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return strconv.Quote(fmt.Sprint(val))
	}
}

// Normalize converts integer values to float64 so that configurations built
// in code compare equal to ones decoded from JSON.
func Normalize(r RunInfo) RunInfo {
	out := make(RunInfo, len(r))
	for k, v := range r {
		switch val := v.(type) {
		case int:
			out[k] = float64(val)
		case int64:
			out[k] = float64(val)
		case float32:
			out[k] = float64(val)
		default:
			out[k] = v
		}
	}
	return out
}
