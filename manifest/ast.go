// Package manifest reads and writes expectation manifests: indented
// `[section]` headings holding `key: value` entries, where a value may be
// conditional on the run configuration:
//
//	[test.html]
//	  max-asserts: 4
//	  [subtest one]
//	    expected:
//	      if os == "win": TIMEOUT
//	      if not debug: FAIL
//	      PASS
//	lsan-allowed: [Alloc, Realloc]
package manifest

import (
	"strconv"
	"strings"
)

// Value is a scalar string or a list of strings
type Value struct {
	Text   string
	List   []string
	IsList bool
}

// String returns a scalar value
func String(s string) Value {
	return Value{Text: s}
}

// List returns a list value
func List(items ...string) Value {
	out := make([]string, len(items))
	copy(out, items)
	return Value{List: out, IsList: true}
}

// Int returns a scalar value holding n
func Int(n int) Value {
	return Value{Text: strconv.Itoa(n)}
}

// AsInt parses a scalar value as an integer
func (v Value) AsInt() (int, error) {
	return strconv.Atoi(strings.TrimSpace(v.Text))
}

// Equal reports whether two values are identical
func (v Value) Equal(other Value) bool {
	if v.IsList != other.IsList {
		return false
	}
	if !v.IsList {
		return v.Text == other.Text
	}
	if len(v.List) != len(other.List) {
		return false
	}
	for i := range v.List {
		if v.List[i] != other.List[i] {
			return false
		}
	}
	return true
}

// String renders the value the way it is written in a manifest
func (v Value) String() string {
	return formatValue(v)
}

// ConditionalValue is one line of a property: a value selected when Cond
// holds. Cond is nil for the unconditional default.
type ConditionalValue struct {
	Cond  Expr
	Value Value
}

// IsDefault reports whether this is the unconditional entry
func (c *ConditionalValue) IsDefault() bool {
	return c.Cond == nil
}

// KeyValue is a property with its ordered conditional values; an
// unconditional default, when present, is last.
type KeyValue struct {
	Key    string
	Values []*ConditionalValue
}

// Default returns the unconditional entry or nil
func (kv *KeyValue) Default() *ConditionalValue {
	if n := len(kv.Values); n > 0 && kv.Values[n-1].IsDefault() {
		return kv.Values[n-1]
	}
	return nil
}

// Resolve returns the value of the first entry whose condition holds in env
func (kv *KeyValue) Resolve(env Env) (Value, bool) {
	for _, cv := range kv.Values {
		if cv.Cond == nil || Matches(cv.Cond, env) {
			return cv.Value, true
		}
	}
	return Value{}, false
}

// Section is a `[name]` block, or the unnamed file root
type Section struct {
	Name     string
	Entries  []*KeyValue
	Children []*Section
}

// Get returns the named property or nil
func (s *Section) Get(key string) *KeyValue {
	for _, kv := range s.Entries {
		if kv.Key == key {
			return kv
		}
	}
	return nil
}

// Set replaces the values of a property, appending it if absent.
// An empty values list removes the property.
func (s *Section) Set(key string, values []*ConditionalValue) {
	if len(values) == 0 {
		s.Remove(key)
		return
	}
	if kv := s.Get(key); kv != nil {
		kv.Values = values
		return
	}
	s.Entries = append(s.Entries, &KeyValue{Key: key, Values: values})
}

// SetDefault sets a single unconditional value
func (s *Section) SetDefault(key string, v Value) {
	s.Set(key, []*ConditionalValue{{Value: v}})
}

// Remove deletes a property; it reports whether anything was removed
func (s *Section) Remove(key string) bool {
	for i, kv := range s.Entries {
		if kv.Key == key {
			s.Entries = append(s.Entries[:i], s.Entries[i+1:]...)
			return true
		}
	}
	return false
}

// Child returns the named child section or nil
func (s *Section) Child(name string) *Section {
	for _, c := range s.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// AddChild appends a child section
func (s *Section) AddChild(c *Section) {
	s.Children = append(s.Children, c)
}

// RemoveChild deletes the named child section
func (s *Section) RemoveChild(name string) bool {
	for i, c := range s.Children {
		if c.Name == name {
			s.Children = append(s.Children[:i], s.Children[i+1:]...)
			return true
		}
	}
	return false
}

// IsEmpty reports whether the section holds no data worth writing
func (s *Section) IsEmpty() bool {
	for _, kv := range s.Entries {
		if len(kv.Values) > 0 {
			return false
		}
	}
	for _, c := range s.Children {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}
