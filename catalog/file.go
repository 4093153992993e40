// Package catalog loads the test catalog of each test root and the
// expectation manifests that belong to it, and indexes them by test id.
package catalog

import (
	_ "embed"
	"encoding/json"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/teranos/wptmeta/errors"
	"github.com/teranos/wptmeta/expected"
	"github.com/teranos/wptmeta/logger"
)

//go:embed schema.json
var schemaJSON string

const schemaURL = "catalog.schema.json"

// ExcludedTypes are item types that carry no verifiable results
var ExcludedTypes = []string{"stub", "helper", "manual", "support", "conformancechecker"}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
			schemaErr = errors.Wrap(err, "add catalog schema")
			return
		}
		schema, schemaErr = compiler.Compile(schemaURL)
	})
	return schema, schemaErr
}

// File is a parsed catalog:
//
//	{"url_base": "/", "items": {"testharness": {"a/b.html": ["/a/b.html"]}}}
type File struct {
	URLBase string                         `json:"url_base"`
	Items   map[string]map[string][]string `json:"items"`
}

// Item is one test file of the catalog
type Item struct {
	Type string
	Kind expected.Kind
	// Path is relative to the test root, slash separated
	Path string
	IDs  []string
}

// ReadFile loads and validates a catalog from disk
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading catalog %s", path)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "catalog %s", path)
	}
	return f, nil
}

// Parse validates raw catalog JSON against the catalog schema and decodes it
func Parse(data []byte) (*File, error) {
	s, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decoding JSON"), errors.ErrInvalidCatalog)
	}
	if err := s.Validate(payload); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "schema validation"), errors.ErrInvalidCatalog)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decoding catalog"), errors.ErrInvalidCatalog)
	}
	if f.URLBase == "" {
		f.URLBase = "/"
	}
	return &f, nil
}

// Tests returns the verifiable test files whose path matches one of the
// include globs (all files when include is empty), sorted by path.
func (f *File) Tests(include []string) ([]Item, error) {
	for _, pattern := range include {
		if !doublestar.ValidatePattern(pattern) {
			return nil, errors.WithHintf(errors.Newf("invalid include pattern %q", pattern),
				"patterns use doublestar syntax, e.g. css/**/*.html")
		}
	}

	log := logger.ComponentLogger("catalog")
	byPath := make(map[string]*Item)
	types := make([]string, 0, len(f.Items))
	for itemType := range f.Items {
		types = append(types, itemType)
	}
	sort.Strings(types)

	for _, itemType := range types {
		if excluded(itemType) {
			continue
		}
		kind, ok := expected.ParseKind(itemType)
		if !ok {
			log.Debugw("skipping unknown item type", "type", itemType)
			continue
		}
		for path, ids := range f.Items[itemType] {
			if !included(path, include) {
				continue
			}
			if prev, dup := byPath[path]; dup {
				log.Warnw("test file listed under two item types, keeping the first",
					logger.FieldPath, path, "type", prev.Type, "ignored", itemType)
				continue
			}
			byPath[path] = &Item{Type: itemType, Kind: kind, Path: path, IDs: append([]string(nil), ids...)}
		}
	}

	items := make([]Item, 0, len(byPath))
	for _, item := range byPath {
		items = append(items, *item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })
	return items, nil
}

func excluded(itemType string) bool {
	for _, t := range ExcludedTypes {
		if t == itemType {
			return true
		}
	}
	return false
}

func included(path string, include []string) bool {
	if len(include) == 0 {
		return true
	}
	for _, pattern := range include {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}
