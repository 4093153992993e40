// Package report renders the outcome of an update run.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teranos/wptmeta/errors"
	"github.com/teranos/wptmeta/expected"
)

// Format selects how a report is rendered
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(name)); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatText, nil
	}
	return "", errors.Newf("unknown report format %q (want text, json or yaml)", name)
}

// Disabled is a test or subtest the stability policy disabled
type Disabled struct {
	Test    string   `json:"test" yaml:"test"`
	Subtest string   `json:"subtest,omitempty" yaml:"subtest,omitempty"`
	Message string   `json:"message" yaml:"message"`
	Configs []string `json:"configs,omitempty" yaml:"configs,omitempty"`
}

// Name identifies the test, or the subtest as "test | subtest"
func (d Disabled) Name() string {
	if d.Subtest == "" {
		return d.Test
	}
	return d.Test + " | " + d.Subtest
}

// Root is the write outcome of one metadata directory
type Root struct {
	Metadata  string `json:"metadata" yaml:"metadata"`
	Unchanged bool   `json:"unchanged" yaml:"unchanged"`
	Written   int    `json:"written" yaml:"written"`
	Removed   int    `json:"removed" yaml:"removed"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Counts summarizes the processed logs
type Counts struct {
	Logs         int `json:"logs" yaml:"logs"`
	Events       int `json:"events" yaml:"events"`
	UnknownTests int `json:"unknown_tests" yaml:"unknown_tests"`
	Dropped      int `json:"dropped" yaml:"dropped"`
	Modified     int `json:"modified_manifests" yaml:"modified_manifests"`
}

// Report is the outcome of one update run
type Report struct {
	Counts            Counts     `json:"counts" yaml:"counts"`
	Roots             []Root     `json:"roots" yaml:"roots"`
	Disabled          []Disabled `json:"disabled" yaml:"disabled"`
	UnexpectedChanges []string   `json:"unexpected_changes,omitempty" yaml:"unexpected_changes,omitempty"`
}

// AddDisabled appends coalescing outcomes, keeping entries ordered by name
func (r *Report) AddDisabled(disabled []expected.Disabled) {
	for _, d := range disabled {
		entry := Disabled{Test: d.Test, Subtest: d.Subtest, Message: d.Message}
		for _, ri := range d.Configs {
			entry.Configs = append(entry.Configs, ri.String())
		}
		r.Disabled = append(r.Disabled, entry)
	}
	sort.SliceStable(r.Disabled, func(i, j int) bool {
		return r.Disabled[i].Name() < r.Disabled[j].Name()
	})
}

// Write renders the report
func (r *Report) Write(w io.Writer, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(r.normalized()), "encoding report")
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r.normalized()); err != nil {
			return errors.Wrap(err, "encoding report")
		}
		return errors.Wrap(enc.Close(), "encoding report")
	default:
		return r.writeText(w)
	}
}

// normalized replaces nil lists so encoders emit [] instead of null
func (r *Report) normalized() *Report {
	out := *r
	if out.Roots == nil {
		out.Roots = []Root{}
	}
	if out.Disabled == nil {
		out.Disabled = []Disabled{}
	}
	return &out
}

// writeText emits one line per disabled test or subtest, then one line per
// unexpected change
func (r *Report) writeText(w io.Writer) error {
	for _, d := range r.Disabled {
		if _, err := fmt.Fprintf(w, "disabled: %s\n", d.Name()); err != nil {
			return errors.Wrap(err, "writing report")
		}
	}
	for _, p := range r.UnexpectedChanges {
		if _, err := fmt.Fprintf(w, "unexpected change: %s\n", p); err != nil {
			return errors.Wrap(err, "writing report")
		}
	}
	return nil
}
