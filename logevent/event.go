// Package logevent decodes the structured test log: one JSON object per
// line, dispatched on its `action` field.
package logevent

import (
	"github.com/tidwall/gjson"

	"github.com/teranos/wptmeta/errors"
	"github.com/teranos/wptmeta/runinfo"
)

// Action identifies the kind of a decoded event
type Action int

const (
	// ActionIgnored covers every action the updater does not consume
	ActionIgnored Action = iota
	ActionSuiteStart
	ActionTestStart
	ActionTestStatus
	ActionTestEnd
	ActionAssertionCount
	ActionLsanLeak
)

var actionNames = map[string]Action{
	"suite_start":     ActionSuiteStart,
	"test_start":      ActionTestStart,
	"test_status":     ActionTestStatus,
	"test_end":        ActionTestEnd,
	"assertion_count": ActionAssertionCount,
	"lsan_leak":       ActionLsanLeak,
}

// Event is a decoded log line. The concrete type is one of the *Event
// structs below; switch on it or on Action().
type Event interface {
	Action() Action
}

// SuiteStart opens a run under a configuration
type SuiteStart struct {
	RunInfo runinfo.RunInfo
}

// TestStart opens a test
type TestStart struct {
	Test string
}

// TestStatus reports one subtest result
type TestStatus struct {
	Test     string
	Subtest  string
	Status   string
	Expected string
}

// TestEnd reports the overall result of a test
type TestEnd struct {
	Test     string
	Status   string
	Expected string
}

// AssertionCount reports how many assertions a test hit
type AssertionCount struct {
	Test  string
	Count int
}

// LsanLeak reports a leak detected by LeakSanitizer under Scope
type LsanLeak struct {
	Scope  string
	Frames []string
	// AllowedMatch lists the allow-list entries the leak matched, if any
	AllowedMatch []string
}

// Ignored is any other action
type Ignored struct {
	Name string
}

func (SuiteStart) Action() Action     { return ActionSuiteStart }
func (TestStart) Action() Action      { return ActionTestStart }
func (TestStatus) Action() Action     { return ActionTestStatus }
func (TestEnd) Action() Action        { return ActionTestEnd }
func (AssertionCount) Action() Action { return ActionAssertionCount }
func (LsanLeak) Action() Action       { return ActionLsanLeak }
func (Ignored) Action() Action        { return ActionIgnored }

// Matched reports whether the leak was already covered by an allow-list
func (l LsanLeak) Matched() bool {
	return len(l.AllowedMatch) > 0
}

// Decode parses one log line. Invalid JSON, a missing action or a missing
// field the action requires is an error marked errors.ErrMalformedLog.
func Decode(line []byte) (Event, error) {
	if !gjson.ValidBytes(line) {
		return nil, errors.NewMalformedLogError("invalid JSON")
	}
	doc := gjson.ParseBytes(line)
	if !doc.IsObject() {
		return nil, errors.NewMalformedLogError("log record is not an object")
	}
	action := doc.Get("action")
	if action.Type != gjson.String {
		return nil, errors.NewMalformedLogError("missing action")
	}

	switch actionNames[action.Str] {
	case ActionSuiteStart:
		ri := runinfo.RunInfo{}
		if v, ok := doc.Get("run_info").Value().(map[string]any); ok {
			ri = runinfo.RunInfo(v)
		}
		return SuiteStart{RunInfo: ri}, nil

	case ActionTestStart:
		test, err := requireString(doc, action.Str, "test")
		if err != nil {
			return nil, err
		}
		return TestStart{Test: test}, nil

	case ActionTestStatus:
		var ev TestStatus
		var err error
		if ev.Test, err = requireString(doc, action.Str, "test"); err != nil {
			return nil, err
		}
		if ev.Subtest, err = requireString(doc, action.Str, "subtest"); err != nil {
			return nil, err
		}
		if ev.Status, err = requireString(doc, action.Str, "status"); err != nil {
			return nil, err
		}
		ev.Expected = doc.Get("expected").String()
		return ev, nil

	case ActionTestEnd:
		var ev TestEnd
		var err error
		if ev.Test, err = requireString(doc, action.Str, "test"); err != nil {
			return nil, err
		}
		if ev.Status, err = requireString(doc, action.Str, "status"); err != nil {
			return nil, err
		}
		ev.Expected = doc.Get("expected").String()
		return ev, nil

	case ActionAssertionCount:
		test, err := requireString(doc, action.Str, "test")
		if err != nil {
			return nil, err
		}
		count := doc.Get("count")
		if count.Type != gjson.Number {
			return nil, errors.NewMalformedLogError("%s: count must be a number", action.Str)
		}
		return AssertionCount{Test: test, Count: int(count.Int())}, nil

	case ActionLsanLeak:
		frames := doc.Get("frames")
		if !frames.IsArray() {
			return nil, errors.NewMalformedLogError("%s: frames must be a list", action.Str)
		}
		ev := LsanLeak{Scope: "/", Frames: stringList(frames)}
		if scope := doc.Get("scope"); scope.Type == gjson.String && scope.Str != "" {
			ev.Scope = scope.Str
		}
		if match := doc.Get("allowed_match"); match.IsArray() {
			ev.AllowedMatch = stringList(match)
		} else if match.Type == gjson.String && match.Str != "" {
			ev.AllowedMatch = []string{match.Str}
		}
		return ev, nil
	}

	return Ignored{Name: action.Str}, nil
}

func requireString(doc gjson.Result, action, field string) (string, error) {
	v := doc.Get(field)
	if v.Type != gjson.String {
		return "", errors.NewMalformedLogError("%s: missing %s", action, field)
	}
	return v.Str, nil
}

func stringList(arr gjson.Result) []string {
	items := arr.Array()
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.String())
	}
	return out
}
