package expected

// Kind is the family a test belongs to; it decides which statuses a result
// may carry and what a missing `expected` means.
type Kind int

const (
	// KindNone marks directory manifests, which hold no tests
	KindNone Kind = iota
	KindTestharness
	KindReftest
	KindWdspec
	KindCrashtest
	KindPrintReftest
	KindVisual
)

var kindNames = map[Kind]string{
	KindNone:         "",
	KindTestharness:  "testharness",
	KindReftest:      "reftest",
	KindWdspec:       "wdspec",
	KindCrashtest:    "crashtest",
	KindPrintReftest: "print-reftest",
	KindVisual:       "visual",
}

func (k Kind) String() string {
	return kindNames[k]
}

// ParseKind maps a catalog item type to a Kind. Item types that carry no
// verifiable results (support files, manual tests, ...) are not kinds.
func ParseKind(itemType string) (Kind, bool) {
	for k, name := range kindNames {
		if k != KindNone && name == itemType {
			return k, true
		}
	}
	return KindNone, false
}

// ResultShape describes the results a kind of test produces
type ResultShape struct {
	// DefaultTest is the implied test status when `expected` is absent
	DefaultTest string
	// DefaultSubtest is the implied subtest status; empty when the kind has no subtests
	DefaultSubtest  string
	TestStatuses    []string
	SubtestStatuses []string
}

var (
	harnessStatuses = []string{"OK", "ERROR", "INTERNAL-ERROR", "TIMEOUT", "EXTERNAL-TIMEOUT", "CRASH", "PRECONDITION_FAILED", "SKIP"}
	subtestStatuses = []string{"PASS", "FAIL", "TIMEOUT", "NOTRUN", "PRECONDITION_FAILED", "SKIP"}
	refStatuses     = []string{"PASS", "FAIL", "ERROR", "INTERNAL-ERROR", "TIMEOUT", "EXTERNAL-TIMEOUT", "CRASH", "SKIP"}
	crashStatuses   = []string{"PASS", "ERROR", "INTERNAL-ERROR", "TIMEOUT", "EXTERNAL-TIMEOUT", "CRASH", "SKIP"}
	wdspecStatuses  = []string{"OK", "ERROR", "INTERNAL-ERROR", "TIMEOUT", "EXTERNAL-TIMEOUT", "CRASH", "SKIP"}
	wdspecSubtests  = []string{"PASS", "FAIL", "ERROR", "TIMEOUT", "SKIP"}
)

var shapes = map[Kind]ResultShape{
	KindTestharness:  {DefaultTest: "OK", DefaultSubtest: "PASS", TestStatuses: harnessStatuses, SubtestStatuses: subtestStatuses},
	KindReftest:      {DefaultTest: "PASS", TestStatuses: refStatuses},
	KindWdspec:       {DefaultTest: "OK", DefaultSubtest: "PASS", TestStatuses: wdspecStatuses, SubtestStatuses: wdspecSubtests},
	KindCrashtest:    {DefaultTest: "PASS", TestStatuses: crashStatuses},
	KindPrintReftest: {DefaultTest: "PASS", TestStatuses: refStatuses},
	KindVisual:       {DefaultTest: "PASS", TestStatuses: refStatuses},
}

// Shape returns the result shape of the kind
func (k Kind) Shape() ResultShape {
	return shapes[k]
}

// AllowsTest reports whether status is a valid overall test status
func (s ResultShape) AllowsTest(status string) bool {
	return contains(s.TestStatuses, status)
}

// AllowsSubtest reports whether status is a valid subtest status
func (s ResultShape) AllowsSubtest(status string) bool {
	return contains(s.SubtestStatuses, status)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
