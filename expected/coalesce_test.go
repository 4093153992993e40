package expected

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/wptmeta/runinfo"
)

func TestUpdate_SubtestBecomesDefault(t *testing.T) {
	m := load(t, "path/to/test.htm", "[test.htm]\n  [test1]\n    expected: FAIL\n")
	test := testNode(t, m)

	test.GetSubtest("test1").SetResult(ri(), "PASS")
	test.SetResult(ri(), "OK")
	assert.True(t, m.Modified())

	assert.Empty(t, m.Coalesce(Stability{}))
	assert.True(t, m.IsEmpty())
}

func TestUpdate_SubtestValueChanges(t *testing.T) {
	m := load(t, "path/to/test.htm", "[test.htm]\n  [test1]\n    expected: ERROR\n")
	test := testNode(t, m)

	test.GetSubtest("test1").SetResult(ri(), "FAIL")
	test.SetResult(ri(), "OK")
	m.Coalesce(Stability{})

	assert.False(t, m.IsEmpty())
	assert.Equal(t, "FAIL", test.Subtest("test1").Expected(ri()))
	assert.Equal(t, "[test.htm]\n  [test1]\n    expected: FAIL\n", m.Serialize())
}

func TestUpdate_NewSubtest(t *testing.T) {
	m := load(t, "path/to/test.htm", "[test.htm]\n  [test1]\n    expected: FAIL\n")
	test := testNode(t, m)

	test.GetSubtest("test1").SetResult(ri(), "FAIL")
	test.GetSubtest("test2").SetResult(ri(), "FAIL")
	test.SetResult(ri(), "OK")
	m.Coalesce(Stability{})

	require.Len(t, test.Subtests(), 2)
	assert.Equal(t, "[test.htm]\n  [test1]\n    expected: FAIL\n  [test2]\n    expected: FAIL\n", m.Serialize())
}

func TestUpdate_MultipleConfigurations(t *testing.T) {
	tests := []struct {
		name   string
		prior  string
		obs    []Observation
		want   string
		checks map[string]runinfo.RunInfo
	}{
		{
			name:  "differing os",
			prior: "    expected: FAIL\n",
			obs: []Observation{
				{RunInfo: ri("debug", false, "os", "osx"), Value: "FAIL"},
				{RunInfo: ri("debug", false, "os", "linux"), Value: "TIMEOUT"},
			},
			want: "    expected:\n      if os == \"linux\": TIMEOUT\n      FAIL\n",
			checks: map[string]runinfo.RunInfo{
				"FAIL":    ri("debug", false, "os", "windows"),
				"TIMEOUT": ri("debug", false, "os", "linux"),
			},
		},
		{
			name:  "differing debug",
			prior: "    expected: FAIL\n",
			obs: []Observation{
				{RunInfo: ri("debug", false, "os", "osx"), Value: "FAIL"},
				{RunInfo: ri("debug", true, "os", "osx"), Value: "TIMEOUT"},
			},
			want: "    expected:\n      if debug: TIMEOUT\n      FAIL\n",
		},
		{
			name:  "existing conditions take new values",
			prior: "    expected:\n      if debug: FAIL\n      if not debug and os == \"osx\": TIMEOUT\n",
			obs: []Observation{
				{RunInfo: ri("debug", false, "os", "osx"), Value: "FAIL"},
				{RunInfo: ri("debug", true, "os", "osx"), Value: "TIMEOUT"},
			},
			want: "    expected:\n      if debug: TIMEOUT\n      if not debug and os == \"osx\": FAIL\n",
		},
		{
			name:  "unmatched configuration gets its own condition",
			prior: "    expected:\n      if debug: TIMEOUT\n      if not debug and os == \"osx\": NOTRUN\n",
			obs: []Observation{
				{RunInfo: ri("debug", false, "os", "linux"), Value: "FAIL"},
				{RunInfo: ri("debug", true, "os", "windows"), Value: "FAIL"},
			},
			want: "    expected:\n      if os == \"linux\": FAIL\n      if debug: FAIL\n      if not debug and os == \"osx\": NOTRUN\n",
			checks: map[string]runinfo.RunInfo{
				"NOTRUN": ri("debug", false, "os", "osx"),
			},
		},
		{
			name:  "one entry per configuration",
			prior: "    expected: FAIL\n",
			obs: []Observation{
				{RunInfo: ri("os", "linux"), Value: "PASS"},
				{RunInfo: ri("os", "win"), Value: "TIMEOUT"},
			},
			want: "    expected:\n      if os == \"linux\": PASS\n      if os == \"win\": TIMEOUT\n      FAIL\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := load(t, "path/to/test.htm", "[test.htm]\n  [test1]\n"+tt.prior)
			sub := testNode(t, m).GetSubtest("test1")
			for _, o := range tt.obs {
				sub.SetResult(o.RunInfo, o.Value)
			}
			m.Coalesce(Stability{})

			assert.Equal(t, "[test.htm]\n  [test1]\n"+tt.want, m.Serialize())
			for _, o := range tt.obs {
				assert.Equal(t, o.Value, sub.Expected(o.RunInfo), o.RunInfo.String())
			}
			for value, config := range tt.checks {
				assert.Equal(t, value, sub.Expected(config), config.String())
			}
		})
	}
}

func TestCoalesce_SharedCondition(t *testing.T) {
	m := load(t, "path/to/test.htm", "")
	sub := m.AddTest(testID).GetSubtest("test1")
	sub.SetResult(ri("debug", true, "os", "linux"), "FAIL")
	sub.SetResult(ri("debug", false, "os", "linux"), "FAIL")
	sub.SetResult(ri("debug", true, "os", "win"), "PASS")
	sub.SetResult(ri("debug", false, "os", "win"), "PASS")
	m.Coalesce(Stability{})

	assert.Equal(t, "[test.htm]\n  [test1]\n    expected:\n      if os == \"linux\": FAIL\n      PASS\n", m.Serialize())
	assert.Equal(t, "FAIL", sub.Expected(ri("debug", true, "os", "linux")))
	assert.Equal(t, "PASS", sub.Expected(ri("debug", false, "os", "win")))
}

func TestCoalesce_SharedConditionNeedsTwoProperties(t *testing.T) {
	m := load(t, "path/to/test.htm", "")
	sub := m.AddTest(testID).GetSubtest("test1")
	sub.SetResult(ri("debug", true, "os", "linux", "bits", 64), "FAIL")
	sub.SetResult(ri("debug", true, "os", "linux", "bits", 32), "FAIL")
	sub.SetResult(ri("debug", false, "os", "linux", "bits", 64), "PASS")
	sub.SetResult(ri("debug", true, "os", "win", "bits", 64), "PASS")
	sub.SetResult(ri("debug", false, "os", "win", "bits", 32), "PASS")
	m.Coalesce(Stability{})

	assert.Equal(t, "[test.htm]\n  [test1]\n    expected:\n      if debug and os == \"linux\": FAIL\n      PASS\n", m.Serialize())
}

func TestUpdate_ClearExpected(t *testing.T) {
	m := load(t, "path/to/test.htm", "[test.htm]\n  expected: TIMEOUT\n  [test1]\n    expected:\n      if debug: TIMEOUT\n      if not debug and os == \"osx\": NOTRUN\n")
	test := testNode(t, m)
	test.ClearExpected()
	assert.True(t, m.Modified())

	sub := test.GetSubtest("test1")
	sub.SetResult(ri("debug", false, "os", "linux"), "FAIL")
	sub.SetResult(ri("debug", true, "os", "windows"), "FAIL")
	m.Coalesce(Stability{})

	assert.Equal(t, "[test.htm]\n  [test1]\n    expected: FAIL\n", m.Serialize())
	assert.Equal(t, "FAIL", sub.Expected(ri("debug", false, "os", "osx")))
}

func TestCoalesce_CollapseLaw(t *testing.T) {
	m := load(t, "path/to/test.htm", "[test.htm]\n  [test1]\n    expected:\n      if os == \"win\": TIMEOUT\n      PASS\n")
	sub := testNode(t, m).GetSubtest("test1")
	sub.SetResult(ri("os", "linux"), "FAIL")
	sub.SetResult(ri("os", "win"), "FAIL")
	sub.SetResult(ri("os", "mac"), "FAIL")
	m.Coalesce(Stability{})

	assert.Equal(t, "[test.htm]\n  [test1]\n    expected: FAIL\n", m.Serialize())
}

func TestCoalesce_Idempotent(t *testing.T) {
	text := "[test.htm]\n  [test1]\n    expected:\n      if os == \"win\": TIMEOUT\n      FAIL\n"
	m := load(t, "path/to/test.htm", text)
	test := testNode(t, m)
	sub := test.GetSubtest("test1")
	sub.SetResult(ri("os", "win"), "TIMEOUT")
	sub.SetResult(ri("os", "linux"), "FAIL")
	test.SetResult(ri("os", "linux"), "OK")

	assert.False(t, m.Modified())
	m.Coalesce(Stability{})
	assert.False(t, m.Modified())
	assert.Equal(t, text, m.Serialize())
}

func TestCoalesce_Deterministic(t *testing.T) {
	obs := []Observation{
		{RunInfo: ri("debug", false, "os", "linux"), Value: "FAIL"},
		{RunInfo: ri("debug", false, "os", "win"), Value: "TIMEOUT"},
		{RunInfo: ri("debug", false, "os", "mac"), Value: "FAIL"},
		{RunInfo: ri("debug", true, "os", "linux"), Value: "TIMEOUT"},
	}
	run := func(order []int) string {
		m := load(t, "path/to/test.htm", "")
		sub := m.AddTest(testID).GetSubtest("sub")
		for _, i := range order {
			sub.SetResult(obs[i].RunInfo, obs[i].Value)
		}
		m.Coalesce(Stability{})
		return m.Serialize()
	}

	want := "[test.htm]\n  [sub]\n    expected:\n      if debug: TIMEOUT\n      if os == \"win\": TIMEOUT\n      FAIL\n"
	assert.Equal(t, want, run([]int{0, 1, 2, 3}))
	assert.Equal(t, want, run([]int{3, 2, 1, 0}))
	assert.Equal(t, want, run([]int{1, 3, 0, 2}))
}

func TestCoalesce_LastWriteWins(t *testing.T) {
	m := load(t, "path/to/test.htm", "[test.htm]\n  [test1]\n    expected: FAIL\n")
	sub := testNode(t, m).GetSubtest("test1")
	sub.SetResult(ri("os", "linux"), "FAIL")
	sub.SetResult(ri("os", "linux"), "PASS")

	assert.Empty(t, m.Coalesce(Stability{}))
	assert.True(t, m.IsEmpty())
}

func TestCoalesce_StabilityDisablesSubtest(t *testing.T) {
	m := load(t, "path/to/test.htm", "[test.htm]\n  [test1]\n    expected: FAIL\n")
	sub := testNode(t, m).GetSubtest("test1")
	sub.SetResult(ri("os", "linux"), "FAIL")
	sub.SetResult(ri("os", "linux"), "PASS")

	disabled := m.Coalesce(Stability{Runs: 2, Message: "flaky"})
	require.Len(t, disabled, 1)
	assert.Equal(t, testID, disabled[0].Test)
	assert.Equal(t, "test1", disabled[0].Subtest)
	assert.Equal(t, "flaky", disabled[0].Message)
	assert.True(t, sub.NewDisabled())

	assert.Equal(t, "[test.htm]\n  [test1]\n    expected: FAIL\n    disabled: flaky\n", m.Serialize())
}

func TestCoalesce_StabilityDisablesOnlyUnstableConfiguration(t *testing.T) {
	m := load(t, "path/to/test.htm", "")
	test := m.AddTest(testID)
	test.SetResult(ri("os", "linux"), "OK")
	test.SetResult(ri("os", "linux"), "TIMEOUT")
	test.SetResult(ri("os", "win"), "ERROR")

	disabled := m.Coalesce(Stability{Runs: 3})
	require.Len(t, disabled, 1)
	assert.Equal(t, "", disabled[0].Subtest)
	assert.True(t, test.NewDisabled())
	assert.Equal(t, "[test.htm]\n  disabled:\n    if os == \"linux\": unstable\n", m.Serialize())
}

func TestCoalesce_IndistinguishableConfigurations(t *testing.T) {
	prior := "[test.htm]\n  [test1]\n    expected: FAIL\n"
	a := ri("os", "linux", "tags", []any{"a"})
	b := ri("os", "linux", "tags", []any{"b"})

	t.Run("left unchanged without stability", func(t *testing.T) {
		m := load(t, "path/to/test.htm", prior)
		sub := testNode(t, m).GetSubtest("test1")
		sub.SetResult(a, "TIMEOUT")
		sub.SetResult(b, "FAIL")

		assert.Empty(t, m.Coalesce(Stability{}))
		assert.Equal(t, prior, m.Serialize())
	})

	t.Run("disabled with stability", func(t *testing.T) {
		m := load(t, "path/to/test.htm", prior)
		sub := testNode(t, m).GetSubtest("test1")
		sub.SetResult(a, "TIMEOUT")
		sub.SetResult(b, "FAIL")

		disabled := m.Coalesce(Stability{Runs: 1})
		require.Len(t, disabled, 1)
		assert.True(t, sub.NewDisabled())
		assert.Equal(t, "unstable", sub.Get(PropDisabled).Default().Value.Text)
	})
}

func TestCoalesce_NoObservationsUntouched(t *testing.T) {
	text := "[test.htm]\n  bug: 1234\n  [test1]\n    expected: FAIL\n"
	m := load(t, "path/to/test.htm", text)
	assert.Empty(t, m.Coalesce(Stability{Runs: 2}))
	assert.Equal(t, text, m.Serialize())
	assert.False(t, m.Modified())
}

func TestCoalesce_ReftestDefault(t *testing.T) {
	m, err := Load(strings.NewReader(""), "a/ref.html", "/", KindReftest, testOpts)
	require.NoError(t, err)
	test := m.AddTest("/a/ref.html")
	test.SetResult(ri("os", "linux"), "FAIL")
	test.SetResult(ri("os", "win"), "PASS")
	m.Coalesce(Stability{})

	assert.Equal(t, "[ref.html]\n  expected:\n    if os == \"linux\": FAIL\n    PASS\n", m.Serialize())
	assert.Equal(t, "PASS", test.Expected(ri("os", "mac")))
}

func TestMostCommon(t *testing.T) {
	table := []observed{{value: "FAIL"}, {value: "TIMEOUT"}, {value: "FAIL"}}
	assert.Equal(t, "FAIL", mostCommon(table, "PASS"))

	tie := []observed{{value: "TIMEOUT"}, {value: "PASS"}, {value: "FAIL"}}
	assert.Equal(t, "PASS", mostCommon(tie, "PASS"))
	assert.Equal(t, "FAIL", mostCommon(tie, "OK"))
}
