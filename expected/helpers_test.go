package expected

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teranos/wptmeta/runinfo"
)

const testID = "/path/to/test.htm"

var testOpts = Options{
	PropertyOrder:     []string{"debug", "os", "version", "processor", "bits"},
	BooleanProperties: []string{"debug"},
}

func load(t *testing.T, testPath, text string) *Manifest {
	t.Helper()
	m, err := Load(strings.NewReader(text), testPath, "/", KindTestharness, testOpts)
	require.NoError(t, err)
	return m
}

func loadDir(t *testing.T, testPath, text string) *Manifest {
	t.Helper()
	m, err := Load(strings.NewReader(text), testPath, "/", KindNone, testOpts)
	require.NoError(t, err)
	return m
}

func testNode(t *testing.T, m *Manifest) *TestNode {
	t.Helper()
	node := m.Test(testID)
	require.NotNil(t, node, "test %s not loaded", testID)
	return node
}

func ri(kv ...any) runinfo.RunInfo {
	out := runinfo.RunInfo{}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i].(string)] = kv[i+1]
	}
	return out
}
