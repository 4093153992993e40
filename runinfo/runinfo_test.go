package runinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey_OrderIndependent(t *testing.T) {
	a := RunInfo{"os": "linux", "debug": false, "bits": 64.0}
	b := RunInfo{"bits": 64.0, "debug": false, "os": "linux"}

	assert.Equal(t, a.Key(), b.Key())
	assert.True(t, a.Equal(b))
	assert.Equal(t, `"bits"=64,"debug"=false,"os"="linux"`, a.Key())
}

func TestKey_TypedValues(t *testing.T) {
	// The string "true" and the boolean true are different configurations
	assert.NotEqual(t, RunInfo{"debug": "true"}.Key(), RunInfo{"debug": true}.Key())
	assert.NotEqual(t, RunInfo{"bits": "64"}.Key(), RunInfo{"bits": 64.0}.Key())
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b RunInfo
		want bool
	}{
		{"both empty", RunInfo{}, RunInfo{}, true},
		{"nil and empty", nil, RunInfo{}, true},
		{"extra property", RunInfo{"os": "linux"}, RunInfo{"os": "linux", "debug": true}, false},
		{"different value", RunInfo{"os": "linux"}, RunInfo{"os": "mac"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Equal(tt.b))
		})
	}
}

func TestNormalize(t *testing.T) {
	r := Normalize(RunInfo{"bits": 64, "os": "linux"})
	assert.Equal(t, 64.0, r["bits"])
	assert.True(t, r.Equal(RunInfo{"bits": 64.0, "os": "linux"}))
}

func TestClone(t *testing.T) {
	r := RunInfo{"os": "linux"}
	c := r.Clone()
	c["os"] = "win"
	assert.Equal(t, "linux", r["os"])
}

func TestLookup(t *testing.T) {
	r := RunInfo{"debug": true}
	v, ok := r.Lookup("debug")
	assert.True(t, ok)
	assert.Equal(t, true, v)

	_, ok = r.Lookup("os")
	assert.False(t, ok)
}
