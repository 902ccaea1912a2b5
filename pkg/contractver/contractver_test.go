package contractver_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/contractver"
)

func TestParse_TableDriven(t *testing.T) {
	cases := []struct {
		in      string
		wantOK  bool
		wantMaj uint32
		wantMin uint32
	}{
		{"abp/v0.1", true, 0, 1},
		{"abp/v1.2.3", false, 0, 0},
		{"", false, 0, 0},
		{"v0.1", false, 0, 0},
		{"abp/vx.y", false, 0, 0},
	}

	for _, c := range cases {
		v, ok := contractver.Parse(c.in)
		assert.Equalf(t, c.wantOK, ok, "input %q", c.in)
		if c.wantOK {
			assert.Equal(t, c.wantMaj, v.Major)
			assert.Equal(t, c.wantMin, v.Minor)
		}
	}
}

func TestIsCompatible(t *testing.T) {
	assert.True(t, contractver.IsCompatible("abp/v0.1", "abp/v0.99"))
	assert.False(t, contractver.IsCompatible("abp/v1.0", "abp/v0.1"))
	assert.False(t, contractver.IsCompatible("abp/v1.0", "garbage"))
}
