package canon_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/canon"
)

func TestJSON_SortsKeys(t *testing.T) {
	v := map[string]any{"b": 1, "a": 2, "c": 3}
	out, err := canon.String(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1,"c":3}`, out)
}

func TestJSON_NoHTMLEscaping(t *testing.T) {
	out, err := canon.String(map[string]any{"html": "<a>&</a>"})
	require.NoError(t, err)
	assert.Equal(t, `{"html":"<a>&</a>"}`, out)
}

func TestJSON_PreservesArrayOrder(t *testing.T) {
	out, err := canon.String([]any{3, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, `[3,1,2]`, out)
}

func TestJSON_NestedStructsRespectTags(t *testing.T) {
	type inner struct {
		Z string `json:"z"`
		A string `json:"a"`
	}
	out, err := canon.String(inner{Z: "zz", A: "aa"})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"aa","z":"zz"}`, out)
}

func TestHash_Deterministic(t *testing.T) {
	v := map[string]any{"one": 1, "two": "2"}
	h1, err := canon.Hash(v)
	require.NoError(t, err)
	h2, err := canon.Hash(v)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestHash_DifferentValuesDifferentHash(t *testing.T) {
	h1, err := canon.Hash(map[string]any{"a": 1})
	require.NoError(t, err)
	h2, err := canon.Hash(map[string]any{"a": 2})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestSHA256Hex_KnownVector(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", canon.SHA256Hex(nil))
}
