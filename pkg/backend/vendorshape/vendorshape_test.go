package vendorshape_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/backend/vendorshape"
)

func TestAnthropicRequestShape_MarshalsToOpaqueJSON(t *testing.T) {
	shape := vendorshape.NewAnthropicRequestShape("claude-sonnet-test", 1024)

	raw, err := shape.MarshalOpaque()
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), "claude-sonnet-test"))
}

func TestAnthropicRequestShape_MarshalOpaqueIsNonEmpty(t *testing.T) {
	shape := vendorshape.NewAnthropicRequestShape("claude-sonnet-test", 512)
	raw, err := shape.MarshalOpaque()
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
}
