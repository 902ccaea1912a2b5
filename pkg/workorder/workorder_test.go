package workorder_test

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/workorder"
)

func TestBuild_AssignsUUIDWhenUnset(t *testing.T) {
	wo := workorder.NewBuilder("hello").Build()
	_, err := uuid.Parse(wo.ID)
	assert.NoError(t, err)
}

func TestBuild_PreservesExplicitID(t *testing.T) {
	wo := workorder.NewBuilder("hello").WithID("fixed-id").Build()
	assert.Equal(t, "fixed-id", wo.ID)
}

func TestVendorMode_PrefersNestedForm(t *testing.T) {
	nested, err := json.Marshal(map[string]string{"mode": "mapped"})
	require.NoError(t, err)
	flat, err := json.Marshal("emulated")
	require.NoError(t, err)

	wo := workorder.NewBuilder("t").WithConfig(workorder.RuntimeConfig{
		Vendor: map[string]json.RawMessage{
			"abp":      nested,
			"abp.mode": flat,
		},
	}).Build()

	mode, ok := wo.VendorMode()
	require.True(t, ok)
	assert.Equal(t, "mapped", mode)
}

func TestVendorMode_FallsBackToFlatForm(t *testing.T) {
	flat, err := json.Marshal("emulated")
	require.NoError(t, err)

	wo := workorder.NewBuilder("t").WithConfig(workorder.RuntimeConfig{
		Vendor: map[string]json.RawMessage{"abp.mode": flat},
	}).Build()

	mode, ok := wo.VendorMode()
	require.True(t, ok)
	assert.Equal(t, "emulated", mode)
}

func TestVendorMode_AbsentReturnsFalse(t *testing.T) {
	wo := workorder.NewBuilder("t").Build()
	_, ok := wo.VendorMode()
	assert.False(t, ok)
}
