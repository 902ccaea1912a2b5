package capability_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/capability"
)

func TestNegotiate_NativeSatisfies(t *testing.T) {
	manifest := capability.Manifest{capability.Streaming: capability.Native}
	res := capability.Negotiate([]capability.Requirement{
		{Capability: capability.Streaming, MinSupport: capability.Native},
	}, manifest, false)

	assert.True(t, res.Compatible)
	assert.Equal(t, capability.DecisionSatisfy, res.Reports[0].Decision)
}

func TestNegotiate_EmulatedSatisfiesNonStrict(t *testing.T) {
	manifest := capability.Manifest{capability.ToolUse: capability.Emulated}
	res := capability.Negotiate([]capability.Requirement{
		{Capability: capability.ToolUse, MinSupport: capability.Native},
	}, manifest, false)

	assert.True(t, res.Compatible)
	assert.Equal(t, capability.DecisionEmulate, res.Reports[0].Decision)
}

func TestNegotiate_StrictRejectsEmulatedForNative(t *testing.T) {
	manifest := capability.Manifest{capability.ToolUse: capability.Emulated}
	res := capability.Negotiate([]capability.Requirement{
		{Capability: capability.ToolUse, MinSupport: capability.Native},
	}, manifest, true)

	assert.False(t, res.Compatible)
	assert.Equal(t, capability.DecisionReject, res.Reports[0].Decision)
}

func TestNegotiate_MissingCapabilityRejects(t *testing.T) {
	res := capability.Negotiate([]capability.Requirement{
		{Capability: capability.Streaming, MinSupport: capability.Native},
	}, capability.Manifest{}, false)

	assert.False(t, res.Compatible)
	assert.Contains(t, res.Unsatisfied(), capability.Streaming)
}

func TestNegotiate_NativeManifestMeetsEmulatedMinimum(t *testing.T) {
	manifest := capability.Manifest{capability.ImageInput: capability.Native}
	res := capability.Negotiate([]capability.Requirement{
		{Capability: capability.ImageInput, MinSupport: capability.Emulated},
	}, manifest, true)

	assert.True(t, res.Compatible)
	assert.Equal(t, capability.DecisionEmulate, res.Reports[0].Decision)
}

func TestEmulate_PrependsDirectiveAndReportsFidelity(t *testing.T) {
	reports := []capability.CapabilityReport{
		{Capability: capability.ToolUse, Decision: capability.DecisionEmulate},
	}
	conv := capability.Conversation{Messages: []capability.Message{{Role: capability.RoleUser, Content: "hi"}}}

	mutated, fidelity := capability.Emulate(reports, conv)

	assert.Len(t, mutated.Messages, 2)
	assert.Equal(t, capability.RoleSystem, mutated.Messages[0].Role)
	assert.Equal(t, capability.FidelityPartialWithCaveats, fidelity)
}

func TestEmulate_NoEmulatedDecisionsIsNoop(t *testing.T) {
	conv := capability.Conversation{Messages: []capability.Message{{Role: capability.RoleUser, Content: "hi"}}}
	mutated, fidelity := capability.Emulate(nil, conv)

	assert.Equal(t, conv, mutated)
	assert.Equal(t, capability.FidelityLossless, fidelity)
}
