package backend_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/backend"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/capability"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/event"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/receipt"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/workorder"
)

func TestMockBackend_RunProducesCompleteReceipt(t *testing.T) {
	b := backend.NewMockBackend("mock", capability.Manifest{})
	events := make(chan event.Event, 16)

	go func() {
		r, err := b.Run(context.Background(), "run-1", workorder.WorkOrder{ID: "wo-1"}, events)
		require.NoError(t, err)
		assert.Equal(t, receipt.OutcomeComplete, r.Outcome)
		assert.NotNil(t, r.ReceiptSHA256)
		require.NoError(t, receipt.VerifyHash(r))
	}()

	var kinds []event.Kind
	deadline := time.After(2 * time.Second)
	for len(kinds) < 4 {
		select {
		case ev := <-events:
			kinds = append(kinds, ev.Kind)
		case <-deadline:
			t.Fatal("timed out waiting for events")
		}
	}
	assert.Equal(t, event.KindRunStarted, kinds[0])
	assert.Equal(t, event.KindRunCompleted, kinds[3])
}

func TestMockBackend_RunCancelledMidStream(t *testing.T) {
	b := backend.NewMockBackend("mock", capability.Manifest{})
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan event.Event)

	resultCh := make(chan receipt.Receipt, 1)
	go func() {
		r, _ := b.Run(ctx, "run-1", workorder.WorkOrder{}, events)
		resultCh <- r
	}()

	<-events
	cancel()

	select {
	case r := <-resultCh:
		assert.Equal(t, receipt.OutcomeCancelled, r.Outcome)
		require.NotEmpty(t, r.Trace)
		assert.Equal(t, event.KindCancelled, r.Trace[len(r.Trace)-1].Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cancellation to resolve")
	}
}

func TestRegistry_RegisterGetListRemove(t *testing.T) {
	reg := backend.NewRegistry()
	mock := backend.NewMockBackend("mock", capability.Manifest{})

	reg.Register("mock", mock)
	assert.True(t, reg.Contains("mock"))

	got, err := reg.Get("mock")
	require.NoError(t, err)
	assert.Equal(t, mock, got)

	assert.Equal(t, []string{"mock"}, reg.List())

	reg.Remove("mock")
	assert.False(t, reg.Contains("mock"))
}

func TestRegistry_GetUnknownFails(t *testing.T) {
	reg := backend.NewRegistry()
	_, err := reg.Get("nope")
	assert.Error(t, err)
}

// TestRegistry_RemoveDoesNotAffectAlreadyResolvedBackend confirms a
// caller that resolved a Backend via Get before a concurrent Remove
// keeps a working reference: Registry hands out the interface value
// itself, not a name the caller re-resolves on every call.
func TestRegistry_RemoveDoesNotAffectAlreadyResolvedBackend(t *testing.T) {
	reg := backend.NewRegistry()
	mock := backend.NewMockBackend("mock", capability.Manifest{})
	reg.Register("mock", mock)

	resolved, err := reg.Get("mock")
	require.NoError(t, err)

	reg.Remove("mock")
	assert.False(t, reg.Contains("mock"))

	events := make(chan event.Event, 16)
	r, err := resolved.Run(context.Background(), "run-1", workorder.WorkOrder{ID: "wo-1"}, events)
	require.NoError(t, err)
	assert.Equal(t, receipt.OutcomeComplete, r.Outcome)
}
