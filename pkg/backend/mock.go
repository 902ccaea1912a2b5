package backend

import (
	"context"
	"time"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/capability"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/event"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/receipt"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/workorder"
)

// MockBackend runs synchronously in-process, emitting a small
// deterministic event trace and a Complete receipt. It exists for
// tests and demos; it never shells out or blocks on I/O.
type MockBackend struct {
	id   string
	caps capability.Manifest
}

// NewMockBackend returns a MockBackend advertising caps under id.
func NewMockBackend(id string, caps capability.Manifest) *MockBackend {
	if caps == nil {
		caps = capability.Manifest{}
	}
	return &MockBackend{id: id, caps: caps}
}

func (m *MockBackend) Identity() receipt.BackendIdentity {
	return receipt.BackendIdentity{ID: m.id}
}

func (m *MockBackend) Capabilities() capability.Manifest {
	return m.caps
}

// Run emits run_started, an assistant_message, usage_update, and
// run_completed, then returns a Complete receipt. It honors ctx
// cancellation between each emitted event, returning a Cancelled
// receipt if ctx is done while an event is waiting to be sent. A
// caller that stops draining eventsOut without cancelling ctx blocks
// Run.
func (m *MockBackend) Run(ctx context.Context, runID string, wo workorder.WorkOrder, eventsOut chan<- event.Event) (receipt.Receipt, error) {
	started := time.Now().UTC()
	builder := receipt.NewBuilder(m.id).
		WithRunID(runID).
		WithWorkOrderID(wo.ID).
		WithCapabilities(m.caps).
		WithMode(receipt.ModeNative)

	var trace []event.Event
	emit := func(ev event.Event) bool {
		select {
		case eventsOut <- ev:
			trace = append(trace, ev)
			return true
		case <-ctx.Done():
			return false
		}
	}

	cancelled := func() (receipt.Receipt, error) {
		trace = append(trace, event.Simple(time.Now().UTC(), event.KindCancelled))
		return m.finish(builder, trace, started, receipt.OutcomeCancelled)
	}

	now := started
	if !emit(event.Simple(now, event.KindRunStarted)) {
		return cancelled()
	}
	if !emit(event.Simple(now.Add(time.Millisecond), event.KindAssistantMsg)) {
		return cancelled()
	}
	if !emit(event.Simple(now.Add(2*time.Millisecond), event.KindUsageUpdate)) {
		return cancelled()
	}
	if !emit(event.Simple(now.Add(3*time.Millisecond), event.KindRunCompleted)) {
		return cancelled()
	}

	builder.WithUsage(nil, receipt.UsageNormalized{InputTokens: 12, OutputTokens: 8, TotalTokens: 20})
	return m.finish(builder, trace, started, receipt.OutcomeComplete)
}

func (m *MockBackend) finish(b *receipt.Builder, trace []event.Event, started time.Time, outcome receipt.Outcome) (receipt.Receipt, error) {
	b.WithTrace(trace).WithTiming(started, time.Now().UTC()).WithOutcome(outcome)
	return receipt.WithHash(b.Build())
}
