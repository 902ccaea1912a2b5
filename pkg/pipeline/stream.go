package pipeline

import (
	"strings"
	"sync"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/event"
)

// StreamStage transforms or drops a single event as it flows from the
// backend's producer channel to the consumer (spec §4.9 collaborator
// surface). Returning (event.Event{}, false) drops the event.
type StreamStage interface {
	Process(ev event.Event) (event.Event, bool)
}

// EventFilter includes or excludes events by kind name, case-insensitive.
// Exactly one of Include/Exclude should be populated; if both are set,
// Include is applied first and Exclude further narrows the result.
type EventFilter struct {
	Include []event.Kind
	Exclude []event.Kind
}

func (f EventFilter) Process(ev event.Event) (event.Event, bool) {
	if len(f.Include) > 0 && !kindIn(ev.Kind, f.Include) {
		return event.Event{}, false
	}
	if len(f.Exclude) > 0 && kindIn(ev.Kind, f.Exclude) {
		return event.Event{}, false
	}
	return ev, true
}

func kindIn(k event.Kind, set []event.Kind) bool {
	for _, s := range set {
		if strings.EqualFold(string(k), string(s)) {
			return true
		}
	}
	return false
}

// EventTransform applies an arbitrary mapping function to each event.
type EventTransform struct {
	Fn func(event.Event) event.Event
}

func (t EventTransform) Process(ev event.Event) (event.Event, bool) {
	if t.Fn == nil {
		return ev, true
	}
	return t.Fn(ev), true
}

// EventRecorder tees events into running per-kind counters without
// altering the stream.
type EventRecorder struct {
	mu     sync.Mutex
	counts map[event.Kind]int
}

// NewEventRecorder returns a ready-to-use EventRecorder.
func NewEventRecorder() *EventRecorder {
	return &EventRecorder{counts: make(map[event.Kind]int)}
}

func (r *EventRecorder) Process(ev event.Event) (event.Event, bool) {
	r.mu.Lock()
	r.counts[ev.Kind]++
	r.mu.Unlock()
	return ev, true
}

// Counts returns a snapshot of per-kind counts observed so far.
func (r *EventRecorder) Counts() map[event.Kind]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make(map[event.Kind]int, len(r.counts))
	for k, v := range r.counts {
		snapshot[k] = v
	}
	return snapshot
}

// StreamPipeline composes StreamStages, applied in order. An event
// dropped by any stage stops the chain for that event.
type StreamPipeline struct {
	stages []StreamStage
}

// NewStreamPipeline builds a pipeline applying stages in order.
func NewStreamPipeline(stages ...StreamStage) *StreamPipeline {
	return &StreamPipeline{stages: stages}
}

// Process runs ev through every stage, returning the transformed
// event, or (event.Event{}, false) if any stage dropped it.
func (p *StreamPipeline) Process(ev event.Event) (event.Event, bool) {
	cur := ev
	for _, s := range p.stages {
		next, ok := s.Process(cur)
		if !ok {
			return event.Event{}, false
		}
		cur = next
	}
	return cur, true
}
