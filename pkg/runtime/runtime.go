// Package runtime implements the run orchestrator (spec §4.9): it
// resolves a backend, runs the pre-admission pipeline, negotiates
// capabilities, and fans a backend's event stream out through an
// optional StreamPipeline to the caller, with bounded, backpressured
// channels and run-tracker bookkeeping.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/backend"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/bperr"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/capability"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/event"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/pipeline"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/receipt"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/runtracker"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/telemetry"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/workorder"
)

// DefaultBufferSize is the default capacity of the producer and
// consumer channels (spec §4.9, §5).
const DefaultBufferSize = 128

// Options configures a Runtime.
type Options struct {
	BufferSize  int
	RunTimeout  time.Duration
	Telemetry   *telemetry.Provider
	Logger      *slog.Logger
	StreamStage *pipeline.StreamPipeline // optional; applied to every run
}

// Runtime orchestrates runs against a backend registry.
type Runtime struct {
	registry   *backend.Registry
	admission  *pipeline.AdmissionPipeline
	tracker    *runtracker.Tracker
	bufferSize int
	runTimeout time.Duration
	telemetry  *telemetry.Provider
	logger     *slog.Logger
	stream     *pipeline.StreamPipeline

	mu         sync.Mutex
	active     map[string]context.CancelFunc
	shutdown   bool
}

// New builds a Runtime. admission may be nil, meaning no pre-admission
// stages run.
func New(registry *backend.Registry, admission *pipeline.AdmissionPipeline, opts Options) *Runtime {
	if admission == nil {
		admission = pipeline.NewAdmissionPipeline()
	}
	bufSize := opts.BufferSize
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		registry:   registry,
		admission:  admission,
		tracker:    runtracker.NewTracker(),
		bufferSize: bufSize,
		runTimeout: opts.RunTimeout,
		telemetry:  opts.Telemetry,
		logger:     logger,
		stream:     opts.StreamStage,
		active:     make(map[string]context.CancelFunc),
	}
}

// Tracker exposes the runtime's run tracker for status queries.
func (rt *Runtime) Tracker() *runtracker.Tracker { return rt.tracker }

// ActiveRunCount returns the number of runs currently in flight. A
// hypothetical daemon surface uses this for readiness/drain probes
// (original_source abp-daemon queue.rs exposes the same count).
func (rt *Runtime) ActiveRunCount() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.active)
}

// Shutdown stops accepting new runs and cancels every in-flight run,
// then blocks until ctx is done or all runs have been cancelled.
// Calling RunStreaming after Shutdown returns an error.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	rt.mu.Lock()
	rt.shutdown = true
	cancels := make([]context.CancelFunc, 0, len(rt.active))
	for _, cancel := range rt.active {
		cancels = append(cancels, cancel)
	}
	rt.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}

	for {
		if rt.ActiveRunCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (rt *Runtime) registerActive(runID string, cancel context.CancelFunc) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.active[runID] = cancel
}

func (rt *Runtime) unregisterActive(runID string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	delete(rt.active, runID)
}

// RunHandle is the caller-facing view of an in-flight run (spec
// §4.9): a stream of events and a receipt that resolves after the
// event stream has fully drained.
type RunHandle struct {
	RunID  string
	Events <-chan event.Event

	receiptOnce sync.Once
	receiptVal  receipt.Receipt
	receiptErr  error
	receiptCh   chan result

	cancel context.CancelFunc
}

type result struct {
	r   receipt.Receipt
	err error
}

// Receipt blocks until the run's terminal receipt is available. It is
// safe to call more than once; the result is cached after the first
// call (spec §5: "the receipt future always resolves after the event
// stream has terminated").
func (h *RunHandle) Receipt() (receipt.Receipt, error) {
	h.receiptOnce.Do(func() {
		res := <-h.receiptCh
		h.receiptVal, h.receiptErr = res.r, res.err
	})
	return h.receiptVal, h.receiptErr
}

// Cancel triggers the run's cancel token. For sidecar backends this
// flows into the transport's best-effort cancel/grace/kill sequence;
// for in-process backends the token is polled cooperatively.
func (h *RunHandle) Cancel() {
	h.cancel()
}

// RunStreaming resolves backendName, admits wo through the
// pre-admission pipeline, negotiates capabilities, and starts the run,
// returning a RunHandle immediately (spec §4.9).
func (rt *Runtime) RunStreaming(ctx context.Context, backendName string, wo workorder.WorkOrder) (*RunHandle, error) {
	rt.mu.Lock()
	shutdown := rt.shutdown
	rt.mu.Unlock()
	if shutdown {
		return nil, bperr.New(bperr.CodeInternal, "runtime: shutting down, no new runs accepted")
	}

	b, err := rt.registry.Get(backendName)
	if err != nil {
		return nil, err
	}

	if err := rt.admission.Run(ctx, &wo); err != nil {
		return nil, err
	}

	negotiation := capability.Negotiate(wo.Requirements, b.Capabilities(), wo.Policy.StrictCapabilities)
	if !negotiation.Compatible {
		return nil, bperr.Newf(bperr.CodeCapabilityUnsupported, "runtime: unsatisfied capability requirements %v", negotiation.Unsatisfied())
	}

	runID := wo.ID
	if runID == "" {
		runID = uuid.NewString()
	}
	if err := rt.tracker.StartRun(runID); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	if rt.runTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, rt.runTimeout)
	}

	producer := make(chan event.Event, rt.bufferSize)
	consumer := make(chan event.Event, rt.bufferSize)
	receiptCh := make(chan result, 1)

	var telemetryDone func(error)
	if rt.telemetry != nil {
		runCtx, telemetryDone = rt.telemetry.StartRun(runCtx, backendName, runID)
	}

	rt.registerActive(runID, cancel)

	forwardDone := make(chan struct{})
	go func() {
		rt.forward(producer, consumer)
		close(forwardDone)
	}()
	driveCh := make(chan result, 1)
	go rt.drive(runCtx, b, runID, wo, producer, driveCh, telemetryDone)
	go func() {
		res := <-driveCh
		<-forwardDone
		receiptCh <- res
	}()

	return &RunHandle{
		RunID:     runID,
		Events:    consumer,
		receiptCh: receiptCh,
		cancel:    cancel,
	}, nil
}

// forward drains producer, applying the configured StreamPipeline if
// any, and writes surviving events to consumer. It terminates when
// producer closes.
func (rt *Runtime) forward(producer <-chan event.Event, consumer chan<- event.Event) {
	defer close(consumer)
	for ev := range producer {
		out := ev
		keep := true
		if rt.stream != nil {
			out, keep = rt.stream.Process(ev)
		}
		if keep {
			consumer <- out
		}
	}
}

// drive runs the backend to completion, ensuring producer is always
// closed and the receipt is always delivered exactly once, even on
// panic-free early return paths.
func (rt *Runtime) drive(ctx context.Context, b backend.Backend, runID string, wo workorder.WorkOrder, producer chan event.Event, receiptCh chan<- result, telemetryDone func(error)) {
	defer close(producer)
	defer rt.unregisterActive(runID)

	r, err := b.Run(ctx, runID, wo, producer)

	if err != nil {
		_ = rt.tracker.FailRun(runID, err.Error())
	} else if ctx.Err() != nil {
		_ = rt.tracker.CancelRun(runID)
	} else {
		_ = rt.tracker.CompleteRun(runID, r)
	}

	if telemetryDone != nil {
		telemetryDone(err)
	}

	receiptCh <- result{r: r, err: err}
}
