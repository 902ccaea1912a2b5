// Package runtracker implements the per-run status tracker (spec
// §4.10): an atomic map from run ID to terminal/non-terminal status.
package runtracker

import (
	"sort"
	"sync"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/bperr"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/receipt"
)

// StatusKind discriminates a run's lifecycle stage.
type StatusKind string

const (
	StatusRunning   StatusKind = "running"
	StatusCompleted StatusKind = "completed"
	StatusFailed    StatusKind = "failed"
	StatusCancelled StatusKind = "cancelled"
)

// Status is the current state of one tracked run.
type Status struct {
	Kind    StatusKind
	Receipt *receipt.Receipt // set iff Kind == StatusCompleted
	Error   string           // set iff Kind == StatusFailed
}

func (s Status) terminal() bool {
	return s.Kind == StatusCompleted || s.Kind == StatusFailed || s.Kind == StatusCancelled
}

// Tracker is a mutex-protected, in-memory run status map. All
// operations are atomic with respect to one another (spec §4.10, §5).
type Tracker struct {
	mu   sync.Mutex
	runs map[string]Status
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{runs: make(map[string]Status)}
}

// StartRun registers id as Running. A duplicate id fails with
// backend.AlreadyExists-equivalent (reported as CodeInternal since the
// taxonomy has no dedicated code; callers should treat any error here
// as non-retryable).
func (t *Tracker) StartRun(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.runs[id]; exists {
		return bperr.Newf(bperr.CodeInternal, "runtracker: run %q already exists", id)
	}
	t.runs[id] = Status{Kind: StatusRunning}
	return nil
}

// CompleteRun marks id Completed with r. Completing an unknown or
// already-terminal run fails.
func (t *Tracker) CompleteRun(id string, r receipt.Receipt) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.runs[id]
	if !ok {
		return bperr.Newf(bperr.CodeInternal, "runtracker: run %q not found", id)
	}
	if cur.terminal() {
		return bperr.Newf(bperr.CodeInternal, "runtracker: run %q already terminal", id)
	}
	t.runs[id] = Status{Kind: StatusCompleted, Receipt: &r}
	return nil
}

// FailRun marks id Failed with msg. Failing an unknown or
// already-terminal run fails.
func (t *Tracker) FailRun(id string, msg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.runs[id]
	if !ok {
		return bperr.Newf(bperr.CodeInternal, "runtracker: run %q not found", id)
	}
	if cur.terminal() {
		return bperr.Newf(bperr.CodeInternal, "runtracker: run %q already terminal", id)
	}
	t.runs[id] = Status{Kind: StatusFailed, Error: msg}
	return nil
}

// CancelRun marks id Cancelled. Cancelling an unknown or
// already-terminal run fails.
func (t *Tracker) CancelRun(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.runs[id]
	if !ok {
		return bperr.Newf(bperr.CodeInternal, "runtracker: run %q not found", id)
	}
	if cur.terminal() {
		return bperr.Newf(bperr.CodeInternal, "runtracker: run %q already terminal", id)
	}
	t.runs[id] = Status{Kind: StatusCancelled}
	return nil
}

// GetRunStatus returns the status of id, if tracked.
func (t *Tracker) GetRunStatus(id string) (Status, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.runs[id]
	return s, ok
}

// RunEntry pairs a run ID with its status, as returned by ListRuns.
type RunEntry struct {
	ID     string
	Status Status
}

// ListRuns returns all tracked runs sorted by ID.
func (t *Tracker) ListRuns() []RunEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	entries := make([]RunEntry, 0, len(t.runs))
	for id, s := range t.runs {
		entries = append(entries, RunEntry{ID: id, Status: s})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries
}
