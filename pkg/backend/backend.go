// Package backend defines the Backend abstraction (spec §4.8) and two
// implementations: an in-process MockBackend for tests and demos, and
// a SidecarBackend that drives an out-of-process child via pkg/sidecar.
package backend

import (
	"context"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/capability"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/event"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/receipt"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/workorder"
)

// Backend executes a work order, streaming events to eventsOut and
// returning the terminal receipt.
type Backend interface {
	Identity() receipt.BackendIdentity
	Capabilities() capability.Manifest
	Run(ctx context.Context, runID string, wo workorder.WorkOrder, eventsOut chan<- event.Event) (receipt.Receipt, error)
}
