package backend

import (
	"context"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/bperr"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/capability"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/event"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/receipt"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/sidecar"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/workorder"
)

// SidecarBackend drives an out-of-process child via a sidecar.Client,
// negotiating capability requirements against the work order and
// forwarding the demultiplexed event stream (spec §4.8).
type SidecarBackend struct {
	spec   sidecar.Spec
	client *sidecar.Client
}

// NewSidecarBackend connects to spec, performing the handshake
// immediately so Identity/Capabilities are available before Run.
func NewSidecarBackend(ctx context.Context, spec sidecar.Spec) (*SidecarBackend, error) {
	c, err := sidecar.NewClient(ctx, spec, sidecar.ClientOptions{})
	if err != nil {
		return nil, err
	}
	return &SidecarBackend{spec: spec, client: c}, nil
}

func (s *SidecarBackend) Identity() receipt.BackendIdentity {
	return s.client.Backend
}

func (s *SidecarBackend) Capabilities() capability.Manifest {
	return s.client.Capabilities
}

func (s *SidecarBackend) Run(ctx context.Context, runID string, wo workorder.WorkOrder, eventsOut chan<- event.Event) (receipt.Receipt, error) {
	result := capability.Negotiate(wo.Requirements, s.client.Capabilities, wo.Policy.StrictCapabilities)
	if !result.Compatible {
		return receipt.Receipt{}, bperr.Newf(bperr.CodeCapabilityUnsupported, "sidecar backend: unsatisfied requirements %v", result.Unsatisfied())
	}

	run, err := s.client.Run(ctx, runID, wo)
	if err != nil {
		return receipt.Receipt{}, err
	}

	for ev := range run.Events {
		select {
		case eventsOut <- ev:
		case <-ctx.Done():
			s.client.Cancel(runID, "context cancelled")
		}
	}

	return run.Receipt()
}

// Close releases the underlying child process.
func (s *SidecarBackend) Close() error {
	return s.client.Close()
}
