// Package pipeline implements the pre-admission work order pipeline
// and the in-flight event stream pipeline (spec §4.9, collaborator
// surface in §6).
package pipeline

import (
	"context"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/bperr"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/workorder"
)

// Stage inspects or mutates a work order before a run is admitted.
// Implementations must not retain wo beyond the call; the orchestrator
// owns the value.
type Stage interface {
	Name() string
	Process(ctx context.Context, wo *workorder.WorkOrder) error
}

// AdmissionPipeline runs stages in order; the first error aborts the
// remaining stages and is wrapped with the failing stage's name
// (spec §4.9: PipelineFailed(stage_name, cause)).
type AdmissionPipeline struct {
	stages []Stage
}

// NewAdmissionPipeline builds a pipeline running stages in the given order.
func NewAdmissionPipeline(stages ...Stage) *AdmissionPipeline {
	return &AdmissionPipeline{stages: stages}
}

// Run executes every stage against wo, stopping at the first failure.
func (p *AdmissionPipeline) Run(ctx context.Context, wo *workorder.WorkOrder) error {
	for _, s := range p.stages {
		if err := s.Process(ctx, wo); err != nil {
			return bperr.Wrap(bperr.CodeInternal, "pipeline: stage "+s.Name()+" failed", err)
		}
	}
	return nil
}

// StageFunc adapts a plain function to the Stage interface.
type StageFunc struct {
	StageName string
	Fn        func(ctx context.Context, wo *workorder.WorkOrder) error
}

func (f StageFunc) Name() string { return f.StageName }

func (f StageFunc) Process(ctx context.Context, wo *workorder.WorkOrder) error {
	return f.Fn(ctx, wo)
}
