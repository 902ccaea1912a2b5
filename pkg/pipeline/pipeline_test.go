package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/event"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/pipeline"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/workorder"
)

func TestAdmissionPipeline_RejectsEmptyTask(t *testing.T) {
	p := pipeline.NewAdmissionPipeline(pipeline.ValidationStage{})
	wo := workorder.WorkOrder{}
	err := p.Run(context.Background(), &wo)
	assert.Error(t, err)
}

func TestAdmissionPipeline_StopsAtFirstFailure(t *testing.T) {
	var ranSecond bool
	p := pipeline.NewAdmissionPipeline(
		pipeline.ValidationStage{},
		pipeline.StageFunc{StageName: "marker", Fn: func(ctx context.Context, wo *workorder.WorkOrder) error {
			ranSecond = true
			return nil
		}},
	)
	wo := workorder.WorkOrder{}
	require.Error(t, p.Run(context.Background(), &wo))
	assert.False(t, ranSecond)
}

func TestPolicyStage_DeniesListedTool(t *testing.T) {
	p := pipeline.PolicyStage{}
	wo := workorder.WorkOrder{Task: "t", Policy: workorder.PolicyProfile{DenyTools: []string{"shell"}}}
	engine := denyTool{tool: "shell"}
	p.Engine = engine
	err := p.Process(context.Background(), &wo)
	assert.Error(t, err)
}

type denyTool struct{ tool string }

func (d denyTool) CanUseTool(name string) (bool, string) {
	if name == d.tool {
		return false, "blocked in test"
	}
	return true, ""
}
func (d denyTool) CanReadPath(string) (bool, string)  { return true, "" }
func (d denyTool) CanWritePath(string) (bool, string) { return true, "" }

func TestEventFilter_IncludeExclude(t *testing.T) {
	f := pipeline.EventFilter{Include: []event.Kind{event.KindToolCall, event.KindError}}
	_, keep := f.Process(event.Simple(time.Now(), event.KindToolCall))
	assert.True(t, keep)
	_, keep = f.Process(event.Simple(time.Now(), event.KindAssistantMsg))
	assert.False(t, keep)
}

func TestEventRecorder_CountsByKind(t *testing.T) {
	r := pipeline.NewEventRecorder()
	r.Process(event.Simple(time.Now(), event.KindToolCall))
	r.Process(event.Simple(time.Now(), event.KindToolCall))
	r.Process(event.Simple(time.Now(), event.KindError))
	counts := r.Counts()
	assert.Equal(t, 2, counts[event.KindToolCall])
	assert.Equal(t, 1, counts[event.KindError])
}

func TestStreamPipeline_ComposesFilterAndTransform(t *testing.T) {
	filter := pipeline.EventFilter{Exclude: []event.Kind{event.KindUsageUpdate}}
	transform := pipeline.EventTransform{Fn: func(ev event.Event) event.Event {
		ev.Kind = event.Kind(string(ev.Kind) + "_tagged")
		return ev
	}}
	sp := pipeline.NewStreamPipeline(filter, transform)

	_, keep := sp.Process(event.Simple(time.Now(), event.KindUsageUpdate))
	assert.False(t, keep)

	out, keep := sp.Process(event.Simple(time.Now(), event.KindToolCall))
	require.True(t, keep)
	assert.Equal(t, event.Kind("tool_call_tagged"), out.Kind)
}
