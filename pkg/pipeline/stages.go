package pipeline

import (
	"context"
	"log/slog"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/bperr"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/workorder"
)

// ValidationStage rejects work orders failing basic structural checks
// that the orchestrator should catch before a backend is ever touched.
type ValidationStage struct{}

func (ValidationStage) Name() string { return "validation" }

func (ValidationStage) Process(ctx context.Context, wo *workorder.WorkOrder) error {
	if wo.Task == "" {
		return bperr.New(bperr.CodeConfigInvalid, "pipeline: work order task must be non-empty")
	}
	if wo.Workspace.Mode != "" &&
		wo.Workspace.Mode != workorder.WorkspacePassThrough &&
		wo.Workspace.Mode != workorder.WorkspaceStaged {
		return bperr.Newf(bperr.CodeConfigInvalid, "pipeline: unknown workspace mode %q", wo.Workspace.Mode)
	}
	return nil
}

// PolicyEngine is the external collaborator consumed by PolicyStage
// (spec §6): a predicate triple over tool and path access.
type PolicyEngine interface {
	CanUseTool(name string) (allowed bool, reason string)
	CanReadPath(path string) (allowed bool, reason string)
	CanWritePath(path string) (allowed bool, reason string)
}

// AllowAllPolicy is a permissive PolicyEngine used when no policy is
// configured; every predicate returns allowed.
type AllowAllPolicy struct{}

func (AllowAllPolicy) CanUseTool(string) (bool, string)   { return true, "" }
func (AllowAllPolicy) CanReadPath(string) (bool, string)  { return true, "" }
func (AllowAllPolicy) CanWritePath(string) (bool, string) { return true, "" }

// PolicyStage checks wo.Policy's deny lists through a PolicyEngine
// collaborator: each DenyTools entry is passed to CanUseTool and each
// DenyPaths entry to CanReadPath, and the first one the engine refuses
// rejects the work order. AllowTools and AllowPaths are not consulted.
// A nil Engine admits every work order.
type PolicyStage struct {
	Engine PolicyEngine
}

func (PolicyStage) Name() string { return "policy" }

func (s PolicyStage) Process(ctx context.Context, wo *workorder.WorkOrder) error {
	engine := s.Engine
	if engine == nil {
		engine = AllowAllPolicy{}
	}
	for _, tool := range wo.Policy.DenyTools {
		if allowed, reason := engine.CanUseTool(tool); !allowed {
			return bperr.Newf(bperr.CodePolicyDenied, "pipeline: tool %q denied: %s", tool, reason)
		}
	}
	for _, path := range wo.Policy.DenyPaths {
		if allowed, reason := engine.CanReadPath(path); !allowed {
			return bperr.Newf(bperr.CodePolicyDenied, "pipeline: path %q denied: %s", path, reason)
		}
	}
	return nil
}

// AuditStage logs admission of a work order via a structured logger.
// It never rejects a run; audit failures are logged, not propagated,
// since audit is observability, not authorization.
type AuditStage struct {
	Logger *slog.Logger
}

func (AuditStage) Name() string { return "audit" }

func (s AuditStage) Process(ctx context.Context, wo *workorder.WorkOrder) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "work order admitted", "work_order_id", wo.ID, "lane", wo.Lane, "task", wo.Task)
	return nil
}
