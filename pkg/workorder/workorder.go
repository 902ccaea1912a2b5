// Package workorder defines WorkOrder, the immutable input to a run
// (spec §3).
package workorder

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/capability"
)

// WorkspaceMode selects how a run's files are made available.
type WorkspaceMode string

const (
	WorkspacePassThrough WorkspaceMode = "pass-through"
	WorkspaceStaged      WorkspaceMode = "staged"
)

// Workspace describes the file tree a run may touch. Staging and glob
// evaluation are external collaborators (spec §1); this is the
// declarative request passed to them.
type Workspace struct {
	RootPath     string        `json:"root_path"`
	Mode         WorkspaceMode `json:"mode"`
	IncludeGlobs []string      `json:"include_globs,omitempty"`
	ExcludeGlobs []string      `json:"exclude_globs,omitempty"`
}

// ContextMessage is one prior message carried into a run's context packet.
type ContextMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ContextPacket carries prior conversation state and reference snippets.
type ContextPacket struct {
	Snippets []string          `json:"snippets,omitempty"`
	Messages []ContextMessage  `json:"messages,omitempty"`
}

// PolicyProfile is the allow/deny list handed to the (external) policy
// collaborator; the core treats it as an opaque declaration.
type PolicyProfile struct {
	AllowTools []string `json:"allow_tools,omitempty"`
	DenyTools  []string `json:"deny_tools,omitempty"`
	AllowPaths []string `json:"allow_paths,omitempty"`
	DenyPaths  []string `json:"deny_paths,omitempty"`

	// StrictCapabilities selects strict negotiation mode (spec §4.3):
	// an Emulated advertisement never satisfies a Native requirement.
	StrictCapabilities bool `json:"strict_capabilities,omitempty"`
}

// RuntimeConfig is the per-run vendor-agnostic execution configuration.
type RuntimeConfig struct {
	Vendor       map[string]json.RawMessage `json:"vendor,omitempty"`
	Model        string                     `json:"model,omitempty"`
	MaxTurns     *int                       `json:"max_turns,omitempty"`
	MaxBudgetUSD *float64                   `json:"max_budget_usd,omitempty"`
}

// WorkOrder is the immutable, once-consumed input to a single run.
type WorkOrder struct {
	ID           string                      `json:"id"`
	Task         string                      `json:"task"`
	Lane         string                      `json:"lane"`
	Workspace    Workspace                   `json:"workspace"`
	Context      ContextPacket               `json:"context"`
	Policy       PolicyProfile               `json:"policy"`
	Requirements []capability.Requirement    `json:"requirements"`
	Config       RuntimeConfig               `json:"config"`
}

// Builder constructs a WorkOrder, assigning a UUID v4 ID if none is set.
type Builder struct {
	wo WorkOrder
}

// NewBuilder starts a Builder for the given task string.
func NewBuilder(task string) *Builder {
	return &Builder{wo: WorkOrder{Task: task}}
}

func (b *Builder) WithID(id string) *Builder {
	b.wo.ID = id
	return b
}

func (b *Builder) WithLane(lane string) *Builder {
	b.wo.Lane = lane
	return b
}

func (b *Builder) WithWorkspace(w Workspace) *Builder {
	b.wo.Workspace = w
	return b
}

func (b *Builder) WithContext(c ContextPacket) *Builder {
	b.wo.Context = c
	return b
}

func (b *Builder) WithPolicy(p PolicyProfile) *Builder {
	b.wo.Policy = p
	return b
}

func (b *Builder) WithRequirements(reqs []capability.Requirement) *Builder {
	b.wo.Requirements = reqs
	return b
}

func (b *Builder) WithConfig(c RuntimeConfig) *Builder {
	b.wo.Config = c
	return b
}

// Build finalizes the WorkOrder, generating a UUID v4 ID if one was
// not explicitly set.
func (b *Builder) Build() WorkOrder {
	wo := b.wo
	if wo.ID == "" {
		wo.ID = uuid.NewString()
	}
	return wo
}

// VendorMode resolves the open question in spec §9(a): abp.mode may
// appear either nested (config.vendor["abp"]["mode"]) or as a flat
// dotted key (config.vendor["abp.mode"]); the core accepts both,
// preferring the nested form.
func (wo WorkOrder) VendorMode() (string, bool) {
	if raw, ok := wo.Config.Vendor["abp"]; ok {
		var nested struct {
			Mode string `json:"mode"`
		}
		if err := json.Unmarshal(raw, &nested); err == nil && nested.Mode != "" {
			return nested.Mode, true
		}
	}
	if raw, ok := wo.Config.Vendor["abp.mode"]; ok {
		var flat string
		if err := json.Unmarshal(raw, &flat); err == nil && flat != "" {
			return flat, true
		}
	}
	return "", false
}
