// Package receipt implements the deterministic, self-hashed run
// record (spec §3, §4.2) and its ordered chain linkage invariant.
package receipt

import (
	"time"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/bperr"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/canon"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/capability"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/contractver"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/event"
)

// BackendIdentity identifies the backend that produced a receipt.
type BackendIdentity struct {
	ID             string `json:"id"`
	BackendVersion string `json:"backend_version,omitempty"`
	AdapterVersion string `json:"adapter_version,omitempty"`
}

// ExecutionMode records whether the backend ran natively or under
// emulation for at least one negotiated capability.
type ExecutionMode string

const (
	ModeNative   ExecutionMode = "native"
	ModeMapped   ExecutionMode = "mapped"
	ModeEmulated ExecutionMode = "emulated"
)

// UsageNormalized is the vendor-agnostic token/cost accounting derived
// from a backend's raw usage payload.
type UsageNormalized struct {
	InputTokens  int64    `json:"input_tokens"`
	OutputTokens int64    `json:"output_tokens"`
	TotalTokens  int64    `json:"total_tokens"`
	CostUSD      *float64 `json:"cost_usd,omitempty"`
}

// ArtifactRef points at a stored run artifact (file, diff, blob) by
// content digest; the store itself is an external collaborator.
type ArtifactRef struct {
	SchemaID    string `json:"schema_id"`
	ContentType string `json:"content_type"`
	Digest      string `json:"digest"`
	Preview     string `json:"preview,omitempty"`
}

// VerificationReport summarizes any post-run verification performed
// (e.g. test execution, lint, policy replay). The verification logic
// itself is an external collaborator; the receipt only records the
// outcome.
type VerificationReport struct {
	Performed bool              `json:"performed"`
	Passed    bool              `json:"passed"`
	Details   map[string]string `json:"details,omitempty"`
}

// Outcome is the terminal state of a run.
type Outcome string

const (
	OutcomeComplete     Outcome = "complete"
	OutcomeFailed       Outcome = "failed"
	OutcomeCancelled    Outcome = "cancelled"
	OutcomeTimedOut     Outcome = "timed_out"
	OutcomePolicyDenied Outcome = "policy_denied"
)

// Meta carries the identifying and timing fields of a run.
type Meta struct {
	RunID          string    `json:"run_id"`
	WorkOrderID    string    `json:"work_order_id"`
	ContractVersion string   `json:"contract_version"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	DurationMs     int64     `json:"duration_ms"`
}

// Receipt is the immutable, self-hashed summary of a run.
type Receipt struct {
	Meta          Meta                   `json:"meta"`
	Backend       BackendIdentity        `json:"backend"`
	Capabilities  capability.Manifest    `json:"capabilities"`
	Mode          ExecutionMode          `json:"mode"`
	UsageRaw      map[string]any         `json:"usage_raw,omitempty"`
	Usage         UsageNormalized        `json:"usage"`
	Trace         []event.Event          `json:"trace"`
	Artifacts     []ArtifactRef          `json:"artifacts,omitempty"`
	Verification  VerificationReport     `json:"verification"`
	Outcome       Outcome                `json:"outcome"`
	ReceiptSHA256 *string                `json:"receipt_sha256,omitempty"`
}

// withHashCleared returns a shallow copy of r with ReceiptSHA256 set
// to nil, the form hashed as the preimage (spec §3: "self-reference
// exclusion").
func (r Receipt) withHashCleared() Receipt {
	r.ReceiptSHA256 = nil
	return r
}

// ComputeHash returns the SHA-256 hex digest of the canonical JSON of
// r with its own hash field cleared. It does not mutate r or set the
// field; call WithHash to do both.
func ComputeHash(r Receipt) (string, error) {
	cleared := r.withHashCleared()
	h, err := canon.Hash(cleared)
	if err != nil {
		return "", bperr.Wrap(bperr.CodeInternal, "receipt: hash computation failed", err)
	}
	return h, nil
}

// WithHash clears any existing hash, computes the canonical hash, and
// returns a copy of r with ReceiptSHA256 set to the computed value.
// Idempotent: calling WithHash on its own output yields the same hash.
func WithHash(r Receipt) (Receipt, error) {
	h, err := ComputeHash(r)
	if err != nil {
		return Receipt{}, err
	}
	r.ReceiptSHA256 = &h
	return r, nil
}

// VerifyHash recomputes the hash of r (with its stored hash cleared)
// and compares it against r.ReceiptSHA256.
func VerifyHash(r Receipt) error {
	if r.ReceiptSHA256 == nil {
		return bperr.New(bperr.CodeReceiptHashMismatch, "receipt: no hash present to verify")
	}
	computed, err := ComputeHash(r)
	if err != nil {
		return err
	}
	if computed != *r.ReceiptSHA256 {
		return bperr.Newf(bperr.CodeReceiptHashMismatch, "receipt: hash mismatch (stored=%s computed=%s)", *r.ReceiptSHA256, computed)
	}
	return nil
}

// Equal reports whether a and b are value-equal by comparing their
// canonical hashes (spec §4.2: "equal receipts by value iff their
// hashes are equal").
func Equal(a, b Receipt) (bool, error) {
	ha, err := ComputeHash(a)
	if err != nil {
		return false, err
	}
	hb, err := ComputeHash(b)
	if err != nil {
		return false, err
	}
	return ha == hb, nil
}

// Builder accumulates receipt fields, defaulting unspecified ones
// when Build is called (spec §4.2).
type Builder struct {
	r Receipt
}

// NewBuilder starts a Builder for a receipt produced by backendID.
func NewBuilder(backendID string) *Builder {
	return &Builder{
		r: Receipt{
			Backend: BackendIdentity{ID: backendID},
			Outcome: OutcomeComplete,
		},
	}
}

func (b *Builder) WithRunID(id string) *Builder {
	b.r.Meta.RunID = id
	return b
}

func (b *Builder) WithWorkOrderID(id string) *Builder {
	b.r.Meta.WorkOrderID = id
	return b
}

func (b *Builder) WithTiming(started, finished time.Time) *Builder {
	b.r.Meta.StartedAt = started
	b.r.Meta.FinishedAt = finished
	return b
}

func (b *Builder) WithCapabilities(m capability.Manifest) *Builder {
	b.r.Capabilities = m
	return b
}

func (b *Builder) WithMode(m ExecutionMode) *Builder {
	b.r.Mode = m
	return b
}

func (b *Builder) WithUsage(raw map[string]any, normalized UsageNormalized) *Builder {
	b.r.UsageRaw = raw
	b.r.Usage = normalized
	return b
}

func (b *Builder) WithTrace(trace []event.Event) *Builder {
	b.r.Trace = trace
	return b
}

func (b *Builder) WithArtifacts(artifacts []ArtifactRef) *Builder {
	b.r.Artifacts = artifacts
	return b
}

func (b *Builder) WithVerification(v VerificationReport) *Builder {
	b.r.Verification = v
	return b
}

func (b *Builder) WithOutcome(o Outcome) *Builder {
	b.r.Outcome = o
	return b
}

// Build finalizes the receipt: unset timestamps default to now, the
// contract version is stamped with the process-wide current value,
// and duration is recomputed from the (possibly just-defaulted)
// timestamps.
func (b *Builder) Build() Receipt {
	r := b.r
	now := time.Now().UTC()
	if r.Meta.StartedAt.IsZero() {
		r.Meta.StartedAt = now
	}
	if r.Meta.FinishedAt.IsZero() {
		r.Meta.FinishedAt = now
	}
	if r.Meta.FinishedAt.Before(r.Meta.StartedAt) {
		r.Meta.FinishedAt = r.Meta.StartedAt
	}
	r.Meta.ContractVersion = contractver.Current
	r.Meta.DurationMs = r.Meta.FinishedAt.Sub(r.Meta.StartedAt).Milliseconds()
	return r
}
