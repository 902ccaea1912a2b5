package receipt

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/bperr"
)

// OrderMode controls how strictly a Chain enforces linkage ordering.
type OrderMode int

const (
	// Strict requires each receipt's started_at to be >= the previous
	// receipt's finished_at.
	Strict OrderMode = iota
	// Permissive allows overlapping runs; only hash/unhashed checks apply.
	Permissive
)

// Chain is an ordered, append-only sequence of hashed receipts.
type Chain struct {
	mode OrderMode

	mu       sync.Mutex
	receipts []Receipt
}

// NewChain creates an empty Chain with the given ordering mode.
func NewChain(mode OrderMode) *Chain {
	return &Chain{mode: mode}
}

// Push appends r to the chain. It fails if r is unhashed
// (CodeReceiptChainBroken with an Unhashed-style message), if the hash
// does not verify (tamper detected), or — in Strict mode — if r's
// started_at precedes the previous receipt's finished_at.
func (c *Chain) Push(r Receipt) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r.ReceiptSHA256 == nil {
		return bperr.New(bperr.CodeReceiptChainBroken, "receipt chain: cannot push an unhashed receipt")
	}
	if err := VerifyHash(r); err != nil {
		return bperr.Wrap(bperr.CodeReceiptChainBroken, "receipt chain: tamper detected", err)
	}

	if c.mode == Strict && len(c.receipts) > 0 {
		prev := c.receipts[len(c.receipts)-1]
		if r.Meta.StartedAt.Before(prev.Meta.FinishedAt) {
			return &OutOfOrderError{
				PreviousFinishedAt: prev.Meta.FinishedAt,
				NextStartedAt:      r.Meta.StartedAt,
			}
		}
	}

	c.receipts = append(c.receipts, r)
	return nil
}

// Len returns the number of receipts currently in the chain.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.receipts)
}

// Receipts returns a copy of the chain's receipts in push order.
func (c *Chain) Receipts() []Receipt {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Receipt, len(c.receipts))
	copy(out, c.receipts)
	return out
}

// OutOfOrderError reports a Strict-mode linkage violation.
type OutOfOrderError struct {
	PreviousFinishedAt time.Time
	NextStartedAt      time.Time
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("receipt chain: out of order push (previous_finished_at=%s, next_started_at=%s)",
		e.PreviousFinishedAt.Format(time.RFC3339Nano), e.NextStartedAt.Format(time.RFC3339Nano))
}

// FieldDiff describes one differing field between two receipts.
type FieldDiff struct {
	Path string
	A    any
	B    any
}

// Diff returns the list of top-level fields that differ between a and
// b. It compares by JSON-relevant value, not by pointer identity; the
// ReceiptSHA256 field is compared by dereferenced value, so equal
// hashes behind different pointers do not differ; a nil hash compares
// as the empty string and so differs from any computed hash.
func Diff(a, b Receipt) []FieldDiff {
	var diffs []FieldDiff

	cmp := func(path string, av, bv any) {
		if !reflect.DeepEqual(av, bv) {
			diffs = append(diffs, FieldDiff{Path: path, A: av, B: bv})
		}
	}

	cmp("meta", a.Meta, b.Meta)
	cmp("backend", a.Backend, b.Backend)
	cmp("capabilities", a.Capabilities, b.Capabilities)
	cmp("mode", a.Mode, b.Mode)
	cmp("usage_raw", a.UsageRaw, b.UsageRaw)
	cmp("usage", a.Usage, b.Usage)
	cmp("trace", a.Trace, b.Trace)
	cmp("artifacts", a.Artifacts, b.Artifacts)
	cmp("verification", a.Verification, b.Verification)
	cmp("outcome", a.Outcome, b.Outcome)

	var ah, bh string
	if a.ReceiptSHA256 != nil {
		ah = *a.ReceiptSHA256
	}
	if b.ReceiptSHA256 != nil {
		bh = *b.ReceiptSHA256
	}
	cmp("receipt_sha256", ah, bh)

	return diffs
}
