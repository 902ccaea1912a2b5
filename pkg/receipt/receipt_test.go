package receipt_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/event"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/receipt"
)

func sampleReceipt(t *testing.T) receipt.Receipt {
	t.Helper()
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	finished := started.Add(2 * time.Second)
	r := receipt.NewBuilder("mock").
		WithRunID("run-1").
		WithWorkOrderID("wo-1").
		WithTiming(started, finished).
		WithTrace([]event.Event{event.Simple(started, event.KindRunStarted)}).
		Build()
	return r
}

func TestWithHash_Idempotent(t *testing.T) {
	r := sampleReceipt(t)
	hashed, err := receipt.WithHash(r)
	require.NoError(t, err)
	require.NotNil(t, hashed.ReceiptSHA256)

	rehashed, err := receipt.WithHash(hashed)
	require.NoError(t, err)
	assert.Equal(t, *hashed.ReceiptSHA256, *rehashed.ReceiptSHA256)
}

func TestVerifyHash_DetectsTamper(t *testing.T) {
	r := sampleReceipt(t)
	hashed, err := receipt.WithHash(r)
	require.NoError(t, err)

	tampered := hashed
	tampered.Outcome = receipt.OutcomeFailed

	err = receipt.VerifyHash(tampered)
	assert.Error(t, err)
}

func TestVerifyHash_MissingHash(t *testing.T) {
	r := sampleReceipt(t)
	err := receipt.VerifyHash(r)
	assert.Error(t, err)
}

func TestEqual_SameValueDifferentInstance(t *testing.T) {
	a, err := receipt.WithHash(sampleReceipt(t))
	require.NoError(t, err)
	b, err := receipt.WithHash(sampleReceipt(t))
	require.NoError(t, err)

	eq, err := receipt.Equal(a, b)
	require.NoError(t, err)
	assert.True(t, eq)
	assert.Equal(t, *a.ReceiptSHA256, *b.ReceiptSHA256)
}

func TestBuild_DurationAndContractVersion(t *testing.T) {
	r := sampleReceipt(t)
	assert.Equal(t, int64(2000), r.Meta.DurationMs)
	assert.Equal(t, "abp/v0.1", r.Meta.ContractVersion)
	assert.True(t, r.Meta.StartedAt.Before(r.Meta.FinishedAt) || r.Meta.StartedAt.Equal(r.Meta.FinishedAt))
}

func TestChain_PushRequiresHash(t *testing.T) {
	c := receipt.NewChain(receipt.Strict)
	err := c.Push(sampleReceipt(t))
	assert.Error(t, err)
}

func TestChain_OutOfOrderRejectedInStrictMode(t *testing.T) {
	c := receipt.NewChain(receipt.Strict)

	t1 := time.Date(2026, 1, 1, 0, 0, 10, 0, time.UTC)
	r1 := receipt.NewBuilder("mock").WithTiming(t1.Add(-5*time.Second), t1).Build()
	r1h, err := receipt.WithHash(r1)
	require.NoError(t, err)
	require.NoError(t, c.Push(r1h))

	r2 := receipt.NewBuilder("mock").WithTiming(t1.Add(-1*time.Second), t1.Add(1*time.Second)).Build()
	r2h, err := receipt.WithHash(r2)
	require.NoError(t, err)

	err = c.Push(r2h)
	var ooe *receipt.OutOfOrderError
	assert.ErrorAs(t, err, &ooe)
}

func TestChain_PermissiveAllowsOverlap(t *testing.T) {
	c := receipt.NewChain(receipt.Permissive)

	t1 := time.Date(2026, 1, 1, 0, 0, 10, 0, time.UTC)
	r1, err := receipt.WithHash(receipt.NewBuilder("mock").WithTiming(t1.Add(-5*time.Second), t1).Build())
	require.NoError(t, err)
	require.NoError(t, c.Push(r1))

	r2, err := receipt.WithHash(receipt.NewBuilder("mock").WithTiming(t1.Add(-1*time.Second), t1.Add(1*time.Second)).Build())
	require.NoError(t, err)
	assert.NoError(t, c.Push(r2))
}

func TestDiff_DetectsOutcomeChange(t *testing.T) {
	a := sampleReceipt(t)
	b := a
	b.Outcome = receipt.OutcomeFailed

	diffs := receipt.Diff(a, b)
	require.Len(t, diffs, 1)
	assert.Equal(t, "outcome", diffs[0].Path)
}

func TestDiff_NoDifferencesForEqualReceipts(t *testing.T) {
	a := sampleReceipt(t)
	assert.Empty(t, receipt.Diff(a, a))
}
