package sidecar_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/event"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/receipt"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/sidecar"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/workorder"
)

// stallingBackendScript greets, then streams a run_started event every
// 100ms forever instead of ever sending final/fatal — it models a
// sidecar that is still working when the caller cancels, while waking
// up often enough for the client's pump loop to notice cancellation
// promptly instead of blocking in a single long read.
const stallingBackendScript = `
printf '{"t":"hello","contract_version":"abp/v0.1","backend":{"id":"stall"},"capabilities":{}}\n'
while IFS= read -r line; do
  case "$line" in
    *'"t":"run"'*)
      id=$(printf '%s' "$line" | sed -n 's/^{"id":"\([^"]*\)".*/\1/p')
      while true; do
        printf '{"t":"event","ref_id":"%s","event":{"timestamp":"2026-01-01T00:00:00Z","kind":"run_started"}}\n' "$id"
        sleep 0.1
      done
      ;;
  esac
done
`

// echoBackendScript behaves like a minimal, well-formed sidecar: it
// greets, then for every run frame it reads it streams one event and
// a fatal frame, and it answers every ping with a pong.
const echoBackendScript = `
printf '{"t":"hello","contract_version":"abp/v0.1","backend":{"id":"echo"},"capabilities":{}}\n'
while IFS= read -r line; do
  case "$line" in
    *'"t":"run"'*)
      id=$(printf '%s' "$line" | sed -n 's/^{"id":"\([^"]*\)".*/\1/p')
      printf '{"t":"event","ref_id":"%s","event":{"timestamp":"2026-01-01T00:00:00Z","kind":"run_started"}}\n' "$id"
      printf '{"t":"fatal","ref_id":"%s","error":"not implemented in test double"}\n' "$id"
      ;;
    *'"t":"ping"'*)
      printf '{"t":"pong","seq":1}\n'
      ;;
  esac
done
`

func TestClient_HandshakeSucceeds(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := sidecar.NewClient(ctx, sidecar.Spec{
		Command: "sh",
		Args:    []string{"-c", echoBackendScript},
	}, sidecar.ClientOptions{HandshakeTimeout: 2 * time.Second})
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, "echo", c.Backend.ID)
}

func TestClient_RunStreamsEventsThenFatal(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := sidecar.NewClient(ctx, sidecar.Spec{
		Command: "sh",
		Args:    []string{"-c", echoBackendScript},
	}, sidecar.ClientOptions{HandshakeTimeout: 2 * time.Second})
	require.NoError(t, err)
	defer c.Close()

	run, err := c.Run(ctx, "11111111-1111-1111-1111-111111111111", workorder.WorkOrder{})
	require.NoError(t, err)

	var gotEvent bool
	for ev := range run.Events {
		if ev.Kind == "run_started" {
			gotEvent = true
		}
	}
	assert.True(t, gotEvent)

	_, err = run.Receipt()
	assert.Error(t, err)
}

func TestClient_RunCancelledYieldsCancelledReceiptNotError(t *testing.T) {
	handshakeCtx, handshakeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer handshakeCancel()

	c, err := sidecar.NewClient(handshakeCtx, sidecar.Spec{
		Command: "sh",
		Args:    []string{"-c", stallingBackendScript},
	}, sidecar.ClientOptions{HandshakeTimeout: 2 * time.Second})
	require.NoError(t, err)
	defer c.Close()

	runCtx, runCancel := context.WithCancel(context.Background())
	run, err := c.Run(runCtx, "22222222-2222-2222-2222-222222222222", workorder.WorkOrder{})
	require.NoError(t, err)

	<-run.Events // wait for the first event the child emits
	runCancel()

	r, err := run.Receipt()
	require.NoError(t, err)
	assert.Equal(t, receipt.OutcomeCancelled, r.Outcome)
	require.NotEmpty(t, r.Trace)
	assert.Equal(t, event.KindCancelled, r.Trace[len(r.Trace)-1].Kind)
}

func TestClient_HandshakeTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := sidecar.NewClient(ctx, sidecar.Spec{
		Command: "sh",
		Args:    []string{"-c", "sleep 5"},
	}, sidecar.ClientOptions{HandshakeTimeout: 100 * time.Millisecond})
	assert.Error(t, err)
}
