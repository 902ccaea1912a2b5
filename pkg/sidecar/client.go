package sidecar

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/bperr"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/capability"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/contractver"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/event"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/receipt"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/wire"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/workorder"
)

// DefaultHandshakeTimeout is how long NewClient waits for the child's
// initial hello frame (spec §4.7).
const DefaultHandshakeTimeout = 30 * time.Second

// Client wraps a Transport with the handshake/run/cancel protocol a
// sidecar backend speaks (spec §4.7).
type Client struct {
	transport *Transport
	logger    *slog.Logger

	Backend      receipt.BackendIdentity
	Capabilities capability.Manifest

	mu        sync.Mutex
	readErr   error
	keepalive *KeepaliveLimiter
}

// ClientOptions configures NewClient.
type ClientOptions struct {
	HandshakeTimeout time.Duration
	Logger           *slog.Logger

	// KeepaliveLimiter bounds ping frame processing for this client's
	// backend identity; pong frames are not limited. Nil means unlimited.
	KeepaliveLimiter *KeepaliveLimiter
}

// NewClient spawns spec and performs the handshake, validating that
// the child's first frame is hello within HandshakeTimeout and that
// its contract version major matches contractver.Current.
func NewClient(ctx context.Context, spec Spec, opts ClientOptions) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}

	t, err := Spawn(ctx, spec, logger)
	if err != nil {
		return nil, err
	}

	type helloResult struct {
		env wire.Envelope
		err error
	}
	resCh := make(chan helloResult, 1)
	go func() {
		env, err := t.Recv()
		resCh <- helloResult{env, err}
	}()

	select {
	case res := <-resCh:
		if res.err != nil {
			if res.err == io.EOF {
				_ = t.Close()
				return nil, bperr.New(bperr.CodeProtocolUnexpectedMessage, "sidecar: closed before hello")
			}
			_ = t.Close()
			return nil, res.err
		}
		if res.env.Tag != wire.TagHello || res.env.Hello == nil {
			_ = t.Close()
			return nil, bperr.Newf(bperr.CodeProtocolUnexpectedMessage, "sidecar: expected hello, got %q", res.env.Tag)
		}
		if !contractver.IsCompatible(contractver.Current, res.env.Hello.ContractVersion) {
			_ = t.Close()
			return nil, bperr.Newf(bperr.CodeProtocolVersionMismatch, "sidecar: version mismatch, host %q child %q", contractver.Current, res.env.Hello.ContractVersion)
		}
		return &Client{
			transport:    t,
			logger:       logger,
			Backend:      res.env.Hello.Backend,
			Capabilities: res.env.Hello.Capabilities,
			keepalive:    opts.KeepaliveLimiter,
		}, nil
	case <-time.After(timeout):
		_ = t.Close()
		return nil, bperr.New(bperr.CodeBackendTimeout, "sidecar: handshake timeout")
	case <-ctx.Done():
		_ = t.Close()
		return nil, bperr.Wrap(bperr.CodeBackendTimeout, "sidecar: handshake cancelled", ctx.Err())
	}
}

// RawRun is the handle returned by Run: a channel of events for runID
// and a receipt that resolves once the sidecar emits final or fatal,
// or the stream ends without either.
type RawRun struct {
	Events  <-chan event.Event
	Receipt func() (receipt.Receipt, error)
}

// Run dispatches work order wo under runID and begins demultiplexing
// the child's stdout. Frames with a ref_id other than runID are
// dropped with a logged warning (spec §4.7).
func (c *Client) Run(ctx context.Context, runID string, wo workorder.WorkOrder) (RawRun, error) {
	env, err := wire.Of(wire.Run{ID: runID, WorkOrder: wo})
	if err != nil {
		return RawRun{}, err
	}
	if err := c.transport.Send(env); err != nil {
		return RawRun{}, err
	}

	events := make(chan event.Event, 128)
	receiptCh := make(chan struct {
		r   receipt.Receipt
		err error
	}, 1)

	go c.pump(ctx, runID, events, receiptCh)

	var once sync.Once
	var result struct {
		r   receipt.Receipt
		err error
	}
	return RawRun{
		Events: events,
		Receipt: func() (receipt.Receipt, error) {
			once.Do(func() {
				result = <-receiptCh
			})
			return result.r, result.err
		},
	}, nil
}

func (c *Client) pump(ctx context.Context, runID string, events chan<- event.Event, receiptCh chan<- struct {
	r   receipt.Receipt
	err error
}) {
	defer close(events)

	started := time.Now().UTC()
	var trace []event.Event

	cancelledReceipt := func() receipt.Receipt {
		trace = append(trace, event.Simple(time.Now().UTC(), event.KindCancelled))
		r, _ := receipt.WithHash(receipt.NewBuilder(c.Backend.ID).
			WithRunID(runID).
			WithCapabilities(c.Capabilities).
			WithMode(receipt.ModeNative).
			WithTrace(trace).
			WithTiming(started, time.Now().UTC()).
			WithOutcome(receipt.OutcomeCancelled).
			Build())
		return r
	}

	for {
		select {
		case <-ctx.Done():
			receiptCh <- struct {
				r   receipt.Receipt
				err error
			}{cancelledReceipt(), nil}
			return
		default:
		}

		env, err := c.transport.Recv()
		if err == io.EOF {
			receiptCh <- struct {
				r   receipt.Receipt
				err error
			}{receipt.Receipt{}, bperr.New(bperr.CodeProtocolUnexpectedMessage, "sidecar: stream ended before final")}
			return
		}
		if err != nil {
			receiptCh <- struct {
				r   receipt.Receipt
				err error
			}{receipt.Receipt{}, err}
			return
		}

		switch env.Tag {
		case wire.TagEvent:
			if env.Event == nil || env.Event.RefID != runID {
				c.logger.Warn("sidecar: dropping event for unrelated ref_id", "run_id", runID, "got", safeRefID(env))
				continue
			}
			select {
			case events <- env.Event.Event:
				trace = append(trace, env.Event.Event)
			case <-ctx.Done():
				receiptCh <- struct {
					r   receipt.Receipt
					err error
				}{cancelledReceipt(), nil}
				return
			}
		case wire.TagFinal:
			if env.Final == nil || env.Final.RefID != runID {
				c.logger.Warn("sidecar: dropping final for unrelated ref_id", "run_id", runID)
				continue
			}
			if err := receipt.VerifyHash(env.Final.Receipt); err != nil {
				receiptCh <- struct {
					r   receipt.Receipt
					err error
				}{receipt.Receipt{}, err}
				return
			}
			receiptCh <- struct {
				r   receipt.Receipt
				err error
			}{env.Final.Receipt, nil}
			return
		case wire.TagFatal:
			receiptCh <- struct {
				r   receipt.Receipt
				err error
			}{receipt.Receipt{}, bperr.Newf(bperr.CodeBackendCrashed, "sidecar: fatal: %s", env.Fatal.Error)}
			return
		case wire.TagPing:
			if c.keepalive != nil && !c.keepalive.Allow(c.Backend.ID) {
				c.logger.Warn("sidecar: dropping ping, keepalive rate exceeded", "backend", c.Backend.ID)
				continue
			}
			_ = c.transport.Send(wire.Envelope{Tag: wire.TagPong, Pong: &wire.Pong{Seq: env.Ping.Seq}})
		case wire.TagPong:
			// keepalive acknowledgement, nothing to do
		default:
			c.logger.Warn("sidecar: unexpected frame during run", "tag", env.Tag)
		}
	}
}

func safeRefID(env wire.Envelope) string {
	if env.Event != nil {
		return env.Event.RefID
	}
	return ""
}

// Cancel requests cooperative cancellation of the given run via the
// underlying transport.
func (c *Client) Cancel(runID, reason string) {
	c.transport.Cancel(runID, reason)
}

// Close closes the underlying transport's stdin.
func (c *Client) Close() error {
	return c.transport.Close()
}

// Wait joins the child process.
func (c *Client) Wait() int {
	return c.transport.Wait()
}
