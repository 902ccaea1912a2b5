package runtracker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/bperr"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/receipt"
)

// RedisTracker is a distributed run-status tracker backed by Redis,
// for deployments running more than one orchestrator instance sharing
// run visibility. It implements the same state transitions as Tracker
// but serializes Status as a JSON value per run ID, using Redis'
// atomic SETNX for StartRun to enforce the AlreadyExists invariant
// across processes.
type RedisTracker struct {
	client *redis.Client
	prefix string
}

// NewRedisTracker wraps client, namespacing keys under prefix (e.g.
// "abp:runs:").
func NewRedisTracker(client *redis.Client, prefix string) *RedisTracker {
	if prefix == "" {
		prefix = "abp:runs:"
	}
	return &RedisTracker{client: client, prefix: prefix}
}

func (t *RedisTracker) key(id string) string {
	return t.prefix + id
}

type wireStatus struct {
	Kind    StatusKind      `json:"kind"`
	Receipt *receipt.Receipt `json:"receipt,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (t *RedisTracker) StartRun(ctx context.Context, id string) error {
	payload, err := json.Marshal(wireStatus{Kind: StatusRunning})
	if err != nil {
		return bperr.Wrap(bperr.CodeInternal, "runtracker: marshal status failed", err)
	}
	ok, err := t.client.SetNX(ctx, t.key(id), payload, 0).Result()
	if err != nil {
		return bperr.Wrap(bperr.CodeInternal, "runtracker: redis setnx failed", err)
	}
	if !ok {
		return bperr.Newf(bperr.CodeInternal, "runtracker: run %q already exists", id)
	}
	return nil
}

func (t *RedisTracker) transitionToTerminal(ctx context.Context, id string, next wireStatus) error {
	cur, err := t.get(ctx, id)
	if err != nil {
		return err
	}
	if cur == nil {
		return bperr.Newf(bperr.CodeInternal, "runtracker: run %q not found", id)
	}
	if cur.terminal() {
		return bperr.Newf(bperr.CodeInternal, "runtracker: run %q already terminal", id)
	}
	payload, err := json.Marshal(next)
	if err != nil {
		return bperr.Wrap(bperr.CodeInternal, "runtracker: marshal status failed", err)
	}
	if err := t.client.Set(ctx, t.key(id), payload, 0).Err(); err != nil {
		return bperr.Wrap(bperr.CodeInternal, "runtracker: redis set failed", err)
	}
	return nil
}

func (t *RedisTracker) CompleteRun(ctx context.Context, id string, r receipt.Receipt) error {
	return t.transitionToTerminal(ctx, id, wireStatus{Kind: StatusCompleted, Receipt: &r})
}

func (t *RedisTracker) FailRun(ctx context.Context, id string, msg string) error {
	return t.transitionToTerminal(ctx, id, wireStatus{Kind: StatusFailed, Error: msg})
}

func (t *RedisTracker) CancelRun(ctx context.Context, id string) error {
	return t.transitionToTerminal(ctx, id, wireStatus{Kind: StatusCancelled})
}

func (t *RedisTracker) get(ctx context.Context, id string) (*Status, error) {
	raw, err := t.client.Get(ctx, t.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, bperr.Wrap(bperr.CodeInternal, "runtracker: redis get failed", err)
	}
	var ws wireStatus
	if err := json.Unmarshal(raw, &ws); err != nil {
		return nil, bperr.Wrap(bperr.CodeInternal, "runtracker: unmarshal status failed", err)
	}
	return &Status{Kind: ws.Kind, Receipt: ws.Receipt, Error: ws.Error}, nil
}

// GetRunStatus returns the status of id, if tracked.
func (t *RedisTracker) GetRunStatus(ctx context.Context, id string) (Status, bool, error) {
	s, err := t.get(ctx, id)
	if err != nil {
		return Status{}, false, err
	}
	if s == nil {
		return Status{}, false, nil
	}
	return *s, true, nil
}
