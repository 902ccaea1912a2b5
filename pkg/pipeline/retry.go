package pipeline

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/workorder"
)

// RetryPolicy configures bounded exponential backoff with jitter.
// Retry is an optional collaborator stage, never a core pipeline
// behavior: a zero-value RetryPolicy performs exactly one attempt.
type RetryPolicy struct {
	MaxAttempts int           // total attempts including the first; <=1 means no retry
	BaseDelay   time.Duration // delay before the first retry
	MaxDelay    time.Duration // cap on computed backoff
}

// DefaultRetryPolicy returns a conservative three-attempt policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	backoff := time.Duration(math.Pow(2, float64(attempt))) * base
	max := p.MaxDelay
	if max > 0 && backoff > max {
		backoff = max
	}
	jitter := time.Duration(0)
	if n, err := rand.Int(rand.Reader, big.NewInt(int64(base/2)+1)); err == nil {
		jitter = time.Duration(n.Int64())
	}
	return backoff + jitter
}

// RetryStage wraps another Stage, retrying its Process call on
// failure up to Policy.MaxAttempts times with backoff between
// attempts. It is purely additive: composing it into an
// AdmissionPipeline is the caller's choice, and a pipeline with no
// RetryStage behaves exactly as before.
type RetryStage struct {
	Inner  Stage
	Policy RetryPolicy
}

func (s RetryStage) Name() string { return "retry(" + s.Inner.Name() + ")" }

func (s RetryStage) Process(ctx context.Context, wo *workorder.WorkOrder) error {
	attempts := s.Policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s.Policy.delay(attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		lastErr = s.Inner.Process(ctx, wo)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}
