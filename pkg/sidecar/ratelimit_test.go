package sidecar_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/sidecar"
)

func TestKeepaliveLimiter_AllowsBurstThenThrottles(t *testing.T) {
	lim := sidecar.NewKeepaliveLimiter(1, 2)

	assert.True(t, lim.Allow("backend-a"))
	assert.True(t, lim.Allow("backend-a"))
	assert.False(t, lim.Allow("backend-a"))
}

func TestKeepaliveLimiter_TracksBackendsIndependently(t *testing.T) {
	lim := sidecar.NewKeepaliveLimiter(1, 1)

	assert.True(t, lim.Allow("backend-a"))
	assert.False(t, lim.Allow("backend-a"))
	assert.True(t, lim.Allow("backend-b"))
}
