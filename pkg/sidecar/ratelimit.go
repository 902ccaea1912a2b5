package sidecar

import (
	"sync"

	"golang.org/x/time/rate"
)

// KeepaliveLimiter bounds how often a single sidecar connection may
// send ping/pong keepalive frames, guarding against a misbehaving or
// compromised child process flooding the transport with keepalive
// traffic instead of real events.
type KeepaliveLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewKeepaliveLimiter builds a limiter allowing rps pings per second
// per backend name, with the given burst allowance.
func NewKeepaliveLimiter(rps float64, burst int) *KeepaliveLimiter {
	return &KeepaliveLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// Allow reports whether a ping/pong frame for backendName may be
// processed now, consuming one token if so.
func (l *KeepaliveLimiter) Allow(backendName string) bool {
	return l.limiterFor(backendName).Allow()
}

func (l *KeepaliveLimiter) limiterFor(backendName string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[backendName]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[backendName] = lim
	}
	return lim
}
