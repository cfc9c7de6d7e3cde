// Package ratelimit bounds how often each caller can attempt a submission,
// so retry storms are absorbed before they reach the ledger. The contract's
// own once-per-day tracking is the real guarantee; this cap just keeps
// duplicate traffic off the network.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// PerCaller hands out a small daily attempt budget per caller key.
type PerCaller struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewDaily allows `attempts` calls per caller per day (one real submission
// plus retries), refilling evenly across the day.
func NewDaily(attempts int) *PerCaller {
	return &PerCaller{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(float64(attempts) / (24 * 60 * 60)),
		burst:    attempts,
	}
}

// Allow reports whether the caller still has budget, consuming one attempt
// if so. Only this check is synchronized; callers must not hold anything
// across the network calls that follow.
func (p *PerCaller) Allow(caller string) bool {
	p.mu.Lock()
	limiter, ok := p.limiters[caller]
	if !ok {
		limiter = rate.NewLimiter(p.rate, p.burst)
		p.limiters[caller] = limiter
	}
	p.mu.Unlock()
	return limiter.Allow()
}
