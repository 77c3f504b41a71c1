package api

import (
	"math"
	"time"
)

// RetryPolicy controls how Send reacts when its commit loses a race with a
// concurrent writer.
//
// A disabled policy surfaces the first conflict to the caller. An enabled
// policy re-reads the state and retries; MaxRetries bounds the number of
// retries, with zero meaning unbounded.
type RetryPolicy struct {
	Enabled    bool
	MaxRetries int

	// Backoff is the delay before the first retry. Subsequent delays grow
	// by BackoffMultiplier and are capped at MaxBackoff when it is positive.
	Backoff           time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

// Unbounded reports whether the policy retries until success or
// cancellation.
func (p RetryPolicy) Unbounded() bool {
	return p.Enabled && p.MaxRetries <= 0
}

// Allows reports whether another retry may follow the given number of
// conflicts already observed.
func (p RetryPolicy) Allows(conflicts int) bool {
	if !p.Enabled {
		return false
	}
	return p.MaxRetries <= 0 || conflicts <= p.MaxRetries
}

// Delay returns the wait before the retry that follows the given number of
// conflicts.
func (p RetryPolicy) Delay(conflicts int) time.Duration {
	if p.Backoff <= 0 || conflicts <= 0 {
		return 0
	}
	mult := p.BackoffMultiplier
	if mult <= 0 {
		mult = 1
	}
	d := float64(p.Backoff) * math.Pow(mult, float64(conflicts-1))
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		return p.MaxBackoff
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}
