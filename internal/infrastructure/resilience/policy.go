package resilience

import (
	"math"
	"time"
)

// Policy configures how outbound calls to the model server and the status bus are
// bounded, retried and short-circuited.
type Policy struct {
	// AttemptTimeout bounds a single call; zero leaves only the caller's deadline.
	AttemptTimeout time.Duration
	Retry          RetryPolicy
	Breaker        BreakerPolicy
}

type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// BreakerPolicy trips a per-operation breaker once FailureRatio of at least
// MinRequests calls failed, and keeps it open for OpenTimeout.
type BreakerPolicy struct {
	Enabled       bool
	MinRequests   uint32
	FailureRatio  float64
	OpenTimeout   time.Duration
	HalfOpenCalls uint32
}

func DefaultPolicy() Policy {
	return Policy{
		Retry: RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			Multiplier:     2,
		},
		Breaker: BreakerPolicy{
			Enabled:       true,
			MinRequests:   5,
			FailureRatio:  0.6,
			OpenTimeout:   30 * time.Second,
			HalfOpenCalls: 1,
		},
	}
}

// withDefaults fills zero or out-of-range fields from DefaultPolicy. Breaker.Enabled is
// taken as given.
func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	p.AttemptTimeout = max(p.AttemptTimeout, 0)

	r := &p.Retry
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = def.Retry.MaxAttempts
	}
	if r.InitialBackoff <= 0 {
		r.InitialBackoff = def.Retry.InitialBackoff
	}
	if r.MaxBackoff <= 0 {
		r.MaxBackoff = def.Retry.MaxBackoff
	}
	r.MaxBackoff = max(r.MaxBackoff, r.InitialBackoff)
	if r.Multiplier < 1 {
		r.Multiplier = def.Retry.Multiplier
	}

	b := &p.Breaker
	if b.MinRequests == 0 {
		b.MinRequests = def.Breaker.MinRequests
	}
	if b.FailureRatio <= 0 || b.FailureRatio > 1 {
		b.FailureRatio = def.Breaker.FailureRatio
	}
	if b.OpenTimeout <= 0 {
		b.OpenTimeout = def.Breaker.OpenTimeout
	}
	if b.HalfOpenCalls == 0 {
		b.HalfOpenCalls = def.Breaker.HalfOpenCalls
	}
	return p
}

// delay is the wait after the given failed attempt, counting from 1.
func (r RetryPolicy) delay(attempt int) time.Duration {
	d := float64(r.InitialBackoff) * math.Pow(r.Multiplier, float64(attempt-1))
	if d >= float64(r.MaxBackoff) {
		return r.MaxBackoff
	}
	return time.Duration(d)
}
