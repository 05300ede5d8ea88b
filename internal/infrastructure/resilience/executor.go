package resilience

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Outcome tells the executor what a failed call means.
type Outcome struct {
	// Retry allows another attempt within the same call.
	Retry bool
	// Trip counts the failure against the operation's breaker.
	Trip bool
}

var (
	Transient = Outcome{Retry: true, Trip: true}
	Fault     = Outcome{Trip: true}
	Benign    = Outcome{}
)

// Classifier maps an error to its Outcome. A nil Classifier treats every error as a Fault.
type Classifier func(err error) Outcome

// Executor runs outbound calls under a Policy with one circuit breaker per operation name.
type Executor struct {
	policy Policy

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(policy Policy) *Executor {
	return &Executor{
		policy:   policy.withDefaults(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

// Do runs fn, retrying transient failures with exponential backoff.
func (e *Executor) Do(ctx context.Context, operation string, fn func(context.Context) error, classify Classifier) error {
	if fn == nil {
		return errors.New("resilience: nil operation")
	}
	operation = strings.TrimSpace(operation)
	if operation == "" {
		operation = "unnamed"
	}
	if classify == nil {
		classify = func(error) Outcome { return Fault }
	}

	if !e.policy.Breaker.Enabled {
		return e.retry(ctx, operation, fn, classify)
	}
	_, err := e.breaker(operation, classify).Execute(func() (struct{}, error) {
		return struct{}{}, e.retry(ctx, operation, fn, classify)
	})
	return err
}

// Call is Do for operations that return a value. A nil executor calls fn directly.
func Call[T any](ctx context.Context, e *Executor, operation string, fn func(context.Context) (T, error), classify Classifier) (T, error) {
	if e == nil {
		return fn(ctx)
	}
	var result T
	err := e.Do(ctx, operation, func(attemptCtx context.Context) error {
		v, err := fn(attemptCtx)
		if err == nil {
			result = v
		}
		return err
	}, classify)
	return result, err
}

// State reports the breaker state of an operation: "closed", "half-open" or "open".
// Operations that never ran report "closed".
func (e *Executor) State(operation string) string {
	e.mu.Lock()
	cb, ok := e.breakers[operation]
	e.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed.String()
	}
	return cb.State().String()
}

func (e *Executor) retry(ctx context.Context, operation string, fn func(context.Context) error, classify Classifier) error {
	rp := e.policy.Retry
	for attempt := 1; ; attempt++ {
		err := e.once(ctx, fn)
		if err == nil {
			return nil
		}
		if attempt >= rp.MaxAttempts || !classify(err).Retry || ctx.Err() != nil {
			return err
		}

		wait := rp.delay(attempt)
		slog.Warn("outbound_call_retry",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", rp.MaxAttempts,
			"wait_ms", wait.Milliseconds(),
			"error", err,
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

func (e *Executor) once(ctx context.Context, fn func(context.Context) error) error {
	if e.policy.AttemptTimeout == 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, e.policy.AttemptTimeout)
	defer cancel()
	return fn(attemptCtx)
}

func (e *Executor) breaker(operation string, classify Classifier) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[operation]; ok {
		return cb
	}

	bp := e.policy.Breaker
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        operation,
		MaxRequests: bp.HalfOpenCalls,
		Timeout:     bp.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= bp.MinRequests &&
				float64(c.TotalFailures) >= bp.FailureRatio*float64(c.Requests)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classify(err).Trip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
		},
	})
	e.breakers[operation] = cb
	return cb
}

// IsCircuitOpen reports whether err came from a breaker refusing the call.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
