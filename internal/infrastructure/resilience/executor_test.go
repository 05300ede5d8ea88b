package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func quickPolicy(attempts int) Policy {
	return Policy{
		Retry: RetryPolicy{
			MaxAttempts:    attempts,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
			Multiplier:     2,
		},
	}
}

var errModelLoading = errors.New("model loading")

func transientIfLoading(err error) Outcome {
	if errors.Is(err, errModelLoading) {
		return Transient
	}
	return Fault
}

func TestDoRetriesTransientFailures(t *testing.T) {
	exec := NewExecutor(quickPolicy(3))

	calls := 0
	err := exec.Do(context.Background(), "ollama.analyze", func(context.Context) error {
		calls++
		if calls < 3 {
			return errModelLoading
		}
		return nil
	}, transientIfLoading)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoStopsOnFaults(t *testing.T) {
	exec := NewExecutor(quickPolicy(5))

	calls := 0
	errBadRequest := errors.New("bad request")
	err := exec.Do(context.Background(), "ollama.chat", func(context.Context) error {
		calls++
		return errBadRequest
	}, transientIfLoading)
	if !errors.Is(err, errBadRequest) || calls != 1 {
		t.Fatalf("expected a single failed call, got %d calls, err=%v", calls, err)
	}
}

func TestDoStopsRetryingWhenCallerGivesUp(t *testing.T) {
	exec := NewExecutor(quickPolicy(10))
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := exec.Do(ctx, "nats.publish", func(context.Context) error {
		calls++
		cancel()
		return errModelLoading
	}, transientIfLoading)
	if !errors.Is(err, errModelLoading) || calls != 1 {
		t.Fatalf("expected to stop after cancellation, got %d calls, err=%v", calls, err)
	}
}

func TestAttemptTimeoutBoundsEachCall(t *testing.T) {
	policy := quickPolicy(1)
	policy.AttemptTimeout = 10 * time.Millisecond
	exec := NewExecutor(policy)

	start := time.Now()
	err := exec.Do(context.Background(), "ollama.vision", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("attempt timeout was not applied")
	}
}

func TestCallReturnsValue(t *testing.T) {
	got, err := Call(context.Background(), NewExecutor(quickPolicy(1)), "ollama.chat", func(context.Context) (string, error) {
		return "reply", nil
	}, nil)
	if err != nil || got != "reply" {
		t.Fatalf("Call() = %q, %v", got, err)
	}

	got, err = Call[string](context.Background(), nil, "ollama.chat", func(context.Context) (string, error) {
		return "direct", nil
	}, nil)
	if err != nil || got != "direct" {
		t.Fatalf("Call() without executor = %q, %v", got, err)
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	policy := quickPolicy(1)
	policy.Breaker = BreakerPolicy{
		Enabled:      true,
		MinRequests:  2,
		FailureRatio: 0.5,
		OpenTimeout:  time.Minute,
	}
	exec := NewExecutor(policy)

	for i := 0; i < 2; i++ {
		_ = exec.Do(context.Background(), "ollama.analyze", func(context.Context) error {
			return errModelLoading
		}, nil)
	}
	if got := exec.State("ollama.analyze"); got != "open" {
		t.Fatalf("expected open breaker, got %q", got)
	}
	if got := exec.State("ollama.chat"); got != "closed" {
		t.Fatalf("unrelated operation should stay closed, got %q", got)
	}

	err := exec.Do(context.Background(), "ollama.analyze", func(context.Context) error {
		t.Fatal("open breaker must not call the operation")
		return nil
	}, nil)
	if !IsCircuitOpen(err) {
		t.Fatalf("expected circuit open error, got %v", err)
	}
}

func TestBenignFailuresDoNotTrip(t *testing.T) {
	policy := quickPolicy(1)
	policy.Breaker = BreakerPolicy{Enabled: true, MinRequests: 1, FailureRatio: 0.1}
	exec := NewExecutor(policy)

	for i := 0; i < 3; i++ {
		_ = exec.Do(context.Background(), "ollama.chat", func(context.Context) error {
			return context.Canceled
		}, func(error) Outcome { return Benign })
	}
	if got := exec.State("ollama.chat"); got != "closed" {
		t.Fatalf("benign failures tripped the breaker: %q", got)
	}
}

func TestRetryDelayGrowsAndCaps(t *testing.T) {
	rp := RetryPolicy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 3}
	want := []time.Duration{100 * time.Millisecond, 300 * time.Millisecond, 900 * time.Millisecond, time.Second}
	for i, w := range want {
		if got := rp.delay(i + 1); got != w {
			t.Fatalf("delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestWithDefaultsKeepsBreakerSwitch(t *testing.T) {
	p := Policy{Retry: RetryPolicy{MaxAttempts: 7, MaxBackoff: time.Millisecond}}.withDefaults()
	if p.Breaker.Enabled {
		t.Fatal("a disabled breaker must stay disabled")
	}
	if p.Retry.MaxAttempts != 7 || p.Retry.MaxBackoff < p.Retry.InitialBackoff {
		t.Fatalf("unexpected retry policy: %+v", p.Retry)
	}
	if p.Breaker.MinRequests != 5 || p.Breaker.OpenTimeout != 30*time.Second {
		t.Fatalf("breaker defaults not applied: %+v", p.Breaker)
	}
}
