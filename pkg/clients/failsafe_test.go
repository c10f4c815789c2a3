package clients

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/failsafe-go/failsafe-go"
)

func TestNewRetryPolicy_NormalizesConfigToBoundRetries(t *testing.T) {
	policy := NewRetryPolicy[int](RetryConfig{MaxRetries: -3}, nil)

	var attempts int32
	_, err := failsafe.With(policy).Get(func() (int, error) {
		atomic.AddInt32(&attempts, 1)
		return 0, errors.New("network partition")
	})
	if err == nil {
		t.Fatal("expected call to fail")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected bounded single attempt with negative retries, got %d", got)
	}
}

func TestNormalizeRetryConfig_FillsDefaults(t *testing.T) {
	def := DefaultRetryConfig()
	got := normalizeRetryConfig(RetryConfig{MaxRetries: 2})
	if got.BaseDelay != def.BaseDelay || got.MaxDelay != def.MaxDelay || got.MaxRetries != 2 {
		t.Fatalf("unexpected normalized config %+v", got)
	}

	got = normalizeRetryConfig(RetryConfig{BaseDelay: time.Minute, MaxDelay: time.Second})
	if got.MaxDelay != time.Minute {
		t.Fatalf("expected max delay raised to base delay, got %v", got.MaxDelay)
	}
}

func TestNewRetryPolicy_SkipsUnhandledErrors(t *testing.T) {
	policy := NewRetryPolicy[int](RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond}, nil)

	var attempts int32
	_, err := failsafe.With(policy).Get(func() (int, error) {
		atomic.AddInt32(&attempts, 1)
		return 0, &RateLimitedError{Op: "timeline", RetryAfter: time.Second}
	})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate-limit error to pass through, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected rate limits not to be retried, got %d attempts", got)
	}
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "classifier",
		FailureThreshold: 3,
		Window:           3,
		Delay:            time.Minute,
		OnStateChange: func(_ string, _, to CircuitBreakerState) {
			transitions = append(transitions, to.String())
		},
	})
	if cb.State() != StateClosed {
		t.Fatalf("expected closed breaker, got %s", cb.State())
	}

	for i := 0; i < 3; i++ {
		_, _ = cb.Execute(func() (any, error) { return nil, errors.New("model loading") })
	}
	if !cb.IsOpen() {
		t.Fatalf("expected open breaker after 3/3 failures, got %s", cb.State())
	}

	var called bool
	if _, err := cb.Execute(func() (any, error) { called = true; return nil, nil }); err == nil {
		t.Fatal("expected open breaker to reject the call")
	}
	if called {
		t.Fatal("expected fn not to run while open")
	}
	if len(transitions) == 0 || transitions[len(transitions)-1] != "open" {
		t.Fatalf("expected transition to open, got %v", transitions)
	}
}
