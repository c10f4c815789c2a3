package clients

import (
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/fortuneofweb3/blabz/pkg/logging"
)

// RetryConfig bounds transient retries.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig is the policy used when a field is left unset.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
	}
}

func normalizeRetryConfig(cfg RetryConfig) RetryConfig {
	def := DefaultRetryConfig()
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	return cfg
}

// NewRetryPolicy builds an exponential backoff policy with 10% jitter that
// only handles errors accepted by shouldRetry. Unhandled errors pass through
// unwrapped on the first attempt.
func NewRetryPolicy[T any](cfg RetryConfig, shouldRetry func(error) bool) retrypolicy.RetryPolicy[T] {
	cfg = normalizeRetryConfig(cfg)
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}
	return retrypolicy.NewBuilder[T]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(_ T, err error) bool {
			return err != nil && shouldRetry(err)
		}).
		Build()
}

// CircuitBreakerState mirrors the failsafe-go states for logs and metrics.
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateHalfOpen
	StateOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a breaker around an optional dependency.
type CircuitBreakerConfig struct {
	Name string
	// FailureThreshold failures out of Window executions open the circuit.
	FailureThreshold uint
	Window           uint
	// Delay is how long the circuit stays open before probing.
	Delay  time.Duration
	Logger logging.Logger
	// OnStateChange is called after every transition.
	OnStateChange func(name string, from, to CircuitBreakerState)
}

func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		Window:           10,
		Delay:            30 * time.Second,
	}
}

// CircuitBreaker wraps failsafe-go's circuit breaker.
type CircuitBreaker struct {
	cb   circuitbreaker.CircuitBreaker[any]
	name string
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.Name == "" {
		cfg.Name = "circuit-breaker"
	}
	if cfg.Window == 0 {
		cfg.Window = 10
	}
	if cfg.FailureThreshold == 0 || cfg.FailureThreshold > cfg.Window {
		cfg.FailureThreshold = cfg.Window / 2
		if cfg.FailureThreshold == 0 {
			cfg.FailureThreshold = 1
		}
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 30 * time.Second
	}

	builder := circuitbreaker.NewBuilder[any]().
		WithFailureThresholdRatio(cfg.FailureThreshold, cfg.Window).
		WithDelay(cfg.Delay).
		WithSuccessThreshold(1)

	if cfg.OnStateChange != nil || cfg.Logger != nil {
		builder = builder.OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			from, to := convertState(event.OldState), convertState(event.NewState)
			if cfg.Logger != nil {
				cfg.Logger.WithFields(logging.Fields{
					"circuit_breaker": cfg.Name,
					"from_state":      from.String(),
					"to_state":        to.String(),
				}).Warn("circuit breaker state change")
			}
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(cfg.Name, from, to)
			}
		})
	}

	return &CircuitBreaker{cb: builder.Build(), name: cfg.Name}
}

func convertState(state circuitbreaker.State) CircuitBreakerState {
	switch state {
	case circuitbreaker.HalfOpenState:
		return StateHalfOpen
	case circuitbreaker.OpenState:
		return StateOpen
	default:
		return StateClosed
	}
}

// Execute runs fn through the breaker. While open, fn is not called.
func (b *CircuitBreaker) Execute(fn func() (any, error)) (any, error) {
	return failsafe.With(b.cb).Get(fn)
}

func (b *CircuitBreaker) State() CircuitBreakerState {
	return convertState(b.cb.State())
}

func (b *CircuitBreaker) Name() string { return b.name }

func (b *CircuitBreaker) IsOpen() bool { return b.cb.IsOpen() }
