// Package resilience guards model calls with fortify policies.
package resilience

import (
	"context"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"
)

// ExecutorConfig configures an Executor. Non-positive values take the
// DefaultExecutorConfig value, except RetryMaxAttempts which falls back to a
// single attempt.
type ExecutorConfig struct {
	// MaxConcurrent caps in-flight calls.
	MaxConcurrent int

	// CircuitBreakerThreshold is the consecutive failure count that opens the circuit.
	CircuitBreakerThreshold int

	// CircuitBreakerTimeout is how long an open circuit rejects calls.
	CircuitBreakerTimeout time.Duration

	// RetryMaxAttempts counts the first attempt.
	RetryMaxAttempts int

	// RetryInitialDelay is the wait before the second attempt.
	RetryInitialDelay time.Duration

	// RetryBackoffMultiplier grows the delay between attempts.
	RetryBackoffMultiplier float64

	// NonRetryable errors stop the retry loop.
	NonRetryable []error

	// Timeout bounds one Execute call, retries included.
	Timeout time.Duration
}

// DefaultExecutorConfig returns the settings used for model providers.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxConcurrent:           10,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
		RetryMaxAttempts:        3,
		RetryInitialDelay:       100 * time.Millisecond,
		RetryBackoffMultiplier:  2.0,
		Timeout:                 60 * time.Second,
	}
}

func (c ExecutorConfig) normalized() ExecutorConfig {
	d := DefaultExecutorConfig()
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = d.MaxConcurrent
	}
	if c.CircuitBreakerThreshold <= 0 {
		c.CircuitBreakerThreshold = d.CircuitBreakerThreshold
	}
	if c.CircuitBreakerTimeout <= 0 {
		c.CircuitBreakerTimeout = d.CircuitBreakerTimeout
	}
	if c.RetryMaxAttempts <= 0 {
		c.RetryMaxAttempts = 1
	}
	if c.RetryBackoffMultiplier <= 0 {
		c.RetryBackoffMultiplier = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}

// Executor applies, outermost first, a bulkhead, a deadline, a circuit
// breaker and retry to calls returning T.
type Executor[T any] struct {
	bulkhead bulkhead.Bulkhead[T]
	breaker  circuitbreaker.CircuitBreaker[T]
	retry    retry.Retry[T]
	timeout  time.Duration
}

// NewExecutor creates an executor from config.
func NewExecutor[T any](config ExecutorConfig) *Executor[T] {
	c := config.normalized()
	threshold := uint32(c.CircuitBreakerThreshold) // #nosec G115 -- normalized to a small positive value

	return &Executor[T]{
		bulkhead: bulkhead.New[T](bulkhead.Config{MaxConcurrent: c.MaxConcurrent}),
		breaker: circuitbreaker.New[T](circuitbreaker.Config{
			MaxRequests: uint32(c.MaxConcurrent), // #nosec G115 -- normalized to a small positive value
			Interval:    c.CircuitBreakerTimeout,
			Timeout:     c.CircuitBreakerTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		}),
		retry: retry.New[T](retry.Config{
			MaxAttempts:        c.RetryMaxAttempts,
			InitialDelay:       c.RetryInitialDelay,
			BackoffPolicy:      retry.BackoffExponential,
			Multiplier:         c.RetryBackoffMultiplier,
			NonRetryableErrors: c.NonRetryable,
		}),
		timeout: c.Timeout,
	}
}

// Execute runs fn under the executor's policies.
func (e *Executor[T]) Execute(ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	return e.bulkhead.Execute(ctx, func(ctx context.Context) (T, error) {
		ctx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		return e.breaker.Execute(ctx, func(ctx context.Context) (T, error) {
			return e.retry.Do(ctx, fn)
		})
	})
}

// CircuitBreakerState reports the breaker state.
func (e *Executor[T]) CircuitBreakerState() circuitbreaker.State {
	return e.breaker.State()
}
