package circuitbreaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Errors
var (
	ErrCircuitOpen     = gobreaker.ErrOpenState
	ErrTooManyRequests = gobreaker.ErrTooManyRequests
)

// Settings configures a circuit breaker.
type Settings struct {
	// Name identifies the circuit breaker
	Name string

	// MaxRequests is the maximum number of requests allowed to pass through
	// when the circuit breaker is half-open
	MaxRequests uint32

	// Interval is the cyclic period of the closed state
	// for the circuit breaker to clear the internal counts
	Interval time.Duration

	// Timeout is the period of the open state
	// after which the state becomes half-open
	Timeout time.Duration

	// FailureThreshold is the number of consecutive failures before opening
	// the circuit
	FailureThreshold uint32

	// IsSuccessful decides whether an error counts as a failure. If nil, all
	// non-nil errors are considered failures.
	IsSuccessful func(err error) bool
}

// CircuitBreaker wraps gobreaker with our settings and logging.
type CircuitBreaker struct {
	cb  *gobreaker.CircuitBreaker
	log *zap.Logger
}

// New creates a circuit breaker with the given settings.
func New(settings Settings, log *zap.Logger) *CircuitBreaker {
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 5
	}
	st := gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.FailureThreshold
		},
		IsSuccessful: settings.IsSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(st), log: log}
}

// ExecuteWithResult runs fn under the breaker and returns its typed result.
func ExecuteWithResult[T any](cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	result, err := cb.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

// IsCircuitOpen reports whether the breaker refused the attempt, either
// fully open or half-open over its request budget.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests)
}
