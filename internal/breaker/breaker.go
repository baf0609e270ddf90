// Package breaker puts a circuit breaker in front of calls to third-party
// services (TTS, video, payments, AI, the event transport).
//
// When a vendor starts failing, the breaker opens and calls fail fast with
// apperror.ErrUnavailable instead of piling up on timeouts. Client-side
// failures (validation, not found) do not count against the vendor.
package breaker

import (
	"errors"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/metrics"
)

// Settings tunes one breaker.
type Settings struct {
	// MaxRequests is the number of trial requests allowed while half-open.
	MaxRequests uint32
	// Interval resets the failure counts while closed.
	Interval time.Duration
	// Timeout is how long the breaker stays open before trying again.
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures that opens it.
	FailureThreshold uint32
}

// DefaultSettings opens after five consecutive failures for 30 seconds.
func DefaultSettings() Settings {
	return Settings{
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// Breaker guards one named dependency.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[any]
}

// New creates a breaker and reports its state through metrics and logger.
func New(name string, s Settings, logger *slog.Logger) *Breaker {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = DefaultSettings().FailureThreshold
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isClientError(err)
		},
	})

	return &Breaker{name: name, cb: cb}
}

// Name returns the breaker's name.
func (b *Breaker) Name() string { return b.name }

// State reports the current state as closed, half-open or open.
func (b *Breaker) State() string { return b.cb.State().String() }

// Execute runs fn through b. A rejected call returns apperror.Unavailable.
func Execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	out, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, apperror.Unavailable(b.name)
		}
		return zero, err
	}
	v, ok := out.(T)
	if !ok {
		return zero, nil
	}
	return v, nil
}

// Do is Execute for calls without a result.
func (b *Breaker) Do(fn func() error) error {
	_, err := Execute(b, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func isClientError(err error) bool {
	return errors.Is(err, apperror.ErrValidation) ||
		errors.Is(err, apperror.ErrNotFound) ||
		errors.Is(err, apperror.ErrForbidden)
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
