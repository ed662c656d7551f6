// Package circuitbreaker guards the external dependencies of alert delivery
// (email providers, Redis rate limit store, GeoIP API) with gobreaker.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"bizpulse/internal/config"
	"bizpulse/pkg/metrics"
)

const (
	defaultMaxRequests  = 3
	defaultWindow       = time.Minute
	defaultMinRequests  = 3
	defaultFailureRatio = 0.5
)

// ErrOpen is returned, wrapped with the breaker name, while calls are rejected.
var ErrOpen = errors.New("circuit breaker is open")

// Wrapper is a named breaker. A nil *Wrapper is a valid, disabled breaker
// that passes every call through.
type Wrapper struct {
	cb *gobreaker.CircuitBreaker
}

// FromSettings builds a named breaker from the service configuration.
// It returns nil when breakers are disabled.
func FromSettings(name string, cfg config.CircuitBreakerConfig) *Wrapper {
	if !cfg.Enabled {
		return nil
	}

	minRequests, ratio := uint32(defaultMinRequests), defaultFailureRatio
	if cfg.FailureRatio > 0 && cfg.MinRequests > 0 {
		minRequests, ratio = cfg.MinRequests, cfg.FailureRatio
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: orDefault(cfg.MaxRequests, defaultMaxRequests),
		Interval:    orDefault(cfg.Interval, defaultWindow),
		Timeout:     orDefault(cfg.Timeout, defaultWindow),
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= minRequests && float64(c.TotalFailures)/float64(c.Requests) >= ratio
		},
		OnStateChange: func(name string, _, to gobreaker.State) {
			publishState(name, to)
		},
	}

	w := &Wrapper{cb: gobreaker.NewCircuitBreaker(settings)}
	publishState(name, w.cb.State())
	return w
}

func orDefault[T uint32 | time.Duration](v, def T) T {
	if v > 0 {
		return v
	}
	return def
}

// Do runs fn through the breaker and records the request. A canceled ctx
// fails fast without counting against the breaker.
func Do[T any](ctx context.Context, w *Wrapper, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if w == nil {
		return fn()
	}

	var out T
	_, err := w.cb.Execute(func() (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var err error
		out, err = fn()
		return nil, err
	})
	w.record(err)

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return zero, fmt.Errorf("%w for %s", ErrOpen, w.Name())
	case err != nil:
		return zero, err
	}
	return out, nil
}

// State returns the current state name, or "disabled" for a nil breaker.
func (w *Wrapper) State() string {
	if w == nil {
		return "disabled"
	}
	return w.cb.State().String()
}

func (w *Wrapper) Name() string {
	if w == nil {
		return ""
	}
	return w.cb.Name()
}

func (w *Wrapper) IsOpen() bool {
	return w != nil && w.cb.State() == gobreaker.StateOpen
}

func (w *Wrapper) record(err error) {
	name := w.cb.Name()
	metrics.CircuitBreakerRequests.WithLabelValues(name, w.cb.State().String()).Inc()
	if err != nil {
		metrics.CircuitBreakerFailures.WithLabelValues(name).Inc()
	}
}

// publishState exports 0 closed, 1 half-open, 2 open.
func publishState(name string, s gobreaker.State) {
	code := map[gobreaker.State]float64{
		gobreaker.StateClosed:   0,
		gobreaker.StateHalfOpen: 1,
		gobreaker.StateOpen:     2,
	}[s]
	metrics.CircuitBreakerState.WithLabelValues(name).Set(code)
}
