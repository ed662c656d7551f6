package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bizpulse/internal/constants"
	"bizpulse/internal/logger"
	"bizpulse/pkg/metrics"
)

var ErrStoreUnavailable = errors.New("rate-limit store unavailable")

// Limiter admits at most one delivery per key per window.
type Limiter struct {
	store        Store
	onStoreError string
	logger       logger.Logger
}

func NewLimiter(store Store, onStoreError string, log logger.Logger) *Limiter {
	if onStoreError == "" {
		onStoreError = constants.FallbackAllow
	}
	return &Limiter{
		store:        store,
		onStoreError: strings.ToLower(onStoreError),
		logger:       log,
	}
}

func (l *Limiter) Key(listener, eventType, fingerprint string) string {
	return KeyFor(listener, eventType, fingerprint)
}

// IsLimited reports whether key is inside an active window.
func (l *Limiter) IsLimited(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	limited, err := l.store.Exists(ctx, key)
	metrics.ObserveRateLimitStoreDuration("exists", metrics.StatusLabel(err), time.Since(start))

	if err != nil {
		return false, l.handleStoreError(ctx, "is_limited", err)
	}
	if limited {
		metrics.RateLimitChecksTotal.WithLabelValues("limited").Inc()
	}
	return limited, nil
}

// MarkSent opens a window for key. It reports false when another worker
// opened it first, which makes the check-and-set atomic across workers.
func (l *Limiter) MarkSent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	start := time.Now()
	acquired, err := l.store.SetNX(ctx, key, ttl)
	metrics.ObserveRateLimitStoreDuration("setnx", metrics.StatusLabel(err), time.Since(start))

	if err != nil {
		if handled := l.handleStoreError(ctx, "mark_sent", err); handled != nil {
			return false, handled
		}
		return true, nil
	}

	status := "admitted"
	if !acquired {
		status = "lost_race"
	}
	metrics.RateLimitChecksTotal.WithLabelValues(status).Inc()
	return acquired, nil
}

// Release closes the window for key early so the event can be admitted
// again, e.g. when its delivery was cut short before it finished.
func (l *Limiter) Release(ctx context.Context, key string) error {
	start := time.Now()
	err := l.store.Delete(ctx, key)
	metrics.ObserveRateLimitStoreDuration("delete", metrics.StatusLabel(err), time.Since(start))
	if err != nil {
		return fmt.Errorf("%w: release: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func (l *Limiter) handleStoreError(ctx context.Context, op string, err error) error {
	metrics.RateLimitChecksTotal.WithLabelValues("error").Inc()

	if l.onStoreError == constants.FallbackAllow {
		metrics.FallbackUsageTotal.WithLabelValues("ratelimit", "allow_on_error", op).Inc()
		l.logger.WarnwCtx(ctx, "Rate-limit store error, admitting alert (fallback: allow)",
			"operation", op,
			"error", err,
		)
		return nil
	}

	metrics.FallbackUsageTotal.WithLabelValues("ratelimit", "deny_on_error", op).Inc()
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

// WatchWindowCount publishes the number of open windows until ctx is done.
func (l *Limiter) WatchWindowCount(ctx context.Context, interval time.Duration, publish func(int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := l.store.Count(ctx, constants.CacheKeyPrefixRateLimit)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.logger.Debugw("Failed to count rate-limit windows", "error", err)
				continue
			}
			publish(n)
		}
	}
}
