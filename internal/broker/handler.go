package broker

import (
	"context"
	"time"

	"bizpulse/internal/config"
	"bizpulse/internal/logger"
	"bizpulse/pkg/errors"
	"bizpulse/pkg/metrics"
	"bizpulse/pkg/models"
	"bizpulse/pkg/retry"
)

func retryPolicy(cfg config.RetryConfig) retry.Policy {
	policy := retry.Policy{
		MaxAttempts:     3,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
	}

	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialInterval > 0 {
		policy.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		policy.MaxInterval = cfg.MaxInterval
	}
	if cfg.Multiplier > 0 {
		policy.Multiplier = cfg.Multiplier
	}
	if cfg.MaxElapsedTime > 0 {
		policy.MaxElapsedTime = cfg.MaxElapsedTime
	}
	return policy
}

// handleWithRetry retries transient handler errors. Panics become fatal
// errors so a broken job cannot take a worker down.
func handleWithRetry(ctx context.Context, log logger.Logger, policy retry.Policy, serviceName string, job models.AlertJob, handler HandlerFunc) error {
	return retry.Do(ctx, policy, func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.RecoverPanic(r)
				log.ErrorwCtx(ctx, "Panic recovered during job handling",
					"error", err,
					"queue", job.Queue,
				)
			}
		}()
		return handler(ctx, job)
	}, func(attempt int, err error, nextDelay time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues(serviceName, job.Queue).Inc()
		log.WarnwCtx(ctx, "Retrying job handling",
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"next_delay", nextDelay,
			"error", err,
			"queue", job.Queue,
		)
	})
}
