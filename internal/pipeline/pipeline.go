// Package pipeline assembles the delivery side of the alert pipeline from
// configuration: rate limiter, fanout channels, listener and worker.
package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"bizpulse/internal/broker"
	"bizpulse/internal/config"
	"bizpulse/internal/constants"
	"bizpulse/internal/directory"
	"bizpulse/internal/dispatch"
	"bizpulse/internal/fanout"
	"bizpulse/internal/fanout/email"
	"bizpulse/internal/history"
	"bizpulse/internal/logger"
	"bizpulse/internal/notification"
	"bizpulse/internal/ratelimit"
	"bizpulse/internal/realtime"
	"bizpulse/pkg/circuitbreaker"
	"bizpulse/pkg/metrics"
)

const windowCountInterval = 30 * time.Second

// Deps are the connections the pipeline runs on. History is optional.
type Deps struct {
	Redis    redis.UniversalClient
	Postgres *sql.DB
	History  *mongo.Database
	Consumer broker.Consumer
}

type Pipeline struct {
	Limiter  *ratelimit.Limiter
	Fanout   *fanout.Service
	Listener *dispatch.Listener
	Worker   *dispatch.Worker
}

func Build(ctx context.Context, cfg *config.Config, deps Deps, log logger.Logger) (*Pipeline, error) {
	var store ratelimit.Store = ratelimit.NewRedisStore(deps.Redis)
	if cb := circuitbreaker.FromSettings("ratelimit-store", cfg.CircuitBreaker); cb != nil {
		store = ratelimit.NewCircuitBreakerStore(store, cb)
	}
	limiter := ratelimit.NewLimiter(store, cfg.Alerting.OnStoreError, log)

	mailer, err := NewMailer(ctx, cfg.Email, cfg.CircuitBreaker, log)
	if err != nil {
		return nil, err
	}

	svc := fanout.NewService(
		notification.NewRepository(deps.Postgres),
		notification.NewPreferenceRepository(deps.Postgres),
		mailer,
		realtime.NewRedisBroadcaster(deps.Redis),
		fanout.Options{
			EmailEnabled:         mailer != nil,
			RequireVerifiedEmail: cfg.Alerting.RequireVerifiedEmail,
			ActionBaseURL:        cfg.Alerting.ActionBaseURL,
		},
		log,
	)

	dir := directory.NewPostgresDirectory(deps.Postgres)

	listener := dispatch.NewListener(limiter, dir, svc, dispatch.ListenerOptions{
		RetryDeadline:        cfg.Alerting.RetryDeadline,
		RecipientConcurrency: cfg.Alerting.RecipientConcurrency,
	}, log)

	mutes, err := dispatch.NewMuteRules(cfg.Alerting.MuteRules, log)
	if err != nil {
		return nil, fmt.Errorf("invalid mute rules: %w", err)
	}
	listener.WithMuteRules(mutes).
		WithEscalator(dispatch.NewFanoutEscalator(listener.Name(), dir, svc, cfg.Alerting.EscalationRecipients))

	if deps.History != nil {
		listener.WithHistory(history.NewRecorder(history.NewRepository(deps.History)))
	} else {
		log.Infow("Alert history disabled, no MongoDB configured")
	}

	return &Pipeline{
		Limiter:  limiter,
		Fanout:   svc,
		Listener: listener,
		Worker:   dispatch.NewWorker(deps.Consumer, listener, cfg.Alerting.Workers, log),
	}, nil
}

// Run consumes alert jobs until ctx is done and keeps the open-window gauge
// current.
func (p *Pipeline) Run(ctx context.Context) error {
	go p.Limiter.WatchWindowCount(ctx, windowCountInterval, func(n int) {
		metrics.RateLimitOpenWindows.Set(float64(n))
	})
	return p.Worker.Run(ctx)
}

// NewMailer builds the provider registry with primary and fallbacks. It
// returns a nil sender when email is disabled.
func NewMailer(ctx context.Context, cfg config.EmailConfig, cbCfg config.CircuitBreakerConfig, log logger.Logger) (fanout.EmailSender, error) {
	if !cfg.Enabled {
		log.Infow("Email delivery disabled")
		return nil, nil
	}

	registry := email.NewRegistry(log)
	register := func(p email.Provider) {
		registry.Register(p, circuitbreaker.FromSettings("email-"+p.Name(), cbCfg))
	}

	register(email.NewSMTPProvider(cfg.SMTP))
	register(email.NewResendProvider(cfg.Resend.APIKey))
	if cfg.SES.Region != "" {
		ses, err := email.NewSESProvider(ctx, cfg.SES.Region)
		if err != nil {
			log.Warnw("SES provider unavailable", "error", err)
		} else {
			register(ses)
		}
	}

	primary := cfg.Primary
	if primary == "" {
		primary = constants.EmailProviderSMTP
	}
	if err := registry.SetPrimary(primary); err != nil {
		return nil, fmt.Errorf("invalid email.primary: %w", err)
	}
	if err := registry.SetFallback(cfg.Fallback...); err != nil {
		return nil, fmt.Errorf("invalid email.fallback: %w", err)
	}

	renderer, err := email.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to load email templates: %w", err)
	}
	return email.NewMailer(cfg.From, renderer, registry, log), nil
}
