package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"bizpulse/internal/alert"
	"bizpulse/internal/constants"
	"bizpulse/internal/directory"
	"bizpulse/internal/fanout"
	"bizpulse/internal/logger"
	"bizpulse/internal/ratelimit"
	pkgerrors "bizpulse/pkg/errors"
	"bizpulse/pkg/metrics"
	"bizpulse/pkg/retry"
	"bizpulse/pkg/tracing"
)

const DefaultListenerName = "administrative-alerts"

type Fanout interface {
	Deliver(ctx context.Context, e alert.Event, recipient directory.User) (fanout.Result, error)
}

type Escalator interface {
	Escalate(ctx context.Context, failed alert.Event, out Outcome) error
}

type HistoryRecorder interface {
	Record(ctx context.Context, e alert.Event, out Outcome) error
}

type ListenerOptions struct {
	Name                 string
	RetryDeadline        time.Duration
	RecipientConcurrency int
	Policies             map[string]RecipientPolicy
	// Timer and Now replace the clock, e.g. to skip backoff waits in tests.
	Timer backoff.Timer
	Now   func() time.Time
}

// Listener runs the delivery state machine for one event: mute and rate
// checks, recipient resolution, fanout with severity-driven retries, and
// the terminal failure handler.
type Listener struct {
	name        string
	limiter     *ratelimit.Limiter
	directory   directory.Directory
	fanout      Fanout
	mutes       *MuteRules
	escalator   Escalator
	history     HistoryRecorder
	policies    map[string]RecipientPolicy
	deadline    time.Duration
	concurrency int
	timer       backoff.Timer
	now         func() time.Time
	logger      logger.Logger
}

func NewListener(limiter *ratelimit.Limiter, dir directory.Directory, f Fanout, opts ListenerOptions, log logger.Logger) *Listener {
	if opts.Name == "" {
		opts.Name = DefaultListenerName
	}
	if opts.RetryDeadline <= 0 {
		opts.RetryDeadline = constants.DefaultRetryDeadline
	}
	if opts.RecipientConcurrency <= 0 {
		opts.RecipientConcurrency = constants.DefaultRecipientWorkers
	}
	if opts.Policies == nil {
		opts.Policies = DefaultRecipientPolicies()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Listener{
		name:        opts.Name,
		limiter:     limiter,
		directory:   dir,
		fanout:      f,
		policies:    opts.Policies,
		deadline:    opts.RetryDeadline,
		concurrency: opts.RecipientConcurrency,
		timer:       opts.Timer,
		now:         opts.Now,
		logger:      log,
	}
}

func (l *Listener) WithMuteRules(m *MuteRules) *Listener {
	l.mutes = m
	return l
}

func (l *Listener) WithEscalator(e Escalator) *Listener {
	l.escalator = e
	return l
}

func (l *Listener) WithHistory(h HistoryRecorder) *Listener {
	l.history = h
	return l
}

func (l *Listener) Name() string {
	return l.name
}

// Handle delivers e. receivedAt is when the event first entered the
// pipeline; no retry starts after receivedAt plus the retry deadline.
func (l *Listener) Handle(ctx context.Context, e alert.Event, receivedAt time.Time) Outcome {
	ctx, span := tracing.StartAlertSpan(ctx, "listener.handle", e.Type(), string(e.Severity()))
	defer span.End()

	start := time.Now()
	metrics.AlertsReceivedTotal.WithLabelValues(string(e.Category()), string(e.Severity())).Inc()

	out := l.handle(ctx, e, receivedAt)

	metrics.ObserveAlertProcessingDuration(time.Since(start), string(out.Status))
	metrics.AlertOutcomesTotal.WithLabelValues(string(out.Status), string(e.Category()), string(e.Severity())).Inc()
	span.SetAttributes(attribute.String("alert.outcome", string(out.Status)))
	if out.Status == StatusFailed {
		span.SetStatus(codes.Error, out.Reason)
	}

	l.record(ctx, e, out)
	return out
}

func (l *Listener) handle(ctx context.Context, e alert.Event, receivedAt time.Time) Outcome {
	if rule, muted := l.mutes.Match(ctx, e); muted {
		l.logger.InfowCtx(ctx, "Alert muted by rule",
			"event_type", e.Type(),
			"fingerprint", e.Fingerprint(),
			"rule", rule,
		)
		return Outcome{Status: StatusSuppressed, Reason: ReasonMuted}
	}

	key := l.limiter.Key(l.name, e.Type(), e.Fingerprint())
	limited, err := l.limiter.IsLimited(ctx, key)
	if err != nil {
		l.logger.ErrorwCtx(ctx, "Rate-limit check failed", "event_type", e.Type(), "error", err)
		return Outcome{Status: StatusFailed, Reason: ReasonStoreUnavailable, Err: err}
	}
	if limited {
		l.logger.InfowCtx(ctx, "Alert suppressed by rate limit",
			"event_type", e.Type(),
			"severity", string(e.Severity()),
			"fingerprint", e.Fingerprint(),
		)
		return Outcome{Status: StatusSuppressed, Reason: ReasonRateLimited}
	}

	recipients, err := l.resolveRecipients(ctx, e)
	if err != nil {
		l.logger.ErrorwCtx(ctx, "Failed to resolve alert recipients", "event_type", e.Type(), "error", err)
		return Outcome{Status: StatusFailed, Reason: ReasonRecipientsFailed, Err: err}
	}
	if len(recipients) == 0 {
		l.logger.WarnwCtx(ctx, "Alert has no recipients", "event_type", e.Type())
		return Outcome{Status: StatusSuppressed, Reason: ReasonNoRecipients}
	}

	acquired, err := l.limiter.MarkSent(ctx, key, alert.RateLimitWindow(e))
	if err != nil {
		l.logger.ErrorwCtx(ctx, "Failed to open rate-limit window", "event_type", e.Type(), "error", err)
		return Outcome{Status: StatusFailed, Reason: ReasonStoreUnavailable, Err: err}
	}
	if !acquired {
		l.logger.InfowCtx(ctx, "Alert suppressed, another worker is delivering it",
			"event_type", e.Type(),
			"fingerprint", e.Fingerprint(),
		)
		return Outcome{Status: StatusSuppressed, Reason: ReasonDuplicate}
	}

	return l.deliver(ctx, e, key, recipients, receivedAt)
}

func (l *Listener) resolveRecipients(ctx context.Context, e alert.Event) ([]directory.User, error) {
	policy, ok := l.policies[e.Type()]
	if !ok {
		policy = AllAdmins
	}
	users, err := policy(ctx, l.directory, e)
	if err != nil {
		return nil, err
	}
	return dedupeUsers(users), nil
}

func (l *Listener) deliver(ctx context.Context, e alert.Event, key string, recipients []directory.User, receivedAt time.Time) Outcome {
	policy := alert.PolicyFor(e.Severity())
	pending := recipients
	// recipients whose delivery can never succeed are dropped from the retry set
	var undeliverable []error

	attempts, err := retry.RetryWithSchedule(ctx, retry.ScheduleOptions{
		Delays:   policy.Backoff,
		Deadline: receivedAt.Add(l.deadline),
		Timer:    l.timer,
		Now:      l.now,
		OnRetry: func(attempt int, err error, next time.Duration) {
			l.logger.ErrorwCtx(ctx, "Alert delivery failed, retrying",
				append(alert.LogFields(e),
					"listener", l.name,
					"attempt", attempt,
					"max_attempts", policy.MaxAttempts(),
					"pending_recipients", len(pending),
					"next_delay", next,
					"error", err,
				)...,
			)
		},
	}, func(ctx context.Context, attempt int) error {
		failed, permanent, err := l.fanoutAll(ctx, e, pending, policy.Timeout)
		status := "success"
		if err != nil || len(permanent) > 0 {
			status = "failure"
		}
		metrics.AlertDeliveryAttemptsTotal.WithLabelValues(string(e.Severity()), status).Inc()
		pending = failed
		undeliverable = append(undeliverable, permanent...)
		return err
	})

	out := Outcome{
		Attempts:   attempts,
		Recipients: len(recipients),
		Delivered:  len(recipients) - len(pending) - len(undeliverable),
	}
	if err == nil && len(undeliverable) == 0 {
		out.Status = StatusDelivered
		l.logger.InfowCtx(ctx, "Alert delivered",
			"event_type", e.Type(),
			"severity", string(e.Severity()),
			"recipients", out.Recipients,
			"attempts", attempts,
		)
		return out
	}

	out.Status = StatusFailed
	out.Err = errors.Join(append([]error{err}, undeliverable...)...)
	switch {
	case ctx.Err() != nil:
		out.Reason = ReasonInterrupted
		l.interrupted(ctx, e, key, out)
		return out
	case errors.Is(err, retry.ErrDeadlineExceeded):
		out.Reason = ReasonDeadlineExceeded
	case out.Delivered > 0:
		out.Reason = ReasonPartiallyDelivered
	default:
		out.Reason = ReasonRetriesExhausted
	}

	l.onTerminalFailure(ctx, e, out)
	return out
}

// interrupted reopens the event for admission so the redelivered job is not
// suppressed by the window this attempt claimed.
func (l *Listener) interrupted(ctx context.Context, e alert.Event, key string, out Outcome) {
	l.logger.WarnwCtx(ctx, "Alert delivery interrupted",
		append(alert.LogFields(e),
			"attempts", out.Attempts,
			"delivered", out.Delivered,
			"error", out.Err,
		)...,
	)

	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.ShutdownTimeout)
	defer cancel()
	if err := l.limiter.Release(releaseCtx, key); err != nil {
		l.logger.ErrorwCtx(ctx, "Failed to release rate-limit window",
			"event_type", e.Type(),
			"error", err,
		)
	}
}

// fanoutAll delivers to every recipient in parallel. It returns the
// recipients worth retrying, the errors of those that failed permanently,
// and the joined retryable errors. A failing recipient never blocks the others.
func (l *Listener) fanoutAll(ctx context.Context, e alert.Event, recipients []directory.User, timeout time.Duration) ([]directory.User, []error, error) {
	var (
		mu        sync.Mutex
		failed    []directory.User
		errs      []error
		permanent []error
	)

	g := &errgroup.Group{}
	g.SetLimit(l.concurrency)
	for _, r := range recipients {
		g.Go(func() error {
			err := l.deliverOne(ctx, e, r, timeout)
			if err == nil {
				return nil
			}
			err = fmt.Errorf("recipient %d: %w", r.ID, err)

			mu.Lock()
			defer mu.Unlock()
			if retry.IsFatal(err) {
				permanent = append(permanent, err)
				return nil
			}
			failed = append(failed, r)
			errs = append(errs, err)
			return nil
		})
	}
	_ = g.Wait()

	return failed, permanent, errors.Join(errs...)
}

func (l *Listener) deliverOne(ctx context.Context, e alert.Event, r directory.User, timeout time.Duration) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = pkgerrors.RecoverPanic(rec)
		}
	}()

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err = l.fanout.Deliver(attemptCtx, e, r)
	return err
}

// onTerminalFailure logs the failure once and escalates CRITICAL events.
func (l *Listener) onTerminalFailure(ctx context.Context, e alert.Event, out Outcome) {
	l.logger.CriticalwCtx(ctx, "Alert delivery failed permanently",
		append(alert.LogFields(e),
			"listener", l.name,
			"reason", out.Reason,
			"attempts", out.Attempts,
			"recipients", out.Recipients,
			"delivered", out.Delivered,
			"error", out.Err,
		)...,
	)

	if e.Severity() == alert.SeverityCritical {
		l.escalate(ctx, e, out)
	}
}

// escalate never panics and never returns an error.
func (l *Listener) escalate(ctx context.Context, e alert.Event, out Outcome) {
	if l.escalator == nil {
		return
	}

	fail := func(err error) {
		metrics.AlertEscalationsTotal.WithLabelValues("failure").Inc()
		l.logger.CriticalwCtx(ctx, "Alert escalation failed",
			"event_type", e.Type(),
			"fingerprint", e.Fingerprint(),
			"error", err,
		)
	}
	defer func() {
		if r := recover(); r != nil {
			fail(pkgerrors.RecoverPanic(r))
		}
	}()

	escCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alert.PolicyFor(alert.SeverityCritical).Timeout)
	defer cancel()

	if err := l.escalator.Escalate(escCtx, e, out); err != nil {
		fail(err)
		return
	}
	metrics.AlertEscalationsTotal.WithLabelValues("success").Inc()
}

func (l *Listener) record(ctx context.Context, e alert.Event, out Outcome) {
	if l.history == nil {
		return
	}
	if err := l.history.Record(context.WithoutCancel(ctx), e, out); err != nil {
		l.logger.WarnwCtx(ctx, "Failed to record alert history", "event_type", e.Type(), "error", err)
	}
}
