package observer

import (
	"context"
	"fmt"
	"time"

	"bizpulse/internal/alert"
	"bizpulse/internal/config"
	"bizpulse/internal/geoip"
	"bizpulse/internal/logger"
	"bizpulse/pkg/metrics"
)

// Observer names, used as metric labels.
const (
	ObserverSale        = "sale"
	ObserverExpense     = "expense"
	ObserverGoal        = "goal"
	ObserverContent     = "content_deletion"
	ObserverBulk        = "bulk_operation"
	ObserverFailedLogin = "failed_login"
	ObserverSession     = "session"
	ObserverAdmin       = "admin_account"
)

// Skip reasons.
const (
	ReasonBelowThreshold = "below_threshold"
	ReasonNotOverdue     = "not_overdue"
	ReasonGoalMet        = "goal_met"
	ReasonNothingUnusual = "nothing_unusual"
)

// busyExpenseDay is the daily submission count that raises an alert on its own.
const busyExpenseDay = 10

type Dispatcher interface {
	Dispatch(ctx context.Context, e alert.Event) error
}

// Decision is what an observer did with one lifecycle transition.
type Decision struct {
	Dispatched bool           `json:"dispatched"`
	EventType  string         `json:"event_type,omitempty"`
	Severity   alert.Severity `json:"severity,omitempty"`
	Reason     string         `json:"reason,omitempty"`
}

func skipped(reason string) Decision {
	return Decision{Reason: reason}
}

// Observers turn domain lifecycle transitions into alert events.
type Observers struct {
	dispatcher Dispatcher
	attempts   AttemptCounter
	expenses   ExpenseStats
	cfg        config.ObserversConfig
	locator    geoip.Locator
	now        func() time.Time
	logger     logger.Logger
}

func New(dispatcher Dispatcher, attempts AttemptCounter, expenses ExpenseStats, cfg config.ObserversConfig, log logger.Logger) *Observers {
	return &Observers{
		dispatcher: dispatcher,
		attempts:   attempts,
		expenses:   expenses,
		cfg:        cfg,
		now:        time.Now,
		logger:     log,
	}
}

// WithLocator fills missing locations on login and session events.
func (o *Observers) WithLocator(l geoip.Locator) *Observers {
	o.locator = l
	return o
}

// locate is best effort: a failed lookup leaves the event without a location.
func (o *Observers) locate(ctx context.Context, ip string, dst **alert.GeoLocation) {
	if o.locator == nil || *dst != nil || !geoip.Routable(ip) {
		return
	}
	loc, err := o.locator.Locate(ctx, ip)
	if err != nil {
		o.logger.WarnwCtx(ctx, "GeoIP lookup failed", "ip", ip, "error", err)
	}
	if loc != nil {
		*dst = loc
	}
}

func (o *Observers) dispatch(ctx context.Context, observer string, e alert.Event) (Decision, error) {
	if err := o.dispatcher.Dispatch(ctx, e); err != nil {
		metrics.ObserverEventsTotal.WithLabelValues(observer, "error").Inc()
		return Decision{}, fmt.Errorf("%s observer: %w", observer, err)
	}
	metrics.ObserverEventsTotal.WithLabelValues(observer, "dispatched").Inc()
	o.logger.InfowCtx(ctx, "Alert raised by observer",
		"observer", observer,
		"event_type", e.Type(),
		"severity", string(e.Severity()),
	)
	return Decision{Dispatched: true, EventType: e.Type(), Severity: e.Severity()}, nil
}

func (o *Observers) skip(observer, reason string) (Decision, error) {
	metrics.ObserverEventsTotal.WithLabelValues(observer, "skipped").Inc()
	return skipped(reason), nil
}

// SaleClosed raises a high-value sale alert when the amount reaches the
// configured threshold.
func (o *Observers) SaleClosed(ctx context.Context, in alert.HighValueSaleInput, by *alert.Actor) (Decision, error) {
	in.Threshold = o.cfg.HighValueSaleThreshold
	if in.Amount < in.Threshold {
		return o.skip(ObserverSale, ReasonBelowThreshold)
	}
	return o.dispatch(ctx, ObserverSale, alert.NewHighValueSale(in, by))
}

// ExpenseSubmitted fills in the submitter's history and alerts when the
// expense is far above their average or the day is unusually busy.
func (o *Observers) ExpenseSubmitted(ctx context.Context, in alert.UnusualExpenseInput, by *alert.Actor) (Decision, error) {
	history, err := o.expenses.History(ctx, in.SubmitterID, in.ExpenseID, o.now())
	if err != nil {
		metrics.ObserverEventsTotal.WithLabelValues(ObserverExpense, "error").Inc()
		return Decision{}, fmt.Errorf("%s observer: %w", ObserverExpense, err)
	}
	in.AverageAmount = history.AverageAmount
	in.ExpensesToday = history.ExpensesToday

	if in.Ratio() < o.cfg.ExpenseRatioThreshold && in.ExpensesToday < busyExpenseDay {
		return o.skip(ObserverExpense, ReasonNothingUnusual)
	}
	return o.dispatch(ctx, ObserverExpense, alert.NewUnusualExpense(in, by))
}

// GoalClosed alerts when a goal reaches its deadline short of the target.
func (o *Observers) GoalClosed(ctx context.Context, in alert.GoalFailedInput, by *alert.Actor) (Decision, error) {
	if in.Deadline.After(o.now()) {
		return o.skip(ObserverGoal, ReasonNotOverdue)
	}
	if in.AchievementPercent() >= 100 {
		return o.skip(ObserverGoal, ReasonGoalMet)
	}
	return o.dispatch(ctx, ObserverGoal, alert.NewGoalFailed(in, by))
}

func (o *Observers) ContentDeleted(ctx context.Context, in alert.ContentDeletionInput, by *alert.Actor) (Decision, error) {
	if in.Count < o.cfg.MassDeletionThreshold {
		return o.skip(ObserverContent, ReasonBelowThreshold)
	}
	return o.dispatch(ctx, ObserverContent, alert.NewMassContentDeletion(in, by))
}

// BulkOperationPerformed alerts on large operations. Unapproved destructive
// operations alert regardless of size.
func (o *Observers) BulkOperationPerformed(ctx context.Context, in alert.BulkOperationInput, by *alert.Actor) (Decision, error) {
	unapprovedDestructive := in.IsDestructive && !in.HasApproval
	if in.ItemCount < o.cfg.BulkOperationThreshold && !unapprovedDestructive {
		return o.skip(ObserverBulk, ReasonBelowThreshold)
	}
	return o.dispatch(ctx, ObserverBulk, alert.NewBulkOperation(in, by))
}

// LoginFailed counts the attempt and alerts once the count reaches the
// threshold. Suspicious attempts alert immediately.
func (o *Observers) LoginFailed(ctx context.Context, in alert.FailedLoginInput, by *alert.Actor) (Decision, error) {
	attempts, err := o.attempts.Increment(ctx, in.Email, in.IPAddress)
	if err != nil {
		metrics.ObserverEventsTotal.WithLabelValues(ObserverFailedLogin, "error").Inc()
		return Decision{}, fmt.Errorf("%s observer: %w", ObserverFailedLogin, err)
	}
	in.Attempts = attempts

	if attempts < o.cfg.FailedLoginThreshold && !in.Suspicious {
		return o.skip(ObserverFailedLogin, ReasonBelowThreshold)
	}
	o.locate(ctx, in.IPAddress, &in.Location)
	return o.dispatch(ctx, ObserverFailedLogin, alert.NewFailedLogin(in, by))
}

// LoginSucceeded clears the failure count of the (email, ip) pair.
func (o *Observers) LoginSucceeded(ctx context.Context, email, ip string) error {
	if err := o.attempts.Reset(ctx, email, ip); err != nil {
		return fmt.Errorf("%s observer: %w", ObserverFailedLogin, err)
	}
	return nil
}

// SessionActivity alerts unless the session shows no risk signal at all.
func (o *Observers) SessionActivity(ctx context.Context, in alert.SuspiciousSessionInput, by *alert.Actor) (Decision, error) {
	o.locate(ctx, in.CurrentIP, &in.CurrentLocation)
	if in.PreviousIP != "" {
		o.locate(ctx, in.PreviousIP, &in.PreviousLocation)
	}
	e := alert.NewSuspiciousSession(in, by)
	if e.Severity() == alert.SeverityLow {
		return o.skip(ObserverSession, ReasonNothingUnusual)
	}
	return o.dispatch(ctx, ObserverSession, e)
}

// AdminAccountModified alerts on every change to an administrator account.
func (o *Observers) AdminAccountModified(ctx context.Context, in alert.AdminModificationInput, by *alert.Actor) (Decision, error) {
	return o.dispatch(ctx, ObserverAdmin, alert.NewAdminAccountModified(in, by))
}
