package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"bizpulse/internal/alert"
	"bizpulse/internal/directory"
	"bizpulse/internal/fanout/email"
	"bizpulse/internal/logger"
	"bizpulse/internal/notification"
	"bizpulse/pkg/metrics"
)

type NotificationStore interface {
	Create(ctx context.Context, n *notification.Notification) error
}

type PreferenceStore interface {
	Get(ctx context.Context, userID int64) (notification.EmailPreference, error)
}

type EmailSender interface {
	ResolveTemplate(category, tier string) string
	Send(ctx context.Context, msg email.Message) error
}

type Broadcaster interface {
	Broadcast(ctx context.Context, channel string, payload []byte) error
}

var ErrEmailDisabled = errors.New("email delivery is disabled")

// Email skip reasons.
const (
	SkipDisabled        = "disabled"
	SkipNoAddress       = "no_address"
	SkipMasterOff       = "master_off"
	SkipUnverified      = "unverified"
	SkipCategoryOff     = "category_off"
	SkipPreferenceError = "preference_error"
)

type Options struct {
	EmailEnabled         bool
	RequireVerifiedEmail bool
	ActionBaseURL        string
}

// Result reports what happened on each channel for one recipient.
type Result struct {
	NotificationID int64
	EmailSent      bool
	EmailSkip      string
	EmailErr       error
	BroadcastErr   error
}

// Service delivers one event to one recipient: persist, then email, then
// broadcast. Only a persistence failure is returned as an error; email and
// broadcast failures are logged and reported in Result.
type Service struct {
	notifications NotificationStore
	preferences   PreferenceStore
	mailer        EmailSender
	broadcaster   Broadcaster
	opts          Options
	logger        logger.Logger
}

func NewService(notifications NotificationStore, preferences PreferenceStore, mailer EmailSender, broadcaster Broadcaster, opts Options, log logger.Logger) *Service {
	return &Service{
		notifications: notifications,
		preferences:   preferences,
		mailer:        mailer,
		broadcaster:   broadcaster,
		opts:          opts,
		logger:        log,
	}
}

func (s *Service) Deliver(ctx context.Context, e alert.Event, recipient directory.User) (Result, error) {
	var res Result
	actionURL := absoluteURL(s.opts.ActionBaseURL, e.ActionURL())

	n := &notification.Notification{
		UserID:  recipient.ID,
		Type:    NotificationType(e.Category()),
		Title:   e.Title(),
		Message: e.Description(),
		Data: map[string]interface{}{
			"event_type": e.Type(),
			"severity":   string(e.Severity()),
			"action_url": actionURL,
			"context":    alert.SanitizeContext(e.Context()),
		},
	}
	if err := s.notifications.Create(ctx, n); err != nil {
		return res, fmt.Errorf("failed to persist notification for user %d: %w", recipient.ID, err)
	}
	res.NotificationID = n.ID
	metrics.NotificationsCreatedTotal.WithLabelValues(n.Type).Inc()

	res.EmailSent, res.EmailSkip, res.EmailErr = s.sendEmail(ctx, e, recipient, actionURL)
	res.BroadcastErr = s.broadcast(ctx, e, actionURL, recipient.ID)

	return res, nil
}

// EmailGate decides whether recipient gets an email for e. It returns the
// skip reason, or "" when the email may be sent. Severity never overrides
// the recipient's preference.
func (s *Service) EmailGate(ctx context.Context, e alert.Event, recipient directory.User) string {
	if !s.opts.EmailEnabled || s.mailer == nil {
		return SkipDisabled
	}
	if recipient.Email == "" {
		return SkipNoAddress
	}

	pref, err := s.preferences.Get(ctx, recipient.ID)
	if err != nil {
		s.logger.WarnwCtx(ctx, "Failed to load email preference, skipping email",
			"user_id", recipient.ID,
			"error", err,
		)
		return SkipPreferenceError
	}

	if !pref.Enabled {
		return SkipMasterOff
	}
	if s.opts.RequireVerifiedEmail && !recipient.EmailVerified() {
		return SkipUnverified
	}
	if scoped, ok := e.(alert.PreferenceScoped); ok && !pref.AllowsCategory(scoped.PreferenceCategory()) {
		return SkipCategoryOff
	}
	return ""
}

func (s *Service) sendEmail(ctx context.Context, e alert.Event, recipient directory.User, actionURL string) (bool, string, error) {
	if reason := s.EmailGate(ctx, e, recipient); reason != "" {
		metrics.EmailsSkippedTotal.WithLabelValues(reason).Inc()
		s.logger.DebugwCtx(ctx, "Email skipped",
			"user_id", recipient.ID,
			"event_type", e.Type(),
			"reason", reason,
		)
		return false, reason, nil
	}

	vars := make(map[string]interface{})
	for k, v := range e.Context() {
		vars[k] = v
	}
	vars["alert"] = alertVariables(e, actionURL)
	vars["recipient_name"] = recipient.Name

	tier := alert.PolicyFor(e.Severity()).QueueTier
	err := s.mailer.Send(ctx, email.Message{
		To:        recipient.Email,
		Subject:   e.EmailSubject(),
		Template:  s.mailer.ResolveTemplate(e.Category().Slug(), tier),
		Variables: vars,
	})
	if err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to send alert email",
			"user_id", recipient.ID,
			"event_type", e.Type(),
			"error", err,
		)
		return false, "", err
	}
	return true, "", nil
}

// SendDirect emails an address that is not a directory user, such as an
// on-call mailbox. No preference gate applies.
func (s *Service) SendDirect(ctx context.Context, e alert.Event, address string) error {
	if !s.opts.EmailEnabled || s.mailer == nil {
		return ErrEmailDisabled
	}

	actionURL := absoluteURL(s.opts.ActionBaseURL, e.ActionURL())
	vars := map[string]interface{}{
		"alert":          alertVariables(e, actionURL),
		"recipient_name": address,
	}
	tier := alert.PolicyFor(e.Severity()).QueueTier
	err := s.mailer.Send(ctx, email.Message{
		To:        address,
		Subject:   e.EmailSubject(),
		Template:  s.mailer.ResolveTemplate(e.Category().Slug(), tier),
		Variables: vars,
	})
	if err != nil {
		return fmt.Errorf("failed to email %s: %w", address, err)
	}
	return nil
}

func (s *Service) broadcast(ctx context.Context, e alert.Event, actionURL string, recipientID int64) error {
	if s.broadcaster == nil {
		return nil
	}

	channel := ChannelFor(e.Category())
	body, err := json.Marshal(newBroadcastPayload(e, actionURL, recipientID))
	if err == nil {
		err = s.broadcaster.Broadcast(ctx, channel, body)
	}
	metrics.BroadcastsTotal.WithLabelValues(channel, metrics.StatusLabel(err)).Inc()

	if err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to broadcast alert",
			"channel", channel,
			"event_type", e.Type(),
			"error", err,
		)
	}
	return err
}
