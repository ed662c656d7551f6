package dispatch

import (
	"context"
	"errors"
	"fmt"

	"bizpulse/internal/alert"
	"bizpulse/internal/directory"
	"bizpulse/internal/fanout"
)

// EscalationChannel is the delivery surface escalation uses. Escalation runs
// once, without rate limiting or retries.
type EscalationChannel interface {
	Deliver(ctx context.Context, e alert.Event, recipient directory.User) (fanout.Result, error)
	SendDirect(ctx context.Context, e alert.Event, address string) error
}

// FanoutEscalator raises a SystemDeliveryFailureEvent to every admin and to
// the configured external addresses.
type FanoutEscalator struct {
	listener  string
	directory directory.Directory
	channel   EscalationChannel
	addresses []string
}

func NewFanoutEscalator(listener string, dir directory.Directory, channel EscalationChannel, addresses []string) *FanoutEscalator {
	return &FanoutEscalator{
		listener:  listener,
		directory: dir,
		channel:   channel,
		addresses: addresses,
	}
}

// Escalate returns the joined errors of every target that failed.
func (f *FanoutEscalator) Escalate(ctx context.Context, failed alert.Event, out Outcome) error {
	lastErr := ""
	if out.Err != nil {
		lastErr = out.Err.Error()
	}
	event := alert.NewDeliveryFailure(alert.DeliveryFailureInput{
		FailedType:     failed.Type(),
		FailedCategory: failed.Category(),
		FailedSeverity: failed.Severity(),
		FailedTitle:    failed.Title(),
		Listener:       f.listener,
		Attempts:       out.Attempts,
		LastError:      lastErr,
	}, nil)

	var errs []error
	admins, err := f.directory.ByRoles(ctx, directory.RoleAdmin)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to load admins: %w", err))
	}
	for _, admin := range admins {
		if _, err := f.channel.Deliver(ctx, event, admin); err != nil {
			errs = append(errs, err)
		}
	}
	for _, addr := range f.addresses {
		if err := f.channel.SendDirect(ctx, event, addr); err != nil {
			errs = append(errs, err)
		}
	}

	if len(admins) == 0 && len(f.addresses) == 0 && len(errs) == 0 {
		return errors.New("no escalation targets")
	}
	return errors.Join(errs...)
}
