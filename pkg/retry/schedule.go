package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Schedule is a backoff.BackOff that waits the given delays in order and
// stops once they are used up. The Nth retry waits delays[N-1].
type Schedule struct {
	delays []time.Duration
	next   int
}

func NewSchedule(delays ...time.Duration) *Schedule {
	return &Schedule{delays: append([]time.Duration(nil), delays...)}
}

func (s *Schedule) NextBackOff() time.Duration {
	if s.next >= len(s.delays) {
		return backoff.Stop
	}
	d := s.delays[s.next]
	s.next++
	return d
}

func (s *Schedule) Reset() {
	s.next = 0
}

// deadlineBackOff stops retrying when the next wait would end past deadline.
type deadlineBackOff struct {
	backoff.BackOff
	deadline time.Time
	now      func() time.Time
	cut      bool
}

func (d *deadlineBackOff) NextBackOff() time.Duration {
	next := d.BackOff.NextBackOff()
	if next == backoff.Stop {
		return backoff.Stop
	}
	if d.now().Add(next).After(d.deadline) {
		d.cut = true
		return backoff.Stop
	}
	return next
}

var ErrDeadlineExceeded = errors.New("retry deadline exceeded")

type ScheduleOptions struct {
	Delays []time.Duration
	// Deadline is a wall-clock cutoff after which no retry starts. Zero means none.
	Deadline time.Time
	// Timer replaces the real timer, e.g. to skip waits in tests.
	Timer backoff.Timer
	// Now replaces time.Now for the deadline check.
	Now     func() time.Time
	OnRetry func(attempt int, err error, nextDelay time.Duration)
}

// RetryWithSchedule runs fn until it succeeds, returns a FatalError, the
// schedule is used up, or the deadline passes. It reports how many attempts
// ran and the last error returned by fn.
func RetryWithSchedule(ctx context.Context, opts ScheduleOptions, fn func(ctx context.Context, attempt int) error) (int, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var b backoff.BackOff = NewSchedule(opts.Delays...)
	var deadline *deadlineBackOff
	if !opts.Deadline.IsZero() {
		deadline = &deadlineBackOff{BackOff: b, deadline: opts.Deadline, now: now}
		b = deadline
	}
	b = backoff.WithContext(b, ctx)

	attempt := 0
	var lastErr error
	operation := func() error {
		if !opts.Deadline.IsZero() && now().After(opts.Deadline) {
			return backoff.Permanent(ErrDeadlineExceeded)
		}

		attempt++
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if IsFatal(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, err, next)
		}
	}

	err := backoff.RetryNotifyWithTimer(operation, b, notify, opts.Timer)
	if err == nil {
		return attempt, nil
	}
	if deadline != nil && deadline.cut && ctx.Err() == nil {
		// the schedule had retries left but the next one would start too late
		return attempt, fmt.Errorf("%w: %w", ErrDeadlineExceeded, err)
	}
	if lastErr != nil && !errors.Is(err, lastErr) {
		return attempt, fmt.Errorf("%w: %w", err, lastErr)
	}
	return attempt, err
}
