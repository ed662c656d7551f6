package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type instantTimer struct {
	waits []time.Duration
	c     chan time.Time
}

func newInstantTimer() *instantTimer {
	return &instantTimer{c: make(chan time.Time, 1)}
}

func (t *instantTimer) Start(d time.Duration) {
	t.waits = append(t.waits, d)
	t.c <- time.Time{}
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time {
	return t.c
}

func TestScheduleBackOff(t *testing.T) {
	s := NewSchedule(time.Second, 2*time.Second)
	assert.Equal(t, time.Second, s.NextBackOff())
	assert.Equal(t, 2*time.Second, s.NextBackOff())
	assert.Equal(t, backoff.Stop, s.NextBackOff())

	s.Reset()
	assert.Equal(t, time.Second, s.NextBackOff())
}

func TestRetryWithScheduleSucceedsAfterFailures(t *testing.T) {
	timer := newInstantTimer()
	var retries []int

	attempts, err := RetryWithSchedule(context.Background(), ScheduleOptions{
		Delays:  []time.Duration{15 * time.Second, 30 * time.Second, time.Minute},
		Timer:   timer,
		OnRetry: func(attempt int, err error, next time.Duration) { retries = append(retries, attempt) },
	}, func(ctx context.Context, attempt int) error {
		if attempt < 3 {
			return errors.New("smtp unavailable")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{15 * time.Second, 30 * time.Second}, timer.waits)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestRetryWithScheduleExhausts(t *testing.T) {
	timer := newInstantTimer()
	failure := errors.New("db down")

	attempts, err := RetryWithSchedule(context.Background(), ScheduleOptions{
		Delays: []time.Duration{time.Minute},
		Timer:  timer,
	}, func(ctx context.Context, attempt int) error {
		return failure
	})

	assert.ErrorIs(t, err, failure)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, []time.Duration{time.Minute}, timer.waits)
}

func TestRetryWithScheduleStopsOnFatal(t *testing.T) {
	attempts, err := RetryWithSchedule(context.Background(), ScheduleOptions{
		Delays: []time.Duration{time.Second, time.Second},
		Timer:  newInstantTimer(),
	}, func(ctx context.Context, attempt int) error {
		return NewFatalError(errors.New("bad payload"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithScheduleHonorsDeadline(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	timer := newInstantTimer()

	attempts, err := RetryWithSchedule(context.Background(), ScheduleOptions{
		Delays:   []time.Duration{time.Minute, time.Hour, time.Hour},
		Deadline: clock.Add(30 * time.Minute),
		Timer:    timer,
		Now:      func() time.Time { return clock },
	}, func(ctx context.Context, attempt int) error {
		return errors.New("still failing")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeadlineExceeded)
	assert.Equal(t, 2, attempts, "the one-hour wait would end past the deadline")
	assert.Equal(t, []time.Duration{time.Minute}, timer.waits)
}

func TestRetryWithScheduleDeadlineCutsFirstWait(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	failure := errors.New("smtp unavailable")

	attempts, err := RetryWithSchedule(context.Background(), ScheduleOptions{
		Delays:   []time.Duration{15 * time.Second, 30 * time.Second},
		Deadline: clock.Add(10 * time.Second),
		Timer:    newInstantTimer(),
		Now:      func() time.Time { return clock },
	}, func(ctx context.Context, attempt int) error {
		return failure
	})

	assert.ErrorIs(t, err, ErrDeadlineExceeded)
	assert.ErrorIs(t, err, failure)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithScheduleExhaustedBeforeDeadline(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := RetryWithSchedule(context.Background(), ScheduleOptions{
		Delays:   []time.Duration{time.Second},
		Deadline: clock.Add(time.Hour),
		Timer:    newInstantTimer(),
		Now:      func() time.Time { return clock },
	}, func(ctx context.Context, attempt int) error {
		return errors.New("still failing")
	})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDeadlineExceeded)
}

func TestRetryWithScheduleContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	failure := errors.New("boom")

	attempts, err := RetryWithSchedule(ctx, ScheduleOptions{
		Delays: []time.Duration{time.Second, time.Second},
		Timer:  newInstantTimer(),
	}, func(ctx context.Context, attempt int) error {
		cancel()
		return failure
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, failure)
	assert.Equal(t, 1, attempts)
}
