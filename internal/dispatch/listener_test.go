package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"bizpulse/internal/alert"
	"bizpulse/internal/directory"
	"bizpulse/internal/fanout"
	"bizpulse/internal/logger"
	"bizpulse/internal/ratelimit"
	pkgerrors "bizpulse/pkg/errors"
)

type memoryDirectory struct {
	users []directory.User
	err   error
}

func (d *memoryDirectory) User(_ context.Context, id int64) (*directory.User, error) {
	for _, u := range d.users {
		if u.ID == id {
			u := u
			return &u, nil
		}
	}
	return nil, pkgerrors.ErrNotFound
}

func (d *memoryDirectory) ByRoles(_ context.Context, roles ...string) ([]directory.User, error) {
	if d.err != nil {
		return nil, d.err
	}
	var out []directory.User
	for _, u := range d.users {
		for _, r := range roles {
			if u.Role == r {
				out = append(out, u)
			}
		}
	}
	return out, nil
}

func (d *memoryDirectory) ManagerChain(ctx context.Context, userID int64) ([]directory.User, error) {
	if d.err != nil {
		return nil, d.err
	}
	var chain []directory.User
	current, err := d.User(ctx, userID)
	for err == nil && current.ManagerID != nil {
		current, err = d.User(ctx, *current.ManagerID)
		if err == nil {
			chain = append(chain, *current)
		}
	}
	return chain, nil
}

func ptr[T any](v T) *T { return &v }

func testDirectory() *memoryDirectory {
	return &memoryDirectory{users: []directory.User{
		{ID: 1, Name: "Ada", Email: "ada@example.com", Role: directory.RoleAdmin},
		{ID: 2, Name: "Bob", Email: "bob@example.com", Role: directory.RoleAdmin},
		{ID: 3, Name: "Mia", Email: "mia@example.com", Role: directory.RoleManager, ManagerID: ptr(int64(1))},
		{ID: 4, Name: "Sam", Email: "sam@example.com", Role: directory.RoleMember, ManagerID: ptr(int64(3))},
	}}
}

// scriptedFanout fails a recipient until it has been called failUntil times.
type scriptedFanout struct {
	mu        sync.Mutex
	calls     map[int64]int
	failUntil map[int64]int
	always    bool
}

func newScriptedFanout() *scriptedFanout {
	return &scriptedFanout{calls: map[int64]int{}, failUntil: map[int64]int{}}
}

func (f *scriptedFanout) Deliver(_ context.Context, _ alert.Event, r directory.User) (fanout.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[r.ID]++
	if f.always || f.calls[r.ID] <= f.failUntil[r.ID] {
		return fanout.Result{}, errors.New("smtp unavailable")
	}
	return fanout.Result{NotificationID: int64(f.calls[r.ID])}, nil
}

func (f *scriptedFanout) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type instantTimer struct {
	c chan time.Time
}

func (t *instantTimer) Start(time.Duration) {
	t.c = make(chan time.Time, 1)
	t.c <- time.Now()
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time {
	return t.c
}

type escalatorFunc func(ctx context.Context, failed alert.Event, out Outcome) error

func (f escalatorFunc) Escalate(ctx context.Context, failed alert.Event, out Outcome) error {
	return f(ctx, failed, out)
}

type harness struct {
	listener *Listener
	fanout   *scriptedFanout
	dir      *memoryDirectory
	redis    *miniredis.Miniredis
	logs     *observer.ObservedLogs
}

func newHarness(t *testing.T, onStoreError string) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	core, logs := observer.New(zap.DebugLevel)
	log := logger.FromZap(zap.New(core))

	h := &harness{
		fanout: newScriptedFanout(),
		dir:    testDirectory(),
		redis:  mr,
		logs:   logs,
	}
	limiter := ratelimit.NewLimiter(ratelimit.NewRedisStore(client), onStoreError, log)
	h.listener = NewListener(limiter, h.dir, h.fanout, ListenerOptions{
		Timer: &instantTimer{},
	}, log)
	return h
}

func highFailedLogin() alert.Event {
	return alert.NewFailedLogin(alert.FailedLoginInput{
		Email: "user@example.com", IPAddress: "203.0.113.7", Attempts: 12,
	}, nil)
}

func lowFailedLogin() alert.Event {
	return alert.NewFailedLogin(alert.FailedLoginInput{
		Email: "user@example.com", IPAddress: "203.0.113.7", Attempts: 1,
	}, nil)
}

func criticalEvent() alert.Event {
	return alert.NewAdminAccountModified(alert.AdminModificationInput{
		Target:        alert.Actor{ID: 2, Name: "Bob"},
		ChangedFields: []string{"role"},
		OldRole:       "manager",
		NewRole:       "admin",
	}, nil)
}

func TestListenerRateLimitIdempotence(t *testing.T) {
	h := newHarness(t, "allow")
	ctx := context.Background()

	var outcomes []Outcome
	for i := 0; i < 5; i++ {
		outcomes = append(outcomes, h.listener.Handle(ctx, highFailedLogin(), time.Now()))
	}

	assert.Equal(t, StatusDelivered, outcomes[0].Status)
	assert.Equal(t, 2, outcomes[0].Recipients)
	for _, o := range outcomes[1:] {
		assert.Equal(t, StatusSuppressed, o.Status)
		assert.Equal(t, ReasonRateLimited, o.Reason)
		assert.NoError(t, o.Err)
	}
	assert.Equal(t, 2, h.fanout.total(), "one delivery per admin")
	assert.Equal(t, 4, h.logs.FilterMessage("Alert suppressed by rate limit").Len())
}

func TestListenerFailedLoginWindow(t *testing.T) {
	h := newHarness(t, "allow")
	ctx := context.Background()

	assert.Equal(t, StatusDelivered, h.listener.Handle(ctx, highFailedLogin(), time.Now()).Status)
	assert.Equal(t, StatusSuppressed, h.listener.Handle(ctx, highFailedLogin(), time.Now()).Status)

	h.redis.FastForward(61 * time.Second)

	assert.Equal(t, StatusDelivered, h.listener.Handle(ctx, highFailedLogin(), time.Now()).Status)
}

func TestListenerRetriesOnlyFailedRecipients(t *testing.T) {
	h := newHarness(t, "allow")
	h.fanout.failUntil[2] = 2

	out := h.listener.Handle(context.Background(), highFailedLogin(), time.Now())

	assert.Equal(t, StatusDelivered, out.Status)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, 2, out.Delivered)
	assert.Equal(t, 1, h.fanout.calls[1])
	assert.Equal(t, 3, h.fanout.calls[2])
	assert.Equal(t, 2, h.logs.FilterMessage("Alert delivery failed, retrying").Len())
}

func TestListenerExhaustsSeverityBudget(t *testing.T) {
	tests := []struct {
		name     string
		event    alert.Event
		attempts int
	}{
		{name: "low", event: lowFailedLogin(), attempts: 2},
		{name: "high", event: highFailedLogin(), attempts: 4},
		{name: "critical", event: criticalEvent(), attempts: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "allow")
			h.fanout.always = true

			out := h.listener.Handle(context.Background(), tt.event, time.Now())

			assert.Equal(t, StatusFailed, out.Status)
			assert.Equal(t, ReasonRetriesExhausted, out.Reason)
			assert.Equal(t, tt.attempts, out.Attempts)
			assert.Error(t, out.Err)
			assert.False(t, out.Retryable())

			critical := h.logs.FilterMessage("Alert delivery failed permanently")
			require.Equal(t, 1, critical.Len())
			assert.Equal(t, zap.ErrorLevel, critical.All()[0].Level)
			assert.Equal(t, true, critical.All()[0].ContextMap()[logger.CriticalKey])
		})
	}
}

func TestListenerEscalationOnlyForCritical(t *testing.T) {
	for _, tt := range []struct {
		name  string
		event alert.Event
		want  int
	}{
		{name: "critical", event: criticalEvent(), want: 1},
		{name: "high", event: highFailedLogin(), want: 0},
	} {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "allow")
			h.fanout.always = true

			calls := 0
			h.listener.WithEscalator(escalatorFunc(func(_ context.Context, failed alert.Event, out Outcome) error {
				calls++
				assert.Equal(t, tt.event.Type(), failed.Type())
				assert.Equal(t, StatusFailed, out.Status)
				return nil
			}))

			h.listener.Handle(context.Background(), tt.event, time.Now())
			assert.Equal(t, tt.want, calls)
		})
	}
}

func TestListenerEscalationIsolation(t *testing.T) {
	escalators := map[string]Escalator{
		"error": escalatorFunc(func(context.Context, alert.Event, Outcome) error {
			return errors.New("escalation channel down")
		}),
		"panic": escalatorFunc(func(context.Context, alert.Event, Outcome) error {
			panic("escalation exploded")
		}),
	}

	for name, esc := range escalators {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, "allow")
			h.fanout.always = true
			h.listener.WithEscalator(esc)

			var out Outcome
			require.NotPanics(t, func() {
				out = h.listener.Handle(context.Background(), criticalEvent(), time.Now())
			})

			assert.Equal(t, StatusFailed, out.Status)
			assert.Equal(t, 1, h.logs.FilterMessage("Alert delivery failed permanently").Len())
			assert.Equal(t, 1, h.logs.FilterMessage("Alert escalation failed").Len())
		})
	}
}

func TestListenerRetryDeadline(t *testing.T) {
	h := newHarness(t, "allow")
	h.fanout.always = true

	out := h.listener.Handle(context.Background(), criticalEvent(), time.Now().Add(-3*time.Hour))

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, ReasonDeadlineExceeded, out.Reason)
	assert.Equal(t, 0, h.fanout.total())
}

func TestListenerPanickingFanoutIsIsolated(t *testing.T) {
	h := newHarness(t, "allow")
	h.listener.fanout = fanoutFunc(func(_ context.Context, _ alert.Event, r directory.User) (fanout.Result, error) {
		if r.ID == 1 {
			panic("boom")
		}
		return fanout.Result{}, nil
	})

	var out Outcome
	require.NotPanics(t, func() {
		out = h.listener.Handle(context.Background(), highFailedLogin(), time.Now())
	})
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, ReasonPartiallyDelivered, out.Reason)
	assert.Equal(t, 1, out.Delivered)
	assert.Equal(t, 1, out.Attempts, "a panic is not retried")
}

func TestListenerPanicDoesNotStopRetriesForOthers(t *testing.T) {
	h := newHarness(t, "allow")
	var mu sync.Mutex
	calls := map[int64]int{}
	h.listener.fanout = fanoutFunc(func(_ context.Context, _ alert.Event, r directory.User) (fanout.Result, error) {
		mu.Lock()
		calls[r.ID]++
		n := calls[r.ID]
		mu.Unlock()
		if r.ID == 1 {
			panic("template exploded")
		}
		if n == 1 {
			return fanout.Result{}, errors.New("smtp unavailable")
		}
		return fanout.Result{NotificationID: 7}, nil
	})

	out := h.listener.Handle(context.Background(), highFailedLogin(), time.Now())

	assert.Equal(t, 1, calls[1], "a panicking recipient is not retried")
	assert.Equal(t, 2, calls[2], "the transient failure still gets its retry")
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, ReasonPartiallyDelivered, out.Reason)
	assert.Equal(t, 1, out.Delivered)
	assert.Equal(t, 1, h.logs.FilterMessage("Alert delivery failed permanently").Len())
}

func TestListenerPartialDeliveryReason(t *testing.T) {
	h := newHarness(t, "allow")
	h.fanout.failUntil[2] = 100

	out := h.listener.Handle(context.Background(), lowFailedLogin(), time.Now())

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, ReasonPartiallyDelivered, out.Reason)
	assert.Equal(t, 2, out.Recipients)
	assert.Equal(t, 1, out.Delivered)
	assert.Error(t, out.Err)
	assert.False(t, out.Retryable())
	assert.Equal(t, 1, h.logs.FilterMessage("Alert delivery failed permanently").Len())
}

func TestListenerDeadlineCutsSchedule(t *testing.T) {
	h := newHarness(t, "allow")
	h.fanout.always = true

	// the first 15s backoff would end past a deadline 10s away
	receivedAt := time.Now().Add(-(2*time.Hour - 10*time.Second))
	out := h.listener.Handle(context.Background(), criticalEvent(), receivedAt)

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, ReasonDeadlineExceeded, out.Reason)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, 2, h.fanout.total())
}

func TestListenerInterruptedReleasesWindow(t *testing.T) {
	h := newHarness(t, "allow")
	ctx, cancel := context.WithCancel(context.Background())
	h.listener.fanout = fanoutFunc(func(ctx context.Context, _ alert.Event, _ directory.User) (fanout.Result, error) {
		cancel()
		return fanout.Result{}, ctx.Err()
	})

	out := h.listener.Handle(ctx, highFailedLogin(), time.Now())

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, ReasonInterrupted, out.Reason)
	assert.True(t, out.Retryable())
	assert.Empty(t, h.redis.Keys(), "the window claimed by the interrupted attempt is released")
	assert.Equal(t, 0, h.logs.FilterMessage("Alert delivery failed permanently").Len())

	h.listener.fanout = h.fanout
	again := h.listener.Handle(context.Background(), highFailedLogin(), time.Now())
	assert.Equal(t, StatusDelivered, again.Status)
	assert.Equal(t, 2, h.fanout.total())
}

type fanoutFunc func(ctx context.Context, e alert.Event, r directory.User) (fanout.Result, error)

func (f fanoutFunc) Deliver(ctx context.Context, e alert.Event, r directory.User) (fanout.Result, error) {
	return f(ctx, e, r)
}

func TestListenerMuteRules(t *testing.T) {
	h := newHarness(t, "allow")
	mutes, err := NewMuteRules([]string{`category == "Security" && severity == "HIGH"`}, logger.NopLogger())
	require.NoError(t, err)
	h.listener.WithMuteRules(mutes)

	out := h.listener.Handle(context.Background(), highFailedLogin(), time.Now())
	assert.Equal(t, StatusSuppressed, out.Status)
	assert.Equal(t, ReasonMuted, out.Reason)
	assert.Equal(t, 0, h.fanout.total())

	h.listener.WithMuteRules(nil)
	out = h.listener.Handle(context.Background(), highFailedLogin(), time.Now())
	assert.Equal(t, StatusDelivered, out.Status, "muting must not claim the rate-limit window")
}

func TestListenerNoRecipients(t *testing.T) {
	h := newHarness(t, "allow")
	h.dir.users = nil

	out := h.listener.Handle(context.Background(), highFailedLogin(), time.Now())
	assert.Equal(t, StatusSuppressed, out.Status)
	assert.Equal(t, ReasonNoRecipients, out.Reason)
}

func TestListenerRecipientLookupFailure(t *testing.T) {
	h := newHarness(t, "allow")
	h.dir.err = errors.New("db down")

	out := h.listener.Handle(context.Background(), highFailedLogin(), time.Now())
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, ReasonRecipientsFailed, out.Reason)
	assert.True(t, out.Retryable())

	h.dir.err = nil
	out = h.listener.Handle(context.Background(), highFailedLogin(), time.Now())
	assert.Equal(t, StatusDelivered, out.Status)
}

func TestListenerStoreErrorPolicy(t *testing.T) {
	h := newHarness(t, "deny")
	h.redis.Close()

	out := h.listener.Handle(context.Background(), highFailedLogin(), time.Now())
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, ReasonStoreUnavailable, out.Reason)
	assert.ErrorIs(t, out.Err, ratelimit.ErrStoreUnavailable)
	assert.True(t, out.Retryable())

	h = newHarness(t, "allow")
	h.redis.Close()

	out = h.listener.Handle(context.Background(), highFailedLogin(), time.Now())
	assert.Equal(t, StatusDelivered, out.Status)
}

func TestRecipientPolicies(t *testing.T) {
	ctx := context.Background()
	dir := testDirectory()

	admins, err := AllAdmins(ctx, dir, highFailedLogin())
	require.NoError(t, err)
	assert.Len(t, admins, 2)

	all, err := AdminsAndManagers(ctx, dir, highFailedLogin())
	require.NoError(t, err)
	assert.Len(t, all, 3)

	goal := alert.NewGoalFailed(alert.GoalFailedInput{GoalID: 1, OwnerID: 4, TargetValue: 100}, nil)
	chain, err := ManagerChain(ctx, dir, goal)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, int64(3), chain[0].ID)
	assert.Equal(t, int64(1), chain[1].ID)

	orphan := alert.NewGoalFailed(alert.GoalFailedInput{GoalID: 2, OwnerID: 1, TargetValue: 100}, nil)
	fallback, err := ManagerChain(ctx, dir, orphan)
	require.NoError(t, err)
	assert.Len(t, fallback, 2, "no chain falls back to admins")
}
