package observer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizpulse/internal/alert"
	"bizpulse/internal/config"
	"bizpulse/internal/constants"
	"bizpulse/internal/logger"
)

var fixedNow = time.Date(2026, 5, 4, 15, 0, 0, 0, time.UTC)

type recordingDispatcher struct {
	events []alert.Event
	err    error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, e alert.Event) error {
	if d.err != nil {
		return d.err
	}
	d.events = append(d.events, e)
	return nil
}

type staticStats struct {
	history ExpenseHistory
	err     error
}

func (s staticStats) History(context.Context, int64, int64, time.Time) (ExpenseHistory, error) {
	return s.history, s.err
}

func testConfig() config.ObserversConfig {
	return config.ObserversConfig{
		HighValueSaleThreshold: 10000,
		ExpenseRatioThreshold:  3,
		MassDeletionThreshold:  10,
		BulkOperationThreshold: 50,
		FailedLoginThreshold:   3,
		FailedLoginWindow:      15 * time.Minute,
	}
}

func newTestObservers(t *testing.T, stats ExpenseStats) (*Observers, *recordingDispatcher, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	d := &recordingDispatcher{}
	o := New(d, NewRedisAttemptCounter(client, 15*time.Minute), stats, testConfig(), logger.NopLogger())
	o.now = func() time.Time { return fixedNow }
	return o, d, mr
}

func TestSaleClosed(t *testing.T) {
	o, d, _ := newTestObservers(t, staticStats{})
	ctx := context.Background()

	decision, err := o.SaleClosed(ctx, alert.HighValueSaleInput{SaleID: 1, Amount: 9999.99}, nil)
	require.NoError(t, err)
	assert.False(t, decision.Dispatched)
	assert.Equal(t, ReasonBelowThreshold, decision.Reason)

	decision, err = o.SaleClosed(ctx, alert.HighValueSaleInput{SaleID: 2, Amount: 120000, SalespersonID: 3}, nil)
	require.NoError(t, err)
	assert.True(t, decision.Dispatched)
	assert.Equal(t, alert.TypeHighValueSale, decision.EventType)
	assert.Equal(t, alert.SeverityHigh, decision.Severity)

	require.Len(t, d.events, 1)
	assert.Equal(t, 10000.0, d.events[0].Context()["threshold"])
}

func TestExpenseSubmittedUsesHistory(t *testing.T) {
	tests := []struct {
		name     string
		history  ExpenseHistory
		amount   float64
		dispatch bool
	}{
		{name: "ordinary", history: ExpenseHistory{AverageAmount: 100, ExpensesToday: 1}, amount: 150},
		{name: "far above average", history: ExpenseHistory{AverageAmount: 100, ExpensesToday: 1}, amount: 600, dispatch: true},
		{name: "busy day", history: ExpenseHistory{AverageAmount: 100, ExpensesToday: 10}, amount: 90, dispatch: true},
		{name: "no history", history: ExpenseHistory{ExpensesToday: 1}, amount: 5000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, d, _ := newTestObservers(t, staticStats{history: tt.history})

			decision, err := o.ExpenseSubmitted(context.Background(), alert.UnusualExpenseInput{
				ExpenseID: 9, SubmitterID: 4, Amount: tt.amount,
			}, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.dispatch, decision.Dispatched)
			if tt.dispatch {
				require.Len(t, d.events, 1)
				assert.Equal(t, tt.history.AverageAmount, d.events[0].Context()["average_amount"])
				assert.Equal(t, tt.history.ExpensesToday, d.events[0].Context()["expenses_today"])
			}
		})
	}
}

func TestExpenseSubmittedHistoryError(t *testing.T) {
	o, d, _ := newTestObservers(t, staticStats{err: errors.New("db down")})

	_, err := o.ExpenseSubmitted(context.Background(), alert.UnusualExpenseInput{ExpenseID: 1, Amount: 10}, nil)
	require.Error(t, err)
	assert.Empty(t, d.events)
}

func TestGoalClosed(t *testing.T) {
	o, d, _ := newTestObservers(t, staticStats{})
	ctx := context.Background()

	future := alert.GoalFailedInput{GoalID: 1, TargetValue: 100, AchievedValue: 10, Deadline: fixedNow.Add(time.Hour)}
	decision, err := o.GoalClosed(ctx, future, nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonNotOverdue, decision.Reason)

	met := alert.GoalFailedInput{GoalID: 2, TargetValue: 100, AchievedValue: 100, Deadline: fixedNow.Add(-time.Hour)}
	decision, err = o.GoalClosed(ctx, met, nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonGoalMet, decision.Reason)

	missed := alert.GoalFailedInput{GoalID: 3, TargetValue: 100, AchievedValue: 40, Deadline: fixedNow.Add(-time.Hour)}
	decision, err = o.GoalClosed(ctx, missed, nil)
	require.NoError(t, err)
	assert.True(t, decision.Dispatched)
	assert.Len(t, d.events, 1)
}

func TestContentAndBulkThresholds(t *testing.T) {
	o, d, _ := newTestObservers(t, staticStats{})
	ctx := context.Background()
	by := &alert.Actor{ID: 7, Name: "Editor"}

	decision, err := o.ContentDeleted(ctx, alert.ContentDeletionInput{ContentType: "post", Count: 9}, by)
	require.NoError(t, err)
	assert.False(t, decision.Dispatched)

	decision, err = o.ContentDeleted(ctx, alert.ContentDeletionInput{ContentType: "post", Count: 10}, by)
	require.NoError(t, err)
	assert.True(t, decision.Dispatched)

	decision, err = o.BulkOperationPerformed(ctx, alert.BulkOperationInput{Operation: "update", ResourceType: "tasks", ItemCount: 20, HasApproval: true}, by)
	require.NoError(t, err)
	assert.False(t, decision.Dispatched)

	decision, err = o.BulkOperationPerformed(ctx, alert.BulkOperationInput{Operation: "delete", ResourceType: "tasks", ItemCount: 5, IsDestructive: true}, by)
	require.NoError(t, err)
	assert.True(t, decision.Dispatched)
	assert.Equal(t, alert.SeverityHigh, decision.Severity)

	assert.Len(t, d.events, 2)
}

func TestLoginFailedCountsAttempts(t *testing.T) {
	o, d, mr := newTestObservers(t, staticStats{})
	ctx := context.Background()
	in := alert.FailedLoginInput{Email: "User@Example.com", IPAddress: "203.0.113.7"}

	for i := 0; i < 2; i++ {
		decision, err := o.LoginFailed(ctx, in, nil)
		require.NoError(t, err)
		assert.False(t, decision.Dispatched)
	}

	decision, err := o.LoginFailed(ctx, in, nil)
	require.NoError(t, err)
	require.True(t, decision.Dispatched)
	require.Len(t, d.events, 1)
	assert.Equal(t, 3, d.events[0].Context()["attempts"])

	key := attemptKey("user@example.com", "203.0.113.7")
	assert.Equal(t, 15*time.Minute, mr.TTL(key))

	require.NoError(t, o.LoginSucceeded(ctx, "user@example.com", "203.0.113.7"))
	assert.False(t, mr.Exists(key))
}

func TestLoginFailedWindowExpires(t *testing.T) {
	o, _, mr := newTestObservers(t, staticStats{})
	ctx := context.Background()
	in := alert.FailedLoginInput{Email: "a@example.com", IPAddress: "198.51.100.1"}

	_, err := o.LoginFailed(ctx, in, nil)
	require.NoError(t, err)
	_, err = o.LoginFailed(ctx, in, nil)
	require.NoError(t, err)

	mr.FastForward(16 * time.Minute)

	decision, err := o.LoginFailed(ctx, in, nil)
	require.NoError(t, err)
	assert.False(t, decision.Dispatched, "count restarts after the window")
}

func TestSuspiciousLoginAlertsImmediately(t *testing.T) {
	o, d, _ := newTestObservers(t, staticStats{})

	decision, err := o.LoginFailed(context.Background(), alert.FailedLoginInput{
		Email: "a@example.com", IPAddress: "198.51.100.1", Suspicious: true,
	}, nil)
	require.NoError(t, err)
	assert.True(t, decision.Dispatched)
	assert.Equal(t, alert.SeverityHigh, d.events[0].Severity())
}

func TestSessionActivitySkipsQuietSessions(t *testing.T) {
	o, d, _ := newTestObservers(t, staticStats{})
	ctx := context.Background()

	decision, err := o.SessionActivity(ctx, alert.SuspiciousSessionInput{
		UserID: 1, SessionID: "s1", CurrentIP: "203.0.113.7", PreviousIP: "203.0.113.7",
	}, nil)
	require.NoError(t, err)
	assert.False(t, decision.Dispatched)

	decision, err = o.SessionActivity(ctx, alert.SuspiciousSessionInput{
		UserID: 1, SessionID: "s1", CurrentIP: "203.0.113.7", ActivityType: "password_change",
	}, nil)
	require.NoError(t, err)
	assert.True(t, decision.Dispatched)
	assert.Equal(t, alert.SeverityCritical, decision.Severity)
	assert.Len(t, d.events, 1)
}

type mapLocator map[string]*alert.GeoLocation

func (m mapLocator) Locate(_ context.Context, ip string) (*alert.GeoLocation, error) {
	if loc, ok := m[ip]; ok {
		return loc, nil
	}
	return nil, errors.New("unknown ip")
}

func TestSessionActivityLocatesAddresses(t *testing.T) {
	o, d, _ := newTestObservers(t, staticStats{})
	o.WithLocator(mapLocator{
		"203.0.113.7":  {City: "Berlin", Country: "Germany", Latitude: 52.52, Longitude: 13.40},
		"198.51.100.1": {City: "Paris", Country: "France", Latitude: 48.85, Longitude: 2.35},
	})

	decision, err := o.SessionActivity(context.Background(), alert.SuspiciousSessionInput{
		UserID:         1,
		SessionID:      "s1",
		PreviousIP:     "198.51.100.1",
		CurrentIP:      "203.0.113.7",
		PreviousSeenAt: fixedNow.Add(-10 * time.Hour),
		CurrentSeenAt:  fixedNow,
	}, nil)
	require.NoError(t, err)
	require.True(t, decision.Dispatched)
	assert.Equal(t, alert.SeverityMedium, decision.Severity)
	require.Len(t, d.events, 1)
}

func TestLoginFailedLookupIsBestEffort(t *testing.T) {
	o, d, _ := newTestObservers(t, staticStats{})
	o.WithLocator(mapLocator{
		"203.0.113.7": {City: "Berlin", Country: "Germany", Latitude: 52.52, Longitude: 13.40},
	})
	ctx := context.Background()

	_, err := o.LoginFailed(ctx, alert.FailedLoginInput{Email: "a@example.com", IPAddress: "203.0.113.7", Suspicious: true}, nil)
	require.NoError(t, err)
	_, err = o.LoginFailed(ctx, alert.FailedLoginInput{Email: "a@example.com", IPAddress: "192.0.2.50", Suspicious: true}, nil)
	require.NoError(t, err)
	_, err = o.LoginFailed(ctx, alert.FailedLoginInput{Email: "a@example.com", IPAddress: "10.0.0.4", Suspicious: true}, nil)
	require.NoError(t, err)

	require.Len(t, d.events, 3)
	assert.Contains(t, d.events[0].Context(), "location")
	assert.NotContains(t, d.events[1].Context(), "location")
	assert.NotContains(t, d.events[2].Context(), "location")
}

func TestDispatchFailurePropagates(t *testing.T) {
	o, d, _ := newTestObservers(t, staticStats{})
	d.err = errors.New("broker down")

	_, err := o.AdminAccountModified(context.Background(), alert.AdminModificationInput{
		Target: alert.Actor{ID: 2, Name: "Admin"},
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func newTestRouter(t *testing.T, token string) (*gin.Engine, *recordingDispatcher) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	o, d, _ := newTestObservers(t, staticStats{})
	router := gin.New()
	NewHandler(o, token, logger.NopLogger()).RegisterRoutes(router)
	return router, d
}

func postJSON(router http.Handler, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHookBindsInputAndInitiator(t *testing.T) {
	router, d := newTestRouter(t, "")

	rec := postJSON(router, "/api/v1/hooks/content-deletions", map[string]interface{}{
		"content_type":    "post",
		"count":           150,
		"published_count": 3,
		"initiated_by":    map[string]interface{}{"id": 7, "name": "Editor", "email": "editor@example.com"},
	}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var decision Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.True(t, decision.Dispatched)
	assert.Equal(t, alert.SeverityCritical, decision.Severity)

	require.Len(t, d.events, 1)
	require.NotNil(t, d.events[0].InitiatedBy())
	assert.Equal(t, int64(7), d.events[0].InitiatedBy().ID)
}

func TestHookRejectsMalformedBody(t *testing.T) {
	router, _ := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/hooks/sales", bytes.NewReader([]byte(`{"amount":`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHookToken(t *testing.T) {
	router, d := newTestRouter(t, "s3cret")
	body := map[string]interface{}{"sale_id": 1, "amount": 50000}

	rec := postJSON(router, "/api/v1/hooks/sales", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(router, "/api/v1/hooks/sales", body, map[string]string{constants.HeaderHookToken: "s3cret"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, d.events, 1)
}

func TestSuccessfulLoginHookRequiresEmail(t *testing.T) {
	router, _ := newTestRouter(t, "")

	rec := postJSON(router, "/api/v1/hooks/successful-logins", map[string]string{"ip_address": "203.0.113.7"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(router, "/api/v1/hooks/successful-logins", map[string]string{"email": "a@example.com", "ip_address": "203.0.113.7"}, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
