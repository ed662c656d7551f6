package history

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizpulse/internal/alert"
	"bizpulse/internal/directory"
	"bizpulse/internal/dispatch"
	"bizpulse/internal/logger"
	pkgerrors "bizpulse/pkg/errors"
)

type memoryRepo struct {
	entries    []Entry
	lastFilter Filter
	err        error
}

func (m *memoryRepo) Insert(_ context.Context, e Entry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *memoryRepo) List(_ context.Context, f Filter) ([]Entry, error) {
	m.lastFilter = f
	if m.err != nil {
		return nil, m.err
	}
	return m.entries, nil
}

type usersByID map[int64]directory.User

func (u usersByID) User(_ context.Context, id int64) (*directory.User, error) {
	user, ok := u[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	return &user, nil
}

func (u usersByID) ByRoles(context.Context, ...string) ([]directory.User, error) { return nil, nil }

func (u usersByID) ManagerChain(context.Context, int64) ([]directory.User, error) { return nil, nil }

func TestRecorderSanitizesAndStoresOutcome(t *testing.T) {
	repo := &memoryRepo{}
	rec := NewRecorder(repo)
	rec.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	event := alert.NewFailedLogin(alert.FailedLoginInput{
		Email: "user@example.com", IPAddress: "203.0.113.7", Attempts: 12, UserAgent: strings.Repeat("a", 600),
	}, nil)

	err := rec.Record(context.Background(), event, dispatch.Outcome{
		Status:     dispatch.StatusFailed,
		Reason:     dispatch.ReasonRetriesExhausted,
		Err:        errors.New("smtp unavailable"),
		Attempts:   4,
		Recipients: 2,
		Delivered:  1,
	})
	require.NoError(t, err)
	require.Len(t, repo.entries, 1)

	entry := repo.entries[0]
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, alert.TypeFailedLogin, entry.EventType)
	assert.Equal(t, "HIGH", entry.Severity)
	assert.Equal(t, "failed", entry.Status)
	assert.Equal(t, "smtp unavailable", entry.Error)
	assert.Equal(t, 4, entry.Attempts)
	assert.Equal(t, rec.now(), entry.HandledAt)
	assert.True(t, strings.HasSuffix(entry.Context["user_agent"].(string), "[truncated]"))
}

func newRouter(repo Repository) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	dir := usersByID{
		1: {ID: 1, Role: directory.RoleAdmin},
		2: {ID: 2, Role: directory.RoleMember},
	}
	NewHandler(repo, dir, logger.NopLogger()).RegisterRoutes(router)
	return router
}

func get(router http.Handler, path, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandlerAccess(t *testing.T) {
	router := newRouter(&memoryRepo{})

	assert.Equal(t, http.StatusUnauthorized, get(router, "/api/v1/admin/alert-history", "").Code)
	assert.Equal(t, http.StatusForbidden, get(router, "/api/v1/admin/alert-history", "2").Code)
	assert.Equal(t, http.StatusForbidden, get(router, "/api/v1/admin/alert-history", "99").Code)
	assert.Equal(t, http.StatusOK, get(router, "/api/v1/admin/alert-history", "1").Code)
}

func TestHandlerList(t *testing.T) {
	repo := &memoryRepo{entries: []Entry{{ID: "a", Status: "delivered"}}}
	router := newRouter(repo)

	w := get(router, "/api/v1/admin/alert-history?status=delivered&category=user-action&severity=high&limit=500", "1")
	require.Equal(t, http.StatusOK, w.Code)

	var resp ListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)

	assert.Equal(t, Filter{
		Status:   "delivered",
		Category: "UserAction",
		Severity: "HIGH",
		Limit:    200,
	}, repo.lastFilter)
}

func TestHandlerRejectsBadFilters(t *testing.T) {
	router := newRouter(&memoryRepo{})

	for _, q := range []string{"status=lost", "category=payroll", "severity=urgent", "limit=-1"} {
		t.Run(q, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, get(router, "/api/v1/admin/alert-history?"+q, "1").Code)
		})
	}
}

func TestHandlerRepositoryError(t *testing.T) {
	router := newRouter(&memoryRepo{err: errors.New("mongo down")})
	assert.Equal(t, http.StatusInternalServerError, get(router, "/api/v1/admin/alert-history", "1").Code)
}
