package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizpulse/internal/logger"
)

type memoryRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]Notification
	prefs  map[int64]EmailPreference
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: map[int64]Notification{}, prefs: map[int64]EmailPreference{}}
}

func (m *memoryRepo) Create(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	n.ID = m.nextID
	n.CreatedAt = time.Unix(m.nextID, 0)
	m.rows[n.ID] = *n
	return nil
}

func (m *memoryRepo) List(_ context.Context, userID int64, f ListFilter) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Notification
	for _, n := range m.rows {
		if n.UserID != userID || (f.UnreadOnly && n.IsRead()) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memoryRepo) UnreadCount(_ context.Context, userID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.rows {
		if n.UserID == userID && !n.IsRead() {
			count++
		}
	}
	return count, nil
}

func (m *memoryRepo) MarkRead(_ context.Context, userID, id int64) (*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok || n.UserID != userID {
		return nil, ErrNotFound
	}
	if n.ReadAt == nil {
		now := time.Now()
		n.ReadAt = &now
		m.rows[id] = n
	}
	return &n, nil
}

func (m *memoryRepo) MarkAllRead(_ context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var updated int64
	now := time.Now()
	for id, n := range m.rows {
		if n.UserID == userID && n.ReadAt == nil {
			n.ReadAt = &now
			m.rows[id] = n
			updated++
		}
	}
	return updated, nil
}

func (m *memoryRepo) Delete(_ context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.rows[id]; ok && n.UserID == userID {
		delete(m.rows, id)
	}
	return nil
}

func (m *memoryRepo) Get(_ context.Context, userID int64) (EmailPreference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.prefs[userID]; ok {
		return p, nil
	}
	return DefaultPreference(userID), nil
}

func (m *memoryRepo) Upsert(_ context.Context, p EmailPreference) (EmailPreference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.UpdatedAt = time.Now()
	m.prefs[p.UserID] = p
	return p, nil
}

func setupRouter(t *testing.T) (*gin.Engine, *memoryRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := newMemoryRepo()
	router := gin.New()
	NewHandler(NewService(repo, repo, logger.NopLogger()), logger.NopLogger()).RegisterRoutes(router)
	return router, repo
}

func do(router *gin.Engine, method, path string, userID int64, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID > 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(userID, 10))
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func seed(t *testing.T, repo *memoryRepo, userID int64, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, repo.Create(context.Background(), &Notification{
			UserID: userID, Type: "security_alert", Title: "t", Message: "m",
		}))
	}
}

func TestHandlerRequiresUser(t *testing.T) {
	router, _ := setupRouter(t)
	w := do(router, http.MethodGet, "/api/v1/notifications", 0, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandlerListIsScopedToUser(t *testing.T) {
	router, repo := setupRouter(t)
	seed(t, repo, 1, 3)
	seed(t, repo, 2, 2)

	w := do(router, http.MethodGet, "/api/v1/notifications?limit=2", 1, "")
	require.Equal(t, http.StatusOK, w.Code)

	var items []Notification
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	require.Len(t, items, 2)
	for _, n := range items {
		assert.Equal(t, int64(1), n.UserID)
	}
	assert.True(t, items[0].CreatedAt.After(items[1].CreatedAt))
}

func TestHandlerMarkReadIsIdempotent(t *testing.T) {
	router, repo := setupRouter(t)
	seed(t, repo, 1, 2)

	first := do(router, http.MethodPost, "/api/v1/notifications/1/read", 1, "")
	require.Equal(t, http.StatusOK, first.Code)
	second := do(router, http.MethodPost, "/api/v1/notifications/1/read", 1, "")
	require.Equal(t, http.StatusOK, second.Code)

	var a, b Notification
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	require.NotNil(t, a.ReadAt)
	assert.True(t, a.ReadAt.Equal(*b.ReadAt))

	w := do(router, http.MethodGet, "/api/v1/notifications/unread-count", 1, "")
	assert.JSONEq(t, `{"unread":1}`, w.Body.String())
}

func TestHandlerMarkReadOtherUser(t *testing.T) {
	router, repo := setupRouter(t)
	seed(t, repo, 1, 1)

	w := do(router, http.MethodPost, "/api/v1/notifications/1/read", 2, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlerMarkAllRead(t *testing.T) {
	router, repo := setupRouter(t)
	seed(t, repo, 1, 3)

	w := do(router, http.MethodPost, "/api/v1/notifications/read-all", 1, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"updated":3}`, w.Body.String())

	w = do(router, http.MethodPost, "/api/v1/notifications/read-all", 1, "")
	assert.JSONEq(t, `{"updated":0}`, w.Body.String())
}

func TestHandlerDeleteIsIdempotent(t *testing.T) {
	router, repo := setupRouter(t)
	seed(t, repo, 1, 1)

	assert.Equal(t, http.StatusNoContent, do(router, http.MethodDelete, "/api/v1/notifications/1", 1, "").Code)
	assert.Equal(t, http.StatusNoContent, do(router, http.MethodDelete, "/api/v1/notifications/1", 1, "").Code)
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodDelete, "/api/v1/notifications/abc", 1, "").Code)
}

func TestHandlerPreferences(t *testing.T) {
	router, _ := setupRouter(t)

	w := do(router, http.MethodGet, "/api/v1/email-preferences", 7, "")
	require.Equal(t, http.StatusOK, w.Code)
	var p EmailPreference
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.True(t, p.Enabled)
	assert.True(t, p.Sales)

	w = do(router, http.MethodPut, "/api/v1/email-preferences", 7, `{"sales": false}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.True(t, p.Enabled)
	assert.False(t, p.Sales)
	assert.True(t, p.Goal)

	w = do(router, http.MethodPut, "/api/v1/email-preferences", 7, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEmailPreferenceAllowsCategory(t *testing.T) {
	p := DefaultPreference(1)
	p.Expense = false

	assert.False(t, p.AllowsCategory("expense"))
	assert.True(t, p.AllowsCategory("sales"))
	assert.True(t, p.AllowsCategory(""))
}
