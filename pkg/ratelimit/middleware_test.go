package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"bizpulse/internal/config"
	"bizpulse/internal/constants"
)

func newRouter(t *testing.T, opts Options) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	router := gin.New()
	router.Use(Middleware(ctx, opts))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func get(router http.Handler, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if userID != "" {
		req.Header.Set(constants.HeaderUserID, userID)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareLimitsPerUser(t *testing.T) {
	router := newRouter(t, Options{RPS: 0.001, Burst: 2, CleanupInterval: time.Minute, MaxAge: time.Minute})

	assert.Equal(t, http.StatusOK, get(router, "1").Code)
	assert.Equal(t, http.StatusOK, get(router, "1").Code)

	limited := get(router, "1")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))
	assert.Contains(t, limited.Body.String(), "RATE_LIMIT_EXCEEDED")

	assert.Equal(t, http.StatusOK, get(router, "2").Code, "other users keep their own budget")
	assert.Equal(t, http.StatusOK, get(router, "").Code)
}

func TestOptionsFrom(t *testing.T) {
	opts := OptionsFrom(config.RateLimitConfig{RPS: 50, CleanupInterval: 30})

	assert.Equal(t, 50.0, opts.RPS)
	assert.Equal(t, DefaultOptions().Burst, opts.Burst)
	assert.Equal(t, 30*time.Second, opts.CleanupInterval)
	assert.Equal(t, DefaultOptions().MaxAge, opts.MaxAge)
}
