package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failing(name string) CheckFunc {
	return NewCheckFunc(name, func(context.Context) error { return errors.New(name + " down") })
}

func passing(name string) CheckFunc {
	return NewCheckFunc(name, func(context.Context) error { return nil })
}

func TestRegistryStatus(t *testing.T) {
	tests := []struct {
		name     string
		required []Checker
		optional []Checker
		want     Status
	}{
		{name: "all pass", required: []Checker{passing("a")}, optional: []Checker{passing("b")}, want: StatusHealthy},
		{name: "optional fails", required: []Checker{passing("a")}, optional: []Checker{failing("b")}, want: StatusDegraded},
		{name: "required fails", required: []Checker{failing("a")}, optional: []Checker{failing("b")}, want: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewCheckerRegistry()
			for _, c := range tt.required {
				r.Register(c)
			}
			for _, c := range tt.optional {
				r.RegisterOptional(c)
			}
			h := r.Check(context.Background())
			assert.Equal(t, tt.want, h.Status)
			assert.Len(t, h.Checks, 2)
		})
	}
}

func TestRedisChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	checker := Redis(client)
	require.NoError(t, checker.Check(context.Background()))

	mr.Close()
	assert.Error(t, checker.Check(context.Background()))
}

func TestHandlerStatusCodes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := NewCheckerRegistry()
	r.RegisterOptional(failing("mongodb"))
	router := gin.New()
	router.GET("/health", r.Handler())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"degraded"`)

	r.Register(failing("postgresql"))
	r.Register(passing("redis"))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCheckResultCarriesMessage(t *testing.T) {
	r := NewCheckerRegistry()
	r.Register(failing("postgresql"))
	r.RegisterOptional(failing("mongodb"))

	h := r.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, h.Status)
	assert.Equal(t, StatusDegraded, h.Checks["mongodb"].Status)
	assert.Contains(t, h.Checks["postgresql"].Message, "postgresql ping failed")
}
