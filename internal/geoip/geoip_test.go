package geoip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizpulse/internal/config"
	"bizpulse/internal/constants"
)

func newAPI(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestAPILocator(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr bool
	}{
		{
			name:   "ipapi.co fields",
			status: http.StatusOK,
			body:   `{"city":"Berlin","country_name":"Germany","country":"DE","latitude":52.52,"longitude":13.4}`,
			want:   "Germany",
		},
		{
			name:   "ip-api.com fields",
			status: http.StatusOK,
			body:   `{"city":"Paris","country":"France","lat":48.85,"lon":2.35}`,
			want:   "France",
		},
		{name: "no coordinates", status: http.StatusOK, body: `{"error":true}`, wantErr: true},
		{name: "server error", status: http.StatusBadGateway, body: `{}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newAPI(t, tt.status, tt.body)
			l := NewAPILocator(config.GeoIPConfig{
				URL:     srv.URL + "/{ip}/json",
				Headers: map[string]string{"X-Api-Key": "secret"},
			})

			loc, err := l.Locate(context.Background(), "203.0.113.7")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, loc.Country)
			assert.NotZero(t, loc.Latitude)
		})
	}
}

func TestCachedLocator(t *testing.T) {
	srv, calls := newAPI(t, http.StatusOK, `{"city":"Berlin","country_name":"Germany","latitude":52.52,"longitude":13.4}`)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := FromConfig(config.GeoIPConfig{
		Enabled: true,
		URL:     srv.URL + "/{ip}",
		Headers: map[string]string{"X-Api-Key": "secret"},
	}, config.CircuitBreakerConfig{Enabled: true}, client)
	require.NotNil(t, l)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		loc, err := l.Locate(ctx, "203.0.113.7")
		require.NoError(t, err)
		assert.Equal(t, "Berlin", loc.City)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, constants.DefaultGeoIPCacheTTL, mr.TTL(constants.CacheKeyPrefixGeoIP+"203.0.113.7"))

	mr.FastForward(25 * time.Hour)
	_, err := l.Locate(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFromConfigDisabled(t *testing.T) {
	assert.Nil(t, FromConfig(config.GeoIPConfig{}, config.CircuitBreakerConfig{}, nil))
}

func TestRoutable(t *testing.T) {
	assert.True(t, Routable("203.0.113.7"))
	assert.True(t, Routable("2001:db8::1"))
	assert.False(t, Routable("10.1.2.3"))
	assert.False(t, Routable("127.0.0.1"))
	assert.False(t, Routable("169.254.0.1"))
	assert.False(t, Routable("not-an-ip"))
	assert.False(t, Routable(""))
}
