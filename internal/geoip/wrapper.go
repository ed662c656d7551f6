package geoip

import (
	"context"

	"github.com/redis/go-redis/v9"

	"bizpulse/internal/alert"
	"bizpulse/internal/config"
	"bizpulse/pkg/circuitbreaker"
)

type CircuitBreakerLocator struct {
	next Locator
	cb   *circuitbreaker.Wrapper
}

func NewCircuitBreakerLocator(next Locator, cb *circuitbreaker.Wrapper) *CircuitBreakerLocator {
	return &CircuitBreakerLocator{next: next, cb: cb}
}

func (l *CircuitBreakerLocator) Locate(ctx context.Context, ip string) (*alert.GeoLocation, error) {
	return circuitbreaker.Do(ctx, l.cb, func() (*alert.GeoLocation, error) {
		return l.next.Locate(ctx, ip)
	})
}

// FromConfig builds cache -> breaker -> API. It returns nil when lookups are
// disabled.
func FromConfig(cfg config.GeoIPConfig, cbCfg config.CircuitBreakerConfig, client redis.UniversalClient) Locator {
	if !cfg.Enabled {
		return nil
	}
	var l Locator = NewAPILocator(cfg)
	if cb := circuitbreaker.FromSettings("geoip", cbCfg); cb != nil {
		l = NewCircuitBreakerLocator(l, cb)
	}
	if client != nil {
		l = NewCachedLocator(l, client, cfg.CacheTTL)
	}
	return l
}
